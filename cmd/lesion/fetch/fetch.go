package fetch

import (
	"errors"
	"os"

	"github.com/cozy-creator/lesion-server/internal/artifact"
	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the model artifact into the models directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustGetConfig()

		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = cfg.Model.Source
		}
		if source == "" {
			return errors.New("no source given; pass --source or set model.source")
		}

		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = cfg.Model.Artifact
		}
		force, _ := cmd.Flags().GetBool("force")

		log, err := logger.InitLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		fetcher := artifact.NewFetcher(log,
			artifact.WithS3Config(cfg.S3),
			artifact.WithProgressOutput(os.Stderr),
		)
		if err := fetcher.Fetch(cmd.Context(), source, dest, force); err != nil {
			return err
		}

		logger.Info("artifact fetched", zap.String("source", source), zap.String("dest", dest))
		return nil
	},
}

func init() {
	Cmd.Flags().String("source", "", "Path, http(s) URL or s3://bucket/key of the artifact")
	Cmd.Flags().String("dest", "", "Where to store the artifact; defaults to model.artifact")
	Cmd.Flags().Bool("force", false, "Download even if the artifact already exists")
}
