package convert

import (
	"errors"
	"fmt"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/cozy-creator/lesion-server/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "convert",
	Short: "Re-save the configured artifact as a native bundle",
	Long:  "Loads the configured artifact through the same fallback chain as the server and writes the resulting network as a native bundle, so later loads take the first strategy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustGetConfig()

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return errors.New("--output is required")
		}
		allowDegraded, _ := cmd.Flags().GetBool("allow-degraded")

		log, err := logger.InitLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		m := model.NewLoader(app.LoaderConfig(cfg), log).Load(cmd.Context())
		defer m.Close()

		if !m.Ready {
			return fmt.Errorf("failed to load %s", cfg.Model.Artifact)
		}
		if m.Degraded() {
			if !allowDegraded {
				return fmt.Errorf("artifact only loaded as %s; pass --allow-degraded to save it anyway", m.Provenance)
			}
			logger.Warn("saving a degraded model", zap.String("provenance", string(m.Provenance)))
		}

		net, ok := m.Network()
		if !ok {
			return errors.New("onnx artifacts cannot be converted")
		}

		if err := model.SaveBundle(output, net, nil); err != nil {
			return err
		}

		logger.Info("artifact converted",
			zap.String("artifact", cfg.Model.Artifact),
			zap.String("provenance", string(m.Provenance)),
			zap.String("output", output),
		)
		return nil
	},
}

func init() {
	Cmd.Flags().StringP("output", "o", "", "Path of the native bundle to write")
	Cmd.Flags().Bool("allow-degraded", false, "Save a model built from the architecture-only fallback")
}
