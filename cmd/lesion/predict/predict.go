package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/services/batch"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "predict <path>...",
	Short: "Classify image files or directories of images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

func init() {
	flags := Cmd.Flags()
	flags.Int("workers", runtime.NumCPU(), "Number of images classified concurrently")
	flags.Bool("json", false, "Print one JSON object per image instead of a table")
	flags.Bool("no-progress", false, "Hide the progress bar")
}

func runPredict(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	asJSON, _ := cmd.Flags().GetBool("json")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	paths, err := batch.Collect(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found")
	}

	app, err := app.NewApp(config.MustGetConfig(), app.WithModel())
	if err != nil {
		return err
	}
	defer app.Close()

	status := app.Predictor().Status()
	if !status.Ready {
		return fmt.Errorf("model could not be loaded from %s", app.Config().Model.Artifact)
	}

	var progress io.Writer = os.Stderr
	if noProgress {
		progress = nil
	}

	runner := batch.NewRunner(app.Predictor(), workers, progress)
	defer runner.Stop()

	items, err := runner.Run(cmd.Context(), paths)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tDIAGNOSIS\tCONFIDENCE\tSTATUS")
	for _, item := range items {
		if item.Result == nil {
			fmt.Fprintf(w, "%s\t-\t-\t%s\n", item.Path, item.Error)
			continue
		}

		top := item.Result.TopResult
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", item.Path, top.Diagnosis, top.Confidence, item.Result.ModelStatus)
	}

	return w.Flush()
}
