package run

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/server"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Load the model and start the prediction server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", 5000, "Port to run the server on")
	flags.String("host", "0.0.0.0", "Host to run the server on")
	flags.String("public-dir", "", "Path where static files should be served from. Relative paths are relative to the current working directory.")
	flags.Int64("max-upload-bytes", config.DefaultMaxUploadBytes, "Largest accepted request body")
	flags.StringSlice("cors-origins", config.DefaultCorsOrigins, "Origins allowed to call the API")
	flags.Int("result-cache-size", config.DefaultResultCache, "Number of prediction results kept in memory; 0 disables the cache")
	flags.String("model-source", "", "Fetch the artifact from this path, http(s) URL or s3:// URL before loading")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	cobra.CheckErr(config.BindFlags(viper.GetViper(), flags, map[string]string{
		"port":              "port",
		"host":              "host",
		"public_dir":        "public-dir",
		"max_upload_bytes":  "max-upload-bytes",
		"cors_origins":      "cors-origins",
		"result_cache_size": "result-cache-size",
		"model.source":      "model-source",
		"s3.access_key":     "s3-access-key",
		"s3.secret_key":     "s3-secret-key",
		"s3.region_name":    "s3-region-name",
		"s3.bucket_name":    "s3-bucket-name",
		"s3.endpoint_url":   "s3-endpoint-url",
	}))
}

func runApp(_ *cobra.Command, _ []string) error {
	signalc := make(chan os.Signal, 1)

	// The model is loaded before the server accepts requests
	app, err := app.NewApp(config.MustGetConfig(), app.WithMetrics(), app.WithResultCache(), app.WithModel())
	if err != nil {
		return err
	}
	defer app.Close()

	status := app.Predictor().Status()
	if !status.Ready {
		app.Logger.Warn("serving without a model; predictions will fail until the artifact is fixed and the server restarted")
	}

	server, errc, err := runServer(app)
	if err != nil {
		return err
	}

	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-signalc:
		return server.Stop(app.Context())
	}
}

func runServer(app *app.App) (*server.Server, <-chan error, error) {
	server, err := server.NewServer(app.Config())
	if err != nil {
		return nil, nil, err
	}

	// Setup the server routes
	server.SetupRoutes(app)

	errc := make(chan error, 1)
	go func() {
		app.Logger.Info("lesion server started", zap.String("addr", server.Addr()))
		fmt.Printf("Lesion server started on %s\n", server.Addr())
		errc <- server.Start()
	}()

	return server, errc, nil
}
