package cmd

import (
	"fmt"
	"os"
	"strings"

	// Subcommands
	"github.com/cozy-creator/lesion-server/cmd/lesion/classes"
	"github.com/cozy-creator/lesion-server/cmd/lesion/convert"
	"github.com/cozy-creator/lesion-server/cmd/lesion/fetch"
	"github.com/cozy-creator/lesion-server/cmd/lesion/predict"
	"github.com/cozy-creator/lesion-server/cmd/lesion/run"
	"github.com/cozy-creator/lesion-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const lesionPrefix = "LESION"

var Cmd = &cobra.Command{
	Use:   "lesion",
	Short: "Skin lesion classifier",
	Long:  "Serves a skin lesion image classifier over HTTP and runs it from the command line",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(lesionPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`, // convert hyphens to underscores
			`.`, `_`, // convert dots to underscores
		))
		viper.AutomaticEnv()

		return config.InitConfig()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("lesion-home", "", "Path to the lesion home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")
	pflags.String("environment", "dev", "Environment configuration: dev, prod or test")
	pflags.String("locale", "vi", "Language of user-facing messages: vi or en")

	pflags.String("artifact", "", "Path of the model artifact to load")
	pflags.String("backbone-weights", "", "Weights used when the artifact cannot be read at all")
	pflags.String("onnxruntime-lib", "", "Path to the onnxruntime shared library, for .onnx artifacts")
	pflags.Int("image-size", config.DefaultImageSize, "Side of the square model input")

	cobra.CheckErr(config.BindFlags(viper.GetViper(), pflags, map[string]string{
		"lesion_home":            "lesion-home",
		"config_file":            "config-file",
		"env_file":               "env-file",
		"environment":            "environment",
		"locale":                 "locale",
		"model.artifact":         "artifact",
		"model.backbone_weights": "backbone-weights",
		"model.onnxruntime_lib":  "onnxruntime-lib",
		"model.image_size":       "image-size",
	}))

	Cmd.AddCommand(run.Cmd, predict.Cmd, fetch.Cmd, convert.Cmd, classes.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
