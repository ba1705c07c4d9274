package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/lesion-server/internal/templates"
	"github.com/cozy-creator/lesion-server/internal/utils/pathutil"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	SourceFile   = "file"
	SourceHTTP   = "http"
	SourceS3     = "s3"
	lesionPrefix = "LESION"
)

type Config struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host            string        `mapstructure:"host"`
	Environment     string        `mapstructure:"environment" validate:"oneof=dev prod test"`
	LesionHome      string        `mapstructure:"lesion_home"`
	ModelsDir       string        `mapstructure:"models_dir"`
	Locale          string        `mapstructure:"locale" validate:"oneof=vi en"`
	PublicDir       string        `mapstructure:"public_dir"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	CorsOrigins     []string      `mapstructure:"cors_origins"`
	ResultCacheSize int           `mapstructure:"result_cache_size" validate:"gte=0"`
	Model           *ModelConfig  `mapstructure:"model" validate:"required"`
	S3              *S3Config     `mapstructure:"s3"`
	Classes         []ClassConfig `mapstructure:"classes" validate:"omitempty,min=2,dive"`
}

type ModelConfig struct {
	// Artifact is the local path the loader reads.
	Artifact string `mapstructure:"artifact"`
	// Source, when set, is fetched into Artifact before loading.
	Source          string `mapstructure:"source"`
	BackboneWeights string `mapstructure:"backbone_weights"`
	OnnxRuntimeLib  string `mapstructure:"onnxruntime_lib"`
	ImageSize       int    `mapstructure:"image_size" validate:"gt=0"`
	Seed            uint64 `mapstructure:"seed"`
}

type S3Config struct {
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

type ClassConfig struct {
	ID        string `mapstructure:"id" validate:"required"`
	Name      string `mapstructure:"name" validate:"required"`
	Localized string `mapstructure:"localized" validate:"required"`
}

var config *Config

// InitConfig resolves the lesion home directory, writes a config template on
// first run and loads .env and config.yaml into viper.
func InitConfig() error {
	lesionHome, err := getLesionHome()
	if err != nil {
		return err
	}

	if err := createLesionHomeDirs(lesionHome); err != nil {
		return err
	}

	modelsDir := viper.GetString("models_dir")
	if modelsDir == "" {
		modelsDir = filepath.Join(lesionHome, "models")
	}
	if modelsDir, err = pathutil.ExpandPath(modelsDir); err != nil {
		return ErrLesionHomeExpandFailed
	}

	viper.Set("lesion_home", lesionHome)
	viper.Set("models_dir", modelsDir)

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(lesionHome, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(lesionHome, "config.yaml")
		if _, err := os.Stat(configFile); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to stat config.yaml file: %w", err)
			}

			if err := templates.WriteConfig(configFile); err != nil {
				return fmt.Errorf("failed to create config.yaml file: %w", err)
			}
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	SetDefaults(viper.GetViper(), modelsDir)
	viper.SetEnvPrefix(lesionPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`, `.`, `_`))
	viper.AutomaticEnv()
	viper.SetConfigFile(configFile)

	if err := viper.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) || os.IsNotExist(err) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	return LoadConfig(false)
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	cfg, err := Unmarshal(viper.GetViper())
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// Unmarshal decodes and validates a Config from v. An empty class list is
// replaced with the default catalogue.
func Unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if len(cfg.Classes) == 0 {
		cfg.Classes = DefaultClasses()
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Model.Artifact != "" {
		artifact, err := pathutil.ExpandPath(cfg.Model.Artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to expand artifact path: %w", err)
		}
		cfg.Model.Artifact = artifact
	}

	if cfg.Model.BackboneWeights != "" {
		weights, err := pathutil.ExpandPath(cfg.Model.BackboneWeights)
		if err != nil {
			return nil, fmt.Errorf("failed to expand backbone weights path: %w", err)
		}
		cfg.Model.BackboneWeights = weights
	}

	return cfg, nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func MustGetConfig() *Config {
	return GetConfig()
}

// BindFlags binds each config key to the flag of the given name. Flags that
// do not exist in flags are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	return nil
}

// SourceType classifies a model source string: "s3://bucket/key",
// "http(s)://..." or a local path optionally prefixed with "file:".
func SourceType(source string) string {
	switch {
	case strings.HasPrefix(source, "s3://"):
		return SourceS3
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return SourceHTTP
	default:
		return SourceFile
	}
}

// Returns the lesion home directory path.
// It attempts to retrieve the lesion home directory from the following sources in order:
// 1. The `lesion_home` flag from viper.
// 2. The `LESION_HOME` environment variable.
// 3. The default lesion home directory.
func getLesionHome() (string, error) {
	lesionHome := viper.GetString("lesion_home")
	if lesionHome == "" {
		lesionHome = os.Getenv("LESION_HOME")
		if lesionHome == "" {
			lesionHome = DefaultLesionHome
		}
	}

	lesionHome, err := pathutil.ExpandPath(lesionHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand lesion home path: %w", err)
	}

	return lesionHome, nil
}

func createLesionHomeDirs(lesionHome string) error {
	if lesionHome == "" {
		return ErrLesionHomeNotSet
	}

	subdirs := []string{"models"}
	if err := os.MkdirAll(lesionHome, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create lesion home directory: %w", err)
	}

	for _, subdir := range subdirs {
		dir := filepath.Join(lesionHome, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}
