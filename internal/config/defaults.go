package config

import (
	"errors"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	DefaultLesionHome     = "~/.lesion"
	DefaultImageSize      = 128
	DefaultMaxUploadBytes = 16 << 20
	DefaultResultCache    = 256
	DefaultArtifactName   = "skin_lesion_model.msgpack"
)

var DefaultCorsOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

var (
	ErrLesionHomeNotSet       = errors.New("lesion home directory is not set")
	ErrLesionHomeExpandFailed = errors.New("failed to expand lesion home directory")
)

// SetDefaults registers every known key on v so that environment overrides
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper, modelsDir string) {
	v.SetDefault("port", 5000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("environment", "dev")
	v.SetDefault("locale", "vi")
	v.SetDefault("public_dir", "")
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("cors_origins", DefaultCorsOrigins)
	v.SetDefault("result_cache_size", DefaultResultCache)

	v.SetDefault("model.artifact", filepath.Join(modelsDir, DefaultArtifactName))
	v.SetDefault("model.source", "")
	v.SetDefault("model.backbone_weights", "")
	v.SetDefault("model.onnxruntime_lib", "")
	v.SetDefault("model.image_size", DefaultImageSize)
	v.SetDefault("model.seed", 42)

	v.SetDefault("s3.region_name", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.endpoint_url", "")
}

// DefaultClasses is the catalogue in the order of the training data
// directories. Reordering it without retraining mislabels every prediction.
func DefaultClasses() []ClassConfig {
	return []ClassConfig{
		{ID: "actinic_keratosis", Name: "Actinic Keratosis", Localized: "Tổn Thương Tiền Ung Thư"},
		{ID: "basal_cell_carcinoma", Name: "Basal Cell Carcinoma", Localized: "Ung Thư Biểu Mô Tế Bào Đáy"},
		{ID: "dermatofibroma", Name: "Dermatofibroma", Localized: "U Xơ Da"},
		{ID: "melanoma", Name: "Melanoma", Localized: "Melanoma"},
		{ID: "nevus", Name: "Nevus", Localized: "Nốt Ruồi Lành Tính"},
		{ID: "pigmented_benign_keratosis", Name: "Pigmented Benign Keratosis", Localized: "Sừng Hóa Lành Tính Có Sắc Tố"},
		{ID: "seborrheic_keratosis", Name: "Seborrheic Keratosis", Localized: "Sừng Hóa Bã Nhờn"},
		{ID: "squamous_cell_carcinoma", Name: "Squamous Cell Carcinoma", Localized: "Ung Thư Biểu Mô Vảy"},
		{ID: "vascular_lesion", Name: "Vascular Lesion", Localized: "Tổn Thương Mạch Máu"},
	}
}
