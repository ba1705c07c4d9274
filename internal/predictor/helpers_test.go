package predictor

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/stretchr/testify/require"
)

func testCatalogue() Catalogue {
	return Catalogue{
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

// stubModel returns a fixed score vector for every input of the right size.
type stubModel struct {
	scores []float32
	err    error
	calls  int
}

func (s *stubModel) Predict(input []float32) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(input) != 128*128*3 {
		return nil, model.ErrShapeMismatch
	}

	out := make([]float32, len(s.scores))
	copy(out, s.scores)
	return out, nil
}

func (s *stubModel) Close() error { return nil }

func fixedScores() []float32 {
	return []float32{0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.6}
}

func stubLoader(m model.Model, provenance model.Provenance) Loader {
	return LoaderFunc(func(context.Context) *model.LoadedModel {
		return model.NewLoadedModel(m, provenance, []int64{1, 128, 128, 3}, 9)
	})
}

func readyPredictor(t *testing.T, m model.Model, opts ...Option) *Predictor {
	t.Helper()
	p, err := New(testCatalogue(), opts...)
	require.NoError(t, err)
	require.NoError(t, p.Load(context.Background(), stubLoader(m, model.ProvenanceNative)))
	return p
}

// testPattern draws a w×h gradient with a diagonal stripe.
func testPattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x * 255 / max(w-1, 1)), G: uint8(y * 255 / max(h-1, 1)), B: 128, A: 255}
			if x == y {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(mediaType string, data []byte) []byte {
	return []byte("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data))
}
