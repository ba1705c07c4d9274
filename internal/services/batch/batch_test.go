package batch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedModel struct{}

func (fixedModel) Predict(input []float32) ([]float32, error) {
	if len(input) != 128*128*3 {
		return nil, model.ErrShapeMismatch
	}
	return []float32{0.1, 0.1, 0.1, 0.3, 0.1, 0.1, 0.1, 0.05, 0.05}, nil
}

func (fixedModel) Close() error { return nil }

func newPredictor(t *testing.T) *predictor.Predictor {
	t.Helper()

	var catalogue predictor.Catalogue
	for _, c := range config.DefaultClasses() {
		catalogue = append(catalogue, predictor.Label{ID: c.ID, Name: c.Name, Localized: c.Localized})
	}

	p, err := predictor.New(catalogue, predictor.WithLocale(predictor.LocaleEnglish))
	require.NoError(t, err)
	require.NoError(t, p.Load(context.Background(), predictor.LoaderFunc(func(context.Context) *model.LoadedModel {
		return model.NewLoadedModel(fixedModel{}, model.ProvenanceNative, []int64{1, 128, 128, 3}, 9)
	})))
	return p
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for i := 0; i < 20; i++ {
		img.Set(i, i, color.RGBA{R: 200, A: 255})
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestCollect(t *testing.T) {
	t.Run("Should expand directories into image files", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "a.png"))
		writePNG(t, filepath.Join(dir, "B.JPG"))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
		writePNG(t, filepath.Join(dir, "nested", "c.webp"))

		explicit := filepath.Join(t.TempDir(), "scan.data")
		writePNG(t, explicit)

		files, err := Collect([]string{dir, explicit})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "a.png"),
			filepath.Join(dir, "B.JPG"),
			filepath.Join(dir, "nested", "c.webp"),
			explicit,
		}, files)
	})

	t.Run("Should fail for a missing path", func(t *testing.T) {
		_, err := Collect([]string{filepath.Join(t.TempDir(), "missing")})
		assert.Error(t, err)
	})
}

func TestRunner(t *testing.T) {
	t.Run("Should predict every file in input order", func(t *testing.T) {
		dir := t.TempDir()
		var paths []string
		for _, name := range []string{"one.png", "two.png", "three.png", "four.png"} {
			path := filepath.Join(dir, name)
			writePNG(t, path)
			paths = append(paths, path)
		}
		broken := filepath.Join(dir, "broken.png")
		require.NoError(t, os.WriteFile(broken, []byte("not a png"), 0644))
		paths = append(paths, broken, filepath.Join(dir, "gone.png"))

		r := NewRunner(newPredictor(t), 3, io.Discard)
		defer r.Stop()

		items, err := r.Run(context.Background(), paths)
		require.NoError(t, err)
		require.Len(t, items, len(paths))

		for i, item := range items[:4] {
			assert.Equal(t, paths[i], item.Path)
			require.NotNil(t, item.Result)
			assert.Equal(t, "Melanoma", item.Result.TopResult.Diagnosis)
			assert.Empty(t, item.Error)
		}

		assert.Nil(t, items[4].Result)
		assert.Contains(t, items[4].Error, string(predictor.KindDecodeFailure))
		assert.Contains(t, items[5].Error, "failed to read file")
	})

	t.Run("Should return nothing for no paths", func(t *testing.T) {
		r := NewRunner(newPredictor(t), 0, nil)
		defer r.Stop()

		items, err := r.Run(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("Should stop when the context is cancelled", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "one.png")
		writePNG(t, path)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := NewRunner(newPredictor(t), 1, nil)
		defer r.Stop()

		_, err := r.Run(ctx, []string{path, path, path})
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	})
}
