package predictor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/cozy-creator/lesion-server/internal/utils/imageutil"
)

const (
	DefaultImageSize = 128
	channels         = 3
)

var dataURIPrefix = []byte("data:")

// Normalizer turns encoded image bytes into a (1, height, width, 3) tensor
// with values in [0, 1].
type Normalizer struct {
	height int
	width  int
}

func NewNormalizer(height, width int) *Normalizer {
	if height <= 0 {
		height = DefaultImageSize
	}
	if width <= 0 {
		width = DefaultImageSize
	}

	return &Normalizer{height: height, width: width}
}

// Shape is the tensor shape Normalize produces.
func (n *Normalizer) Shape() []int64 {
	return []int64{1, int64(n.height), int64(n.width), channels}
}

// Normalize accepts raw image bytes or a base64 data URI. Every failure is a
// DecodeFailure.
func (n *Normalizer) Normalize(data []byte) (model.Tensor, error) {
	payload, err := decodeDataURI(data)
	if err != nil {
		return model.Tensor{}, newError(KindDecodeFailure, err)
	}

	img, err := imageutil.Decode(payload)
	if err != nil {
		return model.Tensor{}, newError(KindDecodeFailure, err)
	}

	return n.fromImage(img), nil
}

func (n *Normalizer) fromImage(img image.Image) model.Tensor {
	rgb := imageutil.DropAlpha(img)

	var src image.Image = rgb
	if size := rgb.Bounds().Size(); size.X != n.width || size.Y != n.height {
		src = transform.Resize(rgb, n.width, n.height, transform.Lanczos)
	}

	tensor := model.NewTensor(n.Shape()...)
	i := 0
	for y := 0; y < n.height; y++ {
		for x := 0; x < n.width; x++ {
			r, g, b := pixel(src, x, y)
			tensor.Data[i+0] = float32(r) / 255
			tensor.Data[i+1] = float32(g) / 255
			tensor.Data[i+2] = float32(b) / 255
			i += channels
		}
	}

	return tensor
}

func pixel(img image.Image, x, y int) (r, g, b uint8) {
	switch im := img.(type) {
	case *image.NRGBA:
		o := im.PixOffset(x, y)
		return im.Pix[o], im.Pix[o+1], im.Pix[o+2]
	case *image.RGBA:
		// Fully opaque after DropAlpha, so premultiplied equals straight.
		o := im.PixOffset(x, y)
		return im.Pix[o], im.Pix[o+1], im.Pix[o+2]
	default:
		cr, cg, cb, _ := img.At(x, y).RGBA()
		return uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8)
	}
}

// decodeDataURI strips a "data:<type>;base64," header and decodes the
// payload. Input without the header is returned untouched: binary images
// may legitimately end in whitespace bytes.
func decodeDataURI(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, dataURIPrefix) {
		return data, nil
	}
	data = trimmed

	comma := bytes.IndexByte(data, ',')
	if comma < 0 {
		return nil, errors.New("data URI has no payload")
	}

	header := data[len(dataURIPrefix):comma]
	if !bytes.HasSuffix(header, []byte(";base64")) {
		return nil, fmt.Errorf("data URI %q is not base64 encoded", header)
	}
	if !bytes.HasPrefix(header, []byte("image/")) {
		return nil, fmt.Errorf("data URI media type %q is not an image", header)
	}

	payload := string(data[comma+1:])
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}

	return decoded, nil
}
