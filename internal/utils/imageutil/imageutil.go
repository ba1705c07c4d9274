package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/gabriel-vasile/mimetype"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// SupportedMimeTypes lists the containers Decode accepts.
var SupportedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/bmp",
	"image/webp",
}

// DetectFormat sniffs the container format from the leading bytes of data.
func DetectFormat(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	for _, supported := range SupportedMimeTypes {
		if mtype.Is(supported) {
			return supported, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
}

func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}

	if _, err := DetectFormat(data); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return img, nil
}

// DropAlpha converts img to opaque RGB. Straight (non-premultiplied) color
// values are kept and alpha is discarded, not composited onto a background.
func DropAlpha(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x-bounds.Min.X, y-bounds.Min.Y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}

	return out
}
