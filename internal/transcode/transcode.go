// Package transcode converts a resolved image file of any supported
// format into PNG bytes for image-serving HTTP endpoints. Decoding and
// re-encoding is the one piece of pixel handling done in-process;
// everything else -- resizing, thumbnailing, the block computations
// themselves -- is delegated to external binaries.
package transcode

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
)

// ToPNG reads the image at path and returns it re-encoded as PNG.
func ToPNG(path string) ([]byte, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for transcoding: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v", path, err)
	}

	flat := flattenOnWhite(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("failed to encode %s as png: %v", path, err)
	}

	return buf.Bytes(), nil
}

// flattenOnWhite composites img onto an opaque white background when it
// carries an alpha channel, so downstream consumers that assume opaque PNG
// output never see a block's transparency choices leak through.
func flattenOnWhite(img image.Image) image.Image {

	if !hasAlphaChannel(img) {
		return img
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(image.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)

	return dst
}

func hasAlphaChannel(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return true
	default:
		return false
	}
}
