package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUndecodable is returned when the input is not an image in any registered format.
	ErrUndecodable = errors.New("undecodable image")
	// ErrTooLarge is returned when an image declares dimensions above MaxDimension.
	ErrTooLarge = errors.New("image too large")
)

// MaxDimension bounds the width and height of any image that is decoded or
// rasterized. Sizes are checked from the header before pixels are allocated.
const MaxDimension = 8192

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// IsPNG reports whether data begins with the PNG signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// NormalizePNG re-encodes any supported raster format (JPEG, GIF, BMP, TIFF,
// WebP) as PNG and rasterizes SVG. PNG input is returned unchanged.
func NormalizePNG(data []byte) ([]byte, error) {
	if IsPNG(data) {
		return data, nil
	}
	if IsSVG(data) {
		return RenderSVG(data)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if err := checkSize(float64(cfg.Width), float64(cfg.Height)); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

func checkSize(w, h float64) error {
	if math.IsNaN(w) || math.IsNaN(h) || w > MaxDimension || h > MaxDimension {
		return fmt.Errorf("%w: %gx%g exceeds %dpx", ErrTooLarge, w, h, MaxDimension)
	}
	return nil
}

// Format returns the registered format name of data ("png", "jpeg", ...), or
// an empty string when it cannot be identified.
func Format(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}
