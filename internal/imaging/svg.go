package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// SVGFallbackSize is the edge length used for SVGs without a usable viewBox.
const SVGFallbackSize = 512

// IsSVG reports whether data looks like an SVG document.
func IsSVG(data []byte) bool {
	n := min(len(data), 4096)
	head := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(head, []byte("<svg"))
}

// RenderSVG rasterizes an SVG onto a white canvas sized from its viewBox.
func RenderSVG(data []byte) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing svg: %w", ErrUndecodable, err)
	}

	if err := checkSize(icon.ViewBox.W, icon.ViewBox.H); err != nil {
		return nil, err
	}
	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		w, h = SVGFallbackSize, SVGFallbackSize
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
