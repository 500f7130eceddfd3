package annotate

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// RasterStyle controls outlines painted onto images.
type RasterStyle struct {
	Color color.Color
	Width int // stroke thickness in pixels
}

// DefaultRasterStyle is a 3 pixel red outline.
func DefaultRasterStyle() RasterStyle {
	return RasterStyle{Color: color.NRGBA{R: 255, A: 255}, Width: 3}
}

// OutlineImage returns a copy of src with an unfilled rectangle
// painted over each box. The source image is not modified. Boxes are
// clipped to the image bounds; the interior pixels stay untouched.
func OutlineImage(src image.Image, boxes []image.Rectangle, style RasterStyle) *image.NRGBA {
	if style.Width <= 0 {
		style.Width = DefaultRasterStyle().Width
	}
	if style.Color == nil {
		style.Color = DefaultRasterStyle().Color
	}

	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	xdraw.Copy(dst, bounds.Min, src, bounds, xdraw.Src, nil)

	for _, box := range boxes {
		strokeRect(dst, box.Canon(), style)
	}
	return dst
}

// strokeRect paints the four edges of box as filled bars of the stroke
// width, growing inward from the box boundary.
func strokeRect(dst *image.NRGBA, box image.Rectangle, style RasterStyle) {
	w := style.Width
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+w), // top
		image.Rect(box.Min.X, box.Max.Y-w, box.Max.X, box.Max.Y), // bottom
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+w, box.Max.Y), // left
		image.Rect(box.Max.X-w, box.Min.Y, box.Max.X, box.Max.Y), // right
	}
	src := image.NewUniform(style.Color)
	for _, edge := range edges {
		edge = edge.Intersect(dst.Bounds()).Intersect(box)
		if edge.Empty() {
			continue
		}
		xdraw.Draw(dst, edge, src, image.Point{}, xdraw.Src)
	}
}
