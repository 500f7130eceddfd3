// Package raster loads and saves page images in the bitmap formats the
// pipeline accepts, preserving each file's original format on save.
package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format identifies a supported bitmap container.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// jpegQuality matches common scanner output; annotation overlays do
// not warrant lossless re-encoding of photographic pages.
const jpegQuality = 90

// Image is a decoded single-page bitmap with its source format.
type Image struct {
	Img    image.Image
	Format Format
}

// ErrUnknownFormat reports data none of the registered codecs accept.
var ErrUnknownFormat = fmt.Errorf("raster: unrecognized image data")

// Decode sniffs r and decodes it with the matching codec.
func Decode(r io.Reader) (*Image, error) {
	img, name, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	f, ok := formatName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return &Image{Img: img, Format: f}, nil
}

// Encode writes the image back out in its source format.
func (im *Image) Encode(w io.Writer) error {
	switch im.Format {
	case FormatPNG:
		return png.Encode(w, im.Img)
	case FormatJPEG:
		return jpeg.Encode(w, im.Img, &jpeg.Options{Quality: jpegQuality})
	case FormatBMP:
		return bmp.Encode(w, im.Img)
	case FormatTIFF:
		return tiff.Encode(w, im.Img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("raster: no encoder for %q", im.Format)
}

func formatName(name string) (Format, bool) {
	switch name {
	case "png":
		return FormatPNG, true
	case "jpeg":
		return FormatJPEG, true
	case "bmp":
		return FormatBMP, true
	case "tiff":
		return FormatTIFF, true
	}
	return "", false
}

// FormatForExtension maps a file extension (with or without the dot)
// to its format.
func FormatForExtension(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "bmp":
		return FormatBMP, true
	case "tif", "tiff":
		return FormatTIFF, true
	}
	return "", false
}
