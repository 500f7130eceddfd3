package engine

import (
	"context"
	"errors"
	"image"
	"math"
	"os"

	"github.com/auditram/textmark/annotate"
	"github.com/auditram/textmark/locate"
	"github.com/auditram/textmark/observability"
	"github.com/auditram/textmark/pagetext"
	"github.com/auditram/textmark/raster"
)

// RasterPage is the single page a bitmap input amounts to.
type RasterPage struct {
	Img    image.Image
	Format raster.Format
}

// highlightRaster decodes the image, asks the configured recognizer
// for its text and paints outline boxes over the occurrences. Without
// a recognizer the image has no searchable text, so the copy is
// written unmarked with a zero count.
func (e *Engine) highlightRaster(ctx context.Context, req Request) (*Report, error) {
	f, err := os.Open(req.Input)
	if err != nil {
		return nil, &ResourceError{Path: req.Input, Stage: "open", Err: err}
	}
	im, err := raster.Decode(f)
	f.Close()
	if err != nil {
		return nil, &ResourceError{Path: req.Input, Stage: "load", Err: err}
	}

	rep := &Report{Input: req.Input, Output: req.Output}
	pr := PageReport{Page: 1}

	out := im.Img
	if e.opts.Recognizer != nil {
		runs, err := e.opts.Recognizer.Recognize(ctx, RasterPage{Img: im.Img, Format: im.Format})
		if err != nil {
			return nil, err
		}
		matches, err := e.locator.Find(pagetext.NewIndex(runs), req.Query)
		var overflow *locate.OverflowError
		if errors.As(err, &overflow) {
			pr.Truncated = true
			e.log.Warn("match cap reached", observability.Int("limit", overflow.Limit))
		} else if err != nil {
			return nil, err
		}
		pr.Matches = len(matches)
		if len(matches) > 0 {
			out = annotate.OutlineImage(im.Img, pixelBoxes(matches), e.opts.RasterStyle)
		}
	}
	rep.Pages = append(rep.Pages, pr)
	rep.Total = pr.Matches

	err = writeAtomic(req.Output, func(dst *os.File) error {
		return (&raster.Image{Img: out, Format: im.Format}).Encode(dst)
	})
	if err != nil {
		return nil, &ResourceError{Path: req.Output, Stage: "write", Err: err}
	}
	return rep, nil
}

// pixelBoxes converts match rectangles from the recognizer's pixel
// space, rounding outward so thin glyphs are fully enclosed.
func pixelBoxes(matches []locate.Match) []image.Rectangle {
	var out []image.Rectangle
	for _, m := range matches {
		for _, r := range m.Rects {
			r = r.Normalize()
			out = append(out, image.Rect(
				int(math.Floor(r.X0)), int(math.Floor(r.Y0)),
				int(math.Ceil(r.X1)), int(math.Ceil(r.Y1)),
			))
		}
	}
	return out
}
