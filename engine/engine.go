// Package engine drives the highlight pipeline: classify the input,
// find every occurrence of the query, overlay outline boxes and write
// the marked copy next to nothing else. The input file is never
// touched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/auditram/textmark/annotate"
	"github.com/auditram/textmark/convert"
	"github.com/auditram/textmark/locate"
	"github.com/auditram/textmark/observability"
	"github.com/auditram/textmark/pagetext"
)

// ErrUnsupportedFormat reports an input extension the engine does not
// handle.
var ErrUnsupportedFormat = errors.New("engine: unsupported input format")

// ResourceError attributes a failure to one file and the stage that
// hit it, so a batch log pinpoints the culprit without a rerun.
type ResourceError struct {
	Path  string
	Stage string // open, load, convert, write
	Err   error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("engine: %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Kind classifies an input file by its extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindVector       // paginated vector document
	KindRaster       // bitmap image
	KindOffice       // office document needing conversion first
)

func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindRaster:
		return "raster"
	case KindOffice:
		return "office"
	}
	return "unknown"
}

var officeGateway = convert.NewExecGateway("")

// Classify maps a file path to the pipeline that handles it.
func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return KindVector
	case isRasterExt(ext):
		return KindRaster
	case officeGateway.Supports(ext):
		return KindOffice
	}
	return KindUnknown
}

func isRasterExt(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// Recognizer supplies text runs for pages that carry no embedded text,
// typically a bitmap recognition backend. Runs are in the image's
// pixel coordinate space.
type Recognizer interface {
	Recognize(ctx context.Context, img RasterPage) ([]pagetext.TextRun, error)
}

// Options configure an Engine. The zero value works.
type Options struct {
	Style          annotate.Style
	RasterStyle    annotate.RasterStyle
	CaseSensitive  bool
	MaxMatchesPage int
	Workers        int
	Gateway        convert.Gateway
	Recognizer     Recognizer
	Logger         observability.Logger
}

// Engine runs highlight requests.
type Engine struct {
	opts    Options
	locator *locate.Locator
	log     observability.Logger
}

func New(opts Options) *Engine {
	if opts.Style == (annotate.Style{}) {
		opts.Style = annotate.DefaultStyle()
	}
	if opts.RasterStyle == (annotate.RasterStyle{}) {
		opts.RasterStyle = annotate.DefaultRasterStyle()
	}
	if opts.Gateway == nil {
		opts.Gateway = officeGateway
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	return &Engine{
		opts: opts,
		locator: locate.New(locate.Options{
			CaseSensitive: opts.CaseSensitive,
			MaxMatches:    opts.MaxMatchesPage,
		}),
		log: opts.Logger,
	}
}

// Request names one input, its query and where the marked copy goes.
type Request struct {
	Input  string
	Output string
	Query  string
}

// PageReport summarizes one page of a processed document.
type PageReport struct {
	Page      int // 1-based
	Matches   int
	Truncated bool // match cap reached on this page
}

// Report summarizes one processed file.
type Report struct {
	Input  string
	Output string
	Kind   Kind
	Pages  []PageReport
	Total  int
}

// Highlight processes one request. The output file appears atomically:
// either the complete marked copy or nothing.
// An empty query is a successful run: the output is a faithful copy
// with zero annotations.
func (e *Engine) Highlight(ctx context.Context, req Request) (*Report, error) {
	kind := Classify(req.Input)
	log := e.log.With(
		observability.String("input", req.Input),
		observability.String("kind", kind.String()),
	)

	var (
		rep *Report
		err error
	)
	switch kind {
	case KindVector:
		rep, err = e.highlightVector(ctx, req, req.Input)
	case KindRaster:
		rep, err = e.highlightRaster(ctx, req)
	case KindOffice:
		rep, err = e.highlightOffice(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(req.Input))
	}
	if err != nil {
		log.Error("highlight failed", observability.Error("err", err))
		return nil, err
	}
	rep.Kind = kind
	log.Info("highlight done",
		observability.Int("pages", len(rep.Pages)),
		observability.Int("matches", rep.Total),
	)
	return rep, nil
}

// writeAtomic lands data at path via a temp file in the same
// directory, so a failure mid-write leaves no partial output.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".textmark-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
