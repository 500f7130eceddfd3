package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// highlightOffice converts the document to paginated form in a scratch
// directory, then runs the vector pipeline on the result. The marked
// output is always a .pdf regardless of the requested extension.
func (e *Engine) highlightOffice(ctx context.Context, req Request) (*Report, error) {
	scratch, err := os.MkdirTemp("", "textmark-convert-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	converted, err := e.opts.Gateway.Convert(ctx, req.Input, scratch)
	if err != nil {
		return nil, &ResourceError{Path: req.Input, Stage: "convert", Err: err}
	}

	req.Output = pdfOutputPath(req.Output)
	return e.highlightVector(ctx, req, converted)
}

// pdfOutputPath swaps the extension for .pdf, since conversion changes
// the output's format.
func pdfOutputPath(path string) string {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".pdf") {
		return path
	}
	return strings.TrimSuffix(path, ext) + ".pdf"
}
