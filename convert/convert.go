// Package convert turns office documents into paginated form by
// delegating to an external converter. The converter is probed at use
// time; a host without one degrades to a typed error instead of a
// crash.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrUnavailable means no converter is installed on this host.
	ErrUnavailable = errors.New("convert: no document converter available")
	// ErrFailed means the converter ran and rejected the input.
	ErrFailed = errors.New("convert: conversion failed")
)

// Gateway converts an office document to a PDF file.
type Gateway interface {
	// Convert writes the converted file into outDir and returns its
	// path.
	Convert(ctx context.Context, src, outDir string) (string, error)
	// Supports reports whether the gateway accepts the extension.
	Supports(ext string) bool
}

// DefaultBinary is the converter probed when none is configured.
const DefaultBinary = "soffice"

var officeExts = map[string]bool{
	"doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "odt": true, "ods": true,
}

// ExecGateway shells out to a LibreOffice-compatible converter.
type ExecGateway struct {
	Binary string

	// Test seams; nil means the real implementation.
	LookPath func(name string) (string, error)
	Run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewExecGateway(binary string) *ExecGateway {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ExecGateway{Binary: binary}
}

func (g *ExecGateway) Supports(ext string) bool {
	return officeExts[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

func (g *ExecGateway) Convert(ctx context.Context, src, outDir string) (string, error) {
	lookPath := g.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(g.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found", ErrUnavailable, g.Binary)
	}

	run := g.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		}
	}
	out, err := run(ctx, bin,
		"--headless", "--convert-to", "pdf", "--outdir", outDir, src)
	if err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrFailed, err, firstLine(out))
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(dst); err != nil {
		return "", fmt.Errorf("%w: converter produced no output: %s", ErrFailed, firstLine(out))
	}
	return dst, nil
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
