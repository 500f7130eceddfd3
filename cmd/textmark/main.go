// Command textmark finds every occurrence of a search string in the
// given documents and writes marked copies with red boxes around each
// occurrence. Originals are never modified.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/auditram/textmark/annotate"
	"github.com/auditram/textmark/config"
	"github.com/auditram/textmark/convert"
	"github.com/auditram/textmark/engine"
	"github.com/auditram/textmark/observability"
)

type options struct {
	cfg    config.Config
	query  string
	outDir string
	inputs []string
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "textmark: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "textmark: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: textmark -query <text> [flags] <file>...\n")
		flag.PrintDefaults()
	}
	query := flag.String("query", "", "Text to find and box")
	cfgPath := flag.String("config", "", "YAML configuration file")
	outDir := flag.String("out", "", "Directory for marked copies (default: next to each input)")
	workers := flag.Int("workers", 0, "Concurrent files (0 = one per CPU)")
	caseSensitive := flag.Bool("case-sensitive", false, "Match case exactly")
	dev := flag.Bool("v", false, "Verbose development logging")
	flag.Parse()

	if *query == "" {
		flag.Usage()
		return options{}, fmt.Errorf("missing -query")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return options{}, fmt.Errorf("no input files")
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			return options{}, err
		}
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *caseSensitive {
		cfg.CaseSensitive = true
	}
	if *dev {
		cfg.Log = "development"
	}

	opts.cfg = cfg
	opts.query = *query
	opts.outDir = *outDir
	opts.inputs = flag.Args()
	return opts, nil
}

func run(opts options) error {
	log, err := buildLogger(opts.cfg.Log)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		Style: annotate.Style{
			Color: opts.cfg.Style.Color,
			Width: opts.cfg.Style.Width,
		},
		RasterStyle: annotate.RasterStyle{
			Color: rasterColor(opts.cfg.Style.Color),
			Width: opts.cfg.Style.RasterWidth,
		},
		CaseSensitive:  opts.cfg.CaseSensitive,
		MaxMatchesPage: opts.cfg.MaxMatchesPerPage,
		Workers:        opts.cfg.Workers,
		Gateway:        convert.NewExecGateway(opts.cfg.Converter),
		Logger:         log,
	})

	reqs := make([]engine.Request, len(opts.inputs))
	for i, in := range opts.inputs {
		reqs[i] = engine.Request{
			Input:  in,
			Output: outputPath(in, opts.outDir, opts.cfg.OutputSuffix),
			Query:  opts.query,
		}
	}

	results := eng.HighlightAll(context.Background(), reqs)
	failed := 0
	enc := json.NewEncoder(os.Stdout)
	for i, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "textmark: %s: %v\n", reqs[i].Input, res.Err)
			continue
		}
		if err := enc.Encode(res.Report); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func buildLogger(mode string) (observability.Logger, error) {
	switch mode {
	case "development":
		return observability.NewDevelopment()
	case "off":
		return observability.NopLogger{}, nil
	default:
		return observability.NewProduction()
	}
}

// outputPath derives the marked copy's path: the input name with the
// suffix spliced in before the extension, in outDir when given.
func outputPath(input, outDir, suffix string) string {
	dir := filepath.Dir(input)
	if outDir != "" {
		dir = outDir
	}
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+suffix+ext)
}

func rasterColor(c [3]float64) color.Color {
	return color.NRGBA{
		R: uint8(c[0]*255 + 0.5),
		G: uint8(c[1]*255 + 0.5),
		B: uint8(c[2]*255 + 0.5),
		A: 255,
	}
}
