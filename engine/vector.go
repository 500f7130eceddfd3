package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/auditram/textmark/annotate"
	"github.com/auditram/textmark/geo"
	"github.com/auditram/textmark/locate"
	"github.com/auditram/textmark/observability"
	"github.com/auditram/textmark/pagetext"
	"github.com/auditram/textmark/pdf"
)

// highlightVector runs the paginated-document pipeline: load, index
// each page's text, locate the query and write a marked copy with one
// square annotation per occurrence box. src may differ from req.Input
// when an office conversion ran first.
func (e *Engine) highlightVector(ctx context.Context, req Request, src string) (*Report, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, &ResourceError{Path: src, Stage: "open", Err: err}
	}
	defer f.Close()

	doc, err := pdf.Load(f, pdf.Options{})
	if err != nil {
		return nil, &ResourceError{Path: src, Stage: "load", Err: err}
	}

	// Indexing and locating are read-only against the loaded document,
	// so pages fan out across workers. Annotation mutates the object
	// table and runs afterwards, in page order.
	pages := doc.Pages()
	located := make([]pageResult, len(pages))
	workers := e.workers()
	if workers > len(pages) {
		workers = len(pages)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				pr, boxes, err := e.locatePage(doc, pages[i], i+1, req.Query)
				located[i] = pageResult{report: pr, boxes: boxes, err: err}
			}
		}()
	}
	for i := range pages {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{Input: req.Input, Output: req.Output}
	for i, res := range located {
		if res.err != nil {
			return nil, res.err
		}
		if len(res.boxes) > 0 {
			if err := annotate.AddBoxes(doc.COS(), pages[i].Ref, res.boxes, e.opts.Style); err != nil {
				return nil, err
			}
		}
		rep.Pages = append(rep.Pages, res.report)
		rep.Total += res.report.Matches
	}

	err = writeAtomic(req.Output, func(out *os.File) error {
		data, err := doc.Save(pdf.SaveOptions{Compact: true})
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	})
	if err != nil {
		return nil, &ResourceError{Path: req.Output, Stage: "write", Err: err}
	}
	return rep, nil
}

type pageResult struct {
	report PageReport
	boxes  []geo.Rect
	err    error
}

func (e *Engine) locatePage(doc *pdf.Document, page pdf.Page, num int, query string) (PageReport, []geo.Rect, error) {
	pr := PageReport{Page: num}

	content, err := doc.Content(page)
	if err != nil {
		return pr, nil, err
	}
	if len(content) == 0 {
		return pr, nil, nil
	}
	ix, err := pagetext.Build(doc.COS(), doc.Pipeline(), content, doc.Fonts(page))
	if err != nil {
		return pr, nil, fmt.Errorf("engine: page %d text: %w", num, err)
	}

	matches, err := e.locator.Find(ix, query)
	var overflow *locate.OverflowError
	if errors.As(err, &overflow) {
		pr.Truncated = true
		e.log.Warn("match cap reached",
			observability.Int("page", num),
			observability.Int("limit", overflow.Limit),
		)
	} else if err != nil {
		return pr, nil, err
	}
	pr.Matches = len(matches)

	var boxes []geo.Rect
	for _, m := range matches {
		boxes = append(boxes, m.Rects...)
	}
	return pr, boxes, nil
}
