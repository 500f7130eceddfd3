// Package locate finds every occurrence of a search string in the text
// index of a page and reports the rectangles covering each occurrence.
//
// Matching is case-insensitive by default (full Unicode case folding)
// and whitespace-tolerant: a single space in the query matches any run
// of whitespace in the page text. Occurrences may span text run
// boundaries, in which case the match carries one rectangle per run
// segment it crosses.
package locate

import (
	"fmt"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/auditram/textmark/geo"
	"github.com/auditram/textmark/pagetext"
)

// DefaultMaxMatches caps the number of occurrences reported for one
// page. Pathological queries on dense pages stop there instead of
// producing unbounded annotation lists.
const DefaultMaxMatches = 5000

// Match is one occurrence of the query on a page. Rects holds one
// rectangle per text run segment the occurrence covers; a match inside
// a single run has exactly one.
type Match struct {
	Rects []geo.Rect
}

// OverflowError reports that matching stopped at the per-page cap.
// The matches found up to the cap are still returned alongside it.
type OverflowError struct {
	Limit int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("locate: more than %d occurrences on page, result truncated", e.Limit)
}

// Options configure a Locator.
type Options struct {
	// CaseSensitive disables Unicode case folding.
	CaseSensitive bool
	// MaxMatches overrides DefaultMaxMatches when positive.
	MaxMatches int
}

// Locator searches page text indexes for a query string.
type Locator struct {
	opts Options
}

func New(opts Options) *Locator {
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = DefaultMaxMatches
	}
	return &Locator{opts: opts}
}

// cell is one rune of the flattened page text with a back-reference
// into the run it came from. Case folding can expand one source rune
// into several cells sharing the same back-reference.
type cell struct {
	r   rune
	run int // index into ix.Runs()
	idx int // rune index within the run
	ws  bool
}

// Find returns all occurrences of query in the index, in content
// order. A nil error accompanies a complete result; an *OverflowError
// accompanies a truncated one. An empty or all-whitespace query
// matches nothing.
func (l *Locator) Find(ix *pagetext.Index, query string) ([]Match, error) {
	q := l.normalizeQuery(query)
	if len(q) == 0 {
		return nil, nil
	}
	cells := l.flatten(ix)

	var matches []Match
	seen := make(map[string]bool)
	for i := 0; i < len(cells); {
		end, ok := matchAt(cells, i, q)
		if !ok {
			i++
			continue
		}
		m := l.buildMatch(ix, cells[i:end])
		key := rectKey(m.Rects)
		if !seen[key] {
			seen[key] = true
			matches = append(matches, m)
			if len(matches) >= l.opts.MaxMatches {
				return matches, &OverflowError{Limit: l.opts.MaxMatches}
			}
		}
		i = end
	}
	return matches, nil
}

// normalizeQuery folds the query and collapses internal whitespace
// runs to single spaces. Leading and trailing whitespace is dropped.
func (l *Locator) normalizeQuery(query string) []rune {
	folded := query
	if !l.opts.CaseSensitive {
		folded = cases.Fold().String(query)
	}
	var out []rune
	space := true // swallows leading whitespace
	for _, r := range folded {
		if unicode.IsSpace(r) {
			if !space {
				out = append(out, ' ')
				space = true
			}
			continue
		}
		out = append(out, r)
		space = false
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return out
}

// flatten concatenates the runs of the index into a single cell
// sequence. Runs are joined directly, with no implied separator, so a
// word split across two runs still matches.
func (l *Locator) flatten(ix *pagetext.Index) []cell {
	caser := cases.Fold()
	var cells []cell
	for ri, run := range ix.Runs() {
		idx := 0
		for _, r := range run.Text {
			if unicode.IsSpace(r) {
				cells = append(cells, cell{r: ' ', run: ri, idx: idx, ws: true})
				idx++
				continue
			}
			folded := string(r)
			if !l.opts.CaseSensitive {
				folded = caser.String(folded)
			}
			for _, fr := range folded {
				cells = append(cells, cell{r: fr, run: ri, idx: idx})
			}
			idx++
		}
	}
	return cells
}

// matchAt tries to match the query starting at cells[i]. A query space
// consumes one or more whitespace cells; every other query rune must
// match one non-whitespace cell exactly. Returns the exclusive end
// index on success.
func matchAt(cells []cell, i int, q []rune) (int, bool) {
	for _, qr := range q {
		if qr == ' ' {
			if i >= len(cells) || !cells[i].ws {
				return 0, false
			}
			for i < len(cells) && cells[i].ws {
				i++
			}
			continue
		}
		if i >= len(cells) || cells[i].ws || cells[i].r != qr {
			return 0, false
		}
		i++
	}
	return i, true
}

// buildMatch maps a matched cell span back to page rectangles, one per
// run segment. Runs without per-rune offsets contribute their whole
// rectangle.
func (l *Locator) buildMatch(ix *pagetext.Index, span []cell) Match {
	runs := ix.Runs()
	var rects []geo.Rect
	for s := 0; s < len(span); {
		e := s
		for e < len(span) && span[e].run == span[s].run {
			e++
		}
		run := runs[span[s].run]
		rects = append(rects, segmentRect(run, span[s].idx, span[e-1].idx))
		s = e
	}
	return Match{Rects: mergeAdjacent(rects)}
}

// segmentRect is the rectangle covering rune indexes [from, to] of a
// run, cut from the run rectangle using the recorded pen offsets.
func segmentRect(run pagetext.TextRun, from, to int) geo.Rect {
	if run.Offsets == nil || to+1 >= len(run.Offsets) {
		return run.Rect
	}
	return geo.Rect{
		X0: run.Rect.X0 + run.Offsets[from],
		Y0: run.Rect.Y0,
		X1: run.Rect.X0 + run.Offsets[to+1],
		Y1: run.Rect.Y1,
	}
}

// mergeAdjacent joins rectangles that sit on the same baseline and
// touch horizontally, so an occurrence split across show operators on
// one line gets a single box.
func mergeAdjacent(rects []geo.Rect) []geo.Rect {
	if len(rects) < 2 {
		return rects
	}
	out := rects[:1]
	for _, r := range rects[1:] {
		last := &out[len(out)-1]
		sameLine := nearf(last.Y0, r.Y0) && nearf(last.Y1, r.Y1)
		touching := r.X0 <= last.X1+0.5 && r.X0 >= last.X0
		if sameLine && touching {
			if r.X1 > last.X1 {
				last.X1 = r.X1
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func nearf(a, b float64) bool {
	d := a - b
	return d < 0.1 && d > -0.1
}

func rectKey(rects []geo.Rect) string {
	key := ""
	for _, r := range rects {
		key += fmt.Sprintf("%.3f,%.3f,%.3f,%.3f;", r.X0, r.Y0, r.X1, r.Y1)
	}
	return key
}
