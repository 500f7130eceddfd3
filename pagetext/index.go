// Package pagetext builds a queryable index of a page's text runs and
// their glyph-measured bounding geometry, by interpreting the page's
// content stream rather than inspecting rendered pixels.
package pagetext

import (
	"errors"
	"io"
	"math"
	"strings"

	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/filters"
	"github.com/auditram/textmark/geo"
	"github.com/auditram/textmark/scanner"
)

// Origin tags where a run's text came from.
type Origin int

const (
	// OriginNone marks a page with no extractable text.
	OriginNone Origin = iota
	// OriginEmbedded marks text structurally embedded in the content stream.
	OriginEmbedded
)

// TextRun is one contiguous piece of extractable text.
type TextRun struct {
	Text   string
	Rect   geo.Rect
	Origin Origin

	// Offsets holds, for horizontal text, len(Text in runes)+1 baseline
	// distances in page units measured from Rect.X0, so a substring of
	// the run projects to an exact sub-rectangle. Nil for rotated runs;
	// consumers fall back to the whole rect.
	Offsets []float64
}

// Index is the per-page text index. Runs are in content-stream order,
// stable across repeated builds of the same page.
type Index struct {
	runs []TextRun
}

// Runs returns the ordered text runs.
func (ix *Index) Runs() []TextRun { return ix.runs }

// NewIndex wraps pre-built runs, for text recovered outside the
// content stream interpreter.
func NewIndex(runs []TextRun) *Index { return &Index{runs: runs} }

// Build interprets one page's decoded content stream. fonts maps the
// page's /Font resource names to their dictionaries.
func Build(doc *cos.Document, pipe *filters.Pipeline, content []byte, fontDicts map[string]cos.Dict) (*Index, error) {
	in := &interp{
		doc:   doc,
		pipe:  pipe,
		fonts: make(map[string]*font, len(fontDicts)),
		state: newTextState(),
	}
	for name, dict := range fontDicts {
		in.fonts[name] = loadFont(doc, pipe, dict)
	}
	if err := in.run(content); err != nil {
		return nil, err
	}
	return &Index{runs: in.runs}, nil
}

// textState is the subset of the graphics and text state machines that
// influences glyph placement.
type textState struct {
	ctm  geo.Matrix
	tm   geo.Matrix // text matrix
	tlm  geo.Matrix // text line matrix
	font *font
	size float64
	charSpace float64
	wordSpace float64
	hscale    float64 // Tz as a fraction, 1.0 = 100%
	leading   float64
	rise      float64
}

func newTextState() textState {
	return textState{
		ctm:    geo.Identity(),
		tm:     geo.Identity(),
		tlm:    geo.Identity(),
		hscale: 1,
	}
}

type interp struct {
	doc    *cos.Document
	pipe   *filters.Pipeline
	fonts  map[string]*font
	state  textState
	stack  []textState
	runs   []TextRun
}

type operand struct {
	num   float64
	name  string
	str   []byte
	arr   []operand
	kind  byte // 'n' number, 'm' name, 's' string, 'a' array, '?' other
}

func (in *interp) run(content []byte) error {
	sc := scanner.New(newByteReaderAt(content), scanner.Config{})
	var stack []operand
	for {
		tok, err := sc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch tok.Type {
		case scanner.TokenNumber:
			stack = append(stack, operand{num: tok.Real, kind: 'n'})
		case scanner.TokenName:
			stack = append(stack, operand{name: tok.Str, kind: 'm'})
		case scanner.TokenString:
			stack = append(stack, operand{str: tok.Bytes, kind: 's'})
		case scanner.TokenArrayOpen:
			arr, err := scanArray(sc)
			if err != nil {
				return err
			}
			stack = append(stack, operand{arr: arr, kind: 'a'})
		case scanner.TokenDictOpen:
			if err := skipDict(sc); err != nil {
				return err
			}
			stack = append(stack, operand{kind: '?'})
		case scanner.TokenKeyword:
			in.apply(tok.Str, stack)
			stack = stack[:0]
		default:
			// booleans, refs, inline images: no effect on text placement
			stack = append(stack, operand{kind: '?'})
		}
	}
}

func scanArray(sc *scanner.Scanner) ([]operand, error) {
	var out []operand
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case scanner.TokenArrayClose:
			return out, nil
		case scanner.TokenNumber:
			out = append(out, operand{num: tok.Real, kind: 'n'})
		case scanner.TokenString:
			out = append(out, operand{str: tok.Bytes, kind: 's'})
		case scanner.TokenName:
			out = append(out, operand{name: tok.Str, kind: 'm'})
		case scanner.TokenArrayOpen:
			inner, err := scanArray(sc)
			if err != nil {
				return nil, err
			}
			out = append(out, operand{arr: inner, kind: 'a'})
		default:
			out = append(out, operand{kind: '?'})
		}
	}
}

func skipDict(sc *scanner.Scanner) error {
	depth := 1
	for depth > 0 {
		tok, err := sc.Next()
		if err != nil {
			return err
		}
		switch tok.Type {
		case scanner.TokenDictOpen:
			depth++
		case scanner.TokenDictClose:
			depth--
		}
	}
	return nil
}

func nums(stack []operand, n int) ([]float64, bool) {
	if len(stack) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		op := stack[len(stack)-n+i]
		if op.kind != 'n' {
			return nil, false
		}
		out[i] = op.num
	}
	return out, true
}

func (in *interp) apply(op string, stack []operand) {
	st := &in.state
	switch op {
	case "q":
		in.stack = append(in.stack, *st)
	case "Q":
		if n := len(in.stack); n > 0 {
			*st = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if v, ok := nums(stack, 6); ok {
			m := geo.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			st.ctm = m.Multiply(st.ctm)
		}
	case "BT":
		st.tm = geo.Identity()
		st.tlm = geo.Identity()
	case "ET":
		// nothing to reset beyond BT
	case "Tf":
		if len(stack) >= 2 && stack[len(stack)-2].kind == 'm' && stack[len(stack)-1].kind == 'n' {
			st.font = in.fonts[stack[len(stack)-2].name]
			st.size = stack[len(stack)-1].num
		}
	case "Tc":
		if v, ok := nums(stack, 1); ok {
			st.charSpace = v[0]
		}
	case "Tw":
		if v, ok := nums(stack, 1); ok {
			st.wordSpace = v[0]
		}
	case "Tz":
		if v, ok := nums(stack, 1); ok {
			st.hscale = v[0] / 100
		}
	case "TL":
		if v, ok := nums(stack, 1); ok {
			st.leading = v[0]
		}
	case "Ts":
		if v, ok := nums(stack, 1); ok {
			st.rise = v[0]
		}
	case "Td":
		if v, ok := nums(stack, 2); ok {
			st.tlm = geo.Translate(v[0], v[1]).Multiply(st.tlm)
			st.tm = st.tlm
		}
	case "TD":
		if v, ok := nums(stack, 2); ok {
			st.leading = -v[1]
			st.tlm = geo.Translate(v[0], v[1]).Multiply(st.tlm)
			st.tm = st.tlm
		}
	case "Tm":
		if v, ok := nums(stack, 6); ok {
			st.tlm = geo.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			st.tm = st.tlm
		}
	case "T*":
		st.tlm = geo.Translate(0, -st.leading).Multiply(st.tlm)
		st.tm = st.tlm
	case "Tj":
		if len(stack) >= 1 && stack[len(stack)-1].kind == 's' {
			in.show([]operand{stack[len(stack)-1]})
		}
	case "'":
		if len(stack) >= 1 && stack[len(stack)-1].kind == 's' {
			in.apply("T*", nil)
			in.show([]operand{stack[len(stack)-1]})
		}
	case "\"":
		if len(stack) >= 3 &&
			stack[len(stack)-3].kind == 'n' && stack[len(stack)-2].kind == 'n' &&
			stack[len(stack)-1].kind == 's' {
			st.wordSpace = stack[len(stack)-3].num
			st.charSpace = stack[len(stack)-2].num
			in.apply("T*", nil)
			in.show([]operand{stack[len(stack)-1]})
		}
	case "TJ":
		if len(stack) >= 1 && stack[len(stack)-1].kind == 'a' {
			in.show(stack[len(stack)-1].arr)
		}
	}
}

// show emits one TextRun for a Tj/TJ/'/" operator. elems mixes strings
// with kerning numbers (TJ form); a plain show passes a single string.
func (in *interp) show(elems []operand) {
	st := &in.state
	f := st.font
	if f == nil || st.size == 0 {
		return
	}

	trm := st.tm.Multiply(st.ctm)
	var text strings.Builder
	var offsets []float64 // text-space x offsets per rune boundary
	penX := 0.0
	offsets = append(offsets, 0)

	for _, el := range elems {
		switch el.kind {
		case 'n':
			// TJ kerning: negative values move the pen right.
			penX -= el.num / 1000 * st.size * st.hscale
			if n := len(offsets); n > 0 {
				offsets[n-1] = penX
			}
		case 's':
			for _, code := range f.codes(el.str) {
				decoded := f.decode(code)
				adv := f.width(code)*st.size + st.charSpace
				if !f.twoByte && code == ' ' {
					adv += st.wordSpace
				}
				adv *= st.hscale
				text.WriteString(decoded)
				penX += adv
				runes := len([]rune(decoded))
				if runes == 0 {
					continue
				}
				// Multi-rune expansions split the advance evenly.
				prev := offsets[len(offsets)-1]
				step := (penX - prev) / float64(runes)
				for i := 1; i <= runes; i++ {
					offsets = append(offsets, prev+step*float64(i))
				}
			}
		}
	}
	if text.Len() == 0 {
		// Still consume the horizontal displacement.
		st.tm = geo.Translate(penX, 0).Multiply(st.tm)
		return
	}

	// Box in text space: baseline at y=0, rise applied, ascent above,
	// descent below, width from the final pen position.
	box := geo.Rect{
		X0: 0,
		Y0: f.descent*st.size + st.rise,
		X1: penX,
		Y1: f.ascent*st.size + st.rise,
	}
	rect := trm.TransformRect(box).Normalize()

	run := TextRun{
		Text:   text.String(),
		Rect:   rect,
		Origin: OriginEmbedded,
	}
	if horizontal(trm) {
		scale := math.Hypot(trm[0], trm[1])
		run.Offsets = make([]float64, len(offsets))
		for i, off := range offsets {
			run.Offsets[i] = off * scale
		}
	}
	in.runs = append(in.runs, run)

	st.tm = geo.Translate(penX, 0).Multiply(st.tm)
}

// horizontal reports whether the transform keeps the baseline on the
// x axis (no rotation or skew).
func horizontal(m geo.Matrix) bool {
	return m[1] == 0 && m[2] == 0 && m[0] > 0 && m[3] > 0
}

// byteReaderAt adapts a byte slice for the scanner.
type byteReaderAt struct{ data []byte }

func newByteReaderAt(data []byte) *byteReaderAt { return &byteReaderAt{data: data} }

func (r *byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
