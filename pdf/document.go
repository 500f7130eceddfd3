// Package pdf ties the object layer to page-level structure: loading a
// document, walking its page tree with attribute inheritance, decoding
// page content, and writing the document back out.
package pdf

import (
	"errors"
	"fmt"
	"io"

	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/filters"
	"github.com/auditram/textmark/geo"
)

// Page is one leaf of the page tree with its inherited attributes
// already resolved.
type Page struct {
	Ref       cos.Ref
	Dict      cos.Dict
	MediaBox  geo.Rect
	Resources cos.Dict
}

// Document is a loaded file plus the decoded page list.
type Document struct {
	cos   *cos.Document
	pipe  *filters.Pipeline
	pages []Page
}

// Options bound loading work.
type Options struct {
	Parse  cos.ParseConfig
	Filter filters.Limits
}

// letterBox is used when a page chain carries no MediaBox at all.
var letterBox = geo.Rect{X1: 612, Y1: 792}

// Load parses a document from r, expands any object streams and walks
// the page tree.
func Load(r io.ReaderAt, opts Options) (*Document, error) {
	cdoc, err := cos.Parse(r, opts.Parse)
	if err != nil {
		return nil, err
	}
	pipe := filters.NewPipeline(opts.Filter)
	if err := expandObjectStreams(cdoc, pipe); err != nil {
		return nil, err
	}
	doc := &Document{cos: cdoc, pipe: pipe}
	if err := doc.collectPages(); err != nil {
		return nil, err
	}
	return doc, nil
}

// COS exposes the underlying object store.
func (d *Document) COS() *cos.Document { return d.cos }

// Pages returns the document's pages in tree order.
func (d *Document) Pages() []Page { return d.pages }

// expandObjectStreams unpacks every /ObjStm into top-level objects, so
// the rest of the pipeline never has to know where an object lived.
// Already-present top-level objects win over packed ones.
func expandObjectStreams(doc *cos.Document, pipe *filters.Pipeline) error {
	for _, obj := range doc.Objects {
		st, ok := obj.(*cos.Stream)
		if !ok {
			continue
		}
		if t, _ := st.Dict["Type"].(cos.Name); t != "ObjStm" {
			continue
		}
		data, err := pipe.DecodeStream(doc, st)
		if err != nil {
			return fmt.Errorf("pdf: object stream: %w", err)
		}
		n, _ := doc.DictInt(st.Dict, "N")
		first, _ := doc.DictInt(st.Dict, "First")
		if err := unpackObjStm(doc, data, int(n), first); err != nil {
			return err
		}
	}
	return nil
}

// unpackObjStm reads the "num offset" pair table at the head of the
// decoded stream and parses each member object.
func unpackObjStm(doc *cos.Document, data []byte, n int, first int64) error {
	if first > int64(len(data)) {
		return errors.New("pdf: object stream /First past end of data")
	}
	pos := int64(0)
	readInt := func() (int64, bool) {
		for pos < first && (data[pos] == ' ' || data[pos] == '\n' || data[pos] == '\r' || data[pos] == '\t') {
			pos++
		}
		start := pos
		for pos < first && data[pos] >= '0' && data[pos] <= '9' {
			pos++
		}
		if pos == start {
			return 0, false
		}
		v := int64(0)
		for _, c := range data[start:pos] {
			v = v*10 + int64(c-'0')
		}
		return v, true
	}

	for i := 0; i < n; i++ {
		num, ok1 := readInt()
		off, ok2 := readInt()
		if !ok1 || !ok2 {
			return errors.New("pdf: short object stream header")
		}
		ref := cos.Ref{Num: int(num)}
		if _, exists := doc.Objects[ref]; exists {
			continue
		}
		obj, err := cos.ParseObjectAt(data, first+off)
		if err != nil {
			return fmt.Errorf("pdf: packed object %d: %w", num, err)
		}
		doc.Objects[ref] = obj
	}
	return nil
}

// inherited are the page tree attributes a leaf may take from any
// ancestor node.
type inherited struct {
	mediaBox  *geo.Rect
	resources cos.Dict
}

func (d *Document) collectPages() error {
	root := d.cos.Dict(d.cos.Trailer["Root"])
	if root == nil {
		return errors.New("pdf: no document catalog")
	}
	pagesRef, _ := root["Pages"].(cos.Ref)
	node := d.cos.Dict(root["Pages"])
	if node == nil {
		return errors.New("pdf: catalog has no page tree")
	}
	seen := make(map[cos.Ref]bool)
	return d.walkPages(pagesRef, node, inherited{}, seen, 0)
}

const maxPageTreeDepth = 64

func (d *Document) walkPages(ref cos.Ref, node cos.Dict, inh inherited, seen map[cos.Ref]bool, depth int) error {
	if depth > maxPageTreeDepth {
		return errors.New("pdf: page tree too deep")
	}
	if seen[ref] {
		return nil
	}
	seen[ref] = true

	if mb, ok := node["MediaBox"]; ok {
		if v, ok := d.cos.Rect(mb); ok {
			r := geo.Rect{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
			inh.mediaBox = &r
		}
	}
	if res := d.cos.Dict(node["Resources"]); res != nil {
		inh.resources = res
	}

	typ, _ := d.cos.DictName(node, "Type")
	kids := d.cos.Array(node["Kids"])
	if typ == "Page" || (typ == "" && kids == nil) {
		mb := letterBox
		if inh.mediaBox != nil {
			mb = inh.mediaBox.Normalize()
		}
		res := inh.resources
		if res == nil {
			res = cos.Dict{}
		}
		d.pages = append(d.pages, Page{Ref: ref, Dict: node, MediaBox: mb, Resources: res})
		return nil
	}

	for _, kid := range kids {
		kidRef, _ := kid.(cos.Ref)
		kidDict := d.cos.Dict(kid)
		if kidDict == nil {
			continue
		}
		if err := d.walkPages(kidRef, kidDict, inh, seen, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Content returns the page's decoded content stream. Multiple streams
// are concatenated with a separating newline, as the viewer model
// requires.
func (d *Document) Content(p Page) ([]byte, error) {
	contents := p.Dict["Contents"]
	var out []byte
	appendStream := func(obj cos.Object) error {
		st := d.cos.Stream(obj)
		if st == nil {
			return nil
		}
		data, err := d.pipe.DecodeStream(d.cos, st)
		if err != nil {
			return fmt.Errorf("pdf: page %d content: %w", p.Ref.Num, err)
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
		return nil
	}

	if arr := d.cos.Array(contents); arr != nil {
		for _, item := range arr {
			if err := appendStream(item); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err := appendStream(contents); err != nil {
		return nil, err
	}
	return out, nil
}

// Fonts returns the page's font resource dictionaries keyed by
// resource name.
func (d *Document) Fonts(p Page) map[string]cos.Dict {
	out := make(map[string]cos.Dict)
	fonts := d.cos.Dict(p.Resources["Font"])
	for name, obj := range fonts {
		if fd := d.cos.Dict(obj); fd != nil {
			out[string(name)] = fd
		}
	}
	return out
}

// Pipeline exposes the filter pipeline used for this document.
func (d *Document) Pipeline() *filters.Pipeline { return d.pipe }
