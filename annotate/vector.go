// Package annotate overlays unfilled rectangle outlines on documents:
// square annotations for vector pages, painted outlines for raster
// images. The underlying content is never touched, only marked over.
package annotate

import (
	"fmt"

	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/geo"
)

// Style controls the outline appearance.
type Style struct {
	Color [3]float64 // stroke color, RGB in [0, 1]
	Width float64    // border width in page units
}

// DefaultStyle is a red hairline box.
func DefaultStyle() Style {
	return Style{Color: [3]float64{1, 0, 0}, Width: 1}
}

// AddBoxes appends one Square annotation per rectangle to the page at
// pageRef. Each annotation carries a normal appearance stream so the
// outline renders identically everywhere. The page's existing
// annotation array is copied before appending, never extended in
// place, so pages sharing an array are unaffected.
func AddBoxes(doc *cos.Document, pageRef cos.Ref, boxes []geo.Rect, style Style) error {
	page := doc.Dict(doc.Objects[pageRef])
	if page == nil {
		return fmt.Errorf("annotate: object %d %d is not a page dictionary", pageRef.Num, pageRef.Gen)
	}

	annots := cos.Array{}
	if existing := doc.Array(page["Annots"]); existing != nil {
		annots = append(annots, existing...)
	}

	next := doc.MaxObjectNum() + 1
	for _, box := range boxes {
		box = box.Normalize()
		if box.Empty() {
			continue
		}
		apRef := cos.Ref{Num: next}
		annotRef := cos.Ref{Num: next + 1}
		next += 2

		doc.Objects[apRef] = appearanceStream(box, style)
		doc.Objects[annotRef] = cos.Dict{
			"Type":    cos.Name("Annot"),
			"Subtype": cos.Name("Square"),
			"Rect":    rectArray(box),
			"C": cos.Array{
				cos.Real(style.Color[0]), cos.Real(style.Color[1]), cos.Real(style.Color[2]),
			},
			"F":  cos.Integer(4), // print flag
			"BS": cos.Dict{"W": cos.Real(style.Width), "S": cos.Name("S")},
			"AP": cos.Dict{"N": apRef},
		}
		annots = append(annots, annotRef)
	}

	clone := cos.Clone(page).(cos.Dict)
	clone["Annots"] = annots
	doc.Objects[pageRef] = clone
	return nil
}

// appearanceStream builds the form XObject stroking the box outline,
// inset by half the border width so the stroke stays inside the
// annotation rectangle.
func appearanceStream(box geo.Rect, style Style) *cos.Stream {
	w, h := box.Width(), box.Height()
	half := style.Width / 2
	content := fmt.Sprintf("%s RG %s w %s %s %s %s re S",
		fmtColor(style.Color),
		fmtNum(style.Width),
		fmtNum(half), fmtNum(half),
		fmtNum(w-style.Width), fmtNum(h-style.Width))
	data := []byte(content)
	return &cos.Stream{
		Dict: cos.Dict{
			"Type":    cos.Name("XObject"),
			"Subtype": cos.Name("Form"),
			"BBox":    cos.Array{cos.Integer(0), cos.Integer(0), cos.Real(w), cos.Real(h)},
			"Length":  cos.Integer(int64(len(data))),
		},
		Raw: data,
	}
}

func rectArray(r geo.Rect) cos.Array {
	return cos.Array{cos.Real(r.X0), cos.Real(r.Y0), cos.Real(r.X1), cos.Real(r.Y1)}
}

func fmtNum(v float64) string {
	return fmtTrim(fmt.Sprintf("%.3f", v))
}

func fmtColor(c [3]float64) string {
	return fmt.Sprintf("%s %s %s", fmtNum(c[0]), fmtNum(c[1]), fmtNum(c[2]))
}

// fmtTrim drops trailing zeros so content streams stay compact.
func fmtTrim(s string) string {
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
