package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/filters"
)

// compactThreshold is the smallest stream worth Flate-compressing on
// write. Tiny streams gain nothing and cost a zlib header.
const compactThreshold = 64

// SaveOptions control serialization.
type SaveOptions struct {
	// Compact recompresses unfiltered streams with Flate.
	Compact bool
}

// Save writes the document as a complete file: header, every object in
// number order, a classic cross-reference table and trailer. Existing
// xref structure from the source file is discarded and rebuilt.
func (d *Document) Save(opts SaveOptions) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-")
	if v := d.cos.Version; v != "" {
		buf.WriteString(v)
	} else {
		buf.WriteString("1.7")
	}
	// Binary marker comment keeps transfer tools honest.
	buf.WriteString("\n%\xE2\xE3\xCF\xD3\n")

	refs := make([]cos.Ref, 0, len(d.cos.Objects))
	for ref := range d.cos.Objects {
		if skipOnSave(d.cos.Objects[ref]) {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })

	offsets := make(map[int]int64, len(refs))
	for _, ref := range refs {
		offsets[ref.Num] = int64(buf.Len())
		obj := d.cos.Objects[ref]
		if opts.Compact {
			obj = compactStream(obj)
		}
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		writeObject(&buf, obj)
		buf.WriteString("\nendobj\n")
	}

	maxNum := 0
	if len(refs) > 0 {
		maxNum = refs[len(refs)-1].Num
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := trailerDict(d.cos, maxNum+1)
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

// skipOnSave drops structures that describe the old file layout; they
// would be stale in the rewritten file.
func skipOnSave(obj cos.Object) bool {
	st, ok := obj.(*cos.Stream)
	if !ok {
		return false
	}
	t, _ := st.Dict["Type"].(cos.Name)
	return t == "XRef" || t == "ObjStm"
}

// trailerDict rebuilds the trailer from the merged source trailer,
// keeping document identity keys and dropping xref bookkeeping.
func trailerDict(doc *cos.Document, size int) cos.Dict {
	out := cos.Dict{"Size": cos.Integer(int64(size))}
	for _, key := range []cos.Name{"Root", "Info", "ID"} {
		if v, ok := doc.Trailer[key]; ok {
			out[key] = v
		}
	}
	return out
}

// compactStream deflates an unfiltered stream when that saves space.
func compactStream(obj cos.Object) cos.Object {
	st, ok := obj.(*cos.Stream)
	if !ok {
		return obj
	}
	if _, filtered := st.Dict["Filter"]; filtered || len(st.Raw) < compactThreshold {
		return obj
	}
	compressed, err := filters.FlateEncode(st.Raw)
	if err != nil || len(compressed) >= len(st.Raw) {
		return obj
	}
	dict := cos.Clone(st.Dict).(cos.Dict)
	dict["Filter"] = cos.Name("FlateDecode")
	dict["Length"] = cos.Integer(int64(len(compressed)))
	return &cos.Stream{Dict: dict, Raw: compressed}
}

func writeObject(buf *bytes.Buffer, obj cos.Object) {
	switch v := obj.(type) {
	case cos.Name:
		writeName(buf, v)
	case cos.Integer:
		fmt.Fprintf(buf, "%d", int64(v))
	case cos.Real:
		writeReal(buf, float64(v))
	case cos.Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case cos.Null:
		buf.WriteString("null")
	case cos.String:
		writeString(buf, v)
	case cos.Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case cos.Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case cos.Dict:
		writeDict(buf, v)
	case *cos.Stream:
		dict := v.Dict
		if n, _ := dict["Length"].(cos.Integer); int64(n) != int64(len(v.Raw)) {
			dict = cos.Clone(dict).(cos.Dict)
			dict["Length"] = cos.Integer(int64(len(v.Raw)))
		}
		writeDict(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Raw)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

// writeDict emits keys in sorted order so output is reproducible.
func writeDict(buf *bytes.Buffer, dict cos.Dict) {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		writeName(buf, cos.Name(k))
		buf.WriteByte(' ')
		writeObject(buf, dict[cos.Name(k)])
		buf.WriteByte(' ')
	}
	buf.WriteString(">>")
}

func writeName(buf *bytes.Buffer, name cos.Name) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || strings.ContainsRune("()<>[]{}/%#", rune(c)) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

// writeString picks the literal form for mostly printable text and hex
// otherwise.
func writeString(buf *bytes.Buffer, s cos.String) {
	printable := 0
	for _, c := range s {
		if c >= ' ' && c <= '~' {
			printable++
		}
	}
	if len(s) > 0 && printable*4 < len(s)*3 {
		buf.WriteByte('<')
		for _, c := range s {
			fmt.Fprintf(buf, "%02X", c)
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString("\\n")
		case '\r':
			buf.WriteString("\\r")
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

// writeReal trims trailing zeros from the fixed-point form.
func writeReal(buf *bytes.Buffer, v float64) {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	buf.WriteString(s)
}
