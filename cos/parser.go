package cos

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/auditram/textmark/scanner"
)

const maxParseDepth = 64

// ParseConfig bounds parsing work.
type ParseConfig struct {
	Scanner scanner.Config
}

// Parse reads every indirect object in r sequentially and returns the
// populated document. A damaged or absent xref table does not matter:
// object headers are authoritative. The newest trailer wins; documents
// written with cross-reference streams take the XRef stream dictionary
// as their trailer.
func Parse(r io.ReaderAt, cfg ParseConfig) (*Document, error) {
	doc := &Document{Objects: make(map[Ref]Object)}
	doc.Version = readVersion(r)

	sc := scanner.New(r, cfg.Scanner)
	tr := &tokenReader{sc: sc}

	for {
		tok, err := tr.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cos: scan: %w", err)
		}

		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			t, err := parseValue(tr, 0)
			if err != nil {
				return nil, fmt.Errorf("cos: trailer: %w", err)
			}
			if td, ok := t.(Dict); ok {
				doc.Trailer = mergeTrailer(doc.Trailer, td)
			}
			continue
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		num := int(tok.Int)

		genTok, err := tr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
			tr.unread(genTok)
			continue
		}
		gen := int(genTok.Int)

		kwTok, err := tr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if kwTok.Type != scanner.TokenKeyword || kwTok.Str != "obj" {
			tr.unread(kwTok)
			tr.unread(genTok)
			continue
		}

		obj, err := parseValue(tr, 0)
		if err != nil {
			return nil, fmt.Errorf("cos: object %d %d: %w", num, gen, err)
		}

		if dict, ok := obj.(Dict); ok {
			obj = attachStream(tr, dict)
		}

		// Optional endobj.
		if t, err := tr.next(); err == nil {
			if t.Type != scanner.TokenKeyword || t.Str != "endobj" {
				tr.unread(t)
			}
		}

		doc.Objects[Ref{Num: num, Gen: gen}] = obj
	}

	if doc.Trailer == nil {
		doc.Trailer = recoverTrailer(doc)
	}
	if doc.Trailer == nil {
		return nil, errors.New("cos: no trailer and no catalog found")
	}
	return doc, nil
}

// ParseObjectAt parses a single object from data starting at off. Object
// streams store their members this way, back to back without headers.
func ParseObjectAt(data []byte, off int64) (Object, error) {
	if off < 0 || off >= int64(len(data)) {
		return nil, fmt.Errorf("cos: object offset %d out of range", off)
	}
	sc := scanner.New(bytes.NewReader(data[off:]), scanner.Config{})
	return parseValue(&tokenReader{sc: sc}, 0)
}

// attachStream checks whether dict is followed by a stream payload and,
// if so, wraps the two together. A direct /Length primes the scanner so
// payloads containing "endstream" bytes survive intact.
func attachStream(tr *tokenReader, dict Dict) Object {
	if n, ok := dict["Length"].(Integer); ok {
		tr.sc.SetNextStreamLength(int64(n))
	} else {
		tr.sc.SetNextStreamLength(-1)
	}
	tok, err := tr.next()
	tr.sc.SetNextStreamLength(-1)
	if err != nil {
		return dict
	}
	if tok.Type == scanner.TokenStream {
		return &Stream{Dict: dict, Raw: tok.Bytes}
	}
	tr.unread(tok)
	return dict
}

func parseValue(tr *tokenReader, depth int) (Object, error) {
	if depth > maxParseDepth {
		return nil, errors.New("nesting too deep")
	}
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return Name(tok.Str), nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return Integer(tok.Int), nil
		}
		return Real(tok.Real), nil
	case scanner.TokenString:
		return String(tok.Bytes), nil
	case scanner.TokenBoolean:
		return Bool(tok.Bool), nil
	case scanner.TokenNull:
		return Null{}, nil
	case scanner.TokenRef:
		return Ref{Num: tok.Num, Gen: tok.Gen}, nil
	case scanner.TokenArrayOpen:
		arr := Array{}
		for {
			t, err := tr.next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenArrayClose {
				return arr, nil
			}
			tr.unread(t)
			item, err := parseValue(tr, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
	case scanner.TokenDictOpen:
		dict := Dict{}
		for {
			t, err := tr.next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenDictClose {
				return dict, nil
			}
			if t.Type != scanner.TokenName {
				return nil, fmt.Errorf("dict key is %v, want name", t.Type)
			}
			val, err := parseValue(tr, depth+1)
			if err != nil {
				return nil, err
			}
			dict[Name(t.Str)] = val
		}
	}
	return nil, fmt.Errorf("unexpected token type %v", tok.Type)
}

// mergeTrailer overlays newer onto older; later updates shadow earlier
// keys but keep keys only the original carried (such as /Info).
func mergeTrailer(older, newer Dict) Dict {
	if older == nil {
		return newer
	}
	out := make(Dict, len(older)+len(newer))
	for k, v := range older {
		out[k] = v
	}
	for k, v := range newer {
		out[k] = v
	}
	return out
}

// recoverTrailer serves documents whose trailer lives in a
// cross-reference stream dictionary, or is missing outright.
func recoverTrailer(doc *Document) Dict {
	for _, obj := range doc.Objects {
		st, ok := obj.(*Stream)
		if !ok {
			continue
		}
		if t, _ := st.Dict["Type"].(Name); t == "XRef" {
			return st.Dict
		}
	}
	for _, obj := range doc.Objects {
		d, ok := obj.(Dict)
		if !ok {
			continue
		}
		if _, ok := d["Root"]; ok {
			return d
		}
	}
	// Last resort: synthesize a trailer pointing at a catalog object.
	for ref, obj := range doc.Objects {
		d, ok := obj.(Dict)
		if !ok {
			continue
		}
		if t, _ := d["Type"].(Name); t == "Catalog" {
			return Dict{"Root": ref}
		}
	}
	return nil
}

func readVersion(r io.ReaderAt) string {
	buf := make([]byte, 16)
	n, _ := r.ReadAt(buf, 0)
	buf = buf[:n]
	if !bytes.HasPrefix(buf, []byte("%PDF-")) {
		return ""
	}
	rest := buf[len("%PDF-"):]
	if i := bytes.IndexAny(rest, "\r\n "); i >= 0 {
		rest = rest[:i]
	}
	return string(rest)
}

type tokenReader struct {
	sc  *scanner.Scanner
	buf []scanner.Token
}

func (r *tokenReader) next() (scanner.Token, error) {
	if n := len(r.buf); n > 0 {
		t := r.buf[n-1]
		r.buf = r.buf[:n-1]
		return t, nil
	}
	return r.sc.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }
