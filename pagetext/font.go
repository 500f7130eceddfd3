package pagetext

import (
	"bufio"
	"bytes"
	"strings"
	"unicode/utf16"

	"github.com/auditram/textmark/cos"
	"github.com/auditram/textmark/filters"
)

// Default metrics used when a font carries no descriptor. Values are
// fractions of the em square.
const (
	defaultWidth   = 0.5
	defaultAscent  = 0.8
	defaultDescent = -0.2
)

// font holds the measurement and decoding tables for one page font.
type font struct {
	widths       map[int]float64 // code -> width in em fractions
	missingWidth float64
	ascent       float64
	descent      float64
	twoByte      bool // Type0 Identity encoding: 2-byte codes
	toUnicode    *cmap
}

// loadFont reads the tables the index needs from a font dictionary.
func loadFont(doc *cos.Document, pipe *filters.Pipeline, dict cos.Dict) *font {
	f := &font{
		widths:       make(map[int]float64),
		missingWidth: defaultWidth,
		ascent:       defaultAscent,
		descent:      defaultDescent,
	}

	subtype, _ := doc.DictName(dict, "Subtype")
	if subtype == "Type0" {
		f.loadType0(doc, dict)
	} else {
		f.loadSimple(doc, dict)
	}

	if tu := doc.Stream(dict["ToUnicode"]); tu != nil {
		if data, err := pipe.DecodeStream(doc, tu); err == nil {
			f.toUnicode = parseCMap(data)
		}
	}
	return f
}

func (f *font) loadSimple(doc *cos.Document, dict cos.Dict) {
	first, _ := doc.DictInt(dict, "FirstChar")
	widths := doc.Array(dict["Widths"])
	for i, w := range widths {
		if n, ok := cos.Number(doc.Resolve(w)); ok {
			f.widths[int(first)+i] = n / 1000
		}
	}
	f.loadDescriptor(doc, doc.Dict(dict["FontDescriptor"]))
}

func (f *font) loadType0(doc *cos.Document, dict cos.Dict) {
	if enc, ok := doc.DictName(dict, "Encoding"); ok && strings.HasPrefix(string(enc), "Identity") {
		f.twoByte = true
	}
	desc := doc.Array(dict["DescendantFonts"])
	if len(desc) == 0 {
		return
	}
	cid := doc.Dict(desc[0])
	if cid == nil {
		return
	}
	f.missingWidth = 1.0 // CID default width DW defaults to 1000
	if dw, ok := doc.DictFloat(cid, "DW"); ok {
		f.missingWidth = dw / 1000
	}
	f.loadCIDWidths(doc, doc.Array(cid["W"]))
	f.loadDescriptor(doc, doc.Dict(cid["FontDescriptor"]))
}

// loadCIDWidths decodes the /W array: entries are either
// "start [w1 w2 ...]" or "start end w".
func (f *font) loadCIDWidths(doc *cos.Document, w cos.Array) {
	for i := 0; i < len(w); {
		start, ok := cos.Int(doc.Resolve(w[i]))
		if !ok {
			return
		}
		i++
		if i >= len(w) {
			return
		}
		switch v := doc.Resolve(w[i]).(type) {
		case cos.Array:
			for j, it := range v {
				if n, ok := cos.Number(doc.Resolve(it)); ok {
					f.widths[int(start)+j] = n / 1000
				}
			}
			i++
		default:
			end, ok := cos.Int(v)
			if !ok || i+1 >= len(w) {
				return
			}
			width, ok := cos.Number(doc.Resolve(w[i+1]))
			if !ok {
				return
			}
			for c := start; c <= end; c++ {
				f.widths[int(c)] = width / 1000
			}
			i += 2
		}
	}
}

func (f *font) loadDescriptor(doc *cos.Document, fd cos.Dict) {
	if fd == nil {
		return
	}
	if mw, ok := doc.DictFloat(fd, "MissingWidth"); ok {
		f.missingWidth = mw / 1000
	}
	if a, ok := doc.DictFloat(fd, "Ascent"); ok && a != 0 {
		f.ascent = a / 1000
	}
	if d, ok := doc.DictFloat(fd, "Descent"); ok && d != 0 {
		f.descent = d / 1000
	}
}

// width returns the em-fraction advance for one character code.
func (f *font) width(code int) float64 {
	if w, ok := f.widths[code]; ok {
		return w
	}
	return f.missingWidth
}

// codes splits raw string bytes into character codes.
func (f *font) codes(data []byte) []int {
	if f.twoByte {
		out := make([]int, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			out = append(out, int(data[i])<<8|int(data[i+1]))
		}
		return out
	}
	out := make([]int, len(data))
	for i, b := range data {
		out[i] = int(b)
	}
	return out
}

// decode maps one character code to text. Without a ToUnicode map the
// code value itself is used, which is correct for unencoded Latin text
// and keeps geometry intact everywhere else.
func (f *font) decode(code int) string {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.lookup(code); ok {
			return s
		}
	}
	return string(rune(code))
}

// cmap is a ToUnicode character map built from bfchar/bfrange sections.
type cmap struct {
	entries map[int]string
}

func (m *cmap) lookup(code int) (string, bool) {
	s, ok := m.entries[code]
	return s, ok
}

// parseCMap reads the bfchar and bfrange sections of a ToUnicode CMap
// stream. Malformed lines are skipped; a partial map is better than none.
func parseCMap(data []byte) *cmap {
	m := &cmap{entries: make(map[int]string)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	state := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "%"):
			continue
		case strings.HasSuffix(line, "beginbfchar"):
			state = "bfchar"
			continue
		case strings.HasSuffix(line, "endbfchar"),
			strings.HasSuffix(line, "endbfrange"):
			state = ""
			continue
		case strings.HasSuffix(line, "beginbfrange"):
			state = "bfrange"
			continue
		}
		switch state {
		case "bfchar":
			hexes := hexTokens(line)
			if len(hexes) >= 2 {
				m.entries[hexToInt(hexes[0])] = utf16String(hexToBytes(hexes[1]))
			}
		case "bfrange":
			line = joinBracketLines(line, sc)
			hexes := hexTokens(line)
			if len(hexes) < 3 {
				continue
			}
			start, end := hexToInt(hexes[0]), hexToInt(hexes[1])
			if end < start || end-start > 0x10000 {
				continue
			}
			if strings.Contains(line, "[") {
				for i := 0; i <= end-start && 2+i < len(hexes); i++ {
					m.entries[start+i] = utf16String(hexToBytes(hexes[2+i]))
				}
				continue
			}
			dst := hexToBytes(hexes[2])
			base := bytesToInt(dst)
			for i := 0; i <= end-start; i++ {
				m.entries[start+i] = utf16String(intToBytes(base+i, len(dst)))
			}
		}
	}
	if len(m.entries) == 0 {
		return nil
	}
	return m
}

func joinBracketLines(line string, sc *bufio.Scanner) string {
	if !strings.Contains(line, "[") || strings.Contains(line, "]") {
		return line
	}
	for sc.Scan() {
		next := strings.TrimSpace(sc.Text())
		line += " " + next
		if strings.Contains(next, "]") {
			break
		}
	}
	return line
}

func hexTokens(line string) []string {
	var out []string
	for {
		start := strings.IndexByte(line, '<')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(line[start+1:], '>')
		if end < 0 {
			return out
		}
		out = append(out, strings.ReplaceAll(line[start+1:start+1+end], " ", ""))
		line = line[start+1+end+1:]
	}
}

func hexToBytes(h string) []byte {
	if len(h)%2 == 1 {
		h += "0"
	}
	out := make([]byte, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		out[i/2] = hexNibble(h[i])<<4 | hexNibble(h[i+1])
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func hexToInt(h string) int { return bytesToInt(hexToBytes(h)) }

func bytesToInt(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

func intToBytes(v, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func utf16String(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	if len(b) == 0 {
		return ""
	}
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(u))
}
