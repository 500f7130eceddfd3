// Package filters decodes and encodes the stream filters a paginated
// document uses for its content and object payloads.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Params carries the DecodeParms entries a filter cares about.
type Params struct {
	Predictor        int
	Columns          int
	Colors           int
	BitsPerComponent int
	EarlyChange      int
}

// Limits bounds decode work on hostile input.
type Limits struct {
	MaxDecodedSize int64 // 0 = unlimited
}

// Decoder turns one filter's encoded bytes back into plain bytes.
type Decoder interface {
	Name() string
	Decode(input []byte, params Params) ([]byte, error)
}

// Pipeline applies a chain of named filters in order.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline registers the standard decoders.
func NewPipeline(limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder), limits: limits}
	for _, d := range []Decoder{
		flateDecoder{},
		lzwDecoder{},
		asciiHexDecoder{},
		ascii85Decoder{},
		runLengthDecoder{},
	} {
		p.decoders[d.Name()] = d
	}
	return p
}

// Decode runs input through each named filter in order. Image-only
// filters (DCTDecode, JPXDecode, CCITT, JBIG2) are not text carriers
// and terminate the chain with ErrUnsupportedFilter.
func (p *Pipeline) Decode(input []byte, names []string, params []Params) ([]byte, error) {
	data := input
	for i, name := range names {
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		var param Params
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecodedSize > 0 && int64(len(out)) > p.limits.MaxDecodedSize {
			return nil, errors.New("decoded size exceeds limit")
		}
		data = out
	}
	return data, nil
}

// ErrUnsupportedFilter marks a filter the pipeline cannot decode.
var ErrUnsupportedFilter = errors.New("unsupported stream filter")

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(in []byte, params Params) ([]byte, error) {
	// Standard streams carry a zlib wrapper; some writers emit raw
	// deflate. Prefer whichever the header indicates.
	var out []byte
	var err error
	if len(in) > 2 && in[0] == 0x78 {
		out, err = inflate(in[2:])
	} else {
		out, err = inflate(in)
	}
	if err != nil {
		out, err = inflate(in)
	}
	if err != nil {
		return nil, err
	}
	return unpredict(out, params)
}

func inflate(in []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(in))
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(in []byte, params Params) ([]byte, error) {
	if params.EarlyChange == 0 {
		params.EarlyChange = 1
	}
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return unpredict(out.Bytes(), params)
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(in []byte, _ Params) ([]byte, error) {
	trimmed := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20 {
			continue
		}
		trimmed = append(trimmed, c)
	}
	if len(trimmed)%2 == 1 {
		trimmed = append(trimmed, '0')
	}
	out := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(out, trimmed)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(in []byte, _ Params) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, len(trimmed)+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(in []byte, _ Params) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		l := int(in[i])
		i++
		switch {
		case l == 128:
			return out.Bytes(), nil
		case l < 128:
			if i+l+1 > len(in) {
				return nil, errors.New("truncated literal run")
			}
			out.Write(in[i : i+l+1])
			i += l + 1
		default:
			if i >= len(in) {
				return nil, errors.New("truncated repeat run")
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-l))
			i++
		}
	}
	return out.Bytes(), nil
}

// unpredict reverses PNG-style predictors (10..15) applied before
// compression; cross-reference streams use these routinely. TIFF
// predictor 2 is handled for 8-bit components only.
func unpredict(data []byte, p Params) ([]byte, error) {
	if p.Predictor <= 1 {
		return data, nil
	}
	colors := p.Colors
	if colors == 0 {
		colors = 1
	}
	bpc := p.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	columns := p.Columns
	if columns == 0 {
		columns = 1
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	if p.Predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component unsupported", bpc)
		}
		for r := 0; r+rowLen <= len(data); r += rowLen {
			for i := bpp; i < rowLen; i++ {
				data[r+i] += data[r+i-bpp]
			}
		}
		return data, nil
	}

	// PNG predictors: each row is prefixed by one filter-type byte.
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, errors.New("predictor row size mismatch")
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(row, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown PNG predictor filter %d", ft)
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FlateEncode compresses data for compacted writes, in the zlib
// wrapping readers of FlateDecode streams expect.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
