package filters

import "github.com/auditram/textmark/cos"

// ExtractFilters reads the Filter and DecodeParms entries from a stream
// dictionary, resolving indirect references through doc.
func ExtractFilters(doc *cos.Document, dict cos.Dict) ([]string, []Params) {
	var names []string
	switch f := doc.Resolve(dict["Filter"]).(type) {
	case cos.Name:
		names = append(names, string(f))
	case cos.Array:
		for _, it := range f {
			if n, ok := doc.Resolve(it).(cos.Name); ok {
				names = append(names, string(n))
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	var params []Params
	switch p := doc.Resolve(dict["DecodeParms"]).(type) {
	case cos.Dict:
		params = append(params, paramsFromDict(doc, p))
	case cos.Array:
		for _, it := range p {
			d, _ := doc.Resolve(it).(cos.Dict)
			params = append(params, paramsFromDict(doc, d))
		}
	}
	return names, params
}

func paramsFromDict(doc *cos.Document, d cos.Dict) Params {
	var p Params
	if d == nil {
		return p
	}
	if v, ok := doc.DictInt(d, "Predictor"); ok {
		p.Predictor = int(v)
	}
	if v, ok := doc.DictInt(d, "Columns"); ok {
		p.Columns = int(v)
	}
	if v, ok := doc.DictInt(d, "Colors"); ok {
		p.Colors = int(v)
	}
	if v, ok := doc.DictInt(d, "BitsPerComponent"); ok {
		p.BitsPerComponent = int(v)
	}
	if v, ok := doc.DictInt(d, "EarlyChange"); ok {
		p.EarlyChange = int(v)
	}
	return p
}

// DecodeStream runs a stream's payload through its declared filter
// chain. A stream with no filters decodes to its raw bytes.
func (p *Pipeline) DecodeStream(doc *cos.Document, st *cos.Stream) ([]byte, error) {
	names, params := ExtractFilters(doc, st.Dict)
	if len(names) == 0 {
		out := make([]byte, len(st.Raw))
		copy(out, st.Raw)
		return out, nil
	}
	return p.Decode(st.Raw, names, params)
}
