package cos

// Document is the root container for parsed COS objects.
type Document struct {
	Objects map[Ref]Object
	Trailer Dict
	Version string
}

// MaxObjectNum returns the highest object number present, so appended
// objects can be numbered past the existing population.
func (d *Document) MaxObjectNum() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Resolve follows indirect references until a direct object (or nil for
// a dangling reference) is reached.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj
		}
		obj, ok = d.Objects[ref]
		if !ok {
			return nil
		}
	}
	return nil
}

// Dict resolves obj and asserts it is a dictionary (a stream's
// dictionary also qualifies).
func (d *Document) Dict(obj Object) Dict {
	switch v := d.Resolve(obj).(type) {
	case Dict:
		return v
	case *Stream:
		return v.Dict
	}
	return nil
}

// Array resolves obj and asserts it is an array.
func (d *Document) Array(obj Object) Array {
	v, _ := d.Resolve(obj).(Array)
	return v
}

// Stream resolves obj and asserts it is a stream.
func (d *Document) Stream(obj Object) *Stream {
	v, _ := d.Resolve(obj).(*Stream)
	return v
}

// DictGet resolves dict[key].
func (d *Document) DictGet(dict Dict, key Name) Object {
	if dict == nil {
		return nil
	}
	return d.Resolve(dict[key])
}

// DictName returns dict[key] as a name.
func (d *Document) DictName(dict Dict, key Name) (Name, bool) {
	v, ok := d.DictGet(dict, key).(Name)
	return v, ok
}

// DictInt returns dict[key] as an int64.
func (d *Document) DictInt(dict Dict, key Name) (int64, bool) {
	return Int(d.DictGet(dict, key))
}

// DictFloat returns dict[key] as a float64.
func (d *Document) DictFloat(dict Dict, key Name) (float64, bool) {
	return Number(d.DictGet(dict, key))
}

// Rect reads a 4-number array such as /MediaBox or /Rect.
func (d *Document) Rect(obj Object) ([4]float64, bool) {
	arr := d.Array(obj)
	if len(arr) != 4 {
		return [4]float64{}, false
	}
	var out [4]float64
	for i, it := range arr {
		n, ok := Number(d.Resolve(it))
		if !ok {
			return [4]float64{}, false
		}
		out[i] = n
	}
	return out, true
}
