package container

/* attr.go handles the typed attributes that annotate groups and datasets.
Attributes are small metadata values (unit exponents, box sizes,
descriptions); bulk data always goes in datasets. */

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

type attrFlag int32

const (
	attrString attrFlag = iota
	attrInt64
	attrFloat64
	attrFloat32
	attrInt64s
	attrFloat64s
	attrFloat32s
)

// Attr is one named metadata value. Value is a string, int64, float64,
// float32, []int64, []float64, or []float32.
type Attr struct {
	Name  string
	Value interface{}
}

// attrSet is embedded by Group and Dataset to give both the same attribute
// surface.
type attrSet struct {
	attrs []Attr
}

// SetAttr sets a named attribute, replacing any previous value. Accepted
// value types are string, bool, int, int64, float32, float64, []int64,
// []float32, []float64, [3]float64, and [5]float32; the convenience types
// are normalized to the stored set (bools become int64 0/1).
func (s *attrSet) SetAttr(name string, value interface{}) error {
	v, err := normalizeAttr(value)
	if err != nil {
		return fmt.Errorf("The attribute '%s' can't be stored: %s",
			name, err.Error())
	}

	for i := range s.attrs {
		if s.attrs[i].Name == name {
			s.attrs[i].Value = v
			return nil
		}
	}
	s.attrs = append(s.attrs, Attr{name, v})
	return nil
}

// Attr looks a named attribute up, returning false if it was never set.
func (s *attrSet) Attr(name string) (interface{}, bool) {
	for i := range s.attrs {
		if s.attrs[i].Name == name {
			return s.attrs[i].Value, true
		}
	}
	return nil, false
}

// AttrInt64 reads an integer attribute, returning false on a missing
// attribute or one of a different type.
func (s *attrSet) AttrInt64(name string) (int64, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return 0, false
	}
	x, ok := v.(int64)
	return x, ok
}

// AttrFloat64 reads a float attribute, returning false on a missing
// attribute or one of a different type.
func (s *attrSet) AttrFloat64(name string) (float64, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return 0, false
	}
	x, ok := v.(float64)
	return x, ok
}

// AttrString reads a string attribute, returning false on a missing
// attribute or one of a different type.
func (s *attrSet) AttrString(name string) (string, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return "", false
	}
	x, ok := v.(string)
	return x, ok
}

// AttrFloat64s reads a float-array attribute, returning false on a missing
// attribute or one of a different type.
func (s *attrSet) AttrFloat64s(name string) ([]float64, bool) {
	v, ok := s.Attr(name)
	if !ok {
		return nil, false
	}
	x, ok := v.([]float64)
	return x, ok
}

func normalizeAttr(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string, int64, float64, float32, []int64, []float64, []float32:
		return v, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(v), nil
	case [3]float64:
		return []float64{v[0], v[1], v[2]}, nil
	case [5]float32:
		return []float32{v[0], v[1], v[2], v[3], v[4]}, nil
	}
	return nil, fmt.Errorf("values of type %T aren't a supported "+
		"attribute type.", value)
}

func writeAttrs(w io.Writer, attrs []Attr) error {
	if err := binary.Write(w, order, uint32(len(attrs))); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := writeString(w, a.Name); err != nil {
			return err
		}

		var flag attrFlag
		switch a.Value.(type) {
		case string:
			flag = attrString
		case int64:
			flag = attrInt64
		case float64:
			flag = attrFloat64
		case float32:
			flag = attrFloat32
		case []int64:
			flag = attrInt64s
		case []float64:
			flag = attrFloat64s
		case []float32:
			flag = attrFloat32s
		default:
			panic("'Impossible' attribute type configuration.")
		}
		if err := binary.Write(w, order, flag); err != nil {
			return err
		}

		switch v := a.Value.(type) {
		case string:
			if err := writeString(w, v); err != nil {
				return err
			}
		case []int64:
			if err := binary.Write(w, order, uint32(len(v))); err != nil {
				return err
			}
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		case []float64:
			if err := binary.Write(w, order, uint32(len(v))); err != nil {
				return err
			}
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		case []float32:
			if err := binary.Write(w, order, uint32(len(v))); err != nil {
				return err
			}
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		default:
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func readAttrs(r *bytes.Reader) ([]Attr, error) {
	var n uint32
	if err := binary.Read(r, order, &n); err != nil {
		return nil, err
	}

	attrs := make([]Attr, n)
	for i := range attrs {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}

		var flag attrFlag
		if err := binary.Read(r, order, &flag); err != nil {
			return nil, err
		}

		var value interface{}
		switch flag {
		case attrString:
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			value = s
		case attrInt64:
			var v int64
			if err := binary.Read(r, order, &v); err != nil {
				return nil, err
			}
			value = v
		case attrFloat64:
			var v float64
			if err := binary.Read(r, order, &v); err != nil {
				return nil, err
			}
			value = v
		case attrFloat32:
			var v float32
			if err := binary.Read(r, order, &v); err != nil {
				return nil, err
			}
			value = v
		case attrInt64s:
			var m uint32
			if err := binary.Read(r, order, &m); err != nil {
				return nil, err
			}
			v := make([]int64, m)
			if err := binary.Read(r, order, v); err != nil {
				return nil, err
			}
			value = v
		case attrFloat64s:
			var m uint32
			if err := binary.Read(r, order, &m); err != nil {
				return nil, err
			}
			v := make([]float64, m)
			if err := binary.Read(r, order, v); err != nil {
				return nil, err
			}
			value = v
		case attrFloat32s:
			var m uint32
			if err := binary.Read(r, order, &m); err != nil {
				return nil, err
			}
			v := make([]float32, m)
			if err := binary.Read(r, order, v); err != nil {
				return nil, err
			}
			value = v
		default:
			return nil, fmt.Errorf("The attribute '%s' has the type flag "+
				"%d, which this version of specter doesn't recognize.",
				name, flag)
		}

		attrs[i] = Attr{name, value}
	}
	return attrs, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, order, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, order, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
