/*package field describes particle attributes generically: each output or
input quantity is a Descriptor giving its name, element type, physical unit
vector, cosmological scale-factor exponent, and whether it is compulsory in
input files. Descriptors drive both the sightline serializer and the
partitioned snapshot reader/writer, so the byte layout they imply is the one
the rest of specter trusts.

Much of this file is type switches over the six supported array types. An
earlier draft kept one wrapper struct per type; switching over a bare
interface{} turned out much shorter.
*/
package field

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/units"
)

// Type identifies the element type of a field.
type Type int32

const (
	Float32 Type = iota
	Float64
	Uint32
	Uint64
	Vec32
	Vec64
	numTypes
)

// String returns the short type name used in file metadata and errors.
func (t Type) String() string {
	switch t {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Uint32:
		return "u32"
	case Uint64:
		return "u64"
	case Vec32:
		return "v32"
	case Vec64:
		return "v64"
	}
	return fmt.Sprintf("invalid type (%d)", int32(t))
}

// Dim returns the number of scalar elements per record: 1, or 3 for vectors.
func (t Type) Dim() int {
	switch t {
	case Vec32, Vec64:
		return 3
	}
	return 1
}

// Size returns the number of bytes one record occupies.
func (t Type) Size() int {
	switch t {
	case Float32, Uint32:
		return 4
	case Float64, Uint64:
		return 8
	case Vec32:
		return 12
	case Vec64:
		return 24
	}
	panic("'Impossible' type configuration.")
}

// TypeOf returns the Type of a supported data array and an error for any
// other argument.
func TypeOf(x interface{}) (Type, error) {
	switch x.(type) {
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	case []uint32:
		return Uint32, nil
	case []uint64:
		return Uint64, nil
	case [][3]float32:
		return Vec32, nil
	case [][3]float64:
		return Vec64, nil
	}
	return -1, fmt.Errorf("Arrays of type %T aren't supported. Only "+
		"[]float32, []float64, []uint32, []uint64, [][3]float32, and "+
		"[][3]float64 are valid.", x)
}

// Alloc allocates a zeroed data array with n records of the given type.
func Alloc(t Type, n int) interface{} {
	switch t {
	case Float32:
		return make([]float32, n)
	case Float64:
		return make([]float64, n)
	case Uint32:
		return make([]uint32, n)
	case Uint64:
		return make([]uint64, n)
	case Vec32:
		return make([][3]float32, n)
	case Vec64:
		return make([][3]float64, n)
	}
	panic("'Impossible' type configuration.")
}

// Length returns the number of records in a supported data array.
func Length(x interface{}) int {
	switch xx := x.(type) {
	case []float32:
		return len(xx)
	case []float64:
		return len(xx)
	case []uint32:
		return len(xx)
	case []uint64:
		return len(xx)
	case [][3]float32:
		return len(xx)
	case [][3]float64:
		return len(xx)
	}
	panic("'Impossible' type configuration.")
}

// Descriptor describes one particle attribute.
type Descriptor struct {
	// Name of the field, which doubles as the dataset name on disk.
	Name string
	// Type of each record.
	Type Type
	// Units is the exponent vector of the field over the base quantities.
	Units units.Unit
	// AExp is the cosmological scale-factor exponent used to convert the
	// comoving stored values to physical ones.
	AExp float32
	// Compulsory fields must be present in input files; optional fields
	// default to zero when absent.
	Compulsory bool
	// Description is the human-readable description stored alongside the
	// data. Writing a field with an empty Description is a fatal
	// schema-integrity error.
	Description string
	// Derive, if non-nil, computes the field's values from a shard instead
	// of reading a stored array of the same name. sel lists the record
	// indices to produce, in order; a nil sel means every record.
	Derive func(sh *part.Shard, sel []int) (interface{}, error)
}

// Values produces the field's data array for the records in sel (all records
// if sel is nil), either through Derive or by gathering the stored array.
func (d *Descriptor) Values(sh *part.Shard, sel []int) (interface{}, error) {
	if d.Derive != nil {
		x, err := d.Derive(sh, sel)
		if err != nil {
			return nil, err
		}
		if t, err := TypeOf(x); err != nil || t != d.Type {
			return nil, fmt.Errorf("The derived field '%s' produced a %T "+
				"array, but its descriptor promises %s records.",
				d.Name, x, d.Type)
		}
		return x, nil
	}

	src, ok := sh.Fields[d.Name]
	if !ok {
		return nil, fmt.Errorf("The field '%s' is neither stored in the "+
			"shard nor derivable. The shard only stores the fields %s.",
			d.Name, fieldNames(sh))
	}
	if t, err := TypeOf(src); err != nil || t != d.Type {
		return nil, fmt.Errorf("The stored field '%s' has type %T, but its "+
			"descriptor promises %s records.", d.Name, src, d.Type)
	}

	if sel == nil {
		return src, nil
	}
	return gather(src, sel), nil
}

func fieldNames(sh *part.Shard) []string {
	names := []string{}
	for name := range sh.Fields {
		names = append(names, name)
	}
	return names
}

// gather copies the records at the indices in sel out of src, preserving
// sel's order.
func gather(src interface{}, sel []int) interface{} {
	switch xx := src.(type) {
	case []float32:
		out := make([]float32, len(sel))
		for i, j := range sel {
			out[i] = xx[j]
		}
		return out
	case []float64:
		out := make([]float64, len(sel))
		for i, j := range sel {
			out[i] = xx[j]
		}
		return out
	case []uint32:
		out := make([]uint32, len(sel))
		for i, j := range sel {
			out[i] = xx[j]
		}
		return out
	case []uint64:
		out := make([]uint64, len(sel))
		for i, j := range sel {
			out[i] = xx[j]
		}
		return out
	case [][3]float32:
		out := make([][3]float32, len(sel))
		for i, j := range sel {
			out[i] = xx[j]
		}
		return out
	case [][3]float64:
		out := make([][3]float64, len(sel))
		for i, j := range sel {
			out[i] = xx[j]
		}
		return out
	}
	panic("'Impossible' type configuration.")
}

// Merge concatenates the descriptor lists contributed by different physics
// modules into one dynamically sized list, rejecting duplicate field names.
func Merge(lists ...[]Descriptor) ([]Descriptor, error) {
	out := []Descriptor{}
	seen := map[string]bool{}
	for _, list := range lists {
		for _, d := range list {
			if seen[d.Name] {
				return nil, fmt.Errorf("Two modules both contribute a "+
					"field named '%s'. Field names must be unique within a "+
					"particle category.", d.Name)
			}
			seen[d.Name] = true
			out = append(out, d)
		}
	}
	return out, nil
}

// Clone returns a copy of a supported data array. Callers that got an array
// straight out of a shard must clone it before converting units in place.
func Clone(x interface{}) interface{} {
	switch xx := x.(type) {
	case []float32:
		return append([]float32{}, xx...)
	case []float64:
		return append([]float64{}, xx...)
	case []uint32:
		return append([]uint32{}, xx...)
	case []uint64:
		return append([]uint64{}, xx...)
	case [][3]float32:
		return append([][3]float32{}, xx...)
	case [][3]float64:
		return append([][3]float64{}, xx...)
	}
	panic("'Impossible' type configuration.")
}

// Pack serializes a data array to little-endian bytes, record by record.
func Pack(x interface{}) []byte {
	switch xx := x.(type) {
	case []float32:
		b := make([]byte, 4*len(xx))
		for i, v := range xx {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
		}
		return b
	case []float64:
		b := make([]byte, 8*len(xx))
		for i, v := range xx {
			binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
		}
		return b
	case []uint32:
		b := make([]byte, 4*len(xx))
		for i, v := range xx {
			binary.LittleEndian.PutUint32(b[4*i:], v)
		}
		return b
	case []uint64:
		b := make([]byte, 8*len(xx))
		for i, v := range xx {
			binary.LittleEndian.PutUint64(b[8*i:], v)
		}
		return b
	case [][3]float32:
		b := make([]byte, 12*len(xx))
		for i, v := range xx {
			for k := 0; k < 3; k++ {
				binary.LittleEndian.PutUint32(
					b[12*i+4*k:], math.Float32bits(v[k]))
			}
		}
		return b
	case [][3]float64:
		b := make([]byte, 24*len(xx))
		for i, v := range xx {
			for k := 0; k < 3; k++ {
				binary.LittleEndian.PutUint64(
					b[24*i+8*k:], math.Float64bits(v[k]))
			}
		}
		return b
	}
	panic("'Impossible' type configuration.")
}

// Unpack deserializes little-endian bytes into a freshly allocated data
// array of the given type. len(b) must be a whole number of records.
func Unpack(b []byte, t Type) (interface{}, error) {
	if len(b)%t.Size() != 0 {
		return nil, fmt.Errorf("A %s buffer must contain a whole number of "+
			"%d-byte records, but this one is %d bytes long.",
			t, t.Size(), len(b))
	}
	x := Alloc(t, len(b)/t.Size())
	UnpackInto(b, x)
	return x, nil
}

// UnpackInto deserializes little-endian bytes into an existing data array.
// The array's byte size must exactly match len(b).
func UnpackInto(b []byte, x interface{}) {
	switch xx := x.(type) {
	case []float32:
		for i := range xx {
			xx[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case []float64:
		for i := range xx {
			xx[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
		}
	case []uint32:
		for i := range xx {
			xx[i] = binary.LittleEndian.Uint32(b[4*i:])
		}
	case []uint64:
		for i := range xx {
			xx[i] = binary.LittleEndian.Uint64(b[8*i:])
		}
	case [][3]float32:
		for i := range xx {
			for k := 0; k < 3; k++ {
				xx[i][k] = math.Float32frombits(
					binary.LittleEndian.Uint32(b[12*i+4*k:]))
			}
		}
	case [][3]float64:
		for i := range xx {
			for k := 0; k < 3; k++ {
				xx[i][k] = math.Float64frombits(
					binary.LittleEndian.Uint64(b[24*i+8*k:]))
			}
		}
	default:
		panic("'Impossible' type configuration.")
	}
}

// Convert multiplies every scalar element of a floating-point data array by
// factor, in place. Integer fields are left untouched: they carry IDs and
// flags, not dimensioned quantities.
func Convert(x interface{}, factor float64) {
	if factor == 1 {
		return
	}
	switch xx := x.(type) {
	case []float32:
		f := float32(factor)
		for i := range xx {
			xx[i] *= f
		}
	case []float64:
		for i := range xx {
			xx[i] *= factor
		}
	case [][3]float32:
		f := float32(factor)
		for i := range xx {
			xx[i][0] *= f
			xx[i][1] *= f
			xx[i][2] *= f
		}
	case [][3]float64:
		for i := range xx {
			xx[i][0] *= factor
			xx[i][1] *= factor
			xx[i][2] *= factor
		}
	case []uint32, []uint64:
	default:
		panic("'Impossible' type configuration.")
	}
}
