/*package part contains the particle shard owned by one rank: a contiguous
subset of the global particle set, stored as named struct-of-array fields
plus the geometry accessors the extraction code needs.

Shards are read-only during extraction and I/O. The only mutation the rest of
specter performs is building them in the first place.
*/
package part

import (
	"fmt"
)

// Names of the fields every shard must carry for geometry.
const (
	CoordinatesField      = "Coordinates"
	SmoothingLengthsField = "SmoothingLengths"
)

// Shard holds one rank's particles. X and H alias the entries of Fields with
// the standard names, so the filter can get at geometry without map lookups
// in its inner loop. Valid[i] == false marks an inhibited record: it is
// excluded from every predicate evaluation and from output.
type Shard struct {
	X     [][3]float64
	H     []float32
	Valid []bool

	// Fields maps each field name to its data array. Valid value types are
	// []float32, []float64, []uint32, []uint64, [][3]float32, [][3]float64,
	// and every array must have the same length.
	Fields map[string]interface{}
}

// Len returns the number of records in the shard, including inhibited ones.
func (sh *Shard) Len() int { return len(sh.X) }

// New creates a shard from position and smoothing-length arrays. All records
// start out valid. The two arrays are registered in Fields under the standard
// names and are not copied.
func New(x [][3]float64, h []float32) (*Shard, error) {
	if len(x) != len(h) {
		return nil, fmt.Errorf("A shard was given %d positions but %d "+
			"smoothing lengths. These arrays must be parallel.", len(x), len(h))
	}

	valid := make([]bool, len(x))
	for i := range valid {
		valid[i] = true
	}

	sh := &Shard{
		X: x, H: h, Valid: valid,
		Fields: map[string]interface{}{},
	}
	sh.Fields[CoordinatesField] = x
	sh.Fields[SmoothingLengthsField] = h
	return sh, nil
}

// AddField registers a named data array with the shard. The array's length
// must match the shard's and its type must be one of the supported slice
// types.
func (sh *Shard) AddField(name string, data interface{}) error {
	if _, ok := sh.Fields[name]; ok {
		return fmt.Errorf("The field name '%s' is used more than once in "+
			"the same shard.", name)
	}

	n := -1
	switch x := data.(type) {
	case []float32:
		n = len(x)
	case []float64:
		n = len(x)
	case []uint32:
		n = len(x)
	case []uint64:
		n = len(x)
	case [][3]float32:
		n = len(x)
	case [][3]float64:
		n = len(x)
	default:
		return fmt.Errorf("The field '%s' has type %T, which specter "+
			"doesn't support. Only []float32, []float64, []uint32, []uint64, "+
			"[][3]float32, and [][3]float64 fields are valid.", name, data)
	}

	if n != sh.Len() {
		return fmt.Errorf("The field '%s' has %d elements, but the shard "+
			"holds %d particles.", name, n, sh.Len())
	}

	sh.Fields[name] = data
	return nil
}

// Inhibit marks record i as invalid. Inhibited records never match the
// sightline predicate and are still written by snapshot I/O (the marker
// travels with the particle, as in the simulation proper).
func (sh *Shard) Inhibit(i int) { sh.Valid[i] = false }
