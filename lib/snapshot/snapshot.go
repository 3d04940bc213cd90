/*package snapshot reads and writes domain-partitioned particle snapshots.

Each rank owns a contiguous slice of every particle category, and the on-disk
file stores each category's fields as one global array. The slice boundaries
come from Partition, which both the writer and the reader use, so a file
written on any rank count can be read back on any other. Ranks take strictly
serialized turns at the file under barrier handoff, which keeps the protocol
correct on filesystems with no parallel-write support.
*/
package snapshot

import (
	"bytes"
	"encoding/binary"

	s_error "github.com/specter-sim/specter/lib/error"
	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/units"
)

// Partition returns the row range of a global array of the given total length
// that rank owns: rows [offset, offset+count). The ranges of all ranks tile
// the array in rank order, and no rank's share differs from any other's by
// more than one row.
func Partition(total int64, size, rank int) (offset, count int64) {
	offset = int64(rank) * total / int64(size)
	count = int64(rank+1)*total/int64(size) - offset
	return offset, count
}

// Category pairs one particle category's shard with the fields that describe
// it. Name doubles as the group name in the file.
type Category struct {
	Name   string
	Shard  *part.Shard
	Fields []field.Descriptor
}

// Header is the run-level state stored with a snapshot. NumTotal holds the
// global particle count of each category, in the category order the snapshot
// was written with.
type Header struct {
	BoxSize                     [3]float64
	Periodic                    bool
	Time, Redshift, ScaleFactor float64
	NumTotal                    []int64
}

// Output configures where and how a snapshot is written.
type Output struct {
	// Basename and Counter name the file
	// "<Basename>_<Counter padded to 4 digits>.spec".
	Basename string
	Counter  int

	Header Header

	// InternalUnits is the system particle data is held in; FileUnits is the
	// system it is written in.
	InternalUnits, FileUnits units.System

	// Select, if non-nil, turns individual fields off by category and field
	// name; a nil Select writes every field.
	Select func(category, name string) bool
}

func (out *Output) selected(category, name string) bool {
	return out.Select == nil || out.Select(category, name)
}

// encodeHeader packs a header for broadcast. The bool travels as an int32 so
// every field is fixed-width.
func encodeHeader(hd *Header) []byte {
	buf := &bytes.Buffer{}
	periodic := int32(0)
	if hd.Periodic {
		periodic = 1
	}

	vals := []interface{}{
		hd.BoxSize, periodic, hd.Time, hd.Redshift, hd.ScaleFactor,
		int32(len(hd.NumTotal)), hd.NumTotal,
	}
	for _, v := range vals {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			s_error.Internal("Could not encode a snapshot header: %s",
				err.Error())
		}
	}
	return buf.Bytes()
}

// decodeHeader inverts encodeHeader.
func decodeHeader(b []byte) *Header {
	r := bytes.NewReader(b)
	hd := &Header{}
	var periodic, nCats int32

	ptrs := []interface{}{
		&hd.BoxSize, &periodic, &hd.Time, &hd.Redshift, &hd.ScaleFactor,
		&nCats,
	}
	for _, p := range ptrs {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			s_error.Internal("Could not decode a broadcast snapshot "+
				"header: %s", err.Error())
		}
	}

	hd.Periodic = periodic != 0
	hd.NumTotal = make([]int64, nCats)
	if err := binary.Read(r, binary.LittleEndian, hd.NumTotal); err != nil {
		s_error.Internal("Could not decode a broadcast snapshot header: %s",
			err.Error())
	}
	return hd
}

// splitTotal splits a particle count into the 32-bit low word and high word
// convention that snapshot headers use for counts past 2^32.
func splitTotal(n int64) (low, high int64) {
	return n & 0xffffffff, n >> 32
}

// joinTotal inverts splitTotal.
func joinTotal(low, high int64) int64 {
	return low | high<<32
}
