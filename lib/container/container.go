/*package container reads and writes specter's self-describing hierarchical
files: named groups holding attribute-annotated, optionally chunk-compressed
datasets, with ranged reads and writes at arbitrary row offsets.

The layout is a fixed-width identification header, the dataset data regions,
and a table of contents at the end of the file whose offset is patched into
the identification header when the file is finalized. Reopening a finalized
file for appending drops the table, extends the data region, and writes a
fresh table on close; that is what lets each rank in turn write its slice of
a snapshot without any rank holding the file open across the handoff.
*/
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/specter-sim/specter/lib/field"
)

const (
	// MagicNumber is an arbitrary number at the start of all specter files
	// which should help identify when the code is run on something else by
	// accident.
	MagicNumber = 0x53504543
	// ReverseMagicNumber is the magic number if read on a machine with
	// flipped endianness.
	ReverseMagicNumber = 0x43455053
	Version            = 1

	headerSize = 16 // magic + version + TOC offset
)

var order = binary.ByteOrder(binary.LittleEndian)

// Group is a named collection of datasets with its own attributes.
type Group struct {
	attrSet
	Name string
}

// File is an open container. Files created with Create or reopened with
// Append must be finalized with Close before anything can read them.
type File struct {
	fname    string
	f        *os.File
	writable bool
	end      int64 // where data ends and the TOC begins

	groups   []*Group
	datasets []*Dataset
}

// Create creates a new container file, truncating anything already at that
// path.
func Create(fname string) (*File, error) {
	fp, err := os.Create(fname)
	if err != nil {
		return nil, err
	}

	f := &File{fname: fname, f: fp, writable: true, end: headerSize}

	hd := make([]byte, headerSize)
	order.PutUint32(hd[0:], MagicNumber)
	order.PutUint32(hd[4:], Version)
	// TOC offset stays zero until Close finalizes the file.
	if _, err := fp.Write(hd); err != nil {
		fp.Close()
		return nil, err
	}
	return f, nil
}

// Open opens a finalized container for reading.
func Open(fname string) (*File, error) {
	return open(fname, false)
}

// Append reopens a finalized container so more datasets can be added and
// raw-layout datasets can be written at row offsets. The caller must Close
// the file to re-finalize it.
func Append(fname string) (*File, error) {
	return open(fname, true)
}

func open(fname string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	fp, err := os.OpenFile(fname, flag, 0666)
	if err != nil {
		return nil, err
	}

	f := &File{fname: fname, f: fp, writable: writable}
	if err := f.readTOC(); err != nil {
		fp.Close()
		return nil, err
	}

	if writable {
		// Drop the old TOC; Close writes a fresh one after the new end.
		if err := fp.Truncate(f.end); err != nil {
			fp.Close()
			return nil, err
		}
	}
	return f, nil
}

// CreateGroup creates a named group. Group names must be unique within the
// file.
func (f *File) CreateGroup(name string) (*Group, error) {
	if !f.writable {
		return nil, fmt.Errorf("%s is open read-only.", f.fname)
	}
	if _, ok := f.Group(name); ok {
		return nil, fmt.Errorf("The file %s already contains a group "+
			"named '%s'.", f.fname, name)
	}
	g := &Group{Name: name}
	f.groups = append(f.groups, g)
	return g, nil
}

// Group looks up a group by name.
func (f *File) Group(name string) (*Group, bool) {
	for _, g := range f.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// GroupNames returns the names of every group, in creation order.
func (f *File) GroupNames() []string {
	names := make([]string, len(f.groups))
	for i, g := range f.groups {
		names[i] = g.Name
	}
	return names
}

// Dataset looks up a dataset by its group and name.
func (f *File) Dataset(group, name string) (*Dataset, bool) {
	for _, d := range f.datasets {
		if d.Group == group && d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// DatasetNames returns the names of every dataset in a group, in creation
// order.
func (f *File) DatasetNames(group string) []string {
	names := []string{}
	for _, d := range f.datasets {
		if d.Group == group {
			names = append(names, d.Name)
		}
	}
	return names
}

// Close finalizes a writable file by writing its table of contents and
// patching the identification header, then closes the underlying file.
func (f *File) Close() error {
	if !f.writable {
		return f.f.Close()
	}

	for _, d := range f.datasets {
		if d.layout == layoutChunked && len(d.edges) == 0 {
			f.f.Close()
			return fmt.Errorf("The chunk-compressed dataset %s/%s was "+
				"created but never written. Compressed datasets must be "+
				"written in full before the file is closed.", d.Group, d.Name)
		}
	}

	toc := &bytes.Buffer{}
	if err := f.writeTOC(toc); err != nil {
		f.f.Close()
		return err
	}
	if _, err := f.f.WriteAt(toc.Bytes(), f.end); err != nil {
		f.f.Close()
		return err
	}

	patch := make([]byte, 8)
	order.PutUint64(patch, uint64(f.end))
	if _, err := f.f.WriteAt(patch, 8); err != nil {
		f.f.Close()
		return err
	}

	return f.f.Close()
}

func (f *File) writeTOC(w io.Writer) error {
	if err := binary.Write(w, order, uint32(len(f.groups))); err != nil {
		return err
	}
	for _, g := range f.groups {
		if err := writeString(w, g.Name); err != nil {
			return err
		}
		if err := writeAttrs(w, g.attrs); err != nil {
			return err
		}
	}

	if err := binary.Write(w, order, uint32(len(f.datasets))); err != nil {
		return err
	}
	for _, d := range f.datasets {
		if err := writeString(w, d.Group); err != nil {
			return err
		}
		if err := writeString(w, d.Name); err != nil {
			return err
		}
		fixed := []interface{}{
			int32(d.typ), d.rows, d.layout, d.chunkRows, d.dataOffset,
			uint32(len(d.edges)),
		}
		for _, v := range fixed {
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		}
		if err := binary.Write(w, order, d.edges); err != nil {
			return err
		}
		if err := writeAttrs(w, d.attrs); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) readTOC() error {
	hd := make([]byte, headerSize)
	if _, err := f.f.ReadAt(hd, 0); err != nil {
		return fmt.Errorf("%s is too short to be a specter file.", f.fname)
	}

	switch order.Uint32(hd[0:]) {
	case MagicNumber:
	case ReverseMagicNumber:
		return fmt.Errorf("%s was written on a machine with the opposite "+
			"byte order. This version of specter only reads little-endian "+
			"files.", f.fname)
	default:
		return fmt.Errorf("%s is not a specter file. All specter files "+
			"begin with the 32-bit integer %x; this file begins with %x.",
			f.fname, uint32(MagicNumber), order.Uint32(hd[0:]))
	}

	if v := order.Uint32(hd[4:]); v > Version {
		return fmt.Errorf("The file %s was created with specter file "+
			"version %d, but this code only understands versions up to %d. "+
			"Update specter to read it.", f.fname, v, Version)
	}

	tocOffset := int64(order.Uint64(hd[8:]))
	if tocOffset == 0 {
		return fmt.Errorf("The file %s was never finalized: its table of "+
			"contents is missing. The run that created it must have died "+
			"before Close().", f.fname)
	}
	f.end = tocOffset

	info, err := f.f.Stat()
	if err != nil {
		return err
	}
	b := make([]byte, info.Size()-tocOffset)
	if _, err := f.f.ReadAt(b, tocOffset); err != nil {
		return err
	}
	r := bytes.NewReader(b)

	var nGroups uint32
	if err := binary.Read(r, order, &nGroups); err != nil {
		return err
	}
	for i := uint32(0); i < nGroups; i++ {
		name, err := readString(r)
		if err != nil {
			return err
		}
		attrs, err := readAttrs(r)
		if err != nil {
			return err
		}
		f.groups = append(f.groups, &Group{attrSet{attrs}, name})
	}

	var nDatasets uint32
	if err := binary.Read(r, order, &nDatasets); err != nil {
		return err
	}
	for i := uint32(0); i < nDatasets; i++ {
		d := &Dataset{f: f}
		if d.Group, err = readString(r); err != nil {
			return err
		}
		if d.Name, err = readString(r); err != nil {
			return err
		}

		var typ int32
		var nEdges uint32
		for _, ptr := range []interface{}{
			&typ, &d.rows, &d.layout, &d.chunkRows, &d.dataOffset, &nEdges,
		} {
			if err := binary.Read(r, order, ptr); err != nil {
				return err
			}
		}
		d.typ = field.Type(typ)

		d.edges = make([]int64, nEdges)
		if err := binary.Read(r, order, d.edges); err != nil {
			return err
		}
		if d.attrs, err = readAttrs(r); err != nil {
			return err
		}

		f.datasets = append(f.datasets, d)
	}

	return nil
}
