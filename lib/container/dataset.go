package container

/* dataset.go handles dataset creation and the ranged ("hyperslab") reads
and writes against them. Datasets come in two layouts:

  - raw: the full extent is reserved when the dataset is created, and any
    row range can be read or written in place. This is the layout the
    partitioned snapshot writer needs, since every rank lands its slice at
    its own offset.
  - chunked: rows are cut into fixed-size chunks, each compressed with zstd
    and appended to the file. Chunked datasets must be written in one piece
    by whoever owns the whole buffer (the coordinating rank does for
    sightline output), but can be read by any row range.
*/

import (
	"fmt"

	"github.com/DataDog/zstd"

	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/units"
)

const (
	layoutRaw int32 = iota
	layoutChunked
)

// DefaultChunkRows is the chunk granularity used when an Options leaves
// ChunkRows unset.
const DefaultChunkRows = 1 << 16

// Options configures dataset creation. Compression > 0 selects the chunked
// zstd layout with that compression level; 0 selects the raw layout.
// ChunkRows is the number of rows per chunk and is ignored for raw datasets.
type Options struct {
	Compression int
	ChunkRows   int64
}

// Dataset is a named, typed, attribute-annotated array of records inside a
// group.
type Dataset struct {
	attrSet
	f           *File
	Group, Name string

	typ        field.Type
	rows       int64
	layout     int32
	chunkRows  int64
	dataOffset int64
	edges      []int64 // absolute offsets of chunk starts, plus the end
	level      int32
}

// Rows returns the number of records in the dataset.
func (d *Dataset) Rows() int64 { return d.rows }

// Type returns the record type of the dataset.
func (d *Dataset) Type() field.Type { return d.typ }

// CreateDataset creates a dataset with the given record type and row count
// inside a group that must already exist. Raw-layout datasets have their
// extent reserved immediately; chunked ones are laid down by WriteAll.
func (f *File) CreateDataset(
	group, name string, typ field.Type, rows int64, opt Options,
) (*Dataset, error) {
	if !f.writable {
		return nil, fmt.Errorf("%s is open read-only.", f.fname)
	}
	if _, ok := f.Group(group); !ok {
		return nil, fmt.Errorf("The dataset '%s' was created in the group "+
			"'%s', but %s has no such group.", name, group, f.fname)
	}
	if _, ok := f.Dataset(group, name); ok {
		return nil, fmt.Errorf("The group '%s' in %s already contains a "+
			"dataset named '%s'.", group, f.fname, name)
	}
	if rows < 0 {
		return nil, fmt.Errorf("The dataset '%s/%s' was created with %d "+
			"rows.", group, name, rows)
	}

	d := &Dataset{
		f: f, Group: group, Name: name, typ: typ, rows: rows,
		chunkRows: opt.ChunkRows, level: int32(opt.Compression),
	}
	if d.chunkRows <= 0 {
		d.chunkRows = DefaultChunkRows
	}

	if opt.Compression > 0 {
		d.layout = layoutChunked
	} else {
		d.layout = layoutRaw
		d.dataOffset = f.end
		f.end += rows * int64(typ.Size())
		if err := f.f.Truncate(f.end); err != nil {
			return nil, err
		}
	}

	f.datasets = append(f.datasets, d)
	return d, nil
}

// WriteAll writes the dataset in one piece. x must hold exactly Rows()
// records of the dataset's type.
func (d *Dataset) WriteAll(x interface{}) error {
	if err := d.checkWrite(x); err != nil {
		return err
	}
	if int64(field.Length(x)) != d.rows {
		return fmt.Errorf("WriteAll on %s/%s was given %d records, but the "+
			"dataset holds %d.", d.Group, d.Name, field.Length(x), d.rows)
	}

	if d.layout == layoutRaw {
		return d.WriteRange(x, 0)
	}

	if len(d.edges) > 0 {
		return fmt.Errorf("The chunk-compressed dataset %s/%s was written "+
			"more than once.", d.Group, d.Name)
	}

	b := field.Pack(x)
	rowSize := int64(d.typ.Size())
	d.dataOffset = d.f.end
	d.edges = append(d.edges, d.f.end)

	for start := int64(0); start < d.rows; start += d.chunkRows {
		end := start + d.chunkRows
		if end > d.rows {
			end = d.rows
		}

		comp, err := zstd.CompressLevel(nil, b[start*rowSize:end*rowSize],
			int(d.level))
		if err != nil {
			return err
		}
		if _, err := d.f.f.WriteAt(comp, d.f.end); err != nil {
			return err
		}
		d.f.end += int64(len(comp))
		d.edges = append(d.edges, d.f.end)
	}
	return nil
}

// WriteRange writes the records in x starting at the given row. Only
// raw-layout datasets support ranged writes; that's the property that lets
// each rank land its slice independently.
func (d *Dataset) WriteRange(x interface{}, row int64) error {
	if err := d.checkWrite(x); err != nil {
		return err
	}
	if d.layout != layoutRaw {
		return fmt.Errorf("The dataset %s/%s is chunk-compressed, so it "+
			"can't be written one row range at a time. Use WriteAll, or "+
			"create the dataset without compression.", d.Group, d.Name)
	}
	n := int64(field.Length(x))
	if row < 0 || row+n > d.rows {
		return fmt.Errorf("WriteRange on %s/%s covers rows [%d, %d), but "+
			"the dataset only holds rows [0, %d).",
			d.Group, d.Name, row, row+n, d.rows)
	}

	b := field.Pack(x)
	_, err := d.f.f.WriteAt(b, d.dataOffset+row*int64(d.typ.Size()))
	return err
}

// ReadRange reads len(x) records starting at the given row into x, which
// must be a data array of the dataset's type.
func (d *Dataset) ReadRange(x interface{}, row int64) error {
	t, err := field.TypeOf(x)
	if err != nil {
		return err
	}
	if t != d.typ {
		return fmt.Errorf("ReadRange on %s/%s was given a %s buffer, but "+
			"the dataset stores %s records.", d.Group, d.Name, t, d.typ)
	}
	n := int64(field.Length(x))
	if row < 0 || row+n > d.rows {
		return fmt.Errorf("ReadRange on %s/%s covers rows [%d, %d), but "+
			"the dataset only holds rows [0, %d).",
			d.Group, d.Name, row, row+n, d.rows)
	}
	if n == 0 {
		return nil
	}

	rowSize := int64(d.typ.Size())
	b := make([]byte, n*rowSize)

	if d.layout == layoutRaw {
		if _, err := d.f.f.ReadAt(b, d.dataOffset+row*rowSize); err != nil {
			return err
		}
		field.UnpackInto(b, x)
		return nil
	}

	// Chunked layout: decompress every chunk overlapping [row, row+n) and
	// copy out the overlap.
	first, last := row/d.chunkRows, (row+n-1)/d.chunkRows
	for c := first; c <= last; c++ {
		comp := make([]byte, d.edges[c+1]-d.edges[c])
		if _, err := d.f.f.ReadAt(comp, d.edges[c]); err != nil {
			return err
		}
		raw, err := zstd.Decompress(nil, comp)
		if err != nil {
			return fmt.Errorf("The dataset %s/%s has a corrupted chunk "+
				"(chunk %d): %s", d.Group, d.Name, c, err.Error())
		}

		chunkStart := c * d.chunkRows // first row of this chunk
		lo, hi := row, row+n
		if cs := chunkStart; cs > lo {
			lo = cs
		}
		if ce := chunkStart + int64(len(raw))/rowSize; ce < hi {
			hi = ce
		}
		copy(b[(lo-row)*rowSize:(hi-row)*rowSize],
			raw[(lo-chunkStart)*rowSize:(hi-chunkStart)*rowSize])
	}

	field.UnpackInto(b, x)
	return nil
}

func (d *Dataset) checkWrite(x interface{}) error {
	if !d.f.writable {
		return fmt.Errorf("%s is open read-only.", d.f.fname)
	}
	t, err := field.TypeOf(x)
	if err != nil {
		return err
	}
	if t != d.typ {
		return fmt.Errorf("A write to %s/%s was given a %s buffer, but the "+
			"dataset stores %s records.", d.Group, d.Name, t, d.typ)
	}
	return nil
}

// SetUnitAttrs stores the standard per-field metadata: the five base-unit
// exponents, the h- and a-scale exponents, the CGS conversion factor with
// and without the cosmological correction, a human-readable CGS expression,
// and the field's description. An empty description is a schema-integrity
// error: files with undescribed fields are not allowed to exist.
func (d *Dataset) SetUnitAttrs(
	u units.Unit, aExp float32, sys units.System, a float64,
	description string,
) error {
	if description == "" {
		return fmt.Errorf("The field '%s/%s' has an empty description. "+
			"Every written field must describe itself.", d.Group, d.Name)
	}

	for q := 0; q < units.NumBase; q++ {
		name := units.BaseName(q) + " exponent"
		if err := d.SetAttr(name, u[q]); err != nil {
			return err
		}
	}
	if err := d.SetAttr("h-scale exponent", float32(0)); err != nil {
		return err
	}
	if err := d.SetAttr("a-scale exponent", aExp); err != nil {
		return err
	}
	if err := d.SetAttr("Expression for physical CGS units",
		units.CGSExpression(sys, u, aExp)); err != nil {
		return err
	}

	factor := units.CGSFactor(sys, u)
	err := d.SetAttr(
		"Conversion factor to CGS (not including cosmological corrections)",
		factor)
	if err != nil {
		return err
	}
	err = d.SetAttr(
		"Conversion factor to physical CGS (including cosmological corrections)",
		units.FactorA(sys, units.CGS(), u, aExp, a))
	if err != nil {
		return err
	}

	return d.SetAttr("Description", description)
}
