package snapshot

/* read.go is the distributed snapshot reader. Rank 0 reads the header and
broadcasts it, every rank derives its own slice boundaries from Partition,
and the ranks take round-robin turns reading their slices. The reader is
rank-count agnostic: the file carries no trace of how many ranks wrote it. */

import (
	"github.com/specter-sim/specter/lib/comm"
	"github.com/specter-sim/specter/lib/container"
	s_error "github.com/specter-sim/specter/lib/error"
	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/units"
)

// Input configures a snapshot read: the file, the categories and fields to
// load, and the unit system to convert the data into.
type Input struct {
	Fname string

	// Categories names the groups to read, and Fields describes the fields
	// of each. Compulsory fields abort the run when absent; optional absent
	// fields come back zero-filled. Derived fields are never read.
	Categories []string
	Fields     [][]field.Descriptor

	InternalUnits units.System
}

// Read loads each rank's slice of every category in a snapshot. It is
// collective: every rank of c must call it with the same Input. The returned
// shards hold this rank's particles in internal units, and the returned
// header is identical on every rank.
func Read(c comm.Comm, in *Input) ([]*part.Shard, *Header) {
	if len(in.Categories) != len(in.Fields) {
		s_error.Internal("A snapshot read names %d categories but carries "+
			"%d field lists.", len(in.Categories), len(in.Fields))
	}

	hd := bcastHeader(c, in)
	if len(hd.NumTotal) < len(in.Categories) {
		s_error.External("The snapshot %s stores %d particle categories, "+
			"but reading it requires at least %d.",
			in.Fname, len(hd.NumTotal), len(in.Categories))
	}

	shards := make([]*part.Shard, len(in.Categories))
	for turn := 0; turn < c.Size(); turn++ {
		if c.Rank() == turn {
			readSlices(c, in, hd, shards)
		}
		c.Barrier()
	}
	return shards, hd
}

// bcastHeader has rank 0 read the snapshot header and sends it to everyone.
func bcastHeader(c comm.Comm, in *Input) *Header {
	var b []byte
	if c.Rank() == 0 {
		f, err := container.Open(in.Fname)
		if err != nil {
			s_error.External("Could not open the snapshot file %s: %s",
				in.Fname, err.Error())
		}
		b = encodeHeader(readHeaderGroup(f, in))
		f.Close()
	}
	return decodeHeader(comm.BcastBytes(c, b, 0))
}

func readHeaderGroup(f *container.File, in *Input) *Header {
	g, ok := f.Group("Header")
	if !ok {
		s_error.External("The file %s has no Header group, so it isn't a "+
			"specter snapshot.", in.Fname)
	}

	hd := &Header{}
	box, ok := g.AttrFloat64s("BoxSize")
	if !ok || len(box) != 3 {
		s_error.External("The snapshot %s has a missing or malformed "+
			"BoxSize header attribute.", in.Fname)
	}
	copy(hd.BoxSize[:], box)

	scalars := []struct {
		name string
		dst  *float64
	}{
		{"Time", &hd.Time},
		{"Redshift", &hd.Redshift},
		{"Scale-factor", &hd.ScaleFactor},
	}
	for _, s := range scalars {
		v, ok := g.AttrFloat64(s.name)
		if !ok {
			s_error.External("The snapshot %s has no '%s' header attribute.",
				in.Fname, s.name)
		}
		*s.dst = v
	}

	periodic, ok := g.AttrInt64("Periodic")
	if !ok {
		s_error.External("The snapshot %s has no 'Periodic' header "+
			"attribute.", in.Fname)
	}
	hd.Periodic = periodic != 0

	lows, ok1 := g.Attr("NumPart_Total")
	highs, ok2 := g.Attr("NumPart_Total_HighWord")
	lowsI, ok3 := lows.([]int64)
	highsI, ok4 := highs.([]int64)
	if !ok1 || !ok2 || !ok3 || !ok4 || len(lowsI) != len(highsI) {
		s_error.External("The snapshot %s has missing or malformed "+
			"NumPart_Total header attributes.", in.Fname)
	}
	hd.NumTotal = make([]int64, len(lowsI))
	for i := range lowsI {
		hd.NumTotal[i] = joinTotal(lowsI[i], highsI[i])
	}
	return hd
}

// readSlices is one rank's turn at the file: open, read its slice of every
// stored field in every category, close, and assemble the shards.
func readSlices(c comm.Comm, in *Input, hd *Header, shards []*part.Shard) {
	f, err := container.Open(in.Fname)
	if err != nil {
		s_error.External("Could not open the snapshot file %s: %s",
			in.Fname, err.Error())
	}
	defer f.Close()

	for ci, category := range in.Categories {
		offset, count := Partition(hd.NumTotal[ci], c.Size(), c.Rank())
		loaded := map[string]interface{}{}

		for fi := range in.Fields[ci] {
			d := &in.Fields[ci][fi]
			if d.Derive != nil {
				continue
			}

			ds, ok := f.Dataset(category, d.Name)
			if !ok {
				if d.Compulsory {
					s_error.External("The snapshot %s does not store the "+
						"compulsory field %s/%s. It can't describe a valid "+
						"particle set without it.", in.Fname, category, d.Name)
				}
				// Optional absent fields default to zero.
				loaded[d.Name] = field.Alloc(d.Type, int(count))
				continue
			}
			if ds.Type() != d.Type {
				s_error.External("The field %s/%s in %s stores %s records, "+
					"but it is declared as %s.", category, d.Name, in.Fname,
					ds.Type(), d.Type)
			}

			x := field.Alloc(d.Type, int(count))
			if err := ds.ReadRange(x, offset); err != nil {
				s_error.External("Could not read this rank's slice of %s/%s "+
					"from %s: %s", category, d.Name, in.Fname, err.Error())
			}
			field.Convert(x, fileFactor(f, in, ds, d))
			loaded[d.Name] = x
		}

		shards[ci] = assembleShard(in.Fname, category, loaded, int(count))
	}
}

// fileFactor computes the factor converting a stored field to internal units,
// from the unit system recorded in the file itself. Files written with other
// unit conventions convert transparently.
func fileFactor(
	f *container.File, in *Input, ds *container.Dataset, d *field.Descriptor,
) float64 {
	fileUnits, ok := readUnitSystem(f)
	if !ok {
		s_error.External("The snapshot %s has no Units group, so its "+
			"fields can't be converted to internal units.", in.Fname)
	}

	// Sanity-check the stored exponents against the declared ones. A
	// mismatch means the descriptor and the file disagree about what the
	// field even is.
	for q := 0; q < units.NumBase; q++ {
		name := units.BaseName(q) + " exponent"
		if v, ok := ds.Attr(name); ok {
			if exp, ok := v.(float32); ok && exp != d.Units[q] {
				s_error.External("The field %s/%s in %s was written with "+
					"%s = %g, but it is declared with exponent %g.",
					ds.Group, ds.Name, in.Fname, name, exp, d.Units[q])
			}
		}
	}

	return units.Factor(fileUnits, in.InternalUnits, d.Units)
}

func readUnitSystem(f *container.File) (units.System, bool) {
	g, ok := f.Group("Units")
	if !ok {
		return units.System{}, false
	}

	sys := units.System{}
	attrs := []struct {
		name string
		dst  *float64
	}{
		{"Unit mass in cgs (U_M)", &sys.Mass},
		{"Unit length in cgs (U_L)", &sys.Length},
		{"Unit time in cgs (U_t)", &sys.Time},
		{"Unit current in cgs (U_I)", &sys.Current},
		{"Unit temperature in cgs (U_T)", &sys.Temperature},
	}
	for _, a := range attrs {
		v, ok := g.AttrFloat64(a.name)
		if !ok {
			return units.System{}, false
		}
		*a.dst = v
	}
	return sys, true
}

func assembleShard(
	fname, category string, loaded map[string]interface{}, count int,
) *part.Shard {
	x, ok1 := loaded[part.CoordinatesField].([][3]float64)
	h, ok2 := loaded[part.SmoothingLengthsField].([]float32)
	if !ok1 || !ok2 {
		s_error.External("Reading the category %s from %s did not produce "+
			"both %s and %s. Every category's field list must declare both "+
			"with their standard types.", category, fname,
			part.CoordinatesField, part.SmoothingLengthsField)
	}

	sh, err := part.New(x, h)
	if err != nil {
		s_error.Internal("Could not assemble a shard of %d particles from "+
			"%s: %s", count, fname, err.Error())
	}
	for name, data := range loaded {
		if name == part.CoordinatesField ||
			name == part.SmoothingLengthsField {
			continue
		}
		if err := sh.AddField(name, data); err != nil {
			s_error.Internal("Could not register the field '%s' read from "+
				"%s: %s", name, fname, err.Error())
		}
	}
	return sh
}
