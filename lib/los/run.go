package los

/* run.go is the distributed extraction pipeline: generate and broadcast the
sightlines, then for each line run the two-phase count/select protocol, gather
the selected particle data on the coordinating rank, and write it out. Only
rank 0 touches the output file; every other rank just feeds the gathers. */

import (
	"fmt"
	"log"

	"github.com/specter-sim/specter/lib/comm"
	"github.com/specter-sim/specter/lib/container"
	s_error "github.com/specter-sim/specter/lib/error"
	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/units"
)

// Output configures one sightline extraction: the line parameters, the box
// and cosmology state, the fields to write, and where to write them.
type Output struct {
	Params Params
	// Basename and Counter name the output file
	// "<Basename>_<Counter padded to 4 digits>.spec".
	Basename string
	Counter  int
	Seed     uint64

	Periodic                    bool
	Dim                         [3]float64
	Time, Redshift, ScaleFactor float64

	// InternalUnits is the system particle data is held in; FileUnits is the
	// system it is written in.
	InternalUnits, FileUnits units.System

	// Fields lists every candidate output field. Select, if non-nil, turns
	// individual fields off by name; a nil Select writes them all.
	Fields []field.Descriptor
	Select func(name string) bool

	// Compression and ChunkRows configure the output datasets. Compression
	// <= 0 falls back to zstd level 1; sightline data is always chunked.
	Compression int
	ChunkRows   int64
}

// Fname returns the path of the file Run writes.
func (out *Output) Fname() string {
	return fmt.Sprintf("%s_%04d.spec", out.Basename, out.Counter)
}

func (out *Output) selected(name string) bool {
	return out.Select == nil || out.Select(name)
}

// Run extracts every sightline Output describes from the distributed particle
// set and writes the result. It is collective: every rank of c must call it
// with the same Output and its own shard. Errors are fatal; partial sightline
// files are never left behind as apparent successes because an unfinalized
// file is unreadable.
func Run(c comm.Comm, sh *part.Shard, out *Output) {
	lines := bcastLines(c, out)

	level := out.Compression
	if level <= 0 {
		level = 1
	}
	opt := container.Options{Compression: level, ChunkRows: out.ChunkRows}

	var f *container.File
	if c.Rank() == 0 {
		var err error
		if f, err = container.Create(out.Fname()); err != nil {
			s_error.External("Could not create the sightline file %s: %s",
				out.Fname(), err.Error())
		}
	}

	totalParts := int64(0)
	for li := range lines {
		l := &lines[li]

		counts := c.AllgatherInt64(l.Count(sh))
		total, _ := comm.Displacements(counts)
		if total == 0 {
			if c.Rank() == 0 {
				log.Printf("Sightline %d at (%g, %g) in the (%d, %d) plane "+
					"intersects no particles and will be skipped.",
					li, l.Xpos, l.Ypos, l.Xaxis, l.Yaxis)
			}
			continue
		}
		totalParts += total

		sel := l.Select(sh)
		if int64(len(sel)) != counts[c.Rank()] {
			s_error.Internal("Sightline %d matched %d particles when counted "+
				"but %d when selected on rank %d. The particle shard was "+
				"modified between the two passes.",
				li, counts[c.Rank()], len(sel), c.Rank())
		}

		group := fmt.Sprintf("LOS_%04d", li)
		if c.Rank() == 0 {
			writeLineGroup(f, group, l, total)
		}

		for fi := range out.Fields {
			d := &out.Fields[fi]
			if !out.selected(d.Name) {
				continue
			}

			x, err := d.Values(sh, sel)
			if err != nil {
				s_error.External("Could not produce the field '%s' for "+
					"sightline %d: %s", d.Name, li, err.Error())
			}

			elemSize := int64(d.Type.Size())
			byteCounts := make([]int64, len(counts))
			for r := range counts {
				byteCounts[r] = counts[r] * elemSize
			}
			recv := c.Gatherv(field.Pack(x), byteCounts, 0)

			if c.Rank() == 0 {
				writeLineField(f, group, d, recv, total, out, opt)
			}
		}
	}

	if c.Rank() == 0 {
		writeMetadata(f, out, totalParts)
		if err := f.Close(); err != nil {
			s_error.External("Could not finalize the sightline file %s: %s",
				out.Fname(), err.Error())
		}
	}
	c.Barrier()
}

// bcastLines has rank 0 draw the sightlines and sends them to everyone, so
// all ranks filter against bit-identical lines.
func bcastLines(c comm.Comm, out *Output) []Line {
	var b []byte
	if c.Rank() == 0 {
		b = encodeLines(Generate(&out.Params, out.Periodic, out.Dim, out.Seed))
	}
	return decodeLines(comm.BcastBytes(c, b, 0))
}

func writeLineGroup(f *container.File, group string, l *Line, total int64) {
	g, err := f.CreateGroup(group)
	if err != nil {
		s_error.External("Could not create the sightline group %s: %s",
			group, err.Error())
	}

	attrs := []container.Attr{
		{Name: "NumParts", Value: total},
		{Name: "Xaxis", Value: int64(l.Xaxis)},
		{Name: "Yaxis", Value: int64(l.Yaxis)},
		{Name: "Zaxis", Value: int64(l.Zaxis)},
		{Name: "Xpos", Value: l.Xpos},
		{Name: "Ypos", Value: l.Ypos},
	}
	for _, a := range attrs {
		if err := g.SetAttr(a.Name, a.Value); err != nil {
			s_error.External("Could not annotate the sightline group %s: %s",
				group, err.Error())
		}
	}
}

// writeLineField lands one gathered field on disk, converting it from
// internal to file units on the way.
func writeLineField(
	f *container.File, group string, d *field.Descriptor, recv []byte,
	total int64, out *Output, opt container.Options,
) {
	x, err := field.Unpack(recv, d.Type)
	if err != nil {
		s_error.Internal("The gathered field '%s' is malformed: %s",
			d.Name, err.Error())
	}
	field.Convert(x, units.Factor(out.InternalUnits, out.FileUnits, d.Units))

	ds, err := f.CreateDataset(group, d.Name, d.Type, total, opt)
	if err != nil {
		s_error.External("Could not create the dataset %s/%s: %s",
			group, d.Name, err.Error())
	}
	if err := ds.WriteAll(x); err != nil {
		s_error.External("Could not write the dataset %s/%s: %s",
			group, d.Name, err.Error())
	}
	err = ds.SetUnitAttrs(
		d.Units, d.AExp, out.FileUnits, out.ScaleFactor, d.Description)
	if err != nil {
		s_error.External("Could not annotate the dataset %s/%s: %s",
			group, d.Name, err.Error())
	}
}

// writeMetadata records the run-level groups: the simulation header, the
// sightline parameters, and the two unit systems.
func writeMetadata(f *container.File, out *Output, totalParts int64) {
	set := func(g *container.Group, name string, value interface{}) {
		if err := g.SetAttr(name, value); err != nil {
			s_error.External("Could not write the header attribute '%s' to "+
				"%s: %s", name, out.Fname(), err.Error())
		}
	}

	hd, err := f.CreateGroup("Header")
	if err != nil {
		s_error.External("Could not create the Header group in %s: %s",
			out.Fname(), err.Error())
	}
	set(hd, "BoxSize", out.Dim)
	set(hd, "Periodic", out.Periodic)
	set(hd, "Time", out.Time)
	set(hd, "Redshift", out.Redshift)
	set(hd, "Scale-factor", out.ScaleFactor)
	set(hd, "Code", "specter")
	set(hd, "TotalPartsInAllSightlines", totalParts)

	p, err := f.CreateGroup("LineOfSightParameters")
	if err != nil {
		s_error.External("Could not create the LineOfSightParameters group "+
			"in %s: %s", out.Fname(), err.Error())
	}
	set(p, "NumLineOfSight", out.Params.Num())
	set(p, "NumAlongXY", out.Params.NumAlongXY)
	set(p, "NumAlongYZ", out.Params.NumAlongYZ)
	set(p, "NumAlongXZ", out.Params.NumAlongXZ)
	set(p, "AllowedLOSRangeMin", out.Params.Min)
	set(p, "AllowedLOSRangeMax", out.Params.Max)
	set(p, "Seed", int64(out.Seed))

	err = container.WriteUnitSystem(f, "Units", out.FileUnits)
	if err == nil {
		err = container.WriteUnitSystem(
			f, "InternalCodeUnits", out.InternalUnits)
	}
	if err != nil {
		s_error.External("Could not write the unit-system groups to %s: %s",
			out.Fname(), err.Error())
	}
}
