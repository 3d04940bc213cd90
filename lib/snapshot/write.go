package snapshot

/* write.go is the distributed snapshot writer. Rank 0 lays the file out in
full (header, groups, and raw datasets sized to the global counts), then the
ranks take turns appending their slices at the offsets Partition assigns
them. Raw datasets reserve their extent at creation, so a ranged write from
any rank lands without moving anything else. */

import (
	"fmt"

	"github.com/specter-sim/specter/lib/comm"
	"github.com/specter-sim/specter/lib/container"
	s_error "github.com/specter-sim/specter/lib/error"
	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/units"
)

// Fname returns the path of the file Write writes.
func (out *Output) Fname() string {
	return fmt.Sprintf("%s_%04d.spec", out.Basename, out.Counter)
}

// Write writes a snapshot of every category's distributed particles. It is
// collective: every rank of c must call it with the same Output and
// category/field structure, and with its own shards. The global particle
// counts in the written header are computed here, not taken from
// out.Header.NumTotal.
func Write(c comm.Comm, cats []Category, out *Output) {
	totals := make([]int64, len(cats))
	offsets := make([]int64, len(cats))
	for ci := range cats {
		counts := c.AllgatherInt64(int64(cats[ci].Shard.Len()))
		total, disps := comm.Displacements(counts)
		totals[ci] = total
		offsets[ci] = disps[c.Rank()]
	}

	if c.Rank() == 0 {
		layoutFile(cats, out, totals)
	}

	// Strictly serialized turns: rank r reopens the file, lands its slices,
	// and re-finalizes before rank r+1 starts.
	for turn := 0; turn < c.Size(); turn++ {
		if c.Rank() == turn {
			writeSlices(cats, out, offsets)
		}
		c.Barrier()
	}
}

// layoutFile creates the snapshot with its metadata and full-size datasets,
// before any particle data exists in it.
func layoutFile(cats []Category, out *Output, totals []int64) {
	f, err := container.Create(out.Fname())
	if err != nil {
		s_error.External("Could not create the snapshot file %s: %s",
			out.Fname(), err.Error())
	}

	writeHeaderGroup(f, cats, out, totals)

	err = container.WriteUnitSystem(f, "Units", out.FileUnits)
	if err == nil {
		err = container.WriteUnitSystem(
			f, "InternalCodeUnits", out.InternalUnits)
	}
	if err != nil {
		s_error.External("Could not write the unit-system groups to %s: %s",
			out.Fname(), err.Error())
	}

	for ci := range cats {
		cat := &cats[ci]
		if _, err := f.CreateGroup(cat.Name); err != nil {
			s_error.External("Could not create the group %s in %s: %s",
				cat.Name, out.Fname(), err.Error())
		}

		for fi := range cat.Fields {
			d := &cat.Fields[fi]
			if !out.selected(cat.Name, d.Name) {
				continue
			}

			ds, err := f.CreateDataset(
				cat.Name, d.Name, d.Type, totals[ci], container.Options{})
			if err != nil {
				s_error.External("Could not create the dataset %s/%s in "+
					"%s: %s", cat.Name, d.Name, out.Fname(), err.Error())
			}
			err = ds.SetUnitAttrs(d.Units, d.AExp, out.FileUnits,
				out.Header.ScaleFactor, d.Description)
			if err != nil {
				s_error.External("Could not annotate the dataset %s/%s in "+
					"%s: %s", cat.Name, d.Name, out.Fname(), err.Error())
			}
		}
	}

	if err := f.Close(); err != nil {
		s_error.External("Could not finalize the snapshot file %s: %s",
			out.Fname(), err.Error())
	}
}

func writeHeaderGroup(
	f *container.File, cats []Category, out *Output, totals []int64,
) {
	hd, err := f.CreateGroup("Header")
	if err != nil {
		s_error.External("Could not create the Header group in %s: %s",
			out.Fname(), err.Error())
	}

	names := make([]string, len(cats))
	lows := make([]int64, len(cats))
	highs := make([]int64, len(cats))
	for ci := range cats {
		names[ci] = cats[ci].Name
		lows[ci], highs[ci] = splitTotal(totals[ci])
	}

	attrs := []container.Attr{
		{Name: "BoxSize", Value: out.Header.BoxSize},
		{Name: "Periodic", Value: out.Header.Periodic},
		{Name: "Time", Value: out.Header.Time},
		{Name: "Redshift", Value: out.Header.Redshift},
		{Name: "Scale-factor", Value: out.Header.ScaleFactor},
		{Name: "Code", Value: "specter"},
		{Name: "NumFilesPerSnapshot", Value: int64(1)},
		{Name: "NumPart_Total", Value: lows},
		{Name: "NumPart_Total_HighWord", Value: highs},
	}
	for _, a := range attrs {
		if err := hd.SetAttr(a.Name, a.Value); err != nil {
			s_error.External("Could not write the header attribute '%s' to "+
				"%s: %s", a.Name, out.Fname(), err.Error())
		}
	}
	for ci, name := range names {
		attr := fmt.Sprintf("CategoryName_%d", ci)
		if err := hd.SetAttr(attr, name); err != nil {
			s_error.External("Could not write the header attribute '%s' to "+
				"%s: %s", attr, out.Fname(), err.Error())
		}
	}
}

// writeSlices is one rank's turn at the file: reopen, land every selected
// field's slice at this rank's offset, re-finalize.
func writeSlices(cats []Category, out *Output, offsets []int64) {
	f, err := container.Append(out.Fname())
	if err != nil {
		s_error.External("Could not reopen the snapshot file %s to write a "+
			"rank's slice: %s", out.Fname(), err.Error())
	}

	for ci := range cats {
		cat := &cats[ci]
		for fi := range cat.Fields {
			d := &cat.Fields[fi]
			if !out.selected(cat.Name, d.Name) {
				continue
			}

			x, err := d.Values(cat.Shard, nil)
			if err != nil {
				s_error.External("Could not produce the field '%s' of "+
					"category %s: %s", d.Name, cat.Name, err.Error())
			}
			factor := units.Factor(out.InternalUnits, out.FileUnits, d.Units)
			if factor != 1 && d.Derive == nil {
				// Stored fields alias the shard's arrays; converting the
				// shard itself would corrupt it for later outputs.
				x = field.Clone(x)
			}
			field.Convert(x, factor)

			ds, ok := f.Dataset(cat.Name, d.Name)
			if !ok {
				s_error.Internal("The dataset %s/%s disappeared from %s "+
					"between layout and writing.",
					cat.Name, d.Name, out.Fname())
			}
			if err := ds.WriteRange(x, offsets[ci]); err != nil {
				s_error.External("Could not write this rank's slice of "+
					"%s/%s to %s: %s",
					cat.Name, d.Name, out.Fname(), err.Error())
			}
		}
	}

	if err := f.Close(); err != nil {
		s_error.External("Could not re-finalize the snapshot file %s: %s",
			out.Fname(), err.Error())
	}
}
