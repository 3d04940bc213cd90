package los

import (
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/specter-sim/specter/lib/comm"
	"github.com/specter-sim/specter/lib/container"
	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/units"
)

func overRanks(size int, f func(c comm.Comm)) {
	ranks := comm.NewGroup(size)
	wg := &sync.WaitGroup{}
	wg.Add(size)
	for _, c := range ranks {
		go func(c comm.Comm) {
			defer wg.Done()
			f(c)
		}(c)
	}
	wg.Wait()
}

func runFields() []field.Descriptor {
	return []field.Descriptor{
		{
			Name: part.CoordinatesField, Type: field.Vec64,
			Units: units.UnitLength, AExp: 1, Compulsory: true,
			Description: "positions",
		},
		{
			Name: part.SmoothingLengthsField, Type: field.Float32,
			Units: units.UnitLength, AExp: 1, Compulsory: true,
			Description: "smoothing lengths",
		},
		{
			Name: "ParticleIDs", Type: field.Uint64,
			Units: units.Dimensionless, Compulsory: true,
			Description: "ids",
		},
	}
}

func idShard(
	t *testing.T, x [][3]float64, h []float32, ids []uint64,
) *part.Shard {
	sh, err := part.New(x, h)
	if err != nil {
		t.Fatalf("Could not create a test shard: %s", err.Error())
	}
	if err := sh.AddField("ParticleIDs", ids); err != nil {
		t.Fatalf("Could not add ParticleIDs: %s", err.Error())
	}
	return sh
}

// lineFromGroup reconstructs the sightline a group was written for from its
// attributes.
func lineFromGroup(
	t *testing.T, g *container.Group, dim [3]float64,
) *Line {
	l := &Line{Periodic: 1, Dim: dim}

	axes := []struct {
		name string
		dst  *int32
	}{
		{"Xaxis", &l.Xaxis}, {"Yaxis", &l.Yaxis}, {"Zaxis", &l.Zaxis},
	}
	for _, a := range axes {
		v, ok := g.AttrInt64(a.name)
		if !ok {
			t.Fatalf("The group %s has no %s attribute.", g.Name, a.name)
		}
		*a.dst = int32(v)
	}

	pos := []struct {
		name string
		dst  *float64
	}{
		{"Xpos", &l.Xpos}, {"Ypos", &l.Ypos},
	}
	for _, p := range pos {
		v, ok := g.AttrFloat64(p.name)
		if !ok {
			t.Fatalf("The group %s has no %s attribute.", g.Name, p.name)
		}
		*p.dst = v
	}
	return l
}

// TestRunSingleRank extracts random sightlines from a random particle set on
// one rank and checks every written group against a brute-force rescan of
// the full set.
func TestRunSingleRank(t *testing.T) {
	box := 10.0
	dim := [3]float64{box, box, box}

	rng := rand.New(rand.NewSource(5))
	n := 1000
	x := make([][3]float64, n)
	h := make([]float32, n)
	ids := make([]uint64, n)
	for i := range x {
		for k := 0; k < 3; k++ {
			x[i][k] = rng.Float64() * box
		}
		h[i] = float32(0.1 + 0.5*rng.Float64())
		ids[i] = uint64(i)
	}
	sh := idShard(t, x, h, ids)

	out := &Output{
		Params: Params{
			NumAlongXY: 2, NumAlongYZ: 1, NumAlongXZ: 1,
			Min: [3]float64{0, 0, 0}, Max: dim,
		},
		Basename: filepath.Join(t.TempDir(), "los"),
		Seed:     11,
		Periodic: true, Dim: dim,
		Time: 1, ScaleFactor: 1,
		InternalUnits: units.CGS(), FileUnits: units.CGS(),
		Fields: runFields(),
	}

	overRanks(1, func(c comm.Comm) { Run(c, sh, out) })

	f, err := container.Open(out.Fname())
	if err != nil {
		t.Fatalf("Could not open the output file: %s", err.Error())
	}
	defer f.Close()

	losGroups := 0
	for _, name := range f.GroupNames() {
		if !strings.HasPrefix(name, "LOS_") {
			continue
		}
		losGroups++
		g, _ := f.Group(name)
		l := lineFromGroup(t, g, dim)

		// Brute-force rescan of the full particle set.
		expIDs := []uint64{}
		for i := range x {
			if l.hit(sh, i) {
				expIDs = append(expIDs, ids[i])
			}
		}

		numParts, ok := g.AttrInt64("NumParts")
		if !ok || numParts != int64(len(expIDs)) {
			t.Errorf("The group %s records NumParts = %d, %v; a rescan "+
				"finds %d.", name, numParts, ok, len(expIDs))
		}

		ds, ok := f.Dataset(name, "ParticleIDs")
		if !ok {
			t.Fatalf("The group %s has no ParticleIDs dataset.", name)
		}
		got := make([]uint64, ds.Rows())
		if err := ds.ReadRange(got, 0); err != nil {
			t.Fatalf("Could not read %s/ParticleIDs: %s", name, err.Error())
		}
		if len(got) != len(expIDs) {
			t.Fatalf("The group %s stores %d particles; a rescan finds %d.",
				name, len(got), len(expIDs))
		}
		for i := range got {
			if got[i] != expIDs[i] {
				t.Errorf("The group %s stores particle %d as ID %d; a "+
					"rescan finds ID %d.", name, i, got[i], expIDs[i])
				break
			}
		}

		if _, ok := f.Dataset(name, part.CoordinatesField); !ok {
			t.Errorf("The group %s has no %s dataset.",
				name, part.CoordinatesField)
		}
	}

	if losGroups == 0 {
		t.Errorf("No sightline in the output intersected any particles. " +
			"With these smoothing lengths that should be effectively " +
			"impossible.")
	}
}

// TestRunTwoRanks pins a sightline to a known piercing point, splits the
// particles over two ranks, and checks that the output is the concatenation
// of rank 0's matches followed by rank 1's.
func TestRunTwoRanks(t *testing.T) {
	box := 10.0
	dim := [3]float64{box, box, box}

	shards := []*part.Shard{
		idShard(t,
			[][3]float64{{5, 5, 1}, {8, 8, 4}, {5.2, 4.9, 7}},
			[]float32{0.5, 0.5, 0.5},
			[]uint64{0, 1, 2}),
		idShard(t,
			[][3]float64{{1, 1, 2}, {4.8, 5.1, 3}},
			[]float32{0.4, 0.4},
			[]uint64{100, 101}),
	}

	// A degenerate allowed range pins the piercing point at (5, 5).
	out := &Output{
		Params: Params{
			NumAlongXY: 1,
			Min:        [3]float64{5, 5, 0}, Max: [3]float64{5, 5, 0},
		},
		Basename: filepath.Join(t.TempDir(), "los"),
		Seed:     1,
		Periodic: true, Dim: dim,
		ScaleFactor: 1,
		InternalUnits: units.CGS(), FileUnits: units.CGS(),
		Fields: runFields(),
	}

	overRanks(2, func(c comm.Comm) { Run(c, shards[c.Rank()], out) })

	f, err := container.Open(out.Fname())
	if err != nil {
		t.Fatalf("Could not open the output file: %s", err.Error())
	}
	defer f.Close()

	ds, ok := f.Dataset("LOS_0000", "ParticleIDs")
	if !ok {
		t.Fatalf("The output has no LOS_0000/ParticleIDs dataset.")
	}
	got := make([]uint64, ds.Rows())
	if err := ds.ReadRange(got, 0); err != nil {
		t.Fatalf("Could not read the IDs: %s", err.Error())
	}

	// Rank 0's matches in index order, then rank 1's.
	exp := []uint64{0, 2, 101}
	if len(got) != len(exp) {
		t.Fatalf("The sightline stores the IDs %v; expected %v.", got, exp)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("The sightline stores the IDs %v; expected %v. "+
				"Particles must land in rank order, ascending within a "+
				"rank.", got, exp)
			break
		}
	}
}

// TestRunTwoRanksLarge pins a sightline through 100,000 randomly placed
// particles split over two ranks and checks the gathered output against a
// brute-force rescan of each rank's shard. The volume is large enough that
// the counting path runs threaded over many index chunks, and the small
// chunk size forces the output dataset through several compressed chunks.
func TestRunTwoRanksLarge(t *testing.T) {
	box := 10.0
	dim := [3]float64{box, box, box}
	perRank := 50_000

	rng := rand.New(rand.NewSource(8))
	shards := make([]*part.Shard, 2)
	rankIDs := make([][]uint64, 2)
	for r := range shards {
		x := make([][3]float64, perRank)
		h := make([]float32, perRank)
		ids := make([]uint64, perRank)
		for i := range x {
			for k := 0; k < 3; k++ {
				x[i][k] = rng.Float64() * box
			}
			h[i] = float32(0.05 + 0.2*rng.Float64())
			ids[i] = uint64(r*perRank + i)
		}
		shards[r] = idShard(t, x, h, ids)
		rankIDs[r] = ids
	}

	out := &Output{
		Params: Params{
			NumAlongXY: 1,
			Min:        [3]float64{5, 5, 0}, Max: [3]float64{5, 5, 0},
		},
		Basename: filepath.Join(t.TempDir(), "los"),
		Seed:     1,
		Periodic: true, Dim: dim,
		ScaleFactor:   1,
		InternalUnits: units.CGS(), FileUnits: units.CGS(),
		Fields:    runFields(),
		ChunkRows: 64,
	}

	overRanks(2, func(c comm.Comm) { Run(c, shards[c.Rank()], out) })

	// Brute-force reference: rank 0's matches in index order, then rank 1's.
	l := &Line{
		Xpos: 5, Ypos: 5, Xaxis: 0, Yaxis: 1, Zaxis: 2,
		Periodic: 1, Dim: dim,
	}
	expIDs := []uint64{}
	for r := range shards {
		for i := 0; i < shards[r].Len(); i++ {
			if l.hit(shards[r], i) {
				expIDs = append(expIDs, rankIDs[r][i])
			}
		}
	}
	if len(expIDs) == 0 {
		t.Fatalf("The reference filter matched nothing; the test particle " +
			"set is broken.")
	}

	f, err := container.Open(out.Fname())
	if err != nil {
		t.Fatalf("Could not open the output file: %s", err.Error())
	}
	defer f.Close()

	g, ok := f.Group("LOS_0000")
	if !ok {
		t.Fatalf("The output has no LOS_0000 group.")
	}
	numParts, ok := g.AttrInt64("NumParts")
	if !ok || numParts != int64(len(expIDs)) {
		t.Errorf("The sightline records NumParts = %d, %v; a rescan finds "+
			"%d.", numParts, ok, len(expIDs))
	}

	ds, ok := f.Dataset("LOS_0000", "ParticleIDs")
	if !ok {
		t.Fatalf("The output has no LOS_0000/ParticleIDs dataset.")
	}
	got := make([]uint64, ds.Rows())
	if err := ds.ReadRange(got, 0); err != nil {
		t.Fatalf("Could not read the IDs: %s", err.Error())
	}
	if len(got) != len(expIDs) {
		t.Fatalf("The sightline stores %d particles; a rescan finds %d.",
			len(got), len(expIDs))
	}
	for i := range got {
		if got[i] != expIDs[i] {
			t.Errorf("Particle %d in the gathered buffer has ID %d; the "+
				"rescan expects %d. Particles must land in rank order, "+
				"ascending within a rank.", i, got[i], expIDs[i])
			break
		}
	}
}

// TestRunEmptyLine checks that a sightline intersecting nothing produces no
// group but still leaves a well-formed file.
func TestRunEmptyLine(t *testing.T) {
	dim := [3]float64{10, 10, 10}
	sh := idShard(t,
		[][3]float64{{5, 5, 5}}, []float32{0.01}, []uint64{0})

	out := &Output{
		Params: Params{
			NumAlongXY: 1,
			Min:        [3]float64{0, 0, 0}, Max: [3]float64{0, 0, 0},
		},
		Basename: filepath.Join(t.TempDir(), "los"),
		Seed:     1,
		Periodic: true, Dim: dim,
		ScaleFactor: 1,
		InternalUnits: units.CGS(), FileUnits: units.CGS(),
		Fields: runFields(),
	}

	overRanks(1, func(c comm.Comm) { Run(c, sh, out) })

	f, err := container.Open(out.Fname())
	if err != nil {
		t.Fatalf("Could not open the output file: %s", err.Error())
	}
	defer f.Close()

	if _, ok := f.Group("LOS_0000"); ok {
		t.Errorf("An empty sightline still produced a group.")
	}

	hd, ok := f.Group("Header")
	if !ok {
		t.Fatalf("The output has no Header group.")
	}
	total, ok := hd.AttrInt64("TotalPartsInAllSightlines")
	if !ok || total != 0 {
		t.Errorf("TotalPartsInAllSightlines = %d, %v; expected 0.",
			total, ok)
	}
	if _, ok := f.Group("LineOfSightParameters"); !ok {
		t.Errorf("The output has no LineOfSightParameters group.")
	}
}
