/*package los draws random sightlines through the simulation volume and
extracts the particles whose smoothing kernels they intersect.

A sightline is an axis-aligned line through the full depth of the box,
identified by the two coordinates of its piercing point. Sightlines come in
three families named after the plane the piercing point lives in: XY lines
run along z, YZ lines along x, and XZ lines along y. The coordinating rank
draws every piercing point and broadcasts the full set, so all ranks filter
against identical lines.

Extraction against one rank's shard is two-phase. Count scans the shard and
returns how many particles intersect the line; the counts are exchanged so
every rank knows the global total and its own slot in the output. Select then
re-evaluates the same predicate to produce the matching indices. The two
passes must agree exactly; a mismatch means the shard was mutated mid-output
and the run aborts.
*/
package los

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	s_error "github.com/specter-sim/specter/lib/error"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/thread"
)

// KernelGamma converts a smoothing length h to the compact-support radius
// h*KernelGamma of the cubic-spline kernel in 3D. A particle intersects a
// sightline when the line passes within its support radius.
const KernelGamma = 1.825742

// Params configures sightline generation: how many lines to draw in each
// family and the coordinate ranges the piercing points are drawn from.
type Params struct {
	NumAlongXY, NumAlongYZ, NumAlongXZ int

	// Min and Max bound the allowed piercing-point coordinates along each
	// simulation axis.
	Min, Max [3]float64
}

// Num returns the total number of sightlines Params describes.
func (p *Params) Num() int {
	return p.NumAlongXY + p.NumAlongYZ + p.NumAlongXZ
}

// Line is one sightline. Xaxis and Yaxis are the simulation axes the piercing
// point (Xpos, Ypos) is expressed in, and Zaxis is the axis the line runs
// along. The box geometry travels with the line so the predicate is
// self-contained. All fields are fixed-width so a []Line can be broadcast
// byte-for-byte.
type Line struct {
	Xpos, Ypos                    float64
	Xaxis, Yaxis, Zaxis, Periodic int32
	Dim                           [3]float64
}

var lineSize = binary.Size(Line{})

// Generate draws every sightline Params describes, in family order XY, YZ,
// XZ. The same seed always yields the same lines. Only the coordinating rank
// calls this; everyone else receives the result by broadcast.
func Generate(p *Params, periodic bool, dim [3]float64, seed uint64) []Line {
	src := rand.NewSource(seed)
	draw := func(axis int) float64 {
		return distuv.Uniform{
			Min: p.Min[axis], Max: p.Max[axis], Src: src,
		}.Rand()
	}

	per := int32(0)
	if periodic {
		per = 1
	}

	families := []struct {
		n                   int
		xaxis, yaxis, zaxis int32
	}{
		{p.NumAlongXY, 0, 1, 2},
		{p.NumAlongYZ, 1, 2, 0},
		{p.NumAlongXZ, 0, 2, 1},
	}

	lines := make([]Line, 0, p.Num())
	for _, fam := range families {
		for i := 0; i < fam.n; i++ {
			lines = append(lines, Line{
				Xpos: draw(int(fam.xaxis)), Ypos: draw(int(fam.yaxis)),
				Xaxis: fam.xaxis, Yaxis: fam.yaxis, Zaxis: fam.zaxis,
				Periodic: per, Dim: dim,
			})
		}
	}
	return lines
}

// encodeLines serializes a line set for broadcast.
func encodeLines(lines []Line) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, lines); err != nil {
		s_error.Internal("Could not encode sightlines: %s", err.Error())
	}
	return buf.Bytes()
}

// decodeLines inverts encodeLines.
func decodeLines(b []byte) []Line {
	if len(b)%lineSize != 0 {
		s_error.Internal("A broadcast sightline buffer is %d bytes long, "+
			"which is not a multiple of the %d-byte line size.",
			len(b), lineSize)
	}
	lines := make([]Line, len(b)/lineSize)
	if err := binary.Read(
		bytes.NewReader(b), binary.LittleEndian, lines,
	); err != nil {
		s_error.Internal("Could not decode sightlines: %s", err.Error())
	}
	return lines
}

// nearest folds a coordinate separation into the minimum-image convention:
// the result is the smallest-magnitude separation equivalent to dx modulo
// the box width, in (-width/2, width/2]. A separation of exactly half the
// box folds to +width/2. Non-periodic boxes return dx unchanged.
func nearest(dx, width float64, periodic bool) float64 {
	if !periodic {
		return dx
	}
	half := width / 2
	for dx > half {
		dx -= width
	}
	for dx <= -half {
		dx += width
	}
	return dx
}

// hit reports whether particle i of the shard intersects the line. The cheap
// per-axis rejections run before the exact radial test, and the order of the
// three tests is fixed so Count and Select agree bit-for-bit.
func (l *Line) hit(sh *part.Shard, i int) bool {
	if !sh.Valid[i] {
		return false
	}

	periodic := l.Periodic != 0
	r := float64(sh.H[i]) * KernelGamma

	dx := nearest(sh.X[i][l.Xaxis]-l.Xpos, l.Dim[l.Xaxis], periodic)
	if dx > r || -dx > r {
		return false
	}
	dy := nearest(sh.X[i][l.Yaxis]-l.Ypos, l.Dim[l.Yaxis], periodic)
	if dy > r || -dy > r {
		return false
	}
	return dx*dx+dy*dy <= r*r
}

// Count returns how many particles in the shard intersect the line. This is
// the first pass of the two-phase protocol: its result sizes the buffers and
// displacements of the gather before any particle data moves.
func (l *Line) Count(sh *part.Shard) int64 {
	n := int64(0)
	thread.Map(sh.Len(), func(worker, start, end int) {
		local := int64(0)
		for i := start; i < end; i++ {
			if l.hit(sh, i) {
				local++
			}
		}
		atomic.AddInt64(&n, local)
	})
	return n
}

// Select returns the indices of the particles that intersect the line, in
// ascending order. This is the second pass; its length must equal Count's
// result for an unchanged shard.
func (l *Line) Select(sh *part.Shard) []int {
	perWorker := make([][]int, thread.Workers())
	thread.Map(sh.Len(), func(worker, start, end int) {
		sel := []int{}
		for i := start; i < end; i++ {
			if l.hit(sh, i) {
				sel = append(sel, i)
			}
		}
		perWorker[worker] = sel
	})

	// Workers own ascending, disjoint ranges, so concatenation in worker
	// order is already sorted.
	sel := []int{}
	for _, s := range perWorker {
		sel = append(sel, s...)
	}
	return sel
}
