package los

import (
	"math/rand"
	"testing"

	"github.com/specter-sim/specter/lib/part"
)

func TestNearest(t *testing.T) {
	tests := []struct {
		dx, width float64
		periodic  bool
		exp       float64
	}{
		{1, 10, true, 1},
		{-1, 10, true, -1},
		{6, 10, true, -4},
		{-6, 10, true, 4},
		{5, 10, true, 5},
		{-5, 10, true, 5},
		{-15, 10, true, 5},
		{16, 10, true, -4},
		{9, 10, false, 9},
		{-9, 10, false, -9},
	}

	for i := range tests {
		got := nearest(tests[i].dx, tests[i].width, tests[i].periodic)
		if got != tests[i].exp {
			t.Errorf("%d) nearest(%g, %g, %v) = %g; expected %g.",
				i, tests[i].dx, tests[i].width, tests[i].periodic,
				got, tests[i].exp)
		}
	}
}

func singleShard(t *testing.T, x [][3]float64, h []float32) *part.Shard {
	sh, err := part.New(x, h)
	if err != nil {
		t.Fatalf("Could not create a test shard: %s", err.Error())
	}
	return sh
}

func TestHit(t *testing.T) {
	// An XY line at (5, 5) through a periodic 10^3 box.
	l := &Line{
		Xpos: 5, Ypos: 5, Xaxis: 0, Yaxis: 1, Zaxis: 2,
		Periodic: 1, Dim: [3]float64{10, 10, 10},
	}

	h := float32(0.1)
	r := float64(h) * KernelGamma

	x := [][3]float64{
		{5, 5, 3},            // on the line
		{5 + r, 5, 0},        // exactly at the support radius in x
		{5, 5 + r + 1e-9, 0}, // just past the support radius in y
		{5 + r*0.8, 5 + r*0.8, 0}, // inside per-axis, outside radially
		{5 + r*0.6, 5 + r*0.6, 0}, // inside radially
		{5 - 10 + 0.05, 5, 0},     // hits only through the periodic image
		{8, 8, 0},                 // nowhere near
	}
	exp := []bool{true, true, false, false, true, true, false}

	hs := make([]float32, len(x))
	for i := range hs {
		hs[i] = h
	}
	sh := singleShard(t, x, hs)

	for i := range x {
		if got := l.hit(sh, i); got != exp[i] {
			t.Errorf("%d) hit on the particle at %v = %v; expected %v.",
				i, x[i], got, exp[i])
		}
	}

	// Inhibited particles never match, even on the line.
	sh.Inhibit(0)
	if l.hit(sh, 0) {
		t.Errorf("An inhibited particle on the line matched.")
	}

	// Without periodicity, the wrapped particle stops matching.
	l.Periodic = 0
	if l.hit(sh, 5) {
		t.Errorf("A particle matched through a periodic image of a " +
			"non-periodic box.")
	}
}

func TestGenerate(t *testing.T) {
	p := &Params{
		NumAlongXY: 3, NumAlongYZ: 2, NumAlongXZ: 1,
		Min: [3]float64{0, 1, 2}, Max: [3]float64{4, 5, 6},
	}
	dim := [3]float64{10, 20, 30}

	lines := Generate(p, true, dim, 42)
	if len(lines) != p.Num() {
		t.Fatalf("Generate returned %d lines; expected %d.",
			len(lines), p.Num())
	}

	expAxes := [][3]int32{
		{0, 1, 2}, {0, 1, 2}, {0, 1, 2}, {1, 2, 0}, {1, 2, 0}, {0, 2, 1},
	}
	for i := range lines {
		l := &lines[i]
		if l.Xaxis != expAxes[i][0] || l.Yaxis != expAxes[i][1] ||
			l.Zaxis != expAxes[i][2] {
			t.Errorf("Line %d has axes (%d, %d, %d); expected (%d, %d, %d).",
				i, l.Xaxis, l.Yaxis, l.Zaxis,
				expAxes[i][0], expAxes[i][1], expAxes[i][2])
		}
		if l.Xpos < p.Min[l.Xaxis] || l.Xpos > p.Max[l.Xaxis] ||
			l.Ypos < p.Min[l.Yaxis] || l.Ypos > p.Max[l.Yaxis] {
			t.Errorf("Line %d pierces at (%g, %g), outside the allowed "+
				"ranges.", i, l.Xpos, l.Ypos)
		}
		if l.Periodic != 1 || l.Dim != dim {
			t.Errorf("Line %d carries the box geometry %v, %d.",
				i, l.Dim, l.Periodic)
		}
	}

	// The same seed must give bit-identical lines; a different seed must
	// not.
	again := Generate(p, true, dim, 42)
	for i := range lines {
		if lines[i] != again[i] {
			t.Errorf("Seed 42 generated line %d differently twice.", i)
		}
	}
	other := Generate(p, true, dim, 43)
	same := true
	for i := range lines {
		if lines[i] != other[i] {
			same = false
		}
	}
	if same {
		t.Errorf("Seeds 42 and 43 generated identical line sets.")
	}
}

func TestEncodeDecodeLines(t *testing.T) {
	p := &Params{
		NumAlongXY: 2, NumAlongYZ: 1, NumAlongXZ: 2,
		Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1},
	}
	lines := Generate(p, false, [3]float64{1, 1, 1}, 7)

	got := decodeLines(encodeLines(lines))
	if len(got) != len(lines) {
		t.Fatalf("Decoding gave %d lines; expected %d.",
			len(got), len(lines))
	}
	for i := range lines {
		if got[i] != lines[i] {
			t.Errorf("Line %d decoded as %+v; expected %+v.",
				i, got[i], lines[i])
		}
	}
}

// randomShard fills a box with uniform random particles.
func randomShard(t *testing.T, n int, box float64, seed int64) *part.Shard {
	rng := rand.New(rand.NewSource(seed))
	x := make([][3]float64, n)
	h := make([]float32, n)
	for i := range x {
		for k := 0; k < 3; k++ {
			x[i][k] = rng.Float64() * box
		}
		h[i] = float32(0.05 + 0.4*rng.Float64())
	}
	return singleShard(t, x, h)
}

func TestCountSelectAgree(t *testing.T) {
	box := 10.0
	sh := randomShard(t, 2000, box, 1)
	sh.Inhibit(17)
	sh.Inhibit(1234)

	p := &Params{
		NumAlongXY: 3, NumAlongYZ: 3, NumAlongXZ: 3,
		Min: [3]float64{0, 0, 0}, Max: [3]float64{box, box, box},
	}
	lines := Generate(p, true, [3]float64{box, box, box}, 99)

	for li := range lines {
		l := &lines[li]
		n := l.Count(sh)
		sel := l.Select(sh)

		if int64(len(sel)) != n {
			t.Errorf("Line %d counted %d particles but selected %d. The "+
				"two passes must agree on an unchanged shard.",
				li, n, len(sel))
		}
		for i := 1; i < len(sel); i++ {
			if sel[i] <= sel[i-1] {
				t.Errorf("Line %d selected indices out of order: sel[%d] = "+
					"%d, sel[%d] = %d.", li, i-1, sel[i-1], i, sel[i])
				break
			}
		}
		for _, i := range sel {
			if !l.hit(sh, i) {
				t.Errorf("Line %d selected particle %d, which it doesn't "+
					"intersect.", li, i)
			}
			if i == 17 || i == 1234 {
				t.Errorf("Line %d selected the inhibited particle %d.",
					li, i)
			}
		}
	}
}
