package thread

import (
	"sync/atomic"
	"testing"
)

func TestChunks(t *testing.T) {
	tests := []struct{ n, k int }{
		{0, 4}, {1, 4}, {4, 4}, {5, 4}, {100, 7}, {3, 1}, {1000, 16},
	}

	for i := range tests {
		n, k := tests[i].n, tests[i].k
		starts, ends := Chunks(n, k)

		if n == 0 {
			if len(starts) != 0 {
				t.Errorf("%d) Chunks(0, %d) returned %d chunks.",
					i, k, len(starts))
			}
			continue
		}

		if starts[0] != 0 || ends[len(ends)-1] != n {
			t.Errorf("%d) Chunks(%d, %d) covers [%d, %d), not [0, %d).",
				i, n, k, starts[0], ends[len(ends)-1], n)
		}
		for j := 1; j < len(starts); j++ {
			if starts[j] != ends[j-1] {
				t.Errorf("%d) chunk %d starts at %d, but chunk %d ends at %d.",
					i, j, starts[j], j-1, ends[j-1])
			}
		}
		for j := range starts {
			size := ends[j] - starts[j]
			if size < n/len(starts) || size > n/len(starts)+1 {
				t.Errorf("%d) chunk %d of Chunks(%d, %d) has size %d.",
					i, j, n, k, size)
			}
		}
	}
}

func TestMap(t *testing.T) {
	n := 10_000
	sum := int64(0)
	Map(n, func(worker, start, end int) {
		local := int64(0)
		for i := start; i < end; i++ {
			local += int64(i)
		}
		atomic.AddInt64(&sum, local)
	})

	exp := int64(n) * int64(n-1) / 2
	if sum != exp {
		t.Errorf("Map summed [0, %d) to %d, but the sum is %d.", n, sum, exp)
	}
}
