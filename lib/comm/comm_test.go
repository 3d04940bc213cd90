package comm

import (
	"sync"
	"testing"

	"github.com/specter-sim/specter/lib/eq"
)

// overRanks runs f once per rank of a fresh in-process communicator and
// waits for every rank to finish.
func overRanks(size int, f func(c *Mem)) {
	ranks := NewGroup(size)
	wg := &sync.WaitGroup{}
	wg.Add(size)
	for _, c := range ranks {
		go func(c *Mem) {
			defer wg.Done()
			f(c)
		}(c)
	}
	wg.Wait()
}

func TestDisplacements(t *testing.T) {
	counts := []int64{3, 0, 5, 1}
	total, disps := Displacements(counts)

	if total != 9 {
		t.Errorf("Displacements(%v) gave total = %d.", counts, total)
	}
	if disps[0] != 0 {
		t.Errorf("disps[0] = %d; the first rank's offset must be 0.",
			disps[0])
	}
	for r := 1; r < len(counts); r++ {
		if disps[r]-disps[r-1] != counts[r-1] {
			t.Errorf("disps[%d] - disps[%d] = %d, but counts[%d] = %d.",
				r, r-1, disps[r]-disps[r-1], r-1, counts[r-1])
		}
	}
	if disps[len(disps)-1]+counts[len(counts)-1] != total {
		t.Errorf("The last rank's range ends at %d, but the total is %d.",
			disps[len(disps)-1]+counts[len(counts)-1], total)
	}
}

func TestRankSize(t *testing.T) {
	seen := make([]bool, 3)
	mu := &sync.Mutex{}

	overRanks(3, func(c *Mem) {
		if c.Size() != 3 {
			t.Errorf("Size() = %d on a 3-rank communicator.", c.Size())
		}
		mu.Lock()
		seen[c.Rank()] = true
		mu.Unlock()
	})

	for r := range seen {
		if !seen[r] {
			t.Errorf("No handle reported rank %d.", r)
		}
	}
}

func TestBcast(t *testing.T) {
	overRanks(4, func(c *Mem) {
		buf := make([]byte, 3)
		if c.Rank() == 1 {
			copy(buf, []byte{7, 8, 9})
		}
		c.Bcast(buf, 1)
		if !eq.Bytes(buf, []byte{7, 8, 9}) {
			t.Errorf("Rank %d received %v from Bcast.", c.Rank(), buf)
		}
	})
}

func TestBcastBytes(t *testing.T) {
	overRanks(3, func(c *Mem) {
		var b []byte
		if c.Rank() == 0 {
			b = []byte{1, 2, 3, 4, 5}
		}
		got := BcastBytes(c, b, 0)
		if !eq.Bytes(got, []byte{1, 2, 3, 4, 5}) {
			t.Errorf("Rank %d received %v from BcastBytes.", c.Rank(), got)
		}
	})
}

func TestAllgatherInt64(t *testing.T) {
	overRanks(4, func(c *Mem) {
		got := c.AllgatherInt64(int64(10 * c.Rank()))
		if !eq.Int64s(got, []int64{0, 10, 20, 30}) {
			t.Errorf("Rank %d received %v from AllgatherInt64.",
				c.Rank(), got)
		}
	})
}

func TestGatherv(t *testing.T) {
	counts := []int64{2, 0, 3}
	overRanks(3, func(c *Mem) {
		send := make([]byte, counts[c.Rank()])
		for i := range send {
			send[i] = byte(10*c.Rank() + i)
		}

		recv := c.Gatherv(send, counts, 0)
		if c.Rank() != 0 {
			if recv != nil {
				t.Errorf("Rank %d received a non-nil Gatherv buffer.",
					c.Rank())
			}
			return
		}

		exp := []byte{0, 1, 20, 21, 22}
		if !eq.Bytes(recv, exp) {
			t.Errorf("The root received %v from Gatherv; expected %v. "+
				"Contributions must land in rank order.", recv, exp)
		}
	})
}

// TestCollectiveSequence runs several collectives back to back on the same
// communicator to check that the barrier is reusable.
func TestCollectiveSequence(t *testing.T) {
	overRanks(3, func(c *Mem) {
		for iter := 0; iter < 10; iter++ {
			counts := c.AllgatherInt64(int64(c.Rank() + iter))
			exp := []int64{
				int64(iter), int64(iter + 1), int64(iter + 2),
			}
			if !eq.Int64s(counts, exp) {
				t.Errorf("Iteration %d on rank %d gave %v; expected %v.",
					iter, c.Rank(), counts, exp)
			}
			c.Barrier()
		}
	})
}
