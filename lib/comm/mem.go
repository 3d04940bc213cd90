package comm

/* mem.go implements the Comm interface for ranks that live in one process as
goroutines. It exists for tests and single-node runs; on a cluster the same
interface would sit over an MPI binding. The implementation leans on a single
reusable barrier: each collective is "everyone posts into a shared slot
array, barrier, everyone reads, barrier", which is easy to convince yourself
is deadlock-free as long as callers keep the collective-ordering contract.
*/

import (
	"sync"

	s_error "github.com/specter-sim/specter/lib/error"
)

// group is the state shared by every rank of an in-process communicator.
type group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	phase   int64

	slots [][]byte
}

// Mem is one rank's handle on an in-process communicator. Each Mem must be
// used by exactly one goroutine.
type Mem struct {
	g    *group
	rank int
}

// NewGroup creates an in-process communicator with the given number of ranks
// and returns one handle per rank.
func NewGroup(size int) []*Mem {
	if size < 1 {
		s_error.Internal("NewGroup called with %d ranks.", size)
	}

	g := &group{size: size, slots: make([][]byte, size)}
	g.cond = sync.NewCond(&g.mu)

	ranks := make([]*Mem, size)
	for r := range ranks {
		ranks[r] = &Mem{g, r}
	}
	return ranks
}

func (c *Mem) Rank() int { return c.rank }
func (c *Mem) Size() int { return c.g.size }

// barrier blocks until all ranks of the group have entered it. The phase
// counter makes it reusable: late sleepers from phase p can't be woken by
// the broadcast that ends phase p+1.
func (g *group) barrier() {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.phase++
		g.cond.Broadcast()
	} else {
		p := g.phase
		for p == g.phase {
			g.cond.Wait()
		}
	}
	g.mu.Unlock()
}

func (c *Mem) Barrier() { c.g.barrier() }

func (c *Mem) Bcast(buf []byte, root int) {
	g := c.g
	if c.rank == root {
		g.slots[root] = buf
	}
	g.barrier()
	if c.rank != root {
		src := g.slots[root]
		if len(src) != len(buf) {
			s_error.Internal("Bcast buffer length mismatch: root %d sent "+
				"%d bytes, but rank %d supplied a %d-byte buffer. Some rank "+
				"has fallen out of step with the collective-call ordering.",
				root, len(src), c.rank, len(buf))
		}
		copy(buf, src)
	}
	// Second barrier so root can't reuse buf while a rank is still copying.
	g.barrier()
}

func (c *Mem) AllgatherInt64(x int64) []int64 {
	g := c.g

	b := make([]byte, 8)
	putInt64(b, x)
	g.slots[c.rank] = b
	g.barrier()

	out := make([]int64, g.size)
	for r := range out {
		out[r] = getInt64(g.slots[r])
	}
	g.barrier()
	return out
}

func (c *Mem) Gatherv(send []byte, counts []int64, root int) []byte {
	g := c.g
	if len(counts) != g.size {
		s_error.Internal("Gatherv was given %d counts on a communicator "+
			"with %d ranks.", len(counts), g.size)
	}
	if int64(len(send)) != counts[c.rank] {
		s_error.Internal("Gatherv on rank %d was given a %d-byte send "+
			"buffer, but counts[%d] = %d. The caller's phase-1 count and "+
			"phase-2 buffer disagree.", c.rank, len(send), c.rank,
			counts[c.rank])
	}

	g.slots[c.rank] = send
	g.barrier()

	var recv []byte
	if c.rank == root {
		total, disps := Displacements(counts)
		recv = make([]byte, total)
		for r := 0; r < g.size; r++ {
			copy(recv[disps[r]:disps[r]+counts[r]], g.slots[r])
		}
	}
	g.barrier()
	return recv
}
