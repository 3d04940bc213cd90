/*package comm is specter's message-passing abstraction: the small set of
synchronous collectives the extraction and I/O protocols need, expressed as
an interface so the core can be retargeted to any substrate (a cgo MPI
binding, a socket fabric, or the in-process Group this package ships).

Every method is a collective: all ranks of a communicator must reach the same
call in the same order, or the run deadlocks. That is a hard liveness
contract, the same one MPI imposes. Failures inside an implementation are
fatal to the whole run, so the methods don't return errors; implementations
abort through lib/error instead.
*/
package comm

// Comm is one rank's handle on the communicator.
type Comm interface {
	// Rank returns this process's id, with 0 <= Rank() < Size(). Rank 0 is
	// the coordinating rank for every gather and all file creation.
	Rank() int
	// Size returns the fixed number of cooperating ranks.
	Size() int
	// Barrier blocks until every rank has entered it.
	Barrier()
	// Bcast overwrites buf on every rank with root's buf. All ranks must
	// pass buffers of the same length.
	Bcast(buf []byte, root int)
	// AllgatherInt64 exchanges one integer per rank: the returned slice has
	// Size() entries and entry r is rank r's x, identically on every rank.
	AllgatherInt64(x int64) []int64
	// Gatherv is the displacement-addressed variable-length gather: rank r
	// contributes send (whose length must equal counts[r]), and root
	// receives the concatenation ordered by ascending rank. The return
	// value is the concatenated buffer on root and nil everywhere else.
	// Every rank must pass the same counts.
	Gatherv(send []byte, counts []int64, root int) []byte
}

// Displacements converts per-rank counts into their total and the exclusive
// prefix sum: disps[r] is the sum of all counts before rank r, i.e. rank r's
// offset in a shared destination.
func Displacements(counts []int64) (total int64, disps []int64) {
	disps = make([]int64, len(counts))
	for r, n := range counts {
		disps[r] = total
		total += n
	}
	return total, disps
}

// BcastBytes broadcasts a variable-length buffer: the length travels first so
// non-root ranks can size their copy. Returns root's buffer contents on
// every rank.
func BcastBytes(c Comm, b []byte, root int) []byte {
	n := make([]byte, 8)
	if c.Rank() == root {
		putInt64(n, int64(len(b)))
	}
	c.Bcast(n, root)
	if c.Rank() != root {
		b = make([]byte, getInt64(n))
	}
	c.Bcast(b, root)
	return b
}

func putInt64(b []byte, x int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(x >> (8 * i))
	}
}

func getInt64(b []byte) int64 {
	x := int64(0)
	for i := 0; i < 8; i++ {
		x |= int64(b[i]) << (8 * i)
	}
	return x
}
