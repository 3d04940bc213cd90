/*package thread contains functions useful for multi-threading. Specter's
parallelism inside a rank is plain data parallelism: an index range is cut
into contention-free chunks and each chunk is handed to one worker.*/
package thread

import (
	"runtime"
	"sync"

	s_error "github.com/specter-sim/specter/lib/error"
)

var workers = runtime.NumCPU()

// Set sets the number of worker goroutines used by Map and the number of OS
// threads they may occupy. n = -1 means "use every core on the node".
func Set(n int) {
	if n == -1 {
		n = runtime.NumCPU()
	}
	if n < 1 || n > runtime.NumCPU() {
		s_error.External("%d threads were requested, but your system only "+
			"has %d cores per node. If you want specter to use the maximum "+
			"number of threads per node, set Threads = -1.", n, runtime.NumCPU())
	}

	workers = n
	runtime.GOMAXPROCS(n)
}

// Workers returns the current worker count.
func Workers() int { return workers }

// Chunks splits the index range [0, n) into at most k contiguous,
// non-overlapping chunks that exactly cover it. The trailing chunk absorbs
// the remainder. k <= 0 means "use the configured worker count".
func Chunks(n, k int) (starts, ends []int) {
	if k <= 0 {
		k = workers
	}
	if k > n {
		k = n
	}
	if n == 0 {
		return nil, nil
	}

	starts, ends = make([]int, k), make([]int, k)
	for i := 0; i < k; i++ {
		starts[i] = i * n / k
		ends[i] = (i + 1) * n / k
	}
	return starts, ends
}

// Map runs f once per chunk of the index range [0, n), in parallel. f is
// called as f(worker, start, end) and must not touch indices outside
// [start, end) without its own synchronization. Map returns once every
// worker has finished.
func Map(n int, f func(worker, start, end int)) {
	starts, ends := Chunks(n, workers)

	wg := &sync.WaitGroup{}
	wg.Add(len(starts))
	for w := range starts {
		go func(w int) {
			defer wg.Done()
			f(w, starts[w], ends[w])
		}(w)
	}
	wg.Wait()
}
