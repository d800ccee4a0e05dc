package game

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/squadsim/systems"
)

// parallelThreshold is the minimum item count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// workChunk represents a range of items for a worker to process.
type workChunk struct {
	worker     int
	start, end int
	fn         func(worker, start, end int)
}

// WorkerPool is a persistent set of goroutines that runs processor ranges.
// It implements systems.Runner.
type WorkerPool struct {
	numWorkers int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

var _ systems.Runner = (*WorkerPool)(nil)

// NewWorkerPool starts a pool. workers <= 0 uses GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{numWorkers: workers}
	if workers > 1 {
		p.start()
	}
	return p
}

// Workers returns the number of per-worker buffers callers must provide.
func (p *WorkerPool) Workers() int {
	return p.numWorkers
}

// start launches persistent worker goroutines.
func (p *WorkerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop signals all workers to exit and waits for them.
func (p *WorkerPool) Stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk := <-p.workChan:
			chunk.fn(chunk.worker, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// ParallelFor splits [0,n) into one contiguous chunk per worker and blocks
// until all chunks are done. The worker index passed to fn is the chunk
// index, so per-worker scratch and command buffers are never shared.
func (p *WorkerPool) ParallelFor(n int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}
	if !p.running || n < parallelThreshold {
		fn(0, 0, n)
		return
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	chunks := 0
	for i := 0; i < p.numWorkers; i++ {
		start := i * chunkSize
		if start >= n {
			break
		}
		end := min(start+chunkSize, n)
		p.workChan <- workChunk{worker: i, start: start, end: end, fn: fn}
		chunks++
	}

	for i := 0; i < chunks; i++ {
		<-p.doneChan
	}
}
