package hammer

import (
	"runtime"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

// Hammer invokes a test concurrently in P goroutines N times per goroutine.
//
// Here's an example:
//
//	P := 8               // max count of goroutines
//	N := 1000            // work per goroutine
//	if testing.Short() { // Adjust down if `-test.short`
//		P = 4
//		N = 100
//	}
//
//	hammer.NewHammer(t, P, N).Run(func(p, n int) error {
//		// Do test using p if something needs to be unique per goroutine.
//		return nil
//	}, nil)
//
//	if t.Failed() {
//		return // At least one test failed, so return now.
//	}
type Hammer interface {
	// Run invokes a concurrency test.
	//
	// * test is concurrently run in P goroutines, each looping N times or until it returns an error.
	// * onRunning is any function to run after all goroutines are running, but before test executes.
	//
	// The first error or panic fails the calling test.
	Run(test func(p, n int) error, onRunning func())
}

// NewHammer returns a Hammer initialized to indicated count of goroutines (P) and iterations per goroutine (N).
func NewHammer(t *testing.T, P, N int) Hammer {
	return &hammer{t: t, P: P, N: N}
}

type hammer struct {
	t *testing.T
	// P is the max count of goroutines
	P int
	// N is the work per goroutine
	N int
}

// Run implements Hammer.Run
func (h *hammer) Run(test func(p, n int) error, onRunning func()) {
	h.t.Helper()
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(max(h.P/2, 1))) // Ensure goroutines have to switch cores.

	var running, unblocked sync.WaitGroup
	running.Add(h.P)
	unblocked.Add(1)

	var g errgroup.Group
	for p := 0; p < h.P; p++ {
		p := p // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() (err error) {
			defer func() { // Ensure each require.XX failure is visible on hammer test fail.
				if recovered := recover(); recovered != nil {
					h.t.Error(recovered)
				}
			}()
			running.Done()
			unblocked.Wait()
			for n := 0; n < h.N; n++ {
				if err = test(p, n); err != nil {
					return
				}
			}
			return
		})
	}

	// Block until P goroutines are running.
	running.Wait()
	if onRunning != nil {
		onRunning()
	}

	// Release all goroutines at the same time.
	unblocked.Done()

	if err := g.Wait(); err != nil {
		h.t.Error(err)
	}
}
