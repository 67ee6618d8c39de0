// Package schedule picks, for each unfilled chunk, the worker with the
// least projected load.
package schedule

import (
	"errors"

	"github.com/loadshard/parallelogram/internal/discovery"
)

// ErrNoWorkers is returned when Assign is given an empty candidate pool.
var ErrNoWorkers = errors.New("schedule: no worker candidates available")

// candidate tracks one worker's projected load across a single Assign call:
// its self-reported load at discovery time, plus one for every chunk
// tentatively assigned to it so far in this call. Assign never mutates the
// caller's discovery.WorkerRecord slice.
type candidate struct {
	address string
	load    int
}

// Assign picks, for each of n chunks in index order, the candidate with
// the minimum projected load, then increments that candidate's projected
// load by one. Ties are broken by the candidates' order in workers (first
// match wins), which is arbitrary but deterministic. The returned slice has
// length n; assigned[i] is the address responsible for chunk i.
func Assign(workers []discovery.WorkerRecord, n int) ([]string, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	candidates := make([]candidate, len(workers))
	for i, w := range workers {
		candidates[i] = candidate{address: w.Address, load: w.Load}
	}

	assigned := make([]string, n)
	for i := 0; i < n; i++ {
		min := 0
		for j := 1; j < len(candidates); j++ {
			if candidates[j].load < candidates[min].load {
				min = j
			}
		}
		assigned[i] = candidates[min].address
		candidates[min].load++
	}
	return assigned, nil
}
