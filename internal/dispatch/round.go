// Package dispatch coordinates one map/filter/reduce round: discovering
// workers, splitting input into chunks, fanning requests out over TCP,
// collecting responses, reassigning timed-out chunks with an increasing
// deadline, and reassembling the ordered result.
package dispatch

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loadshard/parallelogram/internal/chunk"
	"github.com/loadshard/parallelogram/internal/config"
	"github.com/loadshard/parallelogram/internal/discovery"
	"github.com/loadshard/parallelogram/internal/observability"
	"github.com/loadshard/parallelogram/internal/ops"
	"github.com/loadshard/parallelogram/internal/schedule"
	"github.com/loadshard/parallelogram/internal/validation"
	"github.com/loadshard/parallelogram/internal/wire"
)

// Engine runs map/filter/reduce rounds against discovered workers, falling
// back to local execution when no workers answer discovery.
type Engine struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine builds an Engine. logger and metrics may be nil.
func NewEngine(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{cfg: cfg, logger: logger, metrics: metrics}
}

// outcome is one chunk's settled result, reported back to the round loop
// by a dispatch attempt goroutine.
type outcome struct {
	index   int
	payload []any
	worker  string
	err     error
}

// assignment tracks one chunk's current address and attempt count across
// a round, so a timeout triggers reassignment rather than retrying the
// same dead worker.
type assignment struct {
	worker  string
	attempt int
	timeout time.Duration
}

// Run executes one full round of op over data using fn (already a
// concrete MapFunc, FilterFunc, or ReduceFunc matching op), returning the
// ordered, reassembled result chunk. For Reduce, callers are expected to
// call Run recursively over the returned partial sums until one value
// remains; Run itself only performs a single flat round.
func (e *Engine) Run(op ops.Operation, token ops.FuncToken, fn any, data []any) ([]any, error) {
	if err := validation.ValidateChunkSize(e.cfg.ChunkSize); err != nil {
		return nil, err
	}
	if err := validation.ValidateTimeout(e.cfg.InitialTimeout); err != nil {
		return nil, err
	}

	roundID := uuid.NewString()
	started := time.Now()

	if e.metrics != nil {
		e.metrics.RecordRoundStart(string(op))
	}

	workers, err := discovery.Discover(e.cfg.MulticastGroupAddr, time.Duration(e.cfg.DiscoveryWindow)*time.Millisecond)
	if err != nil {
		workers = nil
	}
	if e.logger != nil {
		e.logger.WithRound(roundID).DiscoveryCompleted(roundID, len(workers), time.Since(started))
	}
	if e.metrics != nil {
		e.metrics.RecordDiscoverySweep(len(workers), time.Since(started).Seconds())
	}

	localFallback := len(workers) == 0
	var result []any
	if localFallback {
		result, err = ops.Apply(op, fn, data)
	} else {
		result, err = e.runDistributed(roundID, op, token, fn, workers, data)
	}

	if e.logger != nil {
		e.logger.WithRound(roundID).RoundCompleted(roundID, string(op), len(data), time.Since(started), localFallback)
	}
	if e.metrics != nil {
		e.metrics.RecordRoundComplete(string(op), time.Since(started).Seconds(), localFallback)
	}
	return result, err
}

// runDistributed shards data into chunks, assigns each to the
// least-loaded discovered worker, dispatches all chunks concurrently, and
// reassigns any that time out until every chunk settles. A chunk timeout,
// connect failure, or decode failure is never surfaced to the caller as an
// error: it is per-chunk and non-fatal, handled here by reassignment and
// backoff. If the whole candidate pool is ever exhausted (every known
// worker blacklisted, or one chunk's own attempt budget runs out), the
// round recovers by re-running discovery and either continuing against
// whatever workers answer or, if none do, falling back to computing op
// locally over the entire input.
func (e *Engine) runDistributed(roundID string, op ops.Operation, token ops.FuncToken, fn any, workers []discovery.WorkerRecord, data []any) ([]any, error) {
	chunks := chunk.Split(data, e.cfg.ChunkSize)
	addrs, err := schedule.Assign(workers, len(chunks))
	if err != nil {
		return nil, err
	}

	assignments := make([]assignment, len(chunks))
	for i, addr := range addrs {
		assignments[i] = assignment{
			worker:  addr,
			attempt: 0,
			timeout: time.Duration(e.cfg.InitialTimeout) * time.Millisecond,
		}
	}

	blacklist := make(map[string]int)
	var blacklistMu sync.Mutex
	isBlacklisted := func(addr string) bool {
		blacklistMu.Lock()
		defer blacklistMu.Unlock()
		return blacklist[addr] >= e.cfg.BlacklistThreshold
	}
	recordFailure := func(addr string) bool {
		blacklistMu.Lock()
		defer blacklistMu.Unlock()
		blacklist[addr]++
		return blacklist[addr] == e.cfg.BlacklistThreshold
	}

	results := make([][]any, len(chunks))
	settled := make([]bool, len(chunks))
	remaining := len(chunks)

	for remaining > 0 {
		outcomes := make(chan outcome, len(chunks))
		pending := 0

		var wg sync.WaitGroup
		for i, c := range chunks {
			if settled[i] {
				continue
			}
			a := &assignments[i]
			if isBlacklisted(a.worker) {
				reassigned := e.reassign(workers, assignments, blacklist, i)
				if reassigned == "" {
					outcomes <- outcome{index: i, err: fmt.Errorf("dispatch: no live workers for chunk %d", i)}
					continue
				}
				a.worker = reassigned
			}
			pending++
			wg.Add(1)
			go func(idx int, payload []any, a *assignment) {
				defer wg.Done()
				start := time.Now()
				got, err := e.dispatchOnce(a.worker, token, op, payload, idx, a.timeout)
				if err != nil {
					if e.logger != nil {
						e.logger.WithRound(roundID).ChunkTimeout(roundID, idx, a.worker, a.attempt+1, time.Duration(float64(a.timeout)*e.cfg.TimeoutBackoffFactor))
					}
					if e.metrics != nil {
						e.metrics.RecordChunkTimeout("timeout")
					}
					outcomes <- outcome{index: idx, worker: a.worker, err: err}
					return
				}
				if e.logger != nil {
					e.logger.WithRound(roundID).ChunkCompleted(roundID, idx, a.worker, time.Since(start))
				}
				outcomes <- outcome{index: idx, payload: got, worker: a.worker}
			}(i, c.Payload, a)
		}
		wg.Wait()
		close(outcomes)

		for o := range outcomes {
			if o.err != nil {
				a := &assignments[o.index]
				a.attempt++
				a.timeout = time.Duration(float64(a.timeout) * e.cfg.TimeoutBackoffFactor)
				if a.attempt >= e.cfg.MaxAttemptsPerChunk {
					// The candidate pool is exhausted for this chunk: no
					// amount of further reassignment within the current
					// worker list is going to succeed. Recover rather than
					// fail the round.
					return e.recoverFromExhaustedPool(roundID, op, token, fn, data)
				}
				if recordFailure(o.worker) {
					if e.logger != nil {
						e.logger.WithRound(roundID).WorkerBlacklisted(roundID, o.worker, e.cfg.BlacklistThreshold)
					}
					if e.metrics != nil {
						e.metrics.RecordWorkerBlacklisted()
					}
				}
				next := e.reassign(workers, assignments, blacklist, o.index)
				if next != "" {
					a.worker = next
				}
				continue
			}
			results[o.index] = o.payload
			settled[o.index] = true
			remaining--
		}
	}

	out := make([]chunk.Chunk[any], len(chunks))
	for i, c := range chunks {
		out[i] = chunk.Chunk[any]{Index: c.Index, Payload: results[i]}
	}
	return chunk.Flatten(out), nil
}

// recoverFromExhaustedPool is called once a chunk has burned through its
// entire attempt budget against the current worker list. It re-runs
// discovery to pick up any worker that has joined (or rejoined) since the
// round started; if that sweep finds anyone, the round is retried from
// scratch against the fresh pool. If discovery still comes back empty, the
// whole input is computed locally instead of failing the round.
func (e *Engine) recoverFromExhaustedPool(roundID string, op ops.Operation, token ops.FuncToken, fn any, data []any) ([]any, error) {
	workers, err := discovery.Discover(e.cfg.MulticastGroupAddr, time.Duration(e.cfg.DiscoveryWindow)*time.Millisecond)
	if err != nil {
		workers = nil
	}
	if e.logger != nil {
		e.logger.WithRound(roundID).DiscoveryCompleted(roundID, len(workers), 0)
	}
	if len(workers) > 0 {
		return e.runDistributed(roundID, op, token, fn, workers, data)
	}
	return ops.Apply(op, fn, data)
}

// reassign picks a replacement worker for chunk i from the original
// discovered pool, skipping any address that has crossed the blacklist
// threshold: the first such worker other than the chunk's current one, or,
// if there is none, the first non-blacklisted worker even when that is the
// current one. It returns "" when every worker is blacklisted.
func (e *Engine) reassign(workers []discovery.WorkerRecord, assignments []assignment, blacklist map[string]int, i int) string {
	for _, w := range workers {
		if blacklist[w.Address] >= e.cfg.BlacklistThreshold {
			continue
		}
		if w.Address != assignments[i].worker {
			return w.Address
		}
	}
	for _, w := range workers {
		if blacklist[w.Address] < e.cfg.BlacklistThreshold {
			return w.Address
		}
	}
	return ""
}

// dispatchOnce opens one TCP connection to addr, sends the request, and
// waits up to timeout for the response.
func (e *Engine) dispatchOnce(addr string, token ops.FuncToken, op ops.Operation, payload []any, index int, timeout time.Duration) ([]any, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		if e.logger != nil {
			e.logger.ConnectionFailed(addr, err)
		}
		return nil, err
	}
	defer conn.Close()
	if e.logger != nil {
		e.logger.ConnectionEstablished(addr)
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	req := wire.Request{Op: op, Func: token, Chunk: payload, Index: index}
	if err := wire.WriteRequest(conn, req); err != nil {
		return nil, err
	}
	if c, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = c.CloseWrite()
	}
	if e.metrics != nil {
		e.metrics.RecordChunkDispatched()
	}

	resp, err := wire.ReadResponse(conn)
	if err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, errors.New(resp.Err)
	}
	return resp.Chunk, nil
}
