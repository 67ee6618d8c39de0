// Package worker implements the TCP chunk server: it accepts one request
// per connection, holds it on a FIFO queue, and a single processing loop
// drains the queue serially, mirroring the reference worker's
// single-threaded execution model.
package worker

import (
	"net"
	"sync"
	"time"

	"github.com/loadshard/parallelogram/internal/config"
	"github.com/loadshard/parallelogram/internal/discovery"
	"github.com/loadshard/parallelogram/internal/fingerprint"
	"github.com/loadshard/parallelogram/internal/observability"
	"github.com/loadshard/parallelogram/internal/ops"
	"github.com/loadshard/parallelogram/internal/wire"
)

// task is one accepted-but-not-yet-processed request, still holding the
// connection its response must be written back on.
type task struct {
	conn     net.Conn
	req      wire.Request
	queuedAt time.Time
}

// Server is a worker's chunk-processing TCP endpoint.
type Server struct {
	cfg      *config.Config
	registry *ops.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics

	ln        net.Listener
	responder *discovery.Responder

	mu    sync.Mutex
	queue []task

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer builds a worker server bound to cfg.ListenAddr. registry must
// already have every map/filter/reduce handler the worker should be able
// to resolve registered.
func NewServer(cfg *config.Config, registry *ops.Registry, logger *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		stopped:  make(chan struct{}),
	}
}

// Start binds the TCP listener, joins multicast discovery, and launches
// the accept and processing loops. It returns once the listener is bound;
// the loops run in the background until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.ln = ln

	responder, err := discovery.NewResponder(s.cfg.MulticastGroupAddr)
	if err != nil {
		ln.Close()
		return err
	}
	s.responder = responder

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.responder.Run(s.ln.Addr().String(), s.queueLen)
	}()

	s.wg.Add(1)
	go s.acceptLoop()

	s.wg.Add(1)
	go s.processLoop()

	return nil
}

// Stop closes the listener and responder and waits for both loops to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.ln != nil {
			s.ln.Close()
		}
		if s.responder != nil {
			s.responder.Stop()
		}
	})
	s.wg.Wait()
}

// Addr returns the bound listener address, valid only after Start succeeds.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return
			default:
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	req, err := wire.ReadRequest(conn)
	if err != nil {
		conn.Close()
		return
	}
	if s.logger != nil {
		s.logger.ChunkReceived(req.Index, conn.RemoteAddr().String(), len(req.Chunk), fingerprint.OfChunk(req.Index, req.Chunk))
	}
	s.mu.Lock()
	s.queue = append(s.queue, task{conn: conn, req: req, queuedAt: time.Now()})
	depth := len(s.queue)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetWorkerQueueDepth(depth)
	}
}

// processLoop drains the queue one request at a time, polling at the
// configured interval when idle rather than busy-spinning.
func (s *Server) processLoop() {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.QueuePollInterval) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopped:
			return
		case <-ticker.C:
			t, ok := s.dequeue()
			if !ok {
				continue
			}
			s.process(t)
		}
	}
}

func (s *Server) dequeue() (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return task{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

func (s *Server) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Server) process(t task) {
	defer t.conn.Close()

	resp := wire.Response{Index: t.req.Index}

	if !t.req.Op.Valid() {
		resp.Err = ops.ErrUnknownOp.Error()
		_ = wire.WriteResponse(t.conn, resp)
		return
	}

	fn, err := s.registry.Resolve(t.req.Func)
	if err != nil {
		resp.Err = err.Error()
		_ = wire.WriteResponse(t.conn, resp)
		return
	}

	chunk, err := ops.Apply(t.req.Op, fn, t.req.Chunk)
	if err != nil {
		resp.Err = err.Error()
		_ = wire.WriteResponse(t.conn, resp)
		return
	}

	resp.Chunk = chunk
	_ = wire.WriteResponse(t.conn, resp)

	if s.metrics != nil {
		s.metrics.RecordChunkCompleted(time.Since(t.queuedAt).Seconds())
	}
}
