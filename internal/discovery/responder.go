package discovery

import (
	"net"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// LoadFunc reports the worker's current load. The reference measure is the
// length of the worker's pending chunk queue; CPU or memory based measures
// would satisfy this signature equally well.
type LoadFunc func() int

// Responder joins the multicast discovery group and answers probes with
// the worker's current load. A token-bucket throttle bounds how often it
// will reply, so a probe storm cannot busy-loop the responder.
type Responder struct {
	conn    *net.UDPConn
	limiter *rate.Limiter

	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// NewResponder joins the multicast group at groupAddr (reference:
// 224.3.29.71:10000) on all interfaces.
func NewResponder(groupAddr string) (*Responder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &Responder{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(200), 50),
		stopped: make(chan struct{}),
	}, nil
}

// Run blocks, answering "job" probes with "tcpAddr,load" until Stop is
// called. tcpAddr is the worker's own chunk-server listen address; the UDP
// packet's source address only identifies the prober, never the
// responder's TCP port, so the reply has to carry it explicitly.
func (r *Responder) Run(tcpAddr string, load LoadFunc) {
	r.wg.Add(1)
	defer r.wg.Done()

	buf := make([]byte, 256)
	for {
		select {
		case <-r.stopped:
			return
		default:
		}

		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.stopped:
				return
			default:
				continue
			}
		}
		if string(buf[:n]) != probeMessage {
			continue
		}
		if !r.limiter.Allow() {
			continue
		}
		reply := tcpAddr + "," + strconv.Itoa(load())
		_, _ = r.conn.WriteToUDP([]byte(reply), from)
	}
}

// Stop closes the multicast socket and waits for Run to return.
func (r *Responder) Stop() {
	r.once.Do(func() {
		close(r.stopped)
		_ = r.conn.Close()
	})
	r.wg.Wait()
}
