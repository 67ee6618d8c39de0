// Package discovery implements the UDP multicast peer-discovery protocol:
// a client-side probe/collect sweep and a worker-side probe responder.
package discovery

import (
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

// probeMessage is the literal probe payload recognized by Responder.Run.
const probeMessage = "job"

// WorkerRecord is a discovered worker's address and self-reported load at
// discovery time. It is the seed for schedule.Assign's projected-load
// bookkeeping and lives only for the one dispatch round it was collected
// for.
type WorkerRecord struct {
	Address string
	Load    int
}

// Discover sends one UDP probe to groupAddr (reference: 224.3.29.71:10000)
// with multicast TTL 1, then collects (tcpAddr, load) replies until window
// elapses with no new reply. Each reply carries the responder's own TCP
// chunk-server address, since the UDP packet's source only identifies the
// prober. Duplicate replies from the same address overwrite the previous
// entry. An empty result is not an error — callers fall back to local
// execution.
func Discover(groupAddr string, window time.Duration) ([]WorkerRecord, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, err
	}

	// The socket is left unconnected: replies arrive from each responder's
	// unicast address, which a socket connected to the group would drop.
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// TTL 1 restricts the probe to the local subnet.
	_ = ipv4.NewPacketConn(conn).SetMulticastTTL(1)

	if _, err := conn.WriteToUDP([]byte(probeMessage), udpAddr); err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	buf := make([]byte, 256)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return nil, err
		}
		// The UDP source address only identifies the responder's ephemeral
		// probe-reply port, never its TCP chunk-server port, so the
		// worker's own listen address has to travel in the payload.
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return nil, err
		}
		tcpAddr, loadStr, ok := strings.Cut(string(buf[:n]), ",")
		if !ok {
			continue
		}
		load, err := strconv.Atoi(loadStr)
		if err != nil {
			continue
		}
		seen[tcpAddr] = load
	}

	records := make([]WorkerRecord, 0, len(seen))
	for addr, load := range seen {
		records = append(records, WorkerRecord{Address: addr, Load: load})
	}
	return records, nil
}
