// Package wire implements the request/response codec. Each chunk dispatch
// opens a fresh TCP connection that carries one request and its response.
package wire

import (
	"bufio"
	"encoding/gob"
	"net"

	"github.com/loadshard/parallelogram/internal/ops"
)

// readBufferSize is the initial read-buffer size for a decode; bufio
// transparently issues further reads past this ceiling, so payloads larger
// than readBufferSize still decode correctly, just with extra syscalls.
const readBufferSize = 8192

// gob requires every concrete type ever stored in an any-typed field to be
// registered before it can cross the wire. Chunk payloads and FuncToken
// arguments are expected to hold plain Go scalars.
func init() {
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register(false)
}

// Request is the client-to-worker envelope: an operation, the function
// token naming how to perform it, the chunk payload, and the chunk's index
// in the original chunking order.
type Request struct {
	Op    ops.Operation
	Func  ops.FuncToken
	Chunk []any
	Index int
}

// Response is the worker-to-client envelope. Chunk is a sequence for
// map/filter and a one-element sequence containing the fold result for
// reduce. Err carries a non-nil sentinel's message when the worker could
// not service the request (e.g. ops.ErrUnknownOp), rather than folding a
// human-readable failure string in among the chunk's elements.
type Response struct {
	Index int
	Chunk []any
	Err   string
}

// WriteRequest gob-encodes req as the single message carried by conn, then
// the caller is expected to close the write side so the peer's decode sees
// the connection-close/EOF message delimiter.
func WriteRequest(conn net.Conn, req Request) error {
	return gob.NewEncoder(conn).Encode(req)
}

// ReadRequest decodes a single Request from conn, reading in up-to
// readBufferSize increments until the encoded value is complete.
func ReadRequest(conn net.Conn) (Request, error) {
	var req Request
	err := gob.NewDecoder(bufio.NewReaderSize(conn, readBufferSize)).Decode(&req)
	return req, err
}

// WriteResponse gob-encodes resp as the single message carried by conn.
func WriteResponse(conn net.Conn, resp Response) error {
	return gob.NewEncoder(conn).Encode(resp)
}

// ReadResponse decodes a single Response from conn.
func ReadResponse(conn net.Conn) (Response, error) {
	var resp Response
	err := gob.NewDecoder(bufio.NewReaderSize(conn, readBufferSize)).Decode(&resp)
	return resp, err
}
