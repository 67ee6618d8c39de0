// Package fingerprint computes short content hashes used purely to
// correlate chunks and function tokens across log lines and metrics — not
// a security control. The wire protocol carries no authentication and this
// package does nothing to change that.
package fingerprint

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Of returns the first 8 bytes, hex-encoded, of the BLAKE3 hash of v's fmt
// "%v" string representation, suitable as a short log/metric correlation tag. It
// is not a wire-format hash and is never compared for correctness.
func Of(v any) string {
	h := blake3.New()
	_, _ = h.Write([]byte(fmt.Sprintf("%v", v)))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// OfChunk fingerprints a chunk's index and the "%v" text of its payload
// elements, for correlating chunk log lines such as ChunkReceived. It does
// not hash the encoded wire bytes.
func OfChunk(index int, payload []any) string {
	h := blake3.New()
	fmt.Fprintf(h, "%d:", index)
	for _, elt := range payload {
		fmt.Fprintf(h, "%v,", elt)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
