// Package dgrambuf pools the receive buffers the UDP read loop hands
// to Endpoint.Incoming, so steady-state reception allocates nothing
// once the pool has warmed up.
package dgrambuf

import (
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// MaxDatagramSize is the largest UDP payload this pool will size a
// buffer for — the theoretical IPv4/IPv6 UDP payload ceiling, well
// above any realistic path MTU.
const MaxDatagramSize = 65527

// Pool wraps a bytebufferpool.Pool with the hit/miss accounting style
// the teacher's sized buffer pools use, adapted to bytebufferpool's
// single adaptively-calibrated pool instead of fixed size classes —
// datagram sizes vary far more than HTTP request/response buffers, so
// one pool that learns the working set beats several fixed classes.
type Pool struct {
	inner bytebufferpool.Pool

	gets     atomic.Uint64
	puts     atomic.Uint64
}

// New returns an empty datagram buffer pool.
func New() *Pool {
	return &Pool{}
}

// Get returns a pooled ByteBuffer whose B field is sized to
// MaxDatagramSize, ready for a single ReadFromUDP call. Callers must
// return it via Put once Endpoint.Incoming has finished with the
// datagram (decrypted payloads alias this buffer and must not be
// retained past that point, per the in-place-decryption contract).
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	p.gets.Add(1)
	bb := p.inner.Get()
	if cap(bb.B) < MaxDatagramSize {
		bb.B = make([]byte, MaxDatagramSize)
	} else {
		bb.B = bb.B[:MaxDatagramSize]
	}
	return bb
}

// Put returns bb to the pool for reuse.
func (p *Pool) Put(bb *bytebufferpool.ByteBuffer) {
	p.puts.Add(1)
	p.inner.Put(bb)
}

// Stats reports cumulative get/put counts. The metrics package does
// not publish them.
func (p *Pool) Stats() (gets, puts uint64) {
	return p.gets.Load(), p.puts.Load()
}
