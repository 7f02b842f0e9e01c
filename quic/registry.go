package quic

import (
	"net/netip"
	"sync"
)

// Registry owns every live Connection for one endpoint: lookup by
// destination connection ID and by peer address, plus the
// create/delete lifecycle. The ingress dispatcher is its only writer
// (single driver thread, per the concurrency model); sync.Map is used
// the way the teacher's relay engine uses it for its session table —
// read-mostly, safe for a housekeeping goroutine to range over
// concurrently with the driver thread for GC of drained connections.
type Registry struct {
	byID   sync.Map // ConnectionID -> *Connection
	byAddr sync.Map // netip.AddrPort -> *Connection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// ByID looks up a connection by destination connection ID. A null
// (zero-length) id never matches; callers should not look it up.
func (r *Registry) ByID(id ConnectionID) (*Connection, bool) {
	if id.IsNull() {
		return nil, false
	}
	v, ok := r.byID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

// ByAddr looks up a connection by peer address, for the
// address-based fallback paths §4.3 describes (Initial/0-RTT still
// matching initial_cid, or zero-length local CIDs).
func (r *Registry) ByAddr(addr netip.AddrPort) (*Connection, bool) {
	v, ok := r.byAddr.Load(addr)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

// Create commits a new connection to the registry, indexed by its
// initial CID and by the peer address on its first path. The
// dispatcher calls this only after a server Initial has fully
// admitted (minimum size met, retry token verified if enforced); on
// any earlier failure it simply discards the *Connection value
// without ever calling Create, which is this core's analogue of the
// upstream "free on error before new_context_created commits".
func (r *Registry) Create(conn *Connection) {
	r.byID.Store(conn.InitialCID, conn)
	if conn.Path0.PeerAddr.IsValid() {
		r.byAddr.Store(conn.Path0.PeerAddr, conn)
	}
}

// BindCID adds an additional destination CID under which conn can be
// found — used when a connection issues or receives new local CIDs
// beyond the initial one, and when a server snoops its own SCID onto
// an existing connection after a migration.
func (r *Registry) BindCID(id ConnectionID, conn *Connection) {
	if id.IsNull() {
		return
	}
	r.byID.Store(id, conn)
}

// BindAddr (re)indexes conn under addr, used when a path migrates to
// a new peer address and the migration is accepted.
func (r *Registry) BindAddr(addr netip.AddrPort, conn *Connection) {
	if addr.IsValid() {
		r.byAddr.Store(addr, conn)
	}
}

// Delete tears a connection down: removes it from both indexes under
// every CID and address it is known by. ids and addrs are the full
// set the caller has bound via BindCID/BindAddr plus InitialCID/
// Path0.PeerAddr; the registry does not itself track reverse indexes,
// matching the "registry owns, dispatcher decides when" ownership
// model in the design notes.
func (r *Registry) Delete(conn *Connection, ids []ConnectionID, addrs []netip.AddrPort) {
	r.byID.Delete(conn.InitialCID)
	for _, id := range ids {
		r.byID.Delete(id)
	}
	if conn.Path0.PeerAddr.IsValid() {
		r.byAddr.Delete(conn.Path0.PeerAddr)
	}
	for _, a := range addrs {
		r.byAddr.Delete(a)
	}
}

// Len reports the number of CID entries in the registry, for the
// registry-size gauge in the metrics package. A connection bound under
// extra CIDs via BindCID is counted once per CID.
func (r *Registry) Len() int {
	n := 0
	r.byID.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
