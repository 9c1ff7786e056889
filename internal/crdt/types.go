// Package crdt is the replicated document used by the outline: a map of
// keys to fields, each field a last-writer-wins register. Writes are
// grouped into transactions, identified by (client, clock) pairs and
// exchanged as CBOR-encoded deltas computed against state vectors.
package crdt

import (
	"github.com/fxamacker/cbor/v2"
)

// ClientID identifies one replica. It is random per document instance.
type ClientID uint64

// ID names a single write: the clock-th write made by Client.
type ID struct {
	Client ClientID `cbor:"1,keyasint"`
	Clock  uint64   `cbor:"2,keyasint"`
}

// Op is one field write.
type Op struct {
	ID      ID              `cbor:"1,keyasint"`
	Lamport uint64          `cbor:"2,keyasint"`
	Key     string          `cbor:"3,keyasint"`
	Field   string          `cbor:"4,keyasint"`
	Value   cbor.RawMessage `cbor:"5,keyasint"`
}

type updateMessage struct {
	Ops []Op `cbor:"1,keyasint"`
}

// StateVector maps each known client to the highest clock received from it
// without gaps.
type StateVector map[ClientID]uint64

// Covers reports whether sv has seen everything other has.
func (sv StateVector) Covers(other StateVector) bool {
	for c, clock := range other {
		if sv[c] < clock {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for c, clock := range sv {
		out[c] = clock
	}
	return out
}

// OriginKind tells local transactions apart from applied remote deltas.
type OriginKind int

const (
	OriginLocal OriginKind = iota
	OriginRemote
	OriginStorage
)

// Origin tags every transaction with its source.
type Origin struct {
	Kind OriginKind
	Peer string
}

// LocalOrigin marks transactions made by this process.
var LocalOrigin = Origin{Kind: OriginLocal}

// StorageOrigin marks history replayed from a local snapshot.
var StorageOrigin = Origin{Kind: OriginStorage}

// RemoteOrigin marks deltas applied on behalf of peer.
func RemoteOrigin(peer string) Origin {
	return Origin{Kind: OriginRemote, Peer: peer}
}

// IsRemote reports whether the transaction applied a remote delta.
func (o Origin) IsRemote() bool {
	return o.Kind == OriginRemote
}

func (o Origin) String() string {
	switch o.Kind {
	case OriginRemote:
		return "remote:" + o.Peer
	case OriginStorage:
		return "storage"
	}
	return "local"
}

// UpdateEvent carries the encoded delta of one committed transaction.
type UpdateEvent struct {
	Update []byte
	Origin Origin
}

// ChangeEvent lists the keys touched by one committed transaction.
type ChangeEvent struct {
	Keys   []string
	Origin Origin
}

// register orders writes by (lamport, client, clock); the clock only breaks
// ties between writes of the same transaction.
type register struct {
	lamport uint64
	client  ClientID
	clock   uint64
	value   cbor.RawMessage
}

func (r *register) loses(op Op) bool {
	if op.Lamport != r.lamport {
		return op.Lamport > r.lamport
	}
	if op.ID.Client != r.client {
		return op.ID.Client > r.client
	}
	return op.ID.Clock > r.clock
}
