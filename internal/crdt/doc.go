package crdt

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/event"
)

// Doc is one replica. All mutation goes through Transact or ApplyUpdate;
// observers see one UpdateEvent and one ChangeEvent per committed
// transaction, after the document lock has been released.
type Doc struct {
	mu       sync.Mutex
	clientID ClientID
	lamport  uint64
	entries  map[string]map[string]*register
	log      map[ClientID]map[uint64]Op
	sv       StateVector

	updates *event.Emitter[UpdateEvent]
	changes *event.Emitter[ChangeEvent]
	logger  logrus.FieldLogger
}

// Option configures a Doc.
type Option func(*Doc)

// WithClientID fixes the replica id instead of drawing a random one.
func WithClientID(id ClientID) Option {
	return func(d *Doc) { d.clientID = id }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Doc) { d.logger = logger }
}

// NewDoc creates an empty replica.
func NewDoc(opts ...Option) *Doc {
	d := &Doc{
		entries: make(map[string]map[string]*register),
		log:     make(map[ClientID]map[uint64]Op),
		sv:      make(StateVector),
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clientID == 0 {
		d.clientID = NewClientID()
	}
	d.updates = event.NewEmitter[UpdateEvent](d.logger)
	d.changes = event.NewEmitter[ChangeEvent](d.logger)
	return d
}

// NewClientID draws a random non-zero client id.
func NewClientID() ClientID {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(err)
		}
		// Keep ids within 53 bits so they survive JSON round trips in clients.
		if id := ClientID(binary.BigEndian.Uint64(b[:]) & (1<<53 - 1)); id != 0 {
			return id
		}
	}
}

// ClientID returns this replica's id.
func (d *Doc) ClientID() ClientID {
	return d.clientID
}

// OnUpdate subscribes to encoded deltas of committed transactions.
func (d *Doc) OnUpdate(fn func(UpdateEvent)) (unsubscribe func()) {
	return d.updates.Subscribe(fn)
}

// OnChange subscribes to deep-change notifications.
func (d *Doc) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	return d.changes.Subscribe(fn)
}

// Destroy drops every subscriber.
func (d *Doc) Destroy() {
	d.updates.Clear()
	d.changes.Clear()
}

// IsEmpty reports whether the replica holds no entries at all.
func (d *Doc) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries) == 0
}

// StateVector returns a copy of the current state vector.
func (d *Doc) StateVector() StateVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sv.Clone()
}

// EncodeStateVector serializes the current state vector.
func (d *Doc) EncodeStateVector() ([]byte, error) {
	return EncodeStateVector(d.StateVector())
}

// EncodeStateAsUpdate returns every op the holder of remote is missing.
// A nil remote yields the full history.
func (d *Doc) EncodeStateAsUpdate(remote StateVector) ([]byte, error) {
	d.mu.Lock()
	var ops []Op
	for client, byClock := range d.log {
		known := remote[client]
		for clock, op := range byClock {
			if clock > known {
				ops = append(ops, op)
			}
		}
	}
	d.mu.Unlock()

	sortOps(ops)
	return encodeOps(ops)
}

// Transact runs fn with exclusive access to the document. Writes made
// through tx are visible to later reads in fn and are published as a
// single update once fn returns. fn must reach the document only through tx.
func (d *Doc) Transact(origin Origin, fn func(tx *Txn)) {
	tx := &Txn{doc: d, origin: origin}
	func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		fn(tx)
	}()
	d.commit(tx.origin, tx.ops, tx.keys)
}

// View runs fn with read access to a consistent state.
func (d *Doc) View(fn func(r Reader)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(reader{d})
}

// ApplyUpdate integrates a remote delta. Ops already known are skipped, so
// replaying the same delta is a no-op.
func (d *Doc) ApplyUpdate(data []byte, origin Origin) error {
	ops, err := DecodeUpdate(data)
	if err != nil {
		return err
	}

	var applied []Op
	keys := map[string]struct{}{}
	func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		touched := map[ClientID]struct{}{}
		for _, op := range ops {
			if d.known(op.ID) {
				continue
			}
			d.integrate(op)
			applied = append(applied, op)
			keys[op.Key] = struct{}{}
			touched[op.ID.Client] = struct{}{}
			if op.Lamport > d.lamport {
				d.lamport = op.Lamport
			}
		}
		for client := range touched {
			d.advance(client)
		}
	}()

	d.commit(origin, applied, keys)
	return nil
}

// Entries returns the winning raw value of every field, for inspection.
func (d *Doc) Entries() map[string]map[string][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]map[string][]byte, len(d.entries))
	for key, fields := range d.entries {
		m := make(map[string][]byte, len(fields))
		for f, r := range fields {
			m[f] = append([]byte(nil), r.value...)
		}
		out[key] = m
	}
	return out
}

func (d *Doc) commit(origin Origin, ops []Op, keys map[string]struct{}) {
	if len(ops) == 0 {
		return
	}
	update, err := encodeOps(ops)
	if err != nil {
		d.logger.WithField("action", "crdt_commit").WithError(err).Warn("could not encode transaction")
	} else {
		d.updates.Publish(UpdateEvent{Update: update, Origin: origin})
	}

	changed := make([]string, 0, len(keys))
	for k := range keys {
		changed = append(changed, k)
	}
	sort.Strings(changed)
	d.changes.Publish(ChangeEvent{Keys: changed, Origin: origin})
}

func (d *Doc) known(id ID) bool {
	if id.Clock <= d.sv[id.Client] {
		return true
	}
	_, ok := d.log[id.Client][id.Clock]
	return ok
}

func (d *Doc) integrate(op Op) {
	byClock, ok := d.log[op.ID.Client]
	if !ok {
		byClock = make(map[uint64]Op)
		d.log[op.ID.Client] = byClock
	}
	byClock[op.ID.Clock] = op

	fields, ok := d.entries[op.Key]
	if !ok {
		fields = make(map[string]*register)
		d.entries[op.Key] = fields
	}
	r, ok := fields[op.Field]
	if !ok {
		fields[op.Field] = &register{lamport: op.Lamport, client: op.ID.Client, clock: op.ID.Clock, value: op.Value}
		return
	}
	if r.loses(op) {
		r.lamport, r.client, r.clock, r.value = op.Lamport, op.ID.Client, op.ID.Clock, op.Value
	}
}

func (d *Doc) advance(client ClientID) {
	byClock := d.log[client]
	for {
		if _, ok := byClock[d.sv[client]+1]; !ok {
			return
		}
		d.sv[client]++
	}
}

// Reader reads document state inside View or Transact.
type Reader interface {
	// Keys lists every key in ascending order.
	Keys() []string
	// Has reports whether any field was ever written under key.
	Has(key string) bool
	// Raw returns the winning encoded value of key/field.
	Raw(key, field string) (cbor.RawMessage, bool)
	// Get decodes the winning value of key/field into out.
	Get(key, field string, out any) bool
}

type reader struct {
	d *Doc
}

func (r reader) Keys() []string {
	keys := make([]string, 0, len(r.d.entries))
	for k := range r.d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r reader) Has(key string) bool {
	_, ok := r.d.entries[key]
	return ok
}

func (r reader) Raw(key, field string) (cbor.RawMessage, bool) {
	reg, ok := r.d.entries[key][field]
	if !ok {
		return nil, false
	}
	return reg.value, true
}

func (r reader) Get(key, field string, out any) bool {
	raw, ok := r.Raw(key, field)
	if !ok {
		return false
	}
	if err := Unmarshal(raw, out); err != nil {
		r.d.logger.WithField("action", "crdt_read").WithError(err).
			Debugf("undecodable value at %s/%s", key, field)
		return false
	}
	return true
}

// Txn is the write handle passed to Transact.
type Txn struct {
	doc     *Doc
	origin  Origin
	lamport uint64
	ops     []Op
	keys    map[string]struct{}
}

func (tx *Txn) Keys() []string                                { return reader{tx.doc}.Keys() }
func (tx *Txn) Has(key string) bool                           { return reader{tx.doc}.Has(key) }
func (tx *Txn) Raw(key, field string) (cbor.RawMessage, bool) { return reader{tx.doc}.Raw(key, field) }
func (tx *Txn) Get(key, field string, out any) bool           { return reader{tx.doc}.Get(key, field, out) }

// Origin returns the origin the transaction was opened with.
func (tx *Txn) Origin() Origin {
	return tx.origin
}

// Set writes value to key/field. Writing the value a field already holds
// is skipped. Values must be CBOR-encodable; anything else is logged and
// dropped.
func (tx *Txn) Set(key, field string, value any) {
	raw, err := Marshal(value)
	if err != nil {
		tx.doc.logger.WithField("action", "crdt_set").WithError(err).
			Warnf("dropping unencodable value for %s/%s", key, field)
		return
	}
	if cur, ok := tx.Raw(key, field); ok && bytes.Equal(cur, raw) {
		return
	}

	d := tx.doc
	if tx.lamport == 0 {
		d.lamport++
		tx.lamport = d.lamport
	}
	op := Op{
		ID:      ID{Client: d.clientID, Clock: d.sv[d.clientID] + 1},
		Lamport: tx.lamport,
		Key:     key,
		Field:   field,
		Value:   raw,
	}
	d.integrate(op)
	d.advance(d.clientID)
	tx.ops = append(tx.ops, op)
	if tx.keys == nil {
		tx.keys = make(map[string]struct{})
	}
	tx.keys[key] = struct{}{}
}
