// Package awareness tracks ephemeral per-client state such as cursors and
// online status. Nothing here is persisted; entries arrive and leave through
// encoded deltas and expire when their owner stops renewing them.
package awareness

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/event"
)

// DefaultTimeout is how long a remote entry survives without an update.
const DefaultTimeout = 30 * time.Second

var ErrMalformedUpdate = errors.New("awareness: malformed update")

// State is the ephemeral state a client declares about itself.
type State map[string]any

// Change lists the clients affected by one update.
type Change struct {
	Added   []crdt.ClientID
	Updated []crdt.ClientID
	Removed []crdt.ClientID
	Origin  crdt.Origin
}

// Clients returns every affected client id.
func (c Change) Clients() []crdt.ClientID {
	out := make([]crdt.ClientID, 0, len(c.Added)+len(c.Updated)+len(c.Removed))
	out = append(out, c.Added...)
	out = append(out, c.Updated...)
	return append(out, c.Removed...)
}

func (c Change) empty() bool {
	return len(c.Added)+len(c.Updated)+len(c.Removed) == 0
}

type meta struct {
	clock       uint64
	lastUpdated time.Time
}

type entry struct {
	Client crdt.ClientID `cbor:"1,keyasint"`
	Clock  uint64        `cbor:"2,keyasint"`
	State  State         `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Awareness holds the presence table of one replica.
type Awareness struct {
	mu       sync.Mutex
	clientID crdt.ClientID
	states   map[crdt.ClientID]State
	meta     map[crdt.ClientID]meta
	timeout  time.Duration
	now      func() time.Time

	// changes fires only when some state differs; updates fires on every
	// accepted delta including plain renewals.
	changes *event.Emitter[Change]
	updates *event.Emitter[Change]
	logger  logrus.FieldLogger
}

// Option configures an Awareness.
type Option func(*Awareness)

// WithTimeout sets the staleness timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Awareness) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Awareness) { a.now = now }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Awareness) { a.logger = logger }
}

// New creates a table whose local client starts online with an empty state.
func New(clientID crdt.ClientID, opts ...Option) *Awareness {
	a := &Awareness{
		clientID: clientID,
		states:   make(map[crdt.ClientID]State),
		meta:     make(map[crdt.ClientID]meta),
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.changes = event.NewEmitter[Change](a.logger)
	a.updates = event.NewEmitter[Change](a.logger)
	a.SetLocalState(State{})
	return a
}

// ClientID returns the local client id.
func (a *Awareness) ClientID() crdt.ClientID {
	return a.clientID
}

// Timeout returns the staleness timeout.
func (a *Awareness) Timeout() time.Duration {
	return a.timeout
}

// OnChange subscribes to changes that alter some state.
func (a *Awareness) OnChange(fn func(Change)) (unsubscribe func()) {
	return a.changes.Subscribe(fn)
}

// OnUpdate subscribes to every accepted update, renewals included.
func (a *Awareness) OnUpdate(fn func(Change)) (unsubscribe func()) {
	return a.updates.Subscribe(fn)
}

// LocalState returns a copy of the local state, nil when offline.
func (a *Awareness) LocalState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyState(a.states[a.clientID])
}

// SetLocalState replaces the local state. nil marks the client offline.
func (a *Awareness) SetLocalState(s State) {
	a.mu.Lock()
	prev, existed := a.states[a.clientID]
	m := a.meta[a.clientID]
	m.clock++
	m.lastUpdated = a.now()
	a.meta[a.clientID] = m

	ch := Change{Origin: crdt.LocalOrigin}
	changed := false
	switch {
	case s == nil:
		delete(a.states, a.clientID)
		if existed {
			ch.Removed = append(ch.Removed, a.clientID)
			changed = true
		}
	case !existed:
		a.states[a.clientID] = copyState(s)
		ch.Added = append(ch.Added, a.clientID)
		changed = true
	default:
		a.states[a.clientID] = copyState(s)
		ch.Updated = append(ch.Updated, a.clientID)
		changed = !reflect.DeepEqual(prev, s)
	}
	a.mu.Unlock()

	if changed {
		a.changes.Publish(ch)
	}
	if !ch.empty() {
		a.updates.Publish(ch)
	}
}

// SetLocalStateField sets one key of the local state.
func (a *Awareness) SetLocalStateField(key string, value any) {
	s := a.LocalState()
	if s == nil {
		s = State{}
	}
	s[key] = value
	a.SetLocalState(s)
}

// States returns a copy of every known state keyed by client.
func (a *Awareness) States() map[crdt.ClientID]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[crdt.ClientID]State, len(a.states))
	for c, s := range a.states {
		out[c] = copyState(s)
	}
	return out
}

// EncodeUpdate serializes the current entries of clients. Absent clients
// are encoded as removals carrying their last clock.
func (a *Awareness) EncodeUpdate(clients []crdt.ClientID) ([]byte, error) {
	a.mu.Lock()
	entries := make([]entry, 0, len(clients))
	for _, c := range clients {
		entries = append(entries, entry{Client: c, Clock: a.meta[c].clock, State: a.states[c]})
	}
	b, err := encMode.Marshal(entries)
	a.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "encode awareness update")
	}
	return b, nil
}

// ApplyUpdate merges a remote delta. Entries about the local client are
// ignored: each client is authoritative for its own presence.
func (a *Awareness) ApplyUpdate(data []byte, origin crdt.Origin) error {
	var entries []entry
	if err := decMode.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(ErrMalformedUpdate, err.Error())
	}

	now := a.now()
	ch := Change{Origin: origin}
	filtered := Change{Origin: origin}

	a.mu.Lock()
	for _, e := range entries {
		if e.Client == a.clientID || e.Client == 0 {
			continue
		}
		m, known := a.meta[e.Client]
		prev, exists := a.states[e.Client]
		if known && !(m.clock < e.Clock || (m.clock == e.Clock && e.State == nil && exists)) {
			continue
		}
		if e.State == nil {
			delete(a.states, e.Client)
			if exists {
				ch.Removed = append(ch.Removed, e.Client)
				filtered.Removed = append(filtered.Removed, e.Client)
			}
		} else {
			a.states[e.Client] = e.State
			if exists {
				ch.Updated = append(ch.Updated, e.Client)
				if !reflect.DeepEqual(prev, e.State) {
					filtered.Updated = append(filtered.Updated, e.Client)
				}
			} else {
				ch.Added = append(ch.Added, e.Client)
				filtered.Added = append(filtered.Added, e.Client)
			}
		}
		a.meta[e.Client] = meta{clock: e.Clock, lastUpdated: now}
	}
	a.mu.Unlock()

	if !filtered.empty() {
		a.changes.Publish(filtered)
	}
	if !ch.empty() {
		a.updates.Publish(ch)
	}
	return nil
}

// RemoveStates drops the given clients. Removing the local client takes it
// offline and bumps its clock so the removal propagates.
func (a *Awareness) RemoveStates(clients []crdt.ClientID, origin crdt.Origin) {
	now := a.now()
	ch := Change{Origin: origin}

	a.mu.Lock()
	for _, c := range clients {
		if _, ok := a.states[c]; !ok {
			continue
		}
		delete(a.states, c)
		m := a.meta[c]
		if c == a.clientID {
			m.clock++
		}
		m.lastUpdated = now
		a.meta[c] = m
		ch.Removed = append(ch.Removed, c)
	}
	a.mu.Unlock()

	if !ch.empty() {
		a.changes.Publish(ch)
		a.updates.Publish(ch)
	}
}

// CheckOutdated renews the local entry once half the timeout has passed
// and evicts remote entries that have not been refreshed within the timeout.
func (a *Awareness) CheckOutdated() {
	now := a.now()

	a.mu.Lock()
	local, online := a.states[a.clientID]
	renew := online && now.Sub(a.meta[a.clientID].lastUpdated) >= a.timeout/2
	var stale []crdt.ClientID
	for c := range a.states {
		if c != a.clientID && now.Sub(a.meta[c].lastUpdated) >= a.timeout {
			stale = append(stale, c)
		}
	}
	a.mu.Unlock()

	if renew {
		a.SetLocalState(local)
	}
	if len(stale) > 0 {
		sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
		a.logger.WithField("action", "awareness_gc").Debugf("evicting %d stale clients", len(stale))
		a.RemoveStates(stale, crdt.LocalOrigin)
	}
}

// Destroy takes the local client offline and drops all subscribers.
func (a *Awareness) Destroy() {
	a.RemoveStates([]crdt.ClientID{a.clientID}, crdt.LocalOrigin)
	a.changes.Clear()
	a.updates.Clear()
}

func copyState(s State) State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
