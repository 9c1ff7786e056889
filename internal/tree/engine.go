// Package tree implements the outline mutation engine. Every operation is a
// single transaction on the replicated document: existence checks run before
// any write, so an operation either applies completely or not at all.
package tree

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/config"
	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/rank"
)

// DefaultRootID is the distinguished root of a fresh document.
const DefaultRootID = "root"

type Direction int

const (
	Up Direction = iota
	Down
)

// Result reports the outcome of one operation. Changed is false for
// structural no-ops. A zero Focus leaves input focus where it is.
type Result struct {
	Focus   model.Focus
	Created string
	Changed bool
}

type Engine struct {
	doc    *crdt.Doc
	logger logrus.FieldLogger
	newID  func() string
	now    func() time.Time

	mu       sync.Mutex
	rootID   string
	hoist    string
	behavior config.Behavior
}

type Option func(*Engine)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithBehavior(b config.Behavior) Option {
	return func(e *Engine) { e.behavior = b.Normalize() }
}

// WithIDGenerator replaces the uuid generator, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithRootID(id string) Option {
	return func(e *Engine) { e.rootID = id }
}

func NewEngine(doc *crdt.Doc, opts ...Option) *Engine {
	e := &Engine{
		doc:      doc,
		logger:   logrus.StandardLogger(),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
		rootID:   DefaultRootID,
		behavior: config.Behavior{}.Normalize(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Doc() *crdt.Doc {
	return e.doc
}

func (e *Engine) RootID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rootID
}

func (e *Engine) Behavior() config.Behavior {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.behavior
}

func (e *Engine) SetBehavior(b config.Behavior) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.behavior = b.Normalize()
}

// SwitchDocument points the engine at another root and clears the hoist.
func (e *Engine) SwitchDocument(rootID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rootID == "" {
		rootID = DefaultRootID
	}
	e.rootID = rootID
	e.hoist = ""
}

// SetHoist zooms into id. An empty id, or the root, returns to the top.
func (e *Engine) SetHoist(id string) bool {
	root := e.RootID()
	if id == "" || id == root {
		e.mu.Lock()
		e.hoist = ""
		e.mu.Unlock()
		return true
	}
	if !e.Outline().Has(id) {
		return false
	}
	e.mu.Lock()
	e.hoist = id
	e.mu.Unlock()
	return true
}

// ActiveRoot is the visual root: the hoisted node while it still exists,
// otherwise the document root.
func (e *Engine) ActiveRoot() string {
	return e.activeRoot(e.Outline())
}

func (e *Engine) activeRoot(o *model.Outline) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hoist != "" && o.Has(e.hoist) {
		return e.hoist
	}
	return e.rootID
}

// Outline materializes the current document.
func (e *Engine) Outline() *model.Outline {
	root := e.RootID()
	var o *model.Outline
	e.doc.View(func(r crdt.Reader) { o = load(r, root) })
	return o
}

// Rows flattens the visible outline under the active root.
func (e *Engine) Rows() []model.Row {
	o := e.Outline()
	return o.Flatten(e.activeRoot(o))
}

func (e *Engine) Node(id string) (model.Node, bool) {
	n, ok := e.Outline().Get(id)
	if !ok {
		return model.Node{}, false
	}
	return *n, true
}

// Restore replays persisted document history into an empty document. The
// ops keep their original ids and lamport stamps, so later local writes
// order after everything the snapshot saw and tombstones stay deleted.
func (e *Engine) Restore(state []byte) (bool, error) {
	if len(state) == 0 || !e.doc.IsEmpty() {
		return false, nil
	}
	if err := e.doc.ApplyUpdate(state, crdt.StorageOrigin); err != nil {
		return false, errors.Wrap(err, "failed to restore document state")
	}
	e.logger.WithField("entries", len(e.doc.Entries())).Info("restored document from saved state")
	return true, nil
}

// Hydrate writes a node-only snapshot into an empty document as fresh
// local ops. It is the fallback for snapshots saved without document
// state. It reports whether anything was written; a document that
// already has state is left alone.
func (e *Engine) Hydrate(nodes []*model.Node) bool {
	if len(nodes) == 0 || !e.doc.IsEmpty() {
		return false
	}

	byParent := make(map[string][]*model.Node)
	for _, n := range nodes {
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}
	ranks := make(map[string]string, len(nodes))
	for _, siblings := range byParent {
		valid := true
		for _, n := range siblings {
			if !rank.Valid(n.Rank) {
				valid = false
				break
			}
		}
		if valid {
			for _, n := range siblings {
				ranks[n.ID] = n.Rank
			}
			continue
		}
		sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Rank < siblings[j].Rank })
		keys, err := rank.NBetween("", "", len(siblings))
		if err != nil {
			e.logger.WithError(err).Error("failed to allocate hydration ranks")
			return false
		}
		for i, n := range siblings {
			ranks[n.ID] = keys[i]
		}
	}

	now := e.now().UnixMilli()
	e.doc.Transact(crdt.LocalOrigin, func(tx *crdt.Txn) {
		for _, n := range nodes {
			t := n.Type
			if !t.Valid() {
				t = model.NodeText
			}
			tx.Set(n.ID, fieldParent, n.ParentID)
			tx.Set(n.ID, fieldRank, ranks[n.ID])
			tx.Set(n.ID, fieldContent, n.Content)
			tx.Set(n.ID, fieldType, string(t))
			tx.Set(n.ID, fieldCollapsed, n.IsCollapsed)
			tx.Set(n.ID, fieldCompleted, n.Completed)
			if len(n.Meta) > 0 {
				tx.Set(n.ID, fieldMeta, n.Meta)
			}
			updated := now
			if !n.UpdatedAt.IsZero() {
				updated = n.UpdatedAt.UnixMilli()
			}
			tx.Set(n.ID, fieldUpdatedAt, updated)
		}
	})
	e.logger.WithField("nodes", len(nodes)).Info("hydrated document from snapshot")
	return true
}

// transact runs fn against a fresh working outline inside one transaction.
func (e *Engine) transact(fn func(w *writer, active string) Result) Result {
	root := e.RootID()
	var res Result
	e.doc.Transact(crdt.LocalOrigin, func(tx *crdt.Txn) {
		w := &writer{tx: tx, o: load(tx, root), now: e.now().UnixMilli(), logger: e.logger}
		res = fn(w, e.activeRoot(w.o))
	})
	return res
}

func (e *Engine) noop(op, id, reason string) Result {
	e.logger.WithFields(logrus.Fields{"op": op, "node": id}).Debug(reason)
	return Result{}
}
