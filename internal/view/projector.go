// Package view derives the flat list of visible rows from the replicated
// document. Rows are recomputed from scratch on every committed transaction.
package view

import (
	"sync"

	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/event"
	"nestnote/local-app/internal/model"
)

// Source is the part of the tree engine the projector reads from.
type Source interface {
	Outline() *model.Outline
	ActiveRoot() string
}

// Snapshot is one projection: the materialized outline and its visible rows.
type Snapshot struct {
	Outline    *model.Outline
	ActiveRoot string
	Rows       []model.Row
	Origin     crdt.Origin
}

type Projector struct {
	source    Source
	listeners *event.Emitter[Snapshot]
	detach    func()

	// refreshing serializes project, store and publish so a slow refresh
	// never replaces a newer snapshot.
	refreshing sync.Mutex

	mu      sync.Mutex
	current Snapshot
}

// NewProjector projects source once and again after every change to doc.
func NewProjector(doc *crdt.Doc, source Source, logger logrus.FieldLogger) *Projector {
	p := &Projector{
		source:    source,
		listeners: event.NewEmitter[Snapshot](logger),
	}
	p.current = p.project(crdt.LocalOrigin)
	p.detach = doc.OnChange(func(e crdt.ChangeEvent) { p.refresh(e.Origin) })
	return p
}

// Subscribe registers fn for every new snapshot. Snapshots arrive in
// projection order; fn must not call Refresh.
func (p *Projector) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return p.listeners.Subscribe(fn)
}

func (p *Projector) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Projector) Rows() []model.Row {
	return p.Snapshot().Rows
}

// Refresh reprojects without a document change, e.g. after a hoist.
func (p *Projector) Refresh() {
	p.refresh(crdt.LocalOrigin)
}

// Close stops following the document and drops all listeners.
func (p *Projector) Close() {
	p.detach()
	p.listeners.Clear()
}

func (p *Projector) refresh(origin crdt.Origin) {
	p.refreshing.Lock()
	defer p.refreshing.Unlock()

	s := p.project(origin)
	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	p.listeners.Publish(s)
}

func (p *Projector) project(origin crdt.Origin) Snapshot {
	o := p.source.Outline()
	active := p.source.ActiveRoot()
	return Snapshot{
		Outline:    o,
		ActiveRoot: active,
		Rows:       o.Flatten(active),
		Origin:     origin,
	}
}
