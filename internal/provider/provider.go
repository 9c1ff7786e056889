// Package provider bridges one replicated document and its presence state
// to a relay channel. It runs the SyncStep1/SyncStep2 handshake on every
// (re)subscribe, broadcasts local deltas and applies remote ones.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/awareness"
	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/event"
	"nestnote/local-app/internal/protocol"
	"nestnote/local-app/internal/relay"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusSynced
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusSynced:
		return "synced"
	default:
		return "unknown"
	}
}

const (
	dropNotSynced = "not_synced"
	dropSendError = "send_error"
	dropMalformed = "malformed"
)

type Settings struct {
	// ResyncInterval re-announces SyncStep1 while synced. Zero disables it.
	ResyncInterval time.Duration
	// PresenceCheckInterval drives awareness renewal and eviction. Zero
	// disables the ticker.
	PresenceCheckInterval time.Duration
	Metrics               *Metrics
}

func DefaultSettings() *Settings {
	return &Settings{
		PresenceCheckInterval: awareness.DefaultTimeout / 10,
	}
}

type Provider struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	peerID    string
	doc       *crdt.Doc
	awareness *awareness.Awareness
	channel   relay.Channel
	settings  *Settings
	metrics   *Metrics
	logger    logrus.FieldLogger

	mu        sync.Mutex
	status    Status
	destroyed bool
	statuses  *event.Emitter[Status]
	detach    []func()
}

// New wires doc and presence to channel and subscribes immediately.
func New(
	doc *crdt.Doc,
	presence *awareness.Awareness,
	channel relay.Channel,
	settings *Settings,
	logger logrus.FieldLogger,
) (*Provider, error) {
	if doc == nil || presence == nil || channel == nil {
		return nil, errors.New("provider requires a document, awareness and channel")
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	metrics := settings.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	peerID := ulid.Make().String()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		ctx:       ctx,
		cancel:    cancel,
		peerID:    peerID,
		doc:       doc,
		awareness: presence,
		channel:   channel,
		settings:  settings,
		metrics:   metrics,
		logger:    logger.WithFields(logrus.Fields{"peer": peerID, "client": doc.ClientID()}),
		status:    StatusDisconnected,
		statuses:  event.NewEmitter[Status](logger),
	}

	p.detach = append(p.detach,
		doc.OnUpdate(p.onDocUpdate),
		presence.OnUpdate(p.onAwarenessUpdate),
	)

	p.setStatus(StatusConnecting)
	if err := channel.Subscribe(p.handleMessage, p.handleStatus); err != nil {
		p.setStatus(StatusDisconnected)
		for _, fn := range p.detach {
			fn()
		}
		cancel()
		return nil, errors.Wrap(err, "failed to subscribe to relay channel")
	}

	p.startTickers()
	return p, nil
}

// PeerID is the origin tag this provider applies remote deltas with.
func (p *Provider) PeerID() string {
	return p.peerID
}

func (p *Provider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// OnStatus subscribes to status transitions.
func (p *Provider) OnStatus(fn func(Status)) (unsubscribe func()) {
	return p.statuses.Subscribe(fn)
}

// Resync announces the local state vector so peers answer with whatever
// this replica is missing.
func (p *Provider) Resync() {
	p.sendSyncStep1()
}

// Destroy announces that the local client left, unsubscribes from the relay
// and detaches every listener. No frame is handled or sent afterwards.
func (p *Provider) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	// Broadcast the departure while the listeners are still attached.
	p.awareness.RemoveStates([]crdt.ClientID{p.awareness.ClientID()}, crdt.LocalOrigin)

	p.mu.Lock()
	detach := p.detach
	p.detach = nil
	p.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	if err := p.channel.Unsubscribe(); err != nil {
		p.logger.WithError(err).Warn("relay unsubscribe failed")
	}
	p.setStatus(StatusDisconnected)
	p.statuses.Clear()
}

func (p *Provider) isDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *Provider) setStatus(status Status) {
	p.mu.Lock()
	if p.status == status {
		p.mu.Unlock()
		return
	}
	p.status = status
	p.mu.Unlock()

	p.logger.WithField("status", status.String()).Debug("provider status changed")
	p.statuses.Publish(status)
}

func (p *Provider) startTickers() {
	if p.settings.PresenceCheckInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			ticker := time.NewTicker(p.settings.PresenceCheckInterval)
			defer ticker.Stop()
			for {
				select {
				case <-p.ctx.Done():
					return
				case <-ticker.C:
					p.awareness.CheckOutdated()
				}
			}
		}()
	}
	if p.settings.ResyncInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			ticker := time.NewTicker(p.settings.ResyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-p.ctx.Done():
					return
				case <-ticker.C:
					if p.Status() == StatusSynced {
						p.sendSyncStep1()
					}
				}
			}
		}()
	}
}

func (p *Provider) handleStatus(status relay.Status, err error) {
	if p.isDestroyed() {
		return
	}
	switch status {
	case relay.StatusSubscribed:
		p.setStatus(StatusSynced)
		p.sendSyncStep1()
		p.announcePresence()
	case relay.StatusChannelError:
		p.logger.WithError(err).Warn("relay channel error")
		p.setStatus(StatusConnecting)
	case relay.StatusClosed:
		p.setStatus(StatusDisconnected)
	}
}

func (p *Provider) announcePresence() {
	if p.awareness.LocalState() == nil {
		return
	}
	update, err := p.awareness.EncodeUpdate([]crdt.ClientID{p.awareness.ClientID()})
	if err != nil {
		p.logger.WithError(err).Error("failed to encode presence")
		return
	}
	p.send(protocol.MessageAwareness, update)
}

func (p *Provider) sendSyncStep1() {
	sv, err := p.doc.EncodeStateVector()
	if err != nil {
		p.logger.WithError(err).Error("failed to encode state vector")
		return
	}
	p.send(protocol.MessageSyncStep1, sv)
}

// send is fire-and-forget: failures are logged and counted, never returned.
func (p *Provider) send(t protocol.MessageType, payload []byte) {
	if p.Status() != StatusSynced {
		p.metrics.MessagesDropped.WithLabelValues(dropNotSynced).Inc()
		p.logger.WithField("type", t.String()).Warn("dropping outbound message while not synced")
		return
	}
	if err := p.channel.Send(protocol.Encode(t, payload)); err != nil {
		p.metrics.MessagesDropped.WithLabelValues(dropSendError).Inc()
		p.logger.WithError(err).WithField("type", t.String()).Warn("relay send failed")
		return
	}
	p.metrics.MessagesSent.WithLabelValues(t.String()).Inc()
}

func (p *Provider) onDocUpdate(e crdt.UpdateEvent) {
	if e.Origin == crdt.RemoteOrigin(p.peerID) {
		return
	}
	p.send(protocol.MessageUpdate, e.Update)
}

func (p *Provider) onAwarenessUpdate(ch awareness.Change) {
	if ch.Origin.IsRemote() {
		return
	}
	update, err := p.awareness.EncodeUpdate(ch.Clients())
	if err != nil {
		p.logger.WithError(err).Error("failed to encode presence")
		return
	}
	p.send(protocol.MessageAwareness, update)
}

func (p *Provider) handleMessage(frame []byte) {
	if p.isDestroyed() {
		return
	}
	msg, err := protocol.Decode(frame)
	if err != nil {
		p.drop(err)
		return
	}
	p.metrics.MessagesReceived.WithLabelValues(msg.Type.String()).Inc()
	origin := crdt.RemoteOrigin(p.peerID)

	switch msg.Type {
	case protocol.MessageSyncStep1:
		remote, err := crdt.DecodeStateVector(msg.Payload)
		if err != nil {
			p.drop(err)
			return
		}
		update, err := p.doc.EncodeStateAsUpdate(remote)
		if err != nil {
			p.logger.WithError(err).Error("failed to encode sync step 2")
			return
		}
		p.send(protocol.MessageSyncStep2, update)
		if !p.doc.StateVector().Covers(remote) {
			p.sendSyncStep1()
		}
		// A SyncStep1 usually means a peer just joined.
		p.announcePresence()
	case protocol.MessageSyncStep2, protocol.MessageUpdate:
		if err := p.doc.ApplyUpdate(msg.Payload, origin); err != nil {
			p.drop(err)
		}
	case protocol.MessageAwareness:
		if err := p.awareness.ApplyUpdate(msg.Payload, origin); err != nil {
			p.drop(err)
		}
	}
}

func (p *Provider) drop(err error) {
	p.metrics.MessagesDropped.WithLabelValues(dropMalformed).Inc()
	p.logger.WithError(err).Debug("dropping malformed frame")
}
