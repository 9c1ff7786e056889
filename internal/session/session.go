// Package session holds the application context: the signed-in user, the
// open document with its engine, projector and presence state, and the sync
// provider. Components receive it explicitly; there is no global store.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"nestnote/local-app/internal/awareness"
	"nestnote/local-app/internal/config"
	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/provider"
	"nestnote/local-app/internal/relay"
	"nestnote/local-app/internal/storage"
	"nestnote/local-app/internal/tree"
	"nestnote/local-app/internal/view"
)

var (
	ErrNotSignedIn        = errors.New("session: no signed-in user")
	ErrNoDocument         = errors.New("session: no open document")
	ErrInvalidCredentials = errors.New("session: invalid username or password")
	ErrNoRelay            = errors.New("session: no relay configured")
)

// ChannelFactory opens the relay channel with the given name.
type ChannelFactory func(name string) (relay.Channel, error)

type Session struct {
	ID           string
	LastActivity time.Time

	cfg      *config.Config
	logger   logrus.FieldLogger
	store    storage.Store
	channels ChannelFactory
	metrics  *provider.Metrics

	mu        sync.Mutex
	user      *model.User
	document  *model.Document
	doc       *crdt.Doc
	engine    *tree.Engine
	projector *view.Projector
	presence  *awareness.Awareness
	provider  *provider.Provider
	focus     model.Focus
	detach    []func()
}

type Option func(*Session)

// WithChannels enables StartSync through factory.
func WithChannels(factory ChannelFactory) Option {
	return func(s *Session) { s.channels = factory }
}

// WithMetrics shares provider metrics across the documents a session opens.
func WithMetrics(m *provider.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func New(cfg *config.Config, logger logrus.FieldLogger, store storage.Store, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := ulid.Make().String()
	s := &Session{
		ID:           id,
		LastActivity: time.Now(),
		cfg:          cfg,
		logger:       logger.WithField("session", id),
		store:        store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = provider.NewMetrics(nil)
	}
	return s
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// SignIn authenticates against the local user store.
func (s *Session) SignIn(username, password string) error {
	s.touch()
	ok, err := s.store.UserAuthenticate(username, password)
	if err != nil {
		return errors.Wrap(err, "failed to authenticate")
	}
	if !ok {
		return ErrInvalidCredentials
	}
	user, err := s.store.UserGet(username)
	if err != nil {
		return err
	}

	s.CloseDocument()
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.logger.WithField("user", username).Info("signed in")
	return nil
}

// SignOut closes the open document and forgets the user.
func (s *Session) SignOut() {
	s.CloseDocument()
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) requireUser() (*model.User, error) {
	user := s.User()
	if user == nil {
		return nil, ErrNotSignedIn
	}
	return user, nil
}

// DocumentCreate adds a document owned by the signed-in user.
func (s *Session) DocumentCreate(title string) (*model.Document, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	doc := &model.Document{Title: title, Owner: user.Username, RootID: tree.DefaultRootID}
	if err := s.store.DocumentAdd(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Session) DocumentList() ([]*model.Document, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.store.DocumentList(user.Username)
}

// OpenDocument makes docID the active document. A fresh replica is built and
// hydrated once from the stored snapshot, then autosaved after every change.
func (s *Session) OpenDocument(docID string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	meta, err := s.store.DocumentGet(docID)
	if err != nil {
		return err
	}
	if meta.Owner != user.Username {
		return errors.Wrapf(storage.ErrNotFound, "document %q", docID)
	}
	snapshot, state, err := s.store.SnapshotLoad(docID)
	if err != nil {
		return err
	}

	s.CloseDocument()
	s.touch()

	logger := s.logger.WithField("document", docID)
	doc := crdt.NewDoc(crdt.WithLogger(logger))
	engine := tree.NewEngine(doc,
		tree.WithLogger(logger),
		tree.WithBehavior(s.cfg.Behavior),
		tree.WithRootID(meta.RootID),
	)
	restored, err := engine.Restore(state)
	if err != nil {
		logger.WithError(err).Warn("saved state unreadable, falling back to node snapshot")
	}
	if !restored && engine.Hydrate(snapshot) {
		logger.WithField("nodes", len(snapshot)).Debug("replayed node snapshot")
	}
	presence := awareness.New(doc.ClientID(),
		awareness.WithLogger(logger),
		awareness.WithTimeout(time.Duration(s.cfg.PresenceTimeout)),
	)
	presence.SetLocalState(awareness.State{"user": user.Username, "document": docID})
	projector := view.NewProjector(doc, engine, logger)

	s.mu.Lock()
	s.document = meta
	s.doc = doc
	s.engine = engine
	s.projector = projector
	s.presence = presence
	s.focus = model.Focus{}
	s.detach = append(s.detach, doc.OnChange(func(crdt.ChangeEvent) {
		if err := s.SaveSnapshot(); err != nil {
			logger.WithError(err).Error("autosave failed")
		}
	}))
	s.mu.Unlock()
	return nil
}

// CloseDocument stops sync, saves and tears down the open document.
func (s *Session) CloseDocument() {
	s.StopSync()
	if err := s.SaveSnapshot(); err != nil && errors.Cause(err) != ErrNoDocument {
		s.logger.WithError(err).Error("failed to save snapshot on close")
	}

	s.mu.Lock()
	detach := s.detach
	projector, doc, presence := s.projector, s.doc, s.presence
	s.detach = nil
	s.document, s.doc, s.engine, s.projector, s.presence = nil, nil, nil, nil, nil
	s.focus = model.Focus{}
	s.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	if projector != nil {
		projector.Close()
	}
	if presence != nil {
		presence.Destroy()
	}
	if doc != nil {
		doc.Destroy()
	}
}

func (s *Session) Document() *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

func (s *Session) Engine() (*tree.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil, ErrNoDocument
	}
	return s.engine, nil
}

func (s *Session) Projector() (*view.Projector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projector == nil {
		return nil, ErrNoDocument
	}
	return s.projector, nil
}

func (s *Session) Presence() (*awareness.Awareness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presence == nil {
		return nil, ErrNoDocument
	}
	return s.presence, nil
}

func (s *Session) Provider() *provider.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *Session) Focus() model.Focus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

// SetFocus records where input goes and publishes it as the local cursor.
func (s *Session) SetFocus(f model.Focus) {
	s.mu.Lock()
	s.focus = f
	presence := s.presence
	s.mu.Unlock()
	if presence != nil && f.ID != "" {
		presence.SetLocalStateField("cursor", fmt.Sprintf("%s:%d", f.ID, f.Cursor))
	}
}

// SaveSnapshot stores the current outline of the open document together
// with its full history.
func (s *Session) SaveSnapshot() error {
	s.mu.Lock()
	engine, document := s.engine, s.document
	s.mu.Unlock()
	if engine == nil || document == nil {
		return ErrNoDocument
	}

	o := engine.Outline()
	nodes := make([]*model.Node, 0, len(o.Nodes))
	for _, id := range o.Subtree(o.RootID) {
		nodes = append(nodes, o.Nodes[id])
	}
	state, err := engine.Doc().EncodeStateAsUpdate(nil)
	if err != nil {
		return errors.Wrap(err, "failed to encode document state")
	}
	return s.store.SnapshotSave(document.ID, nodes, state)
}

// StartSync connects the open document to the relay. It is refused unless a
// user is signed in.
func (s *Session) StartSync() error {
	if _, err := s.requireUser(); err != nil {
		return err
	}
	if s.channels == nil {
		return ErrNoRelay
	}
	channel, err := func() (relay.Channel, error) {
		document := s.Document()
		if document == nil {
			return nil, ErrNoDocument
		}
		return s.channels(s.cfg.Channel(document.ID))
	}()
	if err != nil {
		return err
	}
	return s.StartSyncWith(channel)
}

// StartSyncWith connects the open document through an existing channel.
func (s *Session) StartSyncWith(channel relay.Channel) error {
	if _, err := s.requireUser(); err != nil {
		return err
	}
	s.StopSync()

	s.mu.Lock()
	doc, presence := s.doc, s.presence
	s.mu.Unlock()
	if doc == nil {
		return ErrNoDocument
	}

	settings := &provider.Settings{
		ResyncInterval:        time.Duration(s.cfg.ResyncInterval),
		PresenceCheckInterval: time.Duration(s.cfg.PresenceTimeout) / 10,
		Metrics:               s.metrics,
	}
	p, err := provider.New(doc, presence, channel, settings, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()
	return nil
}

func (s *Session) StopSync() {
	s.mu.Lock()
	p := s.provider
	s.provider = nil
	s.mu.Unlock()
	if p != nil {
		p.Destroy()
	}
}

// Close releases everything the session holds.
func (s *Session) Close() {
	s.CloseDocument()
}
