package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"nestnote/local-app/internal/log"
	"nestnote/local-app/internal/model"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultSessionTimeout  = 30 * time.Minute
)

var ErrSessionNotFound = errors.New("session: not found")

// Manager owns the live sessions and runs every command on one goroutine, so
// document mutations never interleave.
type Manager struct {
	newSession func() *Session
	logger     *log.Logger
	timeout    time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	commandQueue chan commandExecution
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

type commandExecution struct {
	session *Session
	command model.Command
	reply   chan commandResult
}

type commandResult struct {
	reply *Reply
	err   error
}

// NewManager starts the command executor and the idle-session cleanup.
// newSession builds each session added with SessionAdd.
func NewManager(newSession func() *Session, logger *log.Logger) *Manager {
	m := &Manager{
		newSession:   newSession,
		logger:       logger,
		timeout:      defaultSessionTimeout,
		sessions:     make(map[string]*Session),
		commandQueue: make(chan commandExecution),
		done:         make(chan struct{}),
	}
	m.wg.Add(2)
	go m.commandExecutor()
	go m.cleanupRoutine(defaultCleanupInterval)
	return m
}

// SessionAdd creates a session and returns its id.
func (m *Manager) SessionAdd() string {
	s := m.newSession()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.WithField("session", s.ID).Debug("session added")
	return s.ID
}

func (m *Manager) SessionGet(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionDelete closes and forgets a session.
func (m *Manager) SessionDelete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		m.logger.WithField("session", id).Warn("attempted to delete unknown session")
		return
	}
	s.Close()
}

// SessionRun queues cmd for the session and waits for its reply.
func (m *Manager) SessionRun(id string, cmd model.Command) (*Reply, error) {
	s, ok := m.SessionGet(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	m.logger.LogCommand(commandLine(cmd))

	exec := commandExecution{session: s, command: cmd, reply: make(chan commandResult, 1)}
	select {
	case m.commandQueue <- exec:
	case <-m.done:
		return nil, errors.New("session manager closed")
	}
	res := <-exec.reply
	if res.err != nil {
		m.logger.WithField("session", id).WithError(res.err).Debug("command failed")
	}
	return res.reply, res.err
}

func (m *Manager) commandExecutor() {
	defer m.wg.Done()
	for {
		select {
		case exec := <-m.commandQueue:
			reply, err := exec.session.CommandRun(exec.command)
			exec.reply <- commandResult{reply: reply, err: err}
		case <-m.done:
			return
		}
	}
}

func (m *Manager) cleanupRoutine(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanupInactiveSessions(time.Now())
		case <-m.done:
			return
		}
	}
}

func (m *Manager) cleanupInactiveSessions(now time.Time) {
	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.LastActivity)
		s.mu.Unlock()
		if idle > m.timeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.WithField("session", id).Info("removing inactive session")
		m.SessionDelete(id)
	}
}

// Close stops the background goroutines and closes every session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.mu.Lock()
		ids := make([]string, 0, len(m.sessions))
		for id := range m.sessions {
			ids = append(ids, id)
		}
		m.mu.Unlock()
		for _, id := range ids {
			m.SessionDelete(id)
		}
	})
}

// commandLine renders cmd for the command log with credentials masked.
func commandLine(cmd model.Command) string {
	args := cmd.Args
	switch cmd.Operation {
	case "login", "register":
		if len(args) > 1 {
			args = append(append([]string(nil), args[:1]...), "***")
		}
	}
	parts := append([]string{cmd.Operation}, args...)
	var flags []string
	for flag, set := range cmd.Flags {
		if set {
			flags = append(flags, "--"+flag)
		}
	}
	sort.Strings(flags)
	return strings.Join(append(parts, flags...), " ")
}
