package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type ServerSettings struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingTimeout    time.Duration
	SendBufferSize int
	MaxMessageSize int64
}

func DefaultServerSettings() *ServerSettings {
	return &ServerSettings{
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    30 * time.Second,
		PingTimeout:    10 * time.Second,
		SendBufferSize: 64,
		MaxMessageSize: 16 << 20,
	}
}

type member struct {
	ws      *websocket.Conn
	channel string
	send    chan []byte
}

// Server fans binary frames out to every other connection on the same
// channel. Nothing is stored; a member that falls behind loses frames.
type Server struct {
	settings *ServerSettings
	logger   logrus.FieldLogger
	metrics  *ServerMetrics
	router   *mux.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	channels map[string]map[*member]struct{}
}

// NewServer builds the relay handler. registry receives the relay metrics
// and is served on /metrics; a nil registry gets a private one.
func NewServer(settings *ServerSettings, logger logrus.FieldLogger, registry *prometheus.Registry) *Server {
	if settings == nil {
		settings = DefaultServerSettings()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Server{
		settings: settings,
		logger:   logger,
		metrics:  NewServerMetrics(registry),
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		channels: make(map[string]map[*member]struct{}),
	}
	s.router.HandleFunc("/relay/{channel}", s.handleRelay).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Members returns the number of connections on channel.
func (s *Server) Members(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels[channel])
}

// Close disconnects every member.
func (s *Server) Close() {
	s.mu.Lock()
	var conns []*websocket.Conn
	for _, members := range s.channels {
		for m := range members {
			conns = append(conns, m.ws)
		}
	}
	s.mu.Unlock()
	for _, ws := range conns {
		ws.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("relay upgrade failed")
		return
	}

	m := &member{
		ws:      ws,
		channel: channel,
		send:    make(chan []byte, s.settings.SendBufferSize),
	}
	s.join(m)
	logger := s.logger.WithFields(logrus.Fields{"channel": channel, "remote": r.RemoteAddr})
	logger.Debug("relay member joined")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(m)
	}()

	s.readLoop(m)
	s.leave(m)
	close(m.send)
	<-done
	ws.Close()
	logger.Debug("relay member left")
}

func (s *Server) readLoop(m *member) {
	m.ws.SetReadLimit(s.settings.MaxMessageSize)
	for {
		m.ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		messageType, message, err := m.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage || len(message) == 0 {
			continue
		}
		s.metrics.FramesTotal.WithLabelValues("in").Inc()
		s.broadcast(m, message)
	}
}

func (s *Server) writeLoop(m *member) {
	for {
		select {
		case message, ok := <-m.send:
			if !ok {
				return
			}
			m.ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := m.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
				m.ws.Close()
				s.drain(m)
				return
			}
			s.metrics.FramesTotal.WithLabelValues("out").Inc()
		case <-time.After(s.settings.PingTimeout):
			m.ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
			if err := m.ws.WriteMessage(websocket.BinaryMessage, []byte{}); err != nil {
				m.ws.Close()
				s.drain(m)
				return
			}
		}
	}
}

// drain discards frames until the read side closes m.send.
func (s *Server) drain(m *member) {
	for range m.send {
	}
}

func (s *Server) join(m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.channels[m.channel]
	if !ok {
		members = make(map[*member]struct{})
		s.channels[m.channel] = members
	}
	members[m] = struct{}{}
	s.metrics.Connections.Inc()
}

func (s *Server) leave(m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.channels[m.channel]
	delete(members, m)
	if len(members) == 0 {
		delete(s.channels, m.channel)
	}
	s.metrics.Connections.Dec()
}

func (s *Server) broadcast(from *member, message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.channels[from.channel] {
		if m == from {
			continue
		}
		select {
		case m.send <- message:
		default:
			s.metrics.FramesDropped.Inc()
		}
	}
}
