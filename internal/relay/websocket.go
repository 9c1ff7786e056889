package relay

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type WebsocketSettings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

func DefaultWebsocketSettings() *WebsocketSettings {
	return &WebsocketSettings{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
	}
}

// ChannelURL maps a relay base URL (http, https, ws or wss) and a channel
// name to the websocket endpoint served by Server.
func ChannelURL(relayURL string, channel string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid relay url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/relay/" + url.PathEscape(channel)
	return u.String(), nil
}

// WebsocketChannel is a Channel backed by a relay Server. It keeps
// reconnecting until Unsubscribe, reporting StatusSubscribed on every
// successful connect and StatusChannelError on every loss.
type WebsocketChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	settings *WebsocketSettings
	dialer   *websocket.Dialer
	logger   logrus.FieldLogger

	mu        sync.Mutex
	ws        *websocket.Conn
	started   bool
	closed    bool
	onMessage MessageHandler
	onStatus  StatusHandler
	done      chan struct{}

	writeMu sync.Mutex
}

func NewWebsocketChannel(
	ctx context.Context,
	relayURL string,
	channel string,
	settings *WebsocketSettings,
	logger logrus.FieldLogger,
) (*WebsocketChannel, error) {
	channelURL, err := ChannelURL(relayURL, channel)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = DefaultWebsocketSettings()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	return &WebsocketChannel{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      channelURL,
		settings: settings,
		dialer: &websocket.Dialer{
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		logger: logger.WithField("channel", channel),
		done:   make(chan struct{}),
	}, nil
}

func (self *WebsocketChannel) Subscribe(onMessage MessageHandler, onStatus StatusHandler) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.started {
		return ErrAlreadySubscribed
	}
	self.started = true
	self.onMessage = onMessage
	self.onStatus = onStatus
	go self.run()
	return nil
}

func (self *WebsocketChannel) Send(payload []byte) error {
	self.mu.Lock()
	ws := self.ws
	self.mu.Unlock()
	if ws == nil {
		return ErrNotSubscribed
	}
	return self.write(ws, payload)
}

func (self *WebsocketChannel) Unsubscribe() error {
	self.mu.Lock()
	if self.closed {
		self.mu.Unlock()
		return nil
	}
	self.closed = true
	started := self.started
	ws := self.ws
	onStatus := self.onStatus
	self.mu.Unlock()

	self.cancel()
	if ws != nil {
		ws.Close()
	}
	if started {
		<-self.done
	}
	if onStatus != nil {
		onStatus(StatusClosed, nil)
	}
	return nil
}

func (self *WebsocketChannel) write(ws *websocket.Conn, payload []byte) error {
	self.writeMu.Lock()
	defer self.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return errors.Wrap(err, "relay write failed")
	}
	return nil
}

func (self *WebsocketChannel) status(status Status, err error) {
	self.mu.Lock()
	onStatus := self.onStatus
	closed := self.closed
	self.mu.Unlock()
	if onStatus == nil || closed {
		return
	}
	onStatus(status, err)
}

func (self *WebsocketChannel) run() {
	defer close(self.done)

	for {
		ws, _, err := self.dialer.DialContext(self.ctx, self.url, nil)
		if err != nil {
			if self.ctx.Err() != nil {
				return
			}
			self.logger.WithError(err).Info("relay connect failed")
			self.status(StatusChannelError, err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
				continue
			}
		}

		self.mu.Lock()
		if self.closed {
			self.mu.Unlock()
			ws.Close()
			return
		}
		self.ws = ws
		self.mu.Unlock()

		self.status(StatusSubscribed, nil)
		err = self.handle(ws)

		self.mu.Lock()
		self.ws = nil
		self.mu.Unlock()
		ws.Close()

		if self.ctx.Err() != nil {
			return
		}
		self.logger.WithError(err).Info("relay connection lost")
		self.status(StatusChannelError, err)

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

// handle pumps one connection until it fails. Zero-length binary frames are
// keepalives in both directions.
func (self *WebsocketChannel) handle(ws *websocket.Conn) error {
	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	go func() {
		defer handleCancel()
		for {
			select {
			case <-handleCtx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
				if err := self.write(ws, []byte{}); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		<-handleCtx.Done()
		ws.Close()
	}()

	for {
		ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.BinaryMessage || len(message) == 0 {
			continue
		}
		self.mu.Lock()
		onMessage := self.onMessage
		closed := self.closed
		self.mu.Unlock()
		if onMessage != nil && !closed {
			onMessage(message)
		}
	}
}
