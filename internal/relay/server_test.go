package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncRecorder struct {
	mu       sync.Mutex
	messages []string
	statuses []Status
}

func (r *syncRecorder) onMessage(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, string(payload))
}

func (r *syncRecorder) onStatus(s Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *syncRecorder) has(message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m == message {
			return true
		}
	}
	return false
}

func (r *syncRecorder) subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == StatusSubscribed {
			return true
		}
	}
	return false
}

func testSettings() *WebsocketSettings {
	return &WebsocketSettings{
		HandshakeTimeout: time.Second,
		ReconnectTimeout: 50 * time.Millisecond,
		PingTimeout:      time.Second,
		WriteTimeout:     time.Second,
		ReadTimeout:      5 * time.Second,
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	logger, _ := test.NewNullLogger()
	server := NewServer(nil, logger, prometheus.NewRegistry())
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})
	return server, ts
}

func TestChannelURL(t *testing.T) {
	u, err := ChannelURL("http://localhost:8080", "doc 1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/relay/doc%201", u)

	u, err = ChannelURL("wss://relay.example.com/base/", "d")
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/base/relay/d", u)

	_, err = ChannelURL("ftp://x", "d")
	assert.Error(t, err)
}

func TestWebsocketRelayRoundTrip(t *testing.T) {
	server, ts := newTestServer(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a, err := NewWebsocketChannel(context.Background(), ts.URL, "doc", testSettings(), logger)
	require.NoError(t, err)
	b, err := NewWebsocketChannel(context.Background(), ts.URL, "doc", testSettings(), logger)
	require.NoError(t, err)
	other, err := NewWebsocketChannel(context.Background(), ts.URL, "other", testSettings(), logger)
	require.NoError(t, err)

	ra, rb, ro := &syncRecorder{}, &syncRecorder{}, &syncRecorder{}
	require.NoError(t, a.Subscribe(ra.onMessage, ra.onStatus))
	require.NoError(t, b.Subscribe(rb.onMessage, rb.onStatus))
	require.NoError(t, other.Subscribe(ro.onMessage, ro.onStatus))
	defer a.Unsubscribe()
	defer b.Unsubscribe()
	defer other.Unsubscribe()

	require.Eventually(t, func() bool {
		return ra.subscribed() && rb.subscribed() && ro.subscribed() && server.Members("doc") == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Send([]byte("hello")))
	require.Eventually(t, func() bool { return rb.has("hello") }, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ra.has("hello"))
	assert.False(t, ro.has("hello"))
}

func TestWebsocketSendBeforeConnect(t *testing.T) {
	ch, err := NewWebsocketChannel(context.Background(), "http://127.0.0.1:1", "doc", testSettings(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ch.Send([]byte("x")), ErrNotSubscribed)
	require.NoError(t, ch.Unsubscribe())
}

func TestWebsocketUnsubscribeReportsClosed(t *testing.T) {
	server, ts := newTestServer(t)
	ch, err := NewWebsocketChannel(context.Background(), ts.URL, "doc", testSettings(), nil)
	require.NoError(t, err)
	r := &syncRecorder{}
	require.NoError(t, ch.Subscribe(r.onMessage, r.onStatus))
	require.Eventually(t, r.subscribed, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Unsubscribe())
	r.mu.Lock()
	last := r.statuses[len(r.statuses)-1]
	r.mu.Unlock()
	assert.Equal(t, StatusClosed, last)
	require.Eventually(t, func() bool { return server.Members("doc") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServerHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "nestnote_relay_connections")
}
