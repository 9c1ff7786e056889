package relay

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	messages [][]byte
	statuses []Status
}

func (r *recorder) onMessage(payload []byte) { r.messages = append(r.messages, payload) }
func (r *recorder) onStatus(s Status, err error) {
	r.statuses = append(r.statuses, s)
}

func TestHubDeliversToOthersOnly(t *testing.T) {
	hub := NewHub()
	a, b, c := hub.Channel("doc"), hub.Channel("doc"), hub.Channel("other")
	ra, rb, rc := &recorder{}, &recorder{}, &recorder{}
	require.NoError(t, a.Subscribe(ra.onMessage, ra.onStatus))
	require.NoError(t, b.Subscribe(rb.onMessage, rb.onStatus))
	require.NoError(t, c.Subscribe(rc.onMessage, rc.onStatus))

	assert.Equal(t, []Status{StatusSubscribed}, ra.statuses)

	require.NoError(t, a.Send([]byte("hi")))
	assert.Equal(t, 1, hub.Pending())
	assert.Equal(t, 1, hub.Flush())

	assert.Empty(t, ra.messages)
	assert.Equal(t, [][]byte{[]byte("hi")}, rb.messages)
	assert.Empty(t, rc.messages)
}

func TestHubSendBeforeSubscribe(t *testing.T) {
	hub := NewHub()
	a := hub.Channel("doc")
	assert.ErrorIs(t, a.Send([]byte("x")), ErrNotSubscribed)
}

func TestHubSubscribeTwice(t *testing.T) {
	hub := NewHub()
	a := hub.Channel("doc")
	r := &recorder{}
	require.NoError(t, a.Subscribe(r.onMessage, r.onStatus))
	assert.ErrorIs(t, a.Subscribe(r.onMessage, r.onStatus), ErrAlreadySubscribed)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	a, b := hub.Channel("doc"), hub.Channel("doc")
	ra, rb := &recorder{}, &recorder{}
	require.NoError(t, a.Subscribe(ra.onMessage, ra.onStatus))
	require.NoError(t, b.Subscribe(rb.onMessage, rb.onStatus))

	require.NoError(t, a.Send([]byte("queued")))
	require.NoError(t, b.Unsubscribe())
	assert.Equal(t, 0, hub.Flush())
	assert.Empty(t, rb.messages)
	assert.Equal(t, []Status{StatusSubscribed, StatusClosed}, rb.statuses)
	assert.ErrorIs(t, b.Send([]byte("x")), ErrNotSubscribed)
}

func TestHubInterruptRestore(t *testing.T) {
	hub := NewHub()
	a, b := hub.Channel("doc"), hub.Channel("doc")
	ra, rb := &recorder{}, &recorder{}
	require.NoError(t, a.Subscribe(ra.onMessage, ra.onStatus))
	require.NoError(t, b.Subscribe(rb.onMessage, rb.onStatus))

	b.Interrupt(errors.New("network"))
	require.NoError(t, a.Send([]byte("lost")))
	hub.Flush()
	assert.Empty(t, rb.messages)

	b.Restore()
	require.NoError(t, a.Send([]byte("seen")))
	hub.Flush()
	assert.Equal(t, [][]byte{[]byte("seen")}, rb.messages)
	assert.Equal(t, []Status{StatusSubscribed, StatusChannelError, StatusSubscribed}, rb.statuses)
}

func TestHubFaults(t *testing.T) {
	hub := NewHub()
	hub.SetFaults(Faults{Duplicate: 1}, rand.New(rand.NewSource(7)))
	a, b := hub.Channel("doc"), hub.Channel("doc")
	rb := &recorder{}
	require.NoError(t, a.Subscribe(func([]byte) {}, nil))
	require.NoError(t, b.Subscribe(rb.onMessage, rb.onStatus))

	require.NoError(t, a.Send([]byte("x")))
	hub.Flush()
	assert.Len(t, rb.messages, 2)

	hub.SetFaults(Faults{Drop: 1}, nil)
	require.NoError(t, a.Send([]byte("y")))
	hub.Flush()
	assert.Len(t, rb.messages, 2)

	hub.SetFaults(Faults{Shuffle: true}, nil)
	for i := 0; i < 20; i++ {
		require.NoError(t, a.Send([]byte{byte(i)}))
	}
	hub.Flush()
	assert.Len(t, rb.messages, 22)
}

func TestHubFlushDeliversReplies(t *testing.T) {
	hub := NewHub()
	a, b := hub.Channel("doc"), hub.Channel("doc")
	ra := &recorder{}
	require.NoError(t, a.Subscribe(ra.onMessage, nil))
	require.NoError(t, b.Subscribe(func(p []byte) {
		if string(p) == "ping" {
			b.Send([]byte("pong"))
		}
	}, nil))

	require.NoError(t, a.Send([]byte("ping")))
	assert.Equal(t, 2, hub.Flush())
	assert.Equal(t, [][]byte{[]byte("pong")}, ra.messages)
}
