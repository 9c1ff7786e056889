// Package relay provides the broadcast channel the sync transport rides on.
// A channel delivers arbitrary byte payloads to every other subscriber of
// the same channel name, with no ordering, delivery or persistence
// guarantees.
package relay

import (
	"github.com/pkg/errors"
)

// Status is a channel lifecycle notification.
type Status int

const (
	StatusSubscribed Status = iota
	StatusClosed
	StatusChannelError
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusClosed:
		return "closed"
	case StatusChannelError:
		return "channel_error"
	default:
		return "unknown"
	}
}

var (
	ErrNotSubscribed     = errors.New("relay: channel is not subscribed")
	ErrAlreadySubscribed = errors.New("relay: channel is already subscribed")
)

// MessageHandler receives one inbound payload.
type MessageHandler func(payload []byte)

// StatusHandler receives lifecycle changes. err is set for StatusChannelError.
type StatusHandler func(status Status, err error)

// Channel is the relay primitive consumed by the sync transport.
type Channel interface {
	// Subscribe starts delivery. StatusSubscribed is reported through
	// onStatus, possibly more than once if the channel reconnects.
	Subscribe(onMessage MessageHandler, onStatus StatusHandler) error
	// Send broadcasts payload to the other subscribers.
	Send(payload []byte) error
	// Unsubscribe stops delivery and reports StatusClosed. No handler is
	// called afterwards.
	Unsubscribe() error
}
