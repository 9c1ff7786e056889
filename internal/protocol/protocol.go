// Package protocol frames sync traffic: every frame is a varint message tag
// followed by the raw payload.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// MessageType identifies the kind of a frame.
type MessageType uint64

const (
	// MessageSyncStep1 carries the sender's encoded state vector.
	MessageSyncStep1 MessageType = iota
	// MessageSyncStep2 carries the delta the SyncStep1 sender is missing.
	MessageSyncStep2
	// MessageUpdate carries the delta of one local transaction.
	MessageUpdate
	// MessageAwareness carries an encoded presence delta.
	MessageAwareness
)

var ErrMalformed = errors.New("protocol: malformed frame")

func (t MessageType) String() string {
	switch t {
	case MessageSyncStep1:
		return "sync_step1"
	case MessageSyncStep2:
		return "sync_step2"
	case MessageUpdate:
		return "update"
	case MessageAwareness:
		return "awareness"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(t))
	}
}

// Message is a decoded frame.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Encode builds a frame.
func Encode(t MessageType, payload []byte) []byte {
	frame := make([]byte, 0, binary.MaxVarintLen64+len(payload))
	frame = binary.AppendUvarint(frame, uint64(t))
	return append(frame, payload...)
}

// Decode splits a frame into its tag and payload.
func Decode(frame []byte) (Message, error) {
	tag, n := binary.Uvarint(frame)
	if n <= 0 {
		return Message{}, errors.Wrap(ErrMalformed, "bad message tag")
	}
	t := MessageType(tag)
	if t > MessageAwareness {
		return Message{}, errors.Wrapf(ErrMalformed, "unknown message type %d", tag)
	}
	return Message{Type: t, Payload: frame[n:]}, nil
}
