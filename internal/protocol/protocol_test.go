package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	for _, mt := range []MessageType{MessageSyncStep1, MessageSyncStep2, MessageUpdate, MessageAwareness} {
		t.Run(mt.String(), func(t *testing.T) {
			frame := Encode(mt, []byte{0xa1, 0x01, 0x02})
			assert.Equal(t, byte(mt), frame[0])

			msg, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, mt, msg.Type)
			assert.Equal(t, []byte{0xa1, 0x01, 0x02}, msg.Payload)
		})
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	msg, err := Decode(Encode(MessageUpdate, nil))
	require.NoError(t, err)
	assert.Equal(t, MessageUpdate, msg.Type)
	assert.Empty(t, msg.Payload)
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string][]byte{
		"empty":          {},
		"truncated tag":  {0x80},
		"unknown tag":    {0x09, 0x01},
		"multi byte tag": {0x80, 0x01},
	}
	for name, frame := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(frame)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "awareness", MessageAwareness.String())
	assert.Equal(t, "unknown(42)", MessageType(42).String())
}
