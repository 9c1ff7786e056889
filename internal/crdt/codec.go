package crdt

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var ErrMalformedUpdate = errors.New("crdt: malformed update")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 24}).DecMode(); err != nil {
		panic(err)
	}
}

// Marshal encodes a register value.
func Marshal(v any) (cbor.RawMessage, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a register value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func encodeOps(ops []Op) ([]byte, error) {
	b, err := encMode.Marshal(updateMessage{Ops: ops})
	if err != nil {
		return nil, errors.Wrap(err, "encode update")
	}
	return b, nil
}

// DecodeUpdate parses and validates a delta without applying it.
func DecodeUpdate(data []byte) ([]Op, error) {
	var msg updateMessage
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(ErrMalformedUpdate, err.Error())
	}
	for _, op := range msg.Ops {
		if op.ID.Clock == 0 || op.Key == "" || op.Field == "" || len(op.Value) == 0 {
			return nil, errors.Wrapf(ErrMalformedUpdate, "invalid op %d/%d", op.ID.Client, op.ID.Clock)
		}
	}
	return msg.Ops, nil
}

// EncodeStateVector serializes sv.
func EncodeStateVector(sv StateVector) ([]byte, error) {
	b, err := encMode.Marshal(map[ClientID]uint64(sv))
	if err != nil {
		return nil, errors.Wrap(err, "encode state vector")
	}
	return b, nil
}

// DecodeStateVector parses a serialized state vector.
func DecodeStateVector(data []byte) (StateVector, error) {
	sv := StateVector{}
	if err := decMode.Unmarshal(data, &sv); err != nil {
		return nil, errors.Wrap(ErrMalformedUpdate, err.Error())
	}
	return sv, nil
}

func sortOps(ops []Op) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].ID.Client != ops[j].ID.Client {
			return ops[i].ID.Client < ops[j].ID.Client
		}
		return ops[i].ID.Clock < ops[j].ID.Clock
	})
}
