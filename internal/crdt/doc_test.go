package crdt

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDoc(t *testing.T, id ClientID) *Doc {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewDoc(WithClientID(id), WithLogger(logger))
}

func getString(r Reader, key, field string) string {
	var s string
	r.Get(key, field, &s)
	return s
}

func TestTransactPublishesOncePerTransaction(t *testing.T) {
	d := newTestDoc(t, 1)
	var updates []UpdateEvent
	var changes []ChangeEvent
	d.OnUpdate(func(e UpdateEvent) { updates = append(updates, e) })
	d.OnChange(func(e ChangeEvent) { changes = append(changes, e) })

	d.Transact(LocalOrigin, func(tx *Txn) {
		tx.Set("a", "content", "hello")
		tx.Set("b", "content", "world")
		assert.Equal(t, "hello", getString(tx, "a", "content"))
	})
	require.Len(t, updates, 1)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"a", "b"}, changes[0].Keys)
	assert.Equal(t, LocalOrigin, changes[0].Origin)

	d.Transact(LocalOrigin, func(tx *Txn) {})
	d.Transact(LocalOrigin, func(tx *Txn) { tx.Set("a", "content", "hello") })
	assert.Len(t, updates, 1, "empty and unchanged transactions publish nothing")
	assert.Equal(t, StateVector{1: 2}, d.StateVector())
}

func TestLastWriteInTransactionWins(t *testing.T) {
	a := newTestDoc(t, 1)
	var update []byte
	a.OnUpdate(func(e UpdateEvent) { update = e.Update })
	a.Transact(LocalOrigin, func(tx *Txn) {
		tx.Set("n", "parent", "x")
		tx.Set("n", "parent", "y")
	})
	a.View(func(r Reader) { assert.Equal(t, "y", getString(r, "n", "parent")) })

	b := newTestDoc(t, 2)
	require.NoError(t, b.ApplyUpdate(update, RemoteOrigin("a")))
	b.View(func(r Reader) { assert.Equal(t, "y", getString(r, "n", "parent")) })
}

func TestApplyUpdateIsIdempotent(t *testing.T) {
	a := newTestDoc(t, 1)
	var update []byte
	a.OnUpdate(func(e UpdateEvent) { update = e.Update })
	a.Transact(LocalOrigin, func(tx *Txn) {
		tx.Set("n", "content", "x")
		tx.Set("n", "collapsed", true)
	})

	b := newTestDoc(t, 2)
	events := 0
	b.OnChange(func(ChangeEvent) { events++ })
	require.NoError(t, b.ApplyUpdate(update, RemoteOrigin("a")))
	once := b.Entries()
	require.NoError(t, b.ApplyUpdate(update, RemoteOrigin("a")))
	assert.Equal(t, once, b.Entries())
	assert.Equal(t, 1, events)
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestConcurrentWritesConverge(t *testing.T) {
	a := newTestDoc(t, 1)
	b := newTestDoc(t, 2)

	a.Transact(LocalOrigin, func(tx *Txn) { tx.Set("n", "content", "from a") })
	b.Transact(LocalOrigin, func(tx *Txn) { tx.Set("n", "content", "from b") })

	toB, err := a.EncodeStateAsUpdate(b.StateVector())
	require.NoError(t, err)
	toA, err := b.EncodeStateAsUpdate(a.StateVector())
	require.NoError(t, err)

	require.NoError(t, b.ApplyUpdate(toB, RemoteOrigin("a")))
	require.NoError(t, a.ApplyUpdate(toA, RemoteOrigin("b")))

	assert.Equal(t, a.Entries(), b.Entries())
	a.View(func(r Reader) {
		assert.Equal(t, "from b", getString(r, "n", "content"), "equal lamport: higher client id wins")
	})
	assert.Equal(t, a.StateVector(), b.StateVector())
}

func TestOutOfOrderDelivery(t *testing.T) {
	a := newTestDoc(t, 1)
	var updates [][]byte
	a.OnUpdate(func(e UpdateEvent) { updates = append(updates, e.Update) })
	a.Transact(LocalOrigin, func(tx *Txn) { tx.Set("n", "content", "one") })
	a.Transact(LocalOrigin, func(tx *Txn) { tx.Set("n", "content", "two") })
	require.Len(t, updates, 2)

	b := newTestDoc(t, 2)
	require.NoError(t, b.ApplyUpdate(updates[1], RemoteOrigin("a")))
	assert.Equal(t, uint64(0), b.StateVector()[1], "gap keeps the vector behind")
	b.View(func(r Reader) { assert.Equal(t, "two", getString(r, "n", "content")) })

	require.NoError(t, b.ApplyUpdate(updates[0], RemoteOrigin("a")))
	assert.Equal(t, uint64(2), b.StateVector()[1])
	b.View(func(r Reader) { assert.Equal(t, "two", getString(r, "n", "content")) })
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestLamportOrdersCausalWrites(t *testing.T) {
	a := newTestDoc(t, 9)
	b := newTestDoc(t, 1)
	var update []byte
	a.OnUpdate(func(e UpdateEvent) { update = e.Update })
	a.Transact(LocalOrigin, func(tx *Txn) { tx.Set("n", "content", "a") })
	require.NoError(t, b.ApplyUpdate(update, RemoteOrigin("a")))

	// b saw a's write, so its overwrite must win despite the lower client id.
	b.Transact(LocalOrigin, func(tx *Txn) { tx.Set("n", "content", "b") })
	sync, err := b.EncodeStateAsUpdate(a.StateVector())
	require.NoError(t, err)
	require.NoError(t, a.ApplyUpdate(sync, RemoteOrigin("b")))
	a.View(func(r Reader) { assert.Equal(t, "b", getString(r, "n", "content")) })
}

func TestMalformedUpdate(t *testing.T) {
	d := newTestDoc(t, 1)
	assert.ErrorIs(t, d.ApplyUpdate([]byte{0xff, 0x00}, RemoteOrigin("x")), ErrMalformedUpdate)

	bad, err := encodeOps([]Op{{ID: ID{Client: 3, Clock: 0}, Key: "k", Field: "f", Value: []byte{0x01}}})
	require.NoError(t, err)
	assert.ErrorIs(t, d.ApplyUpdate(bad, RemoteOrigin("x")), ErrMalformedUpdate)
	assert.True(t, d.IsEmpty())
}

func TestStateVectorCodec(t *testing.T) {
	sv := StateVector{1: 4, 77: 2}
	b, err := EncodeStateVector(sv)
	require.NoError(t, err)
	got, err := DecodeStateVector(b)
	require.NoError(t, err)
	assert.Equal(t, sv, got)

	assert.True(t, sv.Covers(StateVector{1: 3}))
	assert.False(t, sv.Covers(StateVector{1: 5}))
	assert.False(t, sv.Covers(StateVector{2: 1}))
	assert.True(t, sv.Covers(StateVector{}))

	_, err = DecodeStateVector([]byte{0xff})
	assert.ErrorIs(t, err, ErrMalformedUpdate)
}

func TestEncodeStateAsUpdateNilIsFullHistory(t *testing.T) {
	a := newTestDoc(t, 1)
	a.Transact(LocalOrigin, func(tx *Txn) { tx.Set("k", "f", int64(3)) })
	full, err := a.EncodeStateAsUpdate(nil)
	require.NoError(t, err)
	ops, err := DecodeUpdate(full)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	none, err := a.EncodeStateAsUpdate(a.StateVector())
	require.NoError(t, err)
	ops, err = DecodeUpdate(none)
	require.NoError(t, err)
	assert.Empty(t, ops)
}
