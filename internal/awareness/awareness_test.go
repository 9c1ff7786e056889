package awareness

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestnote/local-app/internal/crdt"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newPair(t *testing.T) (*Awareness, *Awareness, *fakeClock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := New(1, WithClock(clk.now), WithLogger(logger), WithTimeout(30*time.Second))
	b := New(2, WithClock(clk.now), WithLogger(logger), WithTimeout(30*time.Second))
	return a, b, clk
}

func relay(t *testing.T, from, to *Awareness, clients ...crdt.ClientID) {
	t.Helper()
	update, err := from.EncodeUpdate(clients)
	require.NoError(t, err)
	require.NoError(t, to.ApplyUpdate(update, crdt.RemoteOrigin("peer")))
}

func TestPropagateState(t *testing.T) {
	a, b, _ := newPair(t)

	var changes []Change
	b.OnChange(func(c Change) { changes = append(changes, c) })

	a.SetLocalStateField("user", "ana")
	relay(t, a, b, a.ClientID())

	require.Len(t, changes, 1)
	assert.Equal(t, []crdt.ClientID{1}, changes[0].Added)
	assert.Equal(t, "ana", b.States()[1]["user"])

	a.SetLocalStateField("cursor", "node-1:3")
	relay(t, a, b, a.ClientID())
	require.Len(t, changes, 2)
	assert.Equal(t, []crdt.ClientID{1}, changes[1].Updated)
	assert.Equal(t, "node-1:3", b.States()[1]["cursor"])
}

func TestStaleClockIsIgnored(t *testing.T) {
	a, b, _ := newPair(t)
	a.SetLocalStateField("v", "1")
	old, err := a.EncodeUpdate([]crdt.ClientID{1})
	require.NoError(t, err)
	a.SetLocalStateField("v", "2")
	relay(t, a, b, 1)

	require.NoError(t, b.ApplyUpdate(old, crdt.RemoteOrigin("peer")))
	assert.Equal(t, "2", b.States()[1]["v"])
}

func TestOwnEntryIsIgnored(t *testing.T) {
	a, b, _ := newPair(t)
	a.SetLocalStateField("v", "mine")

	// b forwards a table containing a's entry with a forged state.
	relay(t, a, b, 1)
	forged := New(1)
	forged.SetLocalStateField("v", "forged")
	for i := 0; i < 5; i++ {
		forged.SetLocalStateField("n", i)
	}
	relay(t, forged, a, 1)

	assert.Equal(t, "mine", a.LocalState()["v"])
}

func TestRemovalPropagates(t *testing.T) {
	a, b, _ := newPair(t)
	relay(t, a, b, 1)
	require.Contains(t, b.States(), crdt.ClientID(1))

	var removed []crdt.ClientID
	b.OnChange(func(c Change) { removed = append(removed, c.Removed...) })

	a.SetLocalState(nil)
	relay(t, a, b, 1)
	assert.NotContains(t, b.States(), crdt.ClientID(1))
	assert.Equal(t, []crdt.ClientID{1}, removed)
}

func TestCheckOutdated(t *testing.T) {
	a, b, clk := newPair(t)
	relay(t, a, b, 1)

	var updates []Change
	a.OnUpdate(func(c Change) { updates = append(updates, c) })

	clk.advance(16 * time.Second)
	a.CheckOutdated()
	require.Len(t, updates, 1, "local state is renewed after half the timeout")
	assert.Equal(t, []crdt.ClientID{1}, updates[0].Updated)

	clk.advance(10 * time.Second)
	b.CheckOutdated()
	assert.Contains(t, b.States(), crdt.ClientID(1), "not yet stale")

	clk.advance(5 * time.Second)
	var removed []crdt.ClientID
	b.OnChange(func(c Change) { removed = append(removed, c.Removed...) })
	b.CheckOutdated()
	assert.NotContains(t, b.States(), crdt.ClientID(1))
	assert.Equal(t, []crdt.ClientID{1}, removed)
	assert.Contains(t, b.States(), crdt.ClientID(2), "own entry never expires")
}

func TestMalformedAwarenessUpdate(t *testing.T) {
	a, _, _ := newPair(t)
	assert.ErrorIs(t, a.ApplyUpdate([]byte{0xff}, crdt.RemoteOrigin("x")), ErrMalformedUpdate)
}

func TestDestroy(t *testing.T) {
	a, _, _ := newPair(t)
	var removed []crdt.ClientID
	a.OnUpdate(func(c Change) { removed = append(removed, c.Removed...) })
	a.Destroy()
	assert.Nil(t, a.LocalState())
	assert.Equal(t, []crdt.ClientID{1}, removed)

	a.SetLocalStateField("v", "again")
	assert.Equal(t, []crdt.ClientID{1}, removed, "subscribers are dropped after the removal is published")
}
