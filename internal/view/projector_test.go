package view

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestnote/local-app/internal/crdt"
	"nestnote/local-app/internal/model"
	"nestnote/local-app/internal/tree"
)

func setup(t *testing.T) (*crdt.Doc, *tree.Engine, *Projector) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	doc := crdt.NewDoc(crdt.WithClientID(1), crdt.WithLogger(logger))
	engine := tree.NewEngine(doc, tree.WithLogger(logger))
	p := NewProjector(doc, engine, logger)
	t.Cleanup(p.Close)
	return doc, engine, p
}

func ids(rows []model.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestProjectorFollowsTransactions(t *testing.T) {
	_, engine, p := setup(t)
	assert.Empty(t, p.Rows())

	var snapshots []Snapshot
	p.Subscribe(func(s Snapshot) { snapshots = append(snapshots, s) })

	a := engine.Add("", -1).Created
	require.Len(t, snapshots, 1)
	assert.Equal(t, []string{a}, ids(p.Rows()))

	a1 := engine.Add(a, -1).Created
	b := engine.Add("", -1).Created
	assert.Equal(t, []string{a, a1, b}, ids(p.Rows()))
	assert.Equal(t, []int{0, 1, 0}, []int{p.Rows()[0].Depth, p.Rows()[1].Depth, p.Rows()[2].Depth})
	assert.Len(t, snapshots, 3)
}

func TestProjectorOmitsCollapsedChildren(t *testing.T) {
	_, engine, p := setup(t)
	a := engine.Add("", -1).Created
	engine.Add(a, -1)
	b := engine.Add("", -1).Created

	engine.ToggleCollapse(a)
	assert.Equal(t, []string{a, b}, ids(p.Rows()))
}

func TestProjectorHoist(t *testing.T) {
	_, engine, p := setup(t)
	a := engine.Add("", -1).Created
	a1 := engine.Add(a, -1).Created
	engine.Add("", -1)

	require.True(t, engine.SetHoist(a))
	p.Refresh()
	assert.Equal(t, a, p.Snapshot().ActiveRoot)
	assert.Equal(t, []string{a1}, ids(p.Rows()))
}

func TestProjectorReportsRemoteOrigin(t *testing.T) {
	doc, _, p := setup(t)

	src := crdt.NewDoc(crdt.WithClientID(2))
	remote := tree.NewEngine(src)
	remote.Add("", -1)
	update, err := src.EncodeStateAsUpdate(nil)
	require.NoError(t, err)

	var got []Snapshot
	p.Subscribe(func(s Snapshot) { got = append(got, s) })
	require.NoError(t, doc.ApplyUpdate(update, crdt.RemoteOrigin("peer")))

	require.Len(t, got, 1)
	assert.True(t, got[0].Origin.IsRemote())
	assert.Len(t, got[0].Rows, 1)
}

func TestProjectorClose(t *testing.T) {
	_, engine, p := setup(t)
	calls := 0
	p.Subscribe(func(Snapshot) { calls++ })
	p.Close()
	engine.Add("", -1)
	assert.Equal(t, 0, calls)
	assert.Empty(t, p.Rows())
}

// slowSource stamps each outline with the version it read and can hold
// one read open until released.
type slowSource struct {
	mu      sync.Mutex
	version int
	gate    chan struct{}
	entered chan struct{}
}

func (s *slowSource) Outline() *model.Outline {
	s.mu.Lock()
	v, gate, entered := s.version, s.gate, s.entered
	s.gate, s.entered = nil, nil
	s.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return model.NewOutline(fmt.Sprintf("v%d", v))
}

func (s *slowSource) ActiveRoot() string { return "" }

func (s *slowSource) hold() (entered, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate, s.entered = make(chan struct{}), make(chan struct{})
	return s.entered, s.gate
}

func (s *slowSource) bump() {
	s.mu.Lock()
	s.version++
	s.mu.Unlock()
}

func TestConcurrentRefreshKeepsNewestSnapshot(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := &slowSource{version: 1}
	p := NewProjector(crdt.NewDoc(crdt.WithLogger(logger)), src, logger)
	t.Cleanup(p.Close)

	var mu sync.Mutex
	var published []string
	p.Subscribe(func(s Snapshot) {
		mu.Lock()
		published = append(published, s.Outline.RootID)
		mu.Unlock()
	})

	entered, release := src.hold()
	slow := make(chan struct{})
	go func() {
		p.Refresh()
		close(slow)
	}()
	<-entered

	src.bump()
	fast := make(chan struct{})
	go func() {
		p.Refresh()
		close(fast)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-slow
	<-fast

	assert.Equal(t, "v2", p.Snapshot().Outline.RootID)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"v1", "v2"}, published)
}
