package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestnote/local-app/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "nestnote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UserAdd("ana", "secret"))
	assert.ErrorIs(t, store.UserAdd("ana", "other"), ErrExists)
	require.NoError(t, store.EnsureUser("ana", "ignored"))

	ok, err := store.UserAuthenticate("ana", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UserAuthenticate("ana", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.UserAuthenticate("nobody", "secret")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := store.UserGet("ana")
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.True(t, user.Active)
	assert.NotEqual(t, []byte("secret"), user.PasswordHash)

	_, err = store.UserGet("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserUpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UserAdd("ana", "secret"))
	doc := &model.Document{Title: "notes", Owner: "ana", RootID: "root"}
	require.NoError(t, store.DocumentAdd(doc))

	require.NoError(t, store.UserUpdate("ana", "bea", "fresh"))
	ok, err := store.UserAuthenticate("bea", "fresh")
	require.NoError(t, err)
	assert.True(t, ok)

	docs, err := store.DocumentList("bea")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, store.UserDelete("bea"))
	exists, err := store.UserExists("bea")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = store.DocumentGet(doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UserDelete("bea"), ErrNotFound)
}

func TestDocuments(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UserAdd("ana", ""))

	b := &model.Document{Title: "beta", Owner: "ana", RootID: "root"}
	a := &model.Document{Title: "alpha", Owner: "ana", RootID: "root"}
	require.NoError(t, store.DocumentAdd(b))
	require.NoError(t, store.DocumentAdd(a))
	assert.NotEmpty(t, a.ID)
	assert.Error(t, store.DocumentAdd(&model.Document{Title: "x", Owner: "ana"}))

	docs, err := store.DocumentList("ana")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "alpha", docs[0].Title)

	require.NoError(t, store.DocumentRename(a.ID, "gamma"))
	got, err := store.DocumentGet(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "gamma", got.Title)
	assert.Equal(t, a.Created, got.Created)

	assert.ErrorIs(t, store.DocumentRename("missing", "x"), ErrNotFound)
	require.NoError(t, store.DocumentDelete(a.ID))
	assert.ErrorIs(t, store.DocumentDelete(a.ID), ErrNotFound)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UserAdd("ana", ""))
	doc := &model.Document{Title: "notes", Owner: "ana", RootID: "root"}
	require.NoError(t, store.DocumentAdd(doc))

	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	nodes := []*model.Node{
		{ID: "root", Type: model.NodeText, UpdatedAt: updated},
		{ID: "b", ParentID: "root", Rank: "k", Content: "second", Type: model.NodeText, UpdatedAt: updated},
		{ID: "a", ParentID: "root", Rank: "V", Content: "first", Type: model.NodeLink,
			Meta: map[string]string{"href": "https://example.com"}, IsCollapsed: true, UpdatedAt: updated},
		{ID: "a1", ParentID: "a", Rank: "V", Content: "todo", Type: model.NodeTodo, Completed: true, UpdatedAt: updated},
	}
	state := []byte{0xa1, 0x01, 0x80}
	require.NoError(t, store.SnapshotSave(doc.ID, nodes, state))

	loaded, loadedState, err := store.SnapshotLoad(doc.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	assert.Equal(t, state, loadedState)

	byID := map[string]*model.Node{}
	for _, n := range loaded {
		byID[n.ID] = n
	}
	assert.Equal(t, []string{"a", "b"}, byID["root"].Children)
	assert.Equal(t, []string{"a1"}, byID["a"].Children)
	assert.Equal(t, "https://example.com", byID["a"].Meta["href"])
	assert.True(t, byID["a"].IsCollapsed)
	assert.True(t, byID["a1"].Completed)
	assert.Equal(t, model.NodeTodo, byID["a1"].Type)
	assert.Equal(t, updated, byID["a1"].UpdatedAt)

	require.NoError(t, store.SnapshotSave(doc.ID, nodes[:1], nil))
	loaded, loadedState, err = store.SnapshotLoad(doc.ID)
	require.NoError(t, err)
	assert.Len(t, loaded, 1, "saving replaces the previous snapshot")
	assert.Nil(t, loadedState, "a node-only save clears the stored state")

	assert.ErrorIs(t, store.SnapshotSave("missing", nodes, state), ErrNotFound)
	empty, emptyState, err := store.SnapshotLoad("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Nil(t, emptyState)
}

func TestFileExportImport(t *testing.T) {
	o := model.NewOutline("root")
	o.Nodes["root"] = &model.Node{ID: "root", Children: []string{"a"}}
	o.Nodes["a"] = &model.Node{ID: "a", ParentID: "root", Content: "A", Type: model.NodeH1, Children: []string{"a1"}}
	o.Nodes["a1"] = &model.Node{ID: "a1", ParentID: "a", Content: "A1", Type: model.NodeTodo, Completed: true}

	for _, format := range []string{"json", "txt"} {
		t.Run(format, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "out."+format)
			require.NoError(t, FileExport(o, "root", file, format))
			trees, err := FileImport(file, format)
			require.NoError(t, err)
			require.Len(t, trees, 1)
			assert.Equal(t, "A", trees[0].Content)
			assert.Equal(t, model.NodeH1, trees[0].Type)
			require.Len(t, trees[0].Children, 1)
			assert.Equal(t, "A1", trees[0].Children[0].Content)
			assert.True(t, trees[0].Children[0].Completed)
		})
	}

	assert.Error(t, FileExport(o, "root", filepath.Join(t.TempDir(), "x"), "xml"))
	assert.ErrorIs(t, FileExport(o, "missing", filepath.Join(t.TempDir(), "x"), "json"), ErrNotFound)
}
