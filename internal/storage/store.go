package storage

import (
	"github.com/pkg/errors"

	"nestnote/local-app/internal/model"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrExists   = errors.New("storage: already exists")
)

type UserStore interface {
	UserAdd(username, password string) error
	UserDelete(username string) error
	UserExists(username string) (bool, error)
	UserGet(username string) (*model.User, error)
	UserUpdate(oldUsername, newUsername, newPassword string) error
	UserAuthenticate(username, password string) (bool, error)
}

type DocumentStore interface {
	DocumentAdd(doc *model.Document) error
	DocumentGet(id string) (*model.Document, error)
	DocumentList(owner string) ([]*model.Document, error)
	DocumentRename(id, title string) error
	DocumentDelete(id string) error
}

// SnapshotStore keeps the last-known-good projection of each document's
// node map, and the document history behind it, for offline start-up.
type SnapshotStore interface {
	SnapshotSave(docID string, nodes []*model.Node, state []byte) error
	SnapshotLoad(docID string) (nodes []*model.Node, state []byte, err error)
}

type Store interface {
	UserStore
	DocumentStore
	SnapshotStore
	Close() error
}
