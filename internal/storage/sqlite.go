package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
	*SQLiteUserStorage
	*SQLiteDocumentStorage
	*SQLiteNodeStorage
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %q", filepath.Dir(dbPath))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// sqlite allows one writer; a single connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set synchronous pragma")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to verify database connection")
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	store.SQLiteUserStorage = NewSQLiteUserStorage(db)
	store.SQLiteDocumentStorage = NewSQLiteDocumentStorage(db)
	store.SQLiteNodeStorage = NewSQLiteNodeStorage(db)
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close database")
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			owner TEXT NOT NULL,
			folder TEXT NOT NULL DEFAULT '',
			rank TEXT NOT NULL DEFAULT '',
			root_id TEXT NOT NULL,
			created INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			FOREIGN KEY (owner) REFERENCES users(username) ON UPDATE CASCADE ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS nodes (
			doc_id TEXT NOT NULL,
			id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			rank TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'text',
			collapsed BOOLEAN NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT 0,
			meta TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (doc_id, id),
			FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS document_states (
			doc_id TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create tables")
	}
	return nil
}

// EnsureUser creates username with password unless it already exists.
func (s *SQLiteStore) EnsureUser(username, password string) error {
	exists, err := s.UserExists(username)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.UserAdd(username, password)
}
