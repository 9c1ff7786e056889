package storage

import (
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"nestnote/local-app/internal/model"
)

type SQLiteDocumentStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteDocumentStorage(db *sql.DB) *SQLiteDocumentStorage {
	return &SQLiteDocumentStorage{db: db, now: time.Now}
}

// DocumentAdd inserts doc, assigning an id and timestamps when missing.
func (s *SQLiteDocumentStorage) DocumentAdd(doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = ulid.Make().String()
	}
	if doc.RootID == "" {
		return errors.New("document root id must not be empty")
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	if doc.Created.IsZero() {
		doc.Created = now
	}
	doc.Updated = now

	_, err := s.db.Exec(`INSERT INTO documents (id, title, owner, folder, rank, root_id, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Owner, doc.Folder, doc.Rank, doc.RootID,
		doc.Created.UnixMilli(), doc.Updated.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "failed to add document %q", doc.Title)
	}
	return nil
}

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	doc := &model.Document{}
	var created, updated int64
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Owner, &doc.Folder, &doc.Rank, &doc.RootID, &created, &updated); err != nil {
		return nil, err
	}
	doc.Created = time.UnixMilli(created).UTC()
	doc.Updated = time.UnixMilli(updated).UTC()
	return doc, nil
}

const documentColumns = "id, title, owner, folder, rank, root_id, created, updated"

func (s *SQLiteDocumentStorage) DocumentGet(id string) (*model.Document, error) {
	doc, err := scanDocument(s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "document %q", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get document")
	}
	return doc, nil
}

// DocumentList returns owner's documents ordered by folder, rank and title.
func (s *SQLiteDocumentStorage) DocumentList(owner string) ([]*model.Document, error) {
	rows, err := s.db.Query("SELECT "+documentColumns+" FROM documents WHERE owner = ? ORDER BY folder, rank, title, id", owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		docs = append(docs, doc)
	}
	return docs, errors.Wrap(rows.Err(), "failed to iterate documents")
}

func (s *SQLiteDocumentStorage) DocumentRename(id, title string) error {
	res, err := s.db.Exec("UPDATE documents SET title = ?, updated = ? WHERE id = ?", title, s.now().UnixMilli(), id)
	if err != nil {
		return errors.Wrap(err, "failed to rename document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "document %q", id)
	}
	return nil
}

// DocumentDelete removes the document and its snapshot.
func (s *SQLiteDocumentStorage) DocumentDelete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nodes WHERE doc_id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete document nodes")
	}
	res, err := tx.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "document %q", id)
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}
