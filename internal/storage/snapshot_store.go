package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"nestnote/local-app/internal/model"
)

type SQLiteNodeStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteNodeStorage(db *sql.DB) *SQLiteNodeStorage {
	return &SQLiteNodeStorage{db: db, now: time.Now}
}

// SnapshotSave replaces the stored node map and encoded document state of
// docID in one transaction. Children lists are not stored; they are
// derived from parent and rank.
func (s *SQLiteNodeStorage) SnapshotSave(docID string, nodes []*model.Node, state []byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM documents WHERE id = ?", docID).Scan(&exists); err != nil {
		return errors.Wrap(err, "failed to check document")
	}
	if exists == 0 {
		return errors.Wrapf(ErrNotFound, "document %q", docID)
	}

	if _, err := tx.Exec("DELETE FROM nodes WHERE doc_id = ?", docID); err != nil {
		return errors.Wrap(err, "failed to clear snapshot")
	}

	stmt, err := tx.Prepare(`INSERT INTO nodes
		(doc_id, id, parent_id, rank, content, type, collapsed, completed, meta, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare snapshot insert")
	}
	defer stmt.Close()

	for _, n := range nodes {
		meta := ""
		if len(n.Meta) > 0 {
			b, err := json.Marshal(n.Meta)
			if err != nil {
				return errors.Wrapf(err, "failed to encode meta of node %q", n.ID)
			}
			meta = string(b)
		}
		if _, err := stmt.Exec(docID, n.ID, n.ParentID, n.Rank, n.Content, string(n.Type),
			n.IsCollapsed, n.Completed, meta, n.UpdatedAt.UnixMilli()); err != nil {
			return errors.Wrapf(err, "failed to store node %q", n.ID)
		}
	}

	if len(state) > 0 {
		if _, err := tx.Exec(`INSERT INTO document_states (doc_id, state) VALUES (?, ?)
			ON CONFLICT(doc_id) DO UPDATE SET state = excluded.state`, docID, state); err != nil {
			return errors.Wrap(err, "failed to store document state")
		}
	} else if _, err := tx.Exec("DELETE FROM document_states WHERE doc_id = ?", docID); err != nil {
		return errors.Wrap(err, "failed to clear document state")
	}

	if _, err := tx.Exec("UPDATE documents SET updated = ? WHERE id = ?", s.now().UnixMilli(), docID); err != nil {
		return errors.Wrap(err, "failed to touch document")
	}
	return errors.Wrap(tx.Commit(), "failed to commit snapshot")
}

// SnapshotLoad returns the stored nodes of docID with Children filled in
// from parent and rank order, plus the encoded document state. State is
// nil for snapshots written before it was stored.
func (s *SQLiteNodeStorage) SnapshotLoad(docID string) ([]*model.Node, []byte, error) {
	rows, err := s.db.Query(`SELECT id, parent_id, rank, content, type, collapsed, completed, meta, updated_at
		FROM nodes WHERE doc_id = ? ORDER BY parent_id, rank, id`, docID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load snapshot")
	}
	defer rows.Close()

	var nodes []*model.Node
	byID := make(map[string]*model.Node)
	for rows.Next() {
		n := &model.Node{Children: []string{}}
		var nodeType, meta string
		var updated int64
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Rank, &n.Content, &nodeType,
			&n.IsCollapsed, &n.Completed, &meta, &updated); err != nil {
			return nil, nil, errors.Wrap(err, "failed to scan node")
		}
		n.Type, _ = model.ParseNodeType(nodeType)
		n.UpdatedAt = time.UnixMilli(updated).UTC()
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &n.Meta); err != nil {
				return nil, nil, errors.Wrapf(err, "failed to decode meta of node %q", n.ID)
			}
		}
		nodes = append(nodes, n)
		byID[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to iterate snapshot")
	}
	rows.Close()

	for _, n := range nodes {
		if parent, ok := byID[n.ParentID]; ok {
			parent.Children = append(parent.Children, n.ID)
		}
	}

	var state []byte
	err = s.db.QueryRow("SELECT state FROM document_states WHERE doc_id = ?", docID).Scan(&state)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, errors.Wrap(err, "failed to load document state")
	}
	return nodes, state, nil
}
