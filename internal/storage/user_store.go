package storage

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"nestnote/local-app/internal/model"
)

type SQLiteUserStorage struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteUserStorage(db *sql.DB) *SQLiteUserStorage {
	return &SQLiteUserStorage{db: db, now: time.Now}
}

// UserAdd stores a new user with a bcrypt hash of password.
func (s *SQLiteUserStorage) UserAdd(username, password string) error {
	if username == "" {
		return errors.New("username must not be empty")
	}
	exists, err := s.UserExists(username)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(ErrExists, "user %q", username)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}
	_, err = s.db.Exec("INSERT INTO users (username, password_hash, active, created) VALUES (?, ?, 1, ?)",
		username, hashedPassword, s.now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "failed to add user")
	}
	return nil
}

// UserDelete removes a user together with their documents and snapshots.
func (s *SQLiteUserStorage) UserDelete(username string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nodes WHERE doc_id IN (SELECT id FROM documents WHERE owner = ?)", username); err != nil {
		return errors.Wrap(err, "failed to delete user's nodes")
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE owner = ?", username); err != nil {
		return errors.Wrap(err, "failed to delete user's documents")
	}
	res, err := tx.Exec("DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "user %q", username)
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func (s *SQLiteUserStorage) UserExists(username string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "failed to check user existence")
	}
	return count > 0, nil
}

func (s *SQLiteUserStorage) UserGet(username string) (*model.User, error) {
	user := &model.User{}
	var created int64
	err := s.db.QueryRow("SELECT username, password_hash, active, created FROM users WHERE username = ?", username).
		Scan(&user.Username, &user.PasswordHash, &user.Active, &created)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "user %q", username)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	user.Created = time.UnixMilli(created).UTC()
	return user, nil
}

// UserUpdate renames a user and/or changes their password. Empty values are
// left unchanged.
func (s *SQLiteUserStorage) UserUpdate(oldUsername, newUsername, newPassword string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if newPassword != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return errors.Wrap(err, "failed to hash new password")
		}
		if _, err := tx.Exec("UPDATE users SET password_hash = ? WHERE username = ?", hashedPassword, oldUsername); err != nil {
			return errors.Wrap(err, "failed to update password")
		}
	}

	if newUsername != "" && newUsername != oldUsername {
		if _, err := tx.Exec("UPDATE users SET username = ? WHERE username = ?", newUsername, oldUsername); err != nil {
			return errors.Wrap(err, "failed to update username")
		}
		if _, err := tx.Exec("UPDATE documents SET owner = ? WHERE owner = ?", newUsername, oldUsername); err != nil {
			return errors.Wrap(err, "failed to update document ownership")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// UserAuthenticate reports whether password matches. Unknown users simply
// fail to authenticate.
func (s *SQLiteUserStorage) UserAuthenticate(username, password string) (bool, error) {
	var hashedPassword []byte
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE username = ? AND active = 1", username).Scan(&hashedPassword)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to get user for authentication")
	}

	err = bcrypt.CompareHashAndPassword(hashedPassword, []byte(password))
	if err == bcrypt.ErrMismatchedHashAndPassword {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to compare passwords")
	}
	return true, nil
}
