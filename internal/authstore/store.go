package authstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrTokenNotFound is returned when a token does not exist or is revoked.
var ErrTokenNotFound = errors.New("token not found")

// Token is one issued credential.
type Token struct {
	ID        string
	Token     string
	Subject   string
	Revoked   bool
	CreatedAt time.Time
}

// Store provides data access for tokens.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on top of an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Issue creates a new token for the given subject and returns it.
func (s *Store) Issue(ctx context.Context, subject string) (*Token, error) {
	tok := &Token{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		Subject:   subject,
		CreatedAt: time.Now().UTC(),
	}
	query := `INSERT INTO tokens (id, token, subject, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, tok.ID, tok.Token, tok.Subject, tok.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "insert token failed")
	}
	return tok, nil
}

// Lookup resolves a presented token value to its record. Revoked tokens are
// treated as absent.
func (s *Store) Lookup(ctx context.Context, token string) (*Token, error) {
	query := `SELECT id, token, subject, revoked, created_at FROM tokens WHERE token = ? AND revoked = 0`
	tok := &Token{}
	var revoked int
	err := s.db.QueryRowContext(ctx, query, token).Scan(&tok.ID, &tok.Token, &tok.Subject, &revoked, &tok.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query token failed")
	}
	tok.Revoked = revoked != 0
	return tok, nil
}

// Revoke marks a token ID as revoked.
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "revoke token failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected failed")
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// List returns all issued tokens, newest first.
func (s *Store) List(ctx context.Context) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, token, subject, revoked, created_at FROM tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list tokens failed")
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		tok := &Token{}
		var revoked int
		if err := rows.Scan(&tok.ID, &tok.Token, &tok.Subject, &revoked, &tok.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan token failed")
		}
		tok.Revoked = revoked != 0
		tokens = append(tokens, tok)
	}
	return tokens, errors.Wrap(rows.Err(), "iterate tokens failed")
}
