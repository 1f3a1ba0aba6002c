package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"multcheck/domain/core"
	"multcheck/domain/registry"
	apperrors "multcheck/internal/errors"
)

// Schema creates the session document table
const Schema = `
CREATE TABLE IF NOT EXISTS correction_sessions (
	id         TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Open connects to the session store database
func Open(url string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to connect to session store")
	}
	return db, nil
}

// SessionStoreImpl implements registry.SessionStore for PostgreSQL, storing
// each session as one JSON document keyed by session id.
type SessionStoreImpl struct {
	db *sqlx.DB
}

// NewSessionStore creates a new PostgreSQL session store
func NewSessionStore(db *sqlx.DB) *SessionStoreImpl {
	return &SessionStoreImpl{db: db}
}

// EnsureSchema creates the backing table if it does not exist
func (s *SessionStoreImpl) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return apperrors.Wrap(err, "failed to ensure session store schema")
	}
	return nil
}

// Save upserts the session document
func (s *SessionStoreImpl) Save(ctx context.Context, session *registry.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return apperrors.Wrap(err, "failed to serialize session")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO correction_sessions (id, payload)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`, session.ID.String(), payload)
	if err != nil {
		return apperrors.WithCode(apperrors.CodeDatabaseError, err)
	}
	return nil
}

// Load retrieves a session document by id
func (s *SessionStoreImpl) Load(ctx context.Context, id core.SessionID) (*registry.Session, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `
		SELECT payload FROM correction_sessions WHERE id = $1
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewSessionNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeDatabaseError, err)
	}

	var session registry.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, apperrors.Wrap(err, "failed to deserialize session")
	}
	return &session, nil
}

// Delete removes a session document
func (s *SessionStoreImpl) Delete(ctx context.Context, id core.SessionID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM correction_sessions WHERE id = $1
	`, id.String())
	if err != nil {
		return apperrors.WithCode(apperrors.CodeDatabaseError, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewSessionNotFoundError(id)
	}
	return nil
}
