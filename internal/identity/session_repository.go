package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRepository persists provider credentials per browser session.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Load returns the stored credentials, or nil when the session is unknown.
func (sr *SessionRepository) Load(ctx context.Context, sessionKey string) (*Credentials, error) {
	var c Credentials
	err := sr.db.QueryRowContext(ctx,
		`SELECT user_id, id_token, refresh_token, provider, expires_at
		 FROM auth_sessions WHERE session_key = ?`, sessionKey,
	).Scan(&c.UserID, &c.IDToken, &c.RefreshToken, &c.Provider, &c.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &c, nil
}

// Save inserts or replaces the credentials of a session.
func (sr *SessionRepository) Save(ctx context.Context, sessionKey string, c Credentials) error {
	_, err := sr.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (session_key, user_id, id_token, refresh_token, provider, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET
		   user_id = excluded.user_id,
		   id_token = excluded.id_token,
		   refresh_token = excluded.refresh_token,
		   provider = excluded.provider,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		sessionKey, c.UserID, c.IDToken, c.RefreshToken, c.Provider, c.ExpiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session
func (sr *SessionRepository) Delete(ctx context.Context, sessionKey string) error {
	_, err := sr.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE session_key = ?`, sessionKey)
	return err
}

// CleanupStale removes sessions not touched since the given time.
func (sr *SessionRepository) CleanupStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := sr.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE updated_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return res.RowsAffected()
}
