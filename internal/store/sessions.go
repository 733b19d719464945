package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/j-keen/flexicrm/internal/session"
)

// PgSessions is the refresh-session fallback used when no Redis is
// configured. Same contract as session.RedisStore.
type PgSessions struct {
	db *sql.DB
}

func NewPgSessions(db *sql.DB) *PgSessions {
	return &PgSessions{db: db}
}

func (s *PgSessions) Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, organization_id, display_name, role, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO UPDATE
		SET user_id=EXCLUDED.user_id, organization_id=EXCLUDED.organization_id,
		    display_name=EXCLUDED.display_name, role=EXCLUDED.role,
		    expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, data.UserID, data.OrganizationID, data.DisplayName, data.Role, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PgSessions) Lookup(ctx context.Context, tokenHash string) (session.TokenData, error) {
	var data session.TokenData
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, organization_id, display_name, role, created_at
		FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&data.UserID, &data.OrganizationID, &data.DisplayName, &data.Role, &data.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.TokenData{}, session.ErrNotFound
	}
	if err != nil {
		return session.TokenData{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return data, nil
}

func (s *PgSessions) Revoke(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
