package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// EnsureSession inserts a session row if one with this id does not already
// exist. Used to correlate usage-log entries and context snapshots.
func (s *Store) EnsureSession(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, created_at) VALUES (?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%w: ensure session: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// GetSession fetches a session row by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess *models.Session
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var got models.Session
		err := tx.QueryRowContext(ctx, `SELECT id, created_at FROM sessions WHERE id = ?`, id).Scan(&got.ID, &got.CreatedAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		sess = &got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}
