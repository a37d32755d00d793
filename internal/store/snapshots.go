package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// SaveSnapshot inserts a new context snapshot row.
func (s *Store) SaveSnapshot(ctx context.Context, snap *models.ContextSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_snapshots (id, session_id, captured_at, snapshot, metadata)
			VALUES (?, ?, ?, ?, ?)
		`, snap.ID, snap.SessionID, snap.CapturedAt, snap.Snapshot, string(metaJSON))
		if err != nil {
			return fmt.Errorf("%w: insert snapshot: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// NewestSnapshot returns the most recent snapshot for sessionID, or nil if none.
func (s *Store) NewestSnapshot(ctx context.Context, sessionID string) (*models.ContextSnapshot, error) {
	var out *models.ContextSnapshot
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, session_id, captured_at, snapshot, metadata FROM context_snapshots
			WHERE session_id = ? ORDER BY captured_at DESC LIMIT 1
		`, sessionID)
		var snap models.ContextSnapshot
		var metaJSON string
		if err := row.Scan(&snap.ID, &snap.SessionID, &snap.CapturedAt, &snap.Snapshot, &metaJSON); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &snap.Metadata)
		}
		out = &snap
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("newest snapshot: %w", err)
	}
	return out, nil
}

// PruneSnapshots deletes snapshots older than the cutoff and reports how
// many rows were removed. Used by the janitor that prunes expired context
// snapshots on an interval.
func (s *Store) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM context_snapshots WHERE captured_at < ?`, olderThan)
		if err != nil {
			return fmt.Errorf("%w: prune snapshots: %v", gatewayerr.ErrInternal, err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
