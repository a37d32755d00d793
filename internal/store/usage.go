package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/forgemcp/gateway/pkg/models"
)

// RecordUsage appends a usage-log row and, for a successful call, in the
// same transaction increments the tool's persistent usage_count — so the
// two can never diverge under a crash. Safe to call even if
// the tool row no longer exists (e.g. a provider disconnected mid-call);
// the counter update then simply affects zero rows.
func (s *Store) RecordUsage(ctx context.Context, entry *models.UsageLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO usage_log (timestamp, tool_name, arguments, success, elapsed_ms)
			VALUES (?, ?, ?, ?, ?)
		`, entry.Timestamp, entry.ToolName, entry.Arguments, entry.Success, entry.ElapsedMS)
		if err != nil {
			return fmt.Errorf("append usage log: %w", err)
		}
		if entry.Success {
			if err := incrementUsageCount(ctx, tx, entry.ToolName); err != nil {
				return fmt.Errorf("increment usage count: %w", err)
			}
		}
		return nil
	})
}

// ListUsage returns the most-recent-first usage log, optionally filtered by
// tool name and bounded by limit.
func (s *Store) ListUsage(ctx context.Context, toolName string, limit int) ([]*models.UsageLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*models.UsageLogEntry
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, timestamp, tool_name, arguments, success, elapsed_ms FROM usage_log`
		args := []any{}
		if toolName != "" {
			query += ` WHERE tool_name = ?`
			args = append(args, toolName)
		}
		query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
		args = append(args, limit)

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e models.UsageLogEntry
			if err := rows.Scan(&e.ID, &e.Timestamp, &e.ToolName, &e.Arguments, &e.Success, &e.ElapsedMS); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	return out, nil
}
