package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// CreateTestRun inserts a new test-run row tied to a task item.
func (s *Store) CreateTestRun(ctx context.Context, r *models.TestRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO testruns (id, task_id, test_path, phase, passed, coverage, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.TaskID, r.TestPath, string(r.Phase), r.Passed, r.Coverage, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert test run: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// LatestTestRun returns the most recent run for testPath, or nil if none exist.
func (s *Store) LatestTestRun(ctx context.Context, testPath string) (*models.TestRun, error) {
	var out *models.TestRun
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, task_id, test_path, phase, passed, coverage, created_at FROM testruns
			WHERE test_path = ? ORDER BY created_at DESC LIMIT 1
		`, testPath)
		var r models.TestRun
		var phase string
		var coverage sql.NullFloat64
		if err := row.Scan(&r.ID, &r.TaskID, &r.TestPath, &phase, &r.Passed, &coverage, &r.CreatedAt); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		r.Phase = models.TDDPhase(phase)
		if coverage.Valid {
			r.Coverage = &coverage.Float64
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("latest test run: %w", err)
	}
	return out, nil
}

// ListTestRuns returns test runs for testPath, most-recent-first.
func (s *Store) ListTestRuns(ctx context.Context, testPath string, limit int) ([]*models.TestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*models.TestRun
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, task_id, test_path, phase, passed, coverage, created_at FROM testruns
			WHERE test_path = ? ORDER BY created_at DESC LIMIT ?
		`, testPath, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r models.TestRun
			var phase string
			var coverage sql.NullFloat64
			if err := rows.Scan(&r.ID, &r.TaskID, &r.TestPath, &phase, &r.Passed, &coverage, &r.CreatedAt); err != nil {
				return err
			}
			r.Phase = models.TDDPhase(phase)
			if coverage.Valid {
				r.Coverage = &coverage.Float64
			}
			out = append(out, &r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list test runs: %w", err)
	}
	return out, nil
}
