package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// CreateAgent inserts a new agent record.
func (s *Store) CreateAgent(ctx context.Context, a *models.AgentRecord) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = models.AgentPending
	}
	if a.SpawnedAt.IsZero() {
		a.SpawnedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (id, type, task, status, parent_task_id, result, spawned_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.Type, a.Task, string(a.Status), a.ParentTaskID, a.Result, a.SpawnedAt, a.CompletedAt)
		if err != nil {
			return fmt.Errorf("%w: insert agent: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// GetAgent fetches an agent record by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.AgentRecord, error) {
	var a *models.AgentRecord
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, type, task, status, parent_task_id, result, spawned_at, completed_at FROM agents WHERE id = ?`, id)
		found, err := scanAgent(row)
		if err != nil {
			return err
		}
		a = found
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatewayerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// UpdateAgent applies status/result/completion changes to an agent record.
func (s *Store) UpdateAgent(ctx context.Context, a *models.AgentRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE agents SET status=?, result=?, completed_at=? WHERE id = ?
		`, string(a.Status), a.Result, a.CompletedAt, a.ID)
		if err != nil {
			return fmt.Errorf("%w: update agent: %v", gatewayerr.ErrInternal, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return gatewayerr.ErrNotFound
		}
		return nil
	})
}

// ListAgentsByStatus returns agent records filtered by status, or all if status is "".
func (s *Store) ListAgentsByStatus(ctx context.Context, status models.AgentStatus) ([]*models.AgentRecord, error) {
	var out []*models.AgentRecord
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, type, task, status, parent_task_id, result, spawned_at, completed_at FROM agents`
		var args []any
		if status != "" {
			query += ` WHERE status = ?`
			args = append(args, string(status))
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAgent(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return out, nil
}

func scanAgent(r rowScanner) (*models.AgentRecord, error) {
	var a models.AgentRecord
	var status string
	var completedAt sql.NullTime
	if err := r.Scan(&a.ID, &a.Type, &a.Task, &status, &a.ParentTaskID, &a.Result, &a.SpawnedAt, &completedAt); err != nil {
		return nil, err
	}
	a.Status = models.AgentStatus(status)
	if completedAt.Valid {
		v := completedAt.Time
		a.CompletedAt = &v
	}
	return &a, nil
}
