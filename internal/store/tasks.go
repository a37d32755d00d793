package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// CreateTask inserts a new task item. If ParentID is set, the parent must
// already exist; the caller (planning manager) is
// responsible for cycle detection before calling this, since a brand-new
// node can never be its own ancestor.
func (s *Store) CreateTask(ctx context.Context, t *models.TaskItem) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if t.ParentID != nil {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, *t.ParentID).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: parent task %s does not exist", gatewayerr.ErrInvalidInput, *t.ParentID)
				}
				return fmt.Errorf("%w: check parent: %v", gatewayerr.ErrInternal, err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, content, status, parent_id, tags, type, tdd_phase, test_path, agent_id, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Content, string(t.Status), t.ParentID, string(tagsJSON), t.Type, string(t.TDDPhase), t.TestPath, t.AgentID, t.CreatedAt, t.CompletedAt)
		if err != nil {
			return fmt.Errorf("%w: insert task: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// GetTask fetches a task item by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.TaskItem, error) {
	var t *models.TaskItem
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = ?`, id)
		found, err := scanTask(row)
		if err != nil {
			return err
		}
		t = found
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatewayerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Ancestors walks the parent chain starting at id (exclusive) and returns
// the ids encountered, root-most last. Used by the planning manager's cycle
// check: a re-parent of `id` to `newParent` is rejected if `id` appears in
// Ancestors(newParent).
func (s *Store) Ancestors(ctx context.Context, id string) ([]string, error) {
	var chain []string
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		current := id
		for {
			var parentID sql.NullString
			err := tx.QueryRowContext(ctx, `SELECT parent_id FROM tasks WHERE id = ?`, current).Scan(&parentID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			if !parentID.Valid {
				return nil
			}
			chain = append(chain, parentID.String)
			current = parentID.String
		}
	})
	if err != nil {
		return nil, fmt.Errorf("walk ancestors: %w", err)
	}
	return chain, nil
}

// UpdateTask applies the given mutations. Changing ParentID re-runs cycle
// detection at the planning-manager layer before this is called; UpdateTask
// itself only enforces that a non-nil new parent exists.
func (s *Store) UpdateTask(ctx context.Context, t *models.TaskItem) error {
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if t.ParentID != nil {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, *t.ParentID).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: parent task %s does not exist", gatewayerr.ErrInvalidInput, *t.ParentID)
				}
				return fmt.Errorf("%w: check parent: %v", gatewayerr.ErrInternal, err)
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET content=?, status=?, parent_id=?, tags=?, type=?, tdd_phase=?, test_path=?, agent_id=?, completed_at=?
			WHERE id = ?
		`, t.Content, string(t.Status), t.ParentID, string(tagsJSON), t.Type, string(t.TDDPhase), t.TestPath, t.AgentID, t.CompletedAt, t.ID)
		if err != nil {
			return fmt.Errorf("%w: update task: %v", gatewayerr.ErrInternal, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return gatewayerr.ErrNotFound
		}
		return nil
	})
}

// DeleteTask removes a task and its whole subtree (cascade via FK).
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("%w: delete task: %v", gatewayerr.ErrInternal, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return gatewayerr.ErrNotFound
		}
		return nil
	})
}

// ListTasks returns every task item (used by planning_tree to build the
// ascii tree in memory rather than with recursive SQL).
func (s *Store) ListTasks(ctx context.Context) ([]*models.TaskItem, error) {
	var out []*models.TaskItem
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, taskSelectColumns+` FROM tasks ORDER BY created_at ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

const taskSelectColumns = `SELECT id, content, status, parent_id, tags, type, tdd_phase, test_path, agent_id, created_at, completed_at`

func scanTask(r rowScanner) (*models.TaskItem, error) {
	var t models.TaskItem
	var tagsJSON string
	var parentID, tddPhase sql.NullString
	var completedAt sql.NullTime
	var status string
	if err := r.Scan(&t.ID, &t.Content, &status, &parentID, &tagsJSON, &t.Type, &tddPhase, &t.TestPath, &t.AgentID, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	if parentID.Valid {
		v := parentID.String
		t.ParentID = &v
	}
	if tddPhase.Valid {
		t.TDDPhase = models.TDDPhase(tddPhase.String)
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	}
	return &t, nil
}
