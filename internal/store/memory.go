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

// CreateMemory inserts a new memory entry, generating an id if absent.
func (s *Store) CreateMemory(ctx context.Context, m *models.MemoryEntry) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.LastAccessAt = m.CreatedAt

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory (id, key, value, category, tags, created_at, last_access_at, access_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		`, m.ID, m.Key, m.Value, m.Category, string(tagsJSON), m.CreatedAt, m.LastAccessAt)
		if err != nil {
			return fmt.Errorf("%w: insert memory: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// ListMemory returns memory entries newest-first, optionally filtered by
// category and/or a tag subset.
func (s *Store) ListMemory(ctx context.Context, category string, tags []string, limit int) ([]*models.MemoryEntry, error) {
	var out []*models.MemoryEntry
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, key, value, category, tags, created_at, last_access_at, access_count FROM memory`
		var args []any
		if category != "" {
			query += ` WHERE category = ?`
			args = append(args, category)
		}
		query += ` ORDER BY created_at DESC`
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMemory(rows)
			if err != nil {
				return err
			}
			if len(tags) > 0 && !hasAllTags(m.Tags, tags) {
				continue
			}
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	return out, nil
}

// AllMemory returns every memory entry (or those in category, if non-empty)
// for in-process BM25 scoring by the memory manager's recall operation.
func (s *Store) AllMemory(ctx context.Context, category string) ([]*models.MemoryEntry, error) {
	return s.ListMemory(ctx, category, nil, 0)
}

// GetMemory fetches a memory entry by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*models.MemoryEntry, error) {
	var m *models.MemoryEntry
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, key, value, category, tags, created_at, last_access_at, access_count FROM memory WHERE id = ?`, id)
		found, err := scanMemory(row)
		if err != nil {
			return err
		}
		m = found
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatewayerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// BumpMemoryAccess increments access_count on recall.
func (s *Store) BumpMemoryAccess(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE memory SET access_count = access_count + 1, last_access_at = ? WHERE id = ?`, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("%w: bump memory access: %v", gatewayerr.ErrInternal, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return gatewayerr.ErrNotFound
		}
		return nil
	})
}

// DeleteMemory removes a memory entry by id. Idempotent: returns
// (false, nil) if the id was already absent.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memory WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("%w: delete memory: %v", gatewayerr.ErrInternal, err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func scanMemory(r rowScanner) (*models.MemoryEntry, error) {
	var m models.MemoryEntry
	var tagsJSON string
	if err := r.Scan(&m.ID, &m.Key, &m.Value, &m.Category, &tagsJSON, &m.CreatedAt, &m.LastAccessAt, &m.AccessCount); err != nil {
		return nil, err
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	}
	return &m, nil
}
