package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// UpsertGuide inserts or replaces a guide entry by id.
func (s *Store) UpsertGuide(ctx context.Context, g *models.GuideEntry) error {
	tagsJSON, err := json.Marshal(g.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guides (id, slug, title, category, difficulty, body, excerpt, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				slug=excluded.slug, title=excluded.title, category=excluded.category,
				difficulty=excluded.difficulty, body=excluded.body, excerpt=excluded.excerpt, tags=excluded.tags
		`, g.ID, g.Slug, g.Title, g.Category, g.Difficulty, g.Body, g.Excerpt, string(tagsJSON))
		if err != nil {
			return fmt.Errorf("%w: upsert guide: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// CountGuides reports how many guide rows exist, used to decide whether the
// seed list needs loading at startup.
func (s *Store) CountGuides(ctx context.Context) (int, error) {
	var n int
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM guides`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count guides: %w", err)
	}
	return n, nil
}

// ListGuides returns all guides, optionally filtered by category/difficulty.
func (s *Store) ListGuides(ctx context.Context, category, difficulty string) ([]*models.GuideEntry, error) {
	var out []*models.GuideEntry
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, slug, title, category, difficulty, body, excerpt, tags FROM guides WHERE 1=1`
		var args []any
		if category != "" {
			query += ` AND category = ?`
			args = append(args, category)
		}
		if difficulty != "" {
			query += ` AND difficulty = ?`
			args = append(args, difficulty)
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			g, err := scanGuide(rows)
			if err != nil {
				return err
			}
			out = append(out, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list guides: %w", err)
	}
	return out, nil
}

// GetGuide fetches a guide by id.
func (s *Store) GetGuide(ctx context.Context, id string) (*models.GuideEntry, error) {
	var g *models.GuideEntry
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, slug, title, category, difficulty, body, excerpt, tags FROM guides WHERE id = ?`, id)
		found, err := scanGuide(row)
		if err != nil {
			return err
		}
		g = found
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatewayerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	return g, nil
}

// UpsertProgress inserts or updates (guide_id, session_id) learning progress.
func (s *Store) UpsertProgress(ctx context.Context, p *models.LearningProgress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guide_progress (guide_id, session_id, status, step, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(guide_id, session_id) DO UPDATE SET
				status=excluded.status, step=excluded.step, updated_at=excluded.updated_at
		`, p.GuideID, p.SessionID, string(p.Status), p.Step, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("%w: upsert progress: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// GetProgress fetches learning progress for (guideID, sessionID).
func (s *Store) GetProgress(ctx context.Context, guideID, sessionID string) (*models.LearningProgress, error) {
	var p *models.LearningProgress
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT guide_id, session_id, status, step, updated_at FROM guide_progress WHERE guide_id = ? AND session_id = ?`, guideID, sessionID)
		var got models.LearningProgress
		var status string
		if err := row.Scan(&got.GuideID, &got.SessionID, &status, &got.Step, &got.UpdatedAt); err != nil {
			return err
		}
		got.Status = models.ProgressStatus(status)
		p = &got
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatewayerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

func scanGuide(r rowScanner) (*models.GuideEntry, error) {
	var g models.GuideEntry
	var tagsJSON string
	if err := r.Scan(&g.ID, &g.Slug, &g.Title, &g.Category, &g.Difficulty, &g.Body, &g.Excerpt, &tagsJSON); err != nil {
		return nil, err
	}
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &g.Tags)
	}
	return &g, nil
}
