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

// UpsertProvider inserts or replaces a provider row by id.
func (s *Store) UpsertProvider(ctx context.Context, p *models.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("%w: provider id is required", gatewayerr.ErrInvalidInput)
	}
	argsJSON, err := json.Marshal(p.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	envJSON, err := json.Marshal(p.Env)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO providers (id, name, command, args, env, quality, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name=excluded.name, command=excluded.command, args=excluded.args,
				env=excluded.env, quality=excluded.quality
		`, p.ID, p.Name, p.Command, string(argsJSON), string(envJSON), p.Quality, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: upsert provider: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// ListProviders returns every provider row.
func (s *Store) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	var out []*models.Provider
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, name, command, args, env, quality, created_at FROM providers`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProvider(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return out, nil
}

// GetProvider fetches a provider by id.
func (s *Store) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	var p *models.Provider
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, name, command, args, env, quality, created_at FROM providers WHERE id = ?`, id)
		found, err := scanProvider(row)
		if err != nil {
			return err
		}
		p = found
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatewayerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

// DeleteProvider removes a provider row, cascading to its tools.
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("%w: delete provider: %v", gatewayerr.ErrInternal, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return gatewayerr.ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(r rowScanner) (*models.Provider, error) {
	var p models.Provider
	var argsJSON, envJSON string
	var quality sql.NullFloat64
	if err := r.Scan(&p.ID, &p.Name, &p.Command, &argsJSON, &envJSON, &quality, &p.CreatedAt); err != nil {
		return nil, err
	}
	if argsJSON != "" {
		_ = json.Unmarshal([]byte(argsJSON), &p.Args)
	}
	if envJSON != "" {
		_ = json.Unmarshal([]byte(envJSON), &p.Env)
	}
	if quality.Valid {
		p.Quality = &quality.Float64
	}
	return &p, nil
}
