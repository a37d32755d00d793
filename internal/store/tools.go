package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// UpsertTool inserts or overwrites a tool descriptor keyed by name.
func (s *Store) UpsertTool(ctx context.Context, t *models.ToolDescriptor) error {
	if t.Name == "" {
		return fmt.Errorf("%w: tool name is required", gatewayerr.ErrInvalidInput)
	}
	keywordsJSON, err := json.Marshal(t.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	if len(t.InputSchema) == 0 {
		t.InputSchema = json.RawMessage(`{}`)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tools (provider_id, name, description, input_schema, category, keywords, usage_count)
			VALUES (?, ?, ?, ?, ?, ?, COALESCE((SELECT usage_count FROM tools WHERE name = ?), 0))
			ON CONFLICT(name) DO UPDATE SET
				provider_id=excluded.provider_id, description=excluded.description,
				input_schema=excluded.input_schema, category=excluded.category, keywords=excluded.keywords
		`, t.ProviderID, t.Name, t.Description, string(t.InputSchema), t.Category, string(keywordsJSON), t.Name)
		if err != nil {
			return fmt.Errorf("%w: upsert tool: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// GetTool fetches a tool descriptor by name.
func (s *Store) GetTool(ctx context.Context, name string) (*models.ToolDescriptor, error) {
	var t *models.ToolDescriptor
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT provider_id, name, description, input_schema, category, keywords, usage_count FROM tools WHERE name = ?`, name)
		found, err := scanTool(row)
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
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return t, nil
}

// ListTools returns every tool descriptor, optionally filtered by provider id.
func (s *Store) ListTools(ctx context.Context, providerID string) ([]*models.ToolDescriptor, error) {
	var out []*models.ToolDescriptor
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT provider_id, name, description, input_schema, category, keywords, usage_count FROM tools`
		args := []any{}
		if providerID != "" {
			query += ` WHERE provider_id = ?`
			args = append(args, providerID)
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTool(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return out, nil
}

// DeleteToolsByProvider bulk-deletes every tool belonging to providerID.
func (s *Store) DeleteToolsByProvider(ctx context.Context, providerID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE provider_id = ?`, providerID)
		if err != nil {
			return fmt.Errorf("%w: delete tools by provider: %v", gatewayerr.ErrInternal, err)
		}
		return nil
	})
}

// incrementUsageCount bumps a tool's persistent usage counter by one. It is
// invoked inside the same transaction as the usage-log append so the two
// never diverge.
func incrementUsageCount(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tools SET usage_count = usage_count + 1 WHERE name = ?`, name)
	return err
}

func scanTool(r rowScanner) (*models.ToolDescriptor, error) {
	var t models.ToolDescriptor
	var schemaJSON, keywordsJSON string
	if err := r.Scan(&t.ProviderID, &t.Name, &t.Description, &schemaJSON, &t.Category, &keywordsJSON, &t.UsageCount); err != nil {
		return nil, err
	}
	t.InputSchema = json.RawMessage(schemaJSON)
	if keywordsJSON != "" {
		_ = json.Unmarshal([]byte(keywordsJSON), &t.Keywords)
	}
	return &t, nil
}
