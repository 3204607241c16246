package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

var _ warehouse.Stager = (*Store)(nil)

func (s *Store) EnsureStaging(ctx context.Context, c *schema.Catalog) error {
	stmts, err := schema.RenderDDL(c, schema.DialectPostgres)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating staging tables: %w", err)
		}
	}
	return nil
}

// ReplaceStaged truncates the table and copies the rows in one transaction.
func (s *Store) ReplaceStaged(ctx context.Context, t warehouse.StagedTable) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE "+s.table(t.Name)); err != nil {
			return fmt.Errorf("truncating %s: %w", t.Name, err)
		}
		_, err := tx.CopyFrom(ctx, s.identifier(t.Name), t.Columns,
			pgx.CopyFromSlice(len(t.Rows), func(i int) ([]any, error) {
				return copyValues(t.Rows[i])
			}))
		if err != nil {
			return fmt.Errorf("copying %s: %w", t.Name, err)
		}
		return nil
	})
}

func (s *Store) DropStaging(ctx context.Context, c *schema.Catalog) error {
	for _, t := range c.Tables {
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+s.table(t.Name)); err != nil {
			return fmt.Errorf("dropping %s: %w", t.Name, err)
		}
	}
	return nil
}

// copyValues converts decimals to pgtype.Numeric; COPY cannot encode them
// directly.
func copyValues(row []any) ([]any, error) {
	out := make([]any, len(row))
	for i, v := range row {
		d, ok := v.(decimal.Decimal)
		if !ok {
			out[i] = v
			continue
		}
		n, err := numeric(d)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
