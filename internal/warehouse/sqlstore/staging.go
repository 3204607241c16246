package sqlstore

import (
	"context"
	"fmt"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

var _ warehouse.Stager = (*Store)(nil)

func (s *Store) EnsureStaging(ctx context.Context, c *schema.Catalog) error {
	stmts, err := schema.RenderDDL(c, s.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: creating staging tables: %w", s.dialect, err)
		}
	}
	return nil
}

func (s *Store) ReplaceStaged(ctx context.Context, t warehouse.StagedTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", s.dialect, err)
	}
	u := &unit{store: s, tx: tx}
	defer u.Rollback(ctx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table(t.Name)); err != nil {
		return fmt.Errorf("%s: clearing %s: %w", s.dialect, t.Name, err)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table(t.Name), s.columnList(t.Columns), placeholders(len(t.Columns)))
	if err := u.execEach(ctx, q, len(t.Rows), func(i int) []any { return t.Rows[i] }); err != nil {
		return fmt.Errorf("staging %s: %w", t.Name, err)
	}
	return u.Commit(ctx)
}

func (s *Store) DropStaging(ctx context.Context, c *schema.Catalog) error {
	for _, t := range c.Tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table(t.Name)); err != nil {
			return fmt.Errorf("%s: dropping %s: %w", s.dialect, t.Name, err)
		}
	}
	return nil
}
