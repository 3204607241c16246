package mongo

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

var _ warehouse.Stager = (*Store)(nil)

func (s *Store) EnsureStaging(ctx context.Context, c *schema.Catalog) error {
	for _, t := range c.Tables {
		if err := s.db.CreateCollection(ctx, t.Name); err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("creating collection %s: %w", t.Name, err)
		}
	}
	return nil
}

// ReplaceStaged deletes and inserts inside a transaction when transactions
// are enabled. Documents get a generated ObjectID.
func (s *Store) ReplaceStaged(ctx context.Context, t warehouse.StagedTable) error {
	docs := make([]any, 0, len(t.Rows))
	for i, row := range t.Rows {
		doc, err := stagedDoc(t.Columns, row)
		if err != nil {
			return fmt.Errorf("encoding %s row %d: %w", t.Name, i, err)
		}
		docs = append(docs, doc)
	}

	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	u := uow.(*unit)
	defer u.Rollback(ctx)

	coll := s.db.Collection(t.Name)
	if _, err := coll.DeleteMany(u.opCtx(ctx), bson.D{}); err != nil {
		return fmt.Errorf("clearing %s: %w", t.Name, err)
	}
	if len(docs) > 0 {
		if _, err := coll.InsertMany(u.opCtx(ctx), docs); err != nil {
			return fmt.Errorf("staging %s: %w", t.Name, err)
		}
	}
	return u.Commit(ctx)
}

func (s *Store) DropStaging(ctx context.Context, c *schema.Catalog) error {
	for _, t := range c.Tables {
		if err := s.db.Collection(t.Name).Drop(ctx); err != nil {
			return fmt.Errorf("dropping collection %s: %w", t.Name, err)
		}
	}
	return nil
}

// stagedDoc pairs columns with values, storing decimals as Decimal128 and
// leaving nil values out.
func stagedDoc(cols []string, row []any) (bson.D, error) {
	doc := make(bson.D, 0, len(cols))
	for i, col := range cols {
		v := row[i]
		switch x := v.(type) {
		case nil:
			continue
		case decimal.Decimal:
			d, err := decimal128(x)
			if err != nil {
				return nil, err
			}
			v = d
		}
		doc = append(doc, bson.E{Key: col, Value: v})
	}
	return doc, nil
}
