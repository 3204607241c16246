package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/starload/starload/internal/schema"
)

// unit is a warehouse.UnitOfWork. Without transactions every write is applied
// immediately and Rollback cannot undo it.
type unit struct {
	store *Store
	sess  *mongo.Session
	ctx   context.Context
	done  bool
}

// opCtx returns the session-bound context when a transaction is active.
// Callers' contexts still carry cancellation for non-transactional units.
func (u *unit) opCtx(ctx context.Context) context.Context {
	if u.sess != nil {
		return u.ctx
	}
	return ctx
}

func (u *unit) coll(name string) *mongo.Collection {
	return u.store.db.Collection(name)
}

func (u *unit) ResetFacts(ctx context.Context) error {
	if _, err := u.coll(schema.TableFactSales).DeleteMany(u.opCtx(ctx), bson.D{}); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	return nil
}

func (u *unit) UpsertCustomers(ctx context.Context, rows []schema.DimCustomer) error {
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		doc := customerDoc{ID: r.CustomerID, Segment: string(r.CustomerSegment), Country: r.Country}
		m, err := upsertByID(r.CustomerID, doc, true, now)
		if err != nil {
			return fmt.Errorf("encoding customer %s: %w", r.CustomerID, err)
		}
		models = append(models, m)
	}
	return u.bulk(ctx, schema.TableDimCustomer, models)
}

func (u *unit) UpsertProducts(ctx context.Context, rows []schema.DimProduct) error {
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		doc := productDoc{ID: r.ProductID, StockCode: r.ProductID, Description: r.Description, Category: r.ProductCategory}
		m, err := upsertByID(r.ProductID, doc, false, now)
		if err != nil {
			return fmt.Errorf("encoding product %s: %w", r.ProductID, err)
		}
		models = append(models, m)
	}
	return u.bulk(ctx, schema.TableDimProduct, models)
}

// UpsertDates keeps the existing _id of a known date and reserves new keys
// for the rest.
func (u *unit) UpsertDates(ctx context.Context, rows []schema.DimDate) error {
	if len(rows) == 0 {
		return nil
	}
	existing, err := u.existingIDs(ctx, schema.TableDimDate, "date")
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var fresh []schema.DimDate
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		id, ok := existing[r.Date.String()]
		if !ok {
			fresh = append(fresh, r)
			continue
		}
		m, err := upsertByID(id, newDateDoc(id, r), false, now)
		if err != nil {
			return fmt.Errorf("encoding date %s: %w", r.Date, err)
		}
		models = append(models, m)
	}
	if len(fresh) > 0 {
		first, err := u.store.nextIDs(u.opCtx(ctx), schema.TableDimDate, len(fresh))
		if err != nil {
			return err
		}
		for i, r := range fresh {
			id := first + int64(i)
			m, err := upsertByID(id, newDateDoc(id, r), false, now)
			if err != nil {
				return fmt.Errorf("encoding date %s: %w", r.Date, err)
			}
			models = append(models, m)
		}
	}
	return u.bulk(ctx, schema.TableDimDate, models)
}

func (u *unit) UpsertCountries(ctx context.Context, rows []schema.DimCountry) error {
	if len(rows) == 0 {
		return nil
	}
	existing, err := u.existingIDs(ctx, schema.TableDimCountry, "country_name")
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var fresh []schema.DimCountry
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		id, ok := existing[r.CountryName]
		if !ok {
			fresh = append(fresh, r)
			continue
		}
		m, err := upsertByID(id, countryDoc{ID: id, Name: r.CountryName, Region: r.Region}, true, now)
		if err != nil {
			return fmt.Errorf("encoding country %s: %w", r.CountryName, err)
		}
		models = append(models, m)
	}
	if len(fresh) > 0 {
		first, err := u.store.nextIDs(u.opCtx(ctx), schema.TableDimCountry, len(fresh))
		if err != nil {
			return err
		}
		for i, r := range fresh {
			id := first + int64(i)
			m, err := upsertByID(id, countryDoc{ID: id, Name: r.CountryName, Region: r.Region}, true, now)
			if err != nil {
				return fmt.Errorf("encoding country %s: %w", r.CountryName, err)
			}
			models = append(models, m)
		}
	}
	return u.bulk(ctx, schema.TableDimCountry, models)
}

func (u *unit) InsertFacts(ctx context.Context, rows []schema.FactSales) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	first, err := u.store.nextIDs(u.opCtx(ctx), schema.TableFactSales, len(rows))
	if err != nil {
		return 0, err
	}
	docs := make([]any, 0, len(rows))
	for i, r := range rows {
		doc, err := newFactDoc(first+int64(i), r)
		if err != nil {
			return 0, fmt.Errorf("encoding fact %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	res, err := u.coll(schema.TableFactSales).InsertMany(u.opCtx(ctx), docs)
	if err != nil {
		return 0, fmt.Errorf("inserting facts: %w", err)
	}
	return int64(len(res.InsertedIDs)), nil
}

func (u *unit) Commit(ctx context.Context) error {
	u.done = true
	if u.sess == nil {
		return nil
	}
	defer u.sess.EndSession(ctx)
	if err := u.sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (u *unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if u.sess == nil {
		u.store.logger.Warn("rollback requested without transactions; writes already applied")
		return nil
	}
	defer u.sess.EndSession(ctx)
	if err := u.sess.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("aborting transaction: %w", err)
	}
	return nil
}

func (u *unit) bulk(ctx context.Context, collection string, models []mongo.WriteModel) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := u.coll(collection).BulkWrite(u.opCtx(ctx), models); err != nil {
		return fmt.Errorf("writing %s: %w", collection, err)
	}
	return nil
}

// upsertByID sets every field of doc on the document with the given _id,
// stamping created_at on insert and, when touch is set, updated_at on every
// write.
func upsertByID(id, doc any, touch bool, now time.Time) (mongo.WriteModel, error) {
	set, err := setFields(doc)
	if err != nil {
		return nil, err
	}
	if touch {
		set = append(set, bson.E{Key: schema.ColumnUpdatedAt, Value: now})
	}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: schema.ColumnCreatedAt, Value: now}}},
	}
	return mongo.NewUpdateOneModel().
		SetFilter(bson.D{{Key: "_id", Value: id}}).
		SetUpdate(update).
		SetUpsert(true), nil
}

// existingIDs maps a unique attribute to the _id of every stored document.
func (u *unit) existingIDs(ctx context.Context, collection, field string) (map[string]int64, error) {
	cur, err := u.coll(collection).Find(u.opCtx(ctx), bson.D{})
	if err != nil {
		return nil, fmt.Errorf("reading %s keys: %w", collection, err)
	}
	var docs []bson.M
	if err := cur.All(u.opCtx(ctx), &docs); err != nil {
		return nil, fmt.Errorf("decoding %s keys: %w", collection, err)
	}
	out := make(map[string]int64, len(docs))
	for _, doc := range docs {
		key, _ := doc[field].(string)
		switch id := doc["_id"].(type) {
		case int64:
			out[key] = id
		case int32:
			out[key] = int64(id)
		}
	}
	return out, nil
}
