// Package mongo implements warehouse.Store on MongoDB. Each table becomes a
// collection keyed by _id; surrogate keys come from a counters collection.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

const countersCollection = "counters"

var _ warehouse.Store = (*Store)(nil)

// Store is a MongoDB warehouse. The catalog's schema name is used as the
// database name.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	catalog *schema.Catalog
	logger  *slog.Logger

	// transactions wraps units of work in multi-document transactions, which
	// need a replica set or sharded cluster.
	transactions bool
}

// Open connects to MongoDB and pings the deployment.
func Open(ctx context.Context, connectionString string, catalog *schema.Catalog, transactions bool, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	dbName := catalog.SchemaName
	if dbName == "" {
		dbName = schema.DefaultSchemaName
	}
	return &Store{
		client:       client,
		db:           client.Database(dbName),
		catalog:      catalog,
		transactions: transactions,
		logger:       logger,
	}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	names := append(s.tableNames(), countersCollection)
	for _, name := range names {
		if err := s.db.CreateCollection(ctx, name); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("creating collection %s: %w", name, err)
			}
		}
	}

	// Unique keys from the catalog become unique indexes.
	for _, t := range s.catalog.Tables {
		for _, uk := range t.UniqueKeys {
			keys := bson.D{}
			for _, col := range uk {
				keys = append(keys, bson.E{Key: col, Value: 1})
			}
			model := mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
			if _, err := s.db.Collection(t.Name).Indexes().CreateOne(ctx, model); err != nil {
				return fmt.Errorf("creating unique index on %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (warehouse.UnitOfWork, error) {
	u := &unit{store: s, ctx: ctx}
	if !s.transactions {
		return u, nil
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	u.sess = sess
	u.ctx = mongo.NewSessionContext(ctx, sess)
	return u, nil
}

func (s *Store) ReadDimensions(ctx context.Context) (schema.Dimensions, error) {
	var d schema.Dimensions

	var customers []customerDoc
	if err := s.findAll(ctx, schema.TableDimCustomer, &customers); err != nil {
		return d, err
	}
	for _, c := range customers {
		d.Customers = append(d.Customers, c.toRow())
	}

	var dates []dateDoc
	if err := s.findAll(ctx, schema.TableDimDate, &dates); err != nil {
		return d, err
	}
	for _, doc := range dates {
		row, err := doc.toRow()
		if err != nil {
			return d, err
		}
		d.Dates = append(d.Dates, row)
	}

	var products []productDoc
	if err := s.findAll(ctx, schema.TableDimProduct, &products); err != nil {
		return d, err
	}
	for _, p := range products {
		d.Products = append(d.Products, p.toRow())
	}

	var countries []countryDoc
	if err := s.findAll(ctx, schema.TableDimCountry, &countries); err != nil {
		return d, err
	}
	for _, c := range countries {
		d.Countries = append(d.Countries, c.toRow())
	}
	return d, nil
}

func (s *Store) Counts(ctx context.Context) (*warehouse.Counts, error) {
	c := &warehouse.Counts{Dimensions: map[string]int64{}}
	for _, t := range s.catalog.Dimensions() {
		n, err := s.db.Collection(t.Name).CountDocuments(ctx, bson.D{})
		if err != nil {
			return nil, fmt.Errorf("counting documents in %s: %w", t.Name, err)
		}
		c.Dimensions[t.Name] = n
	}

	facts := s.db.Collection(schema.TableFactSales)
	var err error
	if c.Facts, err = facts.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, fmt.Errorf("counting facts: %w", err)
	}
	if c.ValidFacts, err = facts.CountDocuments(ctx, bson.D{{Key: "is_valid", Value: 1}}); err != nil {
		return nil, fmt.Errorf("counting valid facts: %w", err)
	}
	c.InvalidFacts = c.Facts - c.ValidFacts
	return c, nil
}

// OrphanCounts joins each fact reference against the dimension _id with
// $lookup and counts facts with no match.
func (s *Store) OrphanCounts(ctx context.Context) (map[string]int64, error) {
	fact := s.catalog.Table(schema.TableFactSales)
	out := make(map[string]int64, len(fact.ForeignKeys))
	for _, fk := range fact.ForeignKeys {
		pipeline := mongo.Pipeline{
			{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: fk.ReferencedTable},
				{Key: "localField", Value: fk.Columns[0]},
				{Key: "foreignField", Value: "_id"},
				{Key: "as", Value: "ref"},
			}}},
			{{Key: "$match", Value: bson.D{{Key: "ref", Value: bson.D{{Key: "$size", Value: 0}}}}}},
			{{Key: "$count", Value: "n"}},
		}
		cur, err := s.db.Collection(schema.TableFactSales).Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", fk.Name, err)
		}
		var res []struct {
			N int64 `bson:"n"`
		}
		if err := cur.All(ctx, &res); err != nil {
			return nil, fmt.Errorf("checking %s: %w", fk.Name, err)
		}
		out[fk.Name] = 0
		if len(res) > 0 {
			out[fk.Name] = res[0].N
		}
	}
	return out, nil
}

func (s *Store) Drop(ctx context.Context) error {
	for _, name := range append(s.tableNames(), countersCollection) {
		if err := s.db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("dropping collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) tableNames() []string {
	names := make([]string, 0, len(s.catalog.Tables))
	for _, t := range s.catalog.Tables {
		names = append(names, t.Name)
	}
	return names
}

func (s *Store) findAll(ctx context.Context, collection string, out any) error {
	cur, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("reading %s: %w", collection, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decoding %s: %w", collection, err)
	}
	return nil
}

// nextIDs reserves n consecutive surrogate keys for collection and returns the
// first one.
func (s *Store) nextIDs(ctx context.Context, collection string, n int) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: collection}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(n)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocating %s keys: %w", collection, err)
	}
	return doc.Seq - int64(n) + 1, nil
}

func parseDocDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
