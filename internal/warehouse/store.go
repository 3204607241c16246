// Package warehouse loads dimension and fact rows into a star-schema store.
package warehouse

import (
	"context"

	"github.com/starload/starload/internal/schema"
)

// Store is a warehouse backend.
type Store interface {
	// EnsureSchema creates the warehouse tables if they do not exist.
	EnsureSchema(ctx context.Context) error
	// Begin opens a unit of work. Writes become visible on Commit.
	Begin(ctx context.Context) (UnitOfWork, error)
	// ReadDimensions returns every persisted dimension row with its stored key.
	ReadDimensions(ctx context.Context) (schema.Dimensions, error)
	Counts(ctx context.Context) (*Counts, error)
	// OrphanCounts returns, per fact foreign key name, the number of facts
	// whose key has no dimension row.
	OrphanCounts(ctx context.Context) (map[string]int64, error)
	// Consistency counts facts with negative amount, price or quantity.
	Consistency(ctx context.Context) (*Consistency, error)
	// Insights returns the sales breakdowns, ranking at most limit countries
	// and products.
	Insights(ctx context.Context, limit int) (*Insights, error)
	// Drop removes all warehouse tables.
	Drop(ctx context.Context) error
	Close(ctx context.Context) error
}

// Stager keeps copies of the source data in staging tables described by a
// staging catalog.
type Stager interface {
	// EnsureStaging creates the staging tables if they do not exist.
	EnsureStaging(ctx context.Context, c *schema.Catalog) error
	// ReplaceStaged empties the table and writes t.Rows in one transaction
	// where the store supports it.
	ReplaceStaged(ctx context.Context, t StagedTable) error
	DropStaging(ctx context.Context, c *schema.Catalog) error
}

// StagedTable holds rows for one staging table with values in Columns order.
// Values are nil, string, int64, float64, time.Time or decimal.Decimal.
type StagedTable struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// UnitOfWork groups writes that commit or roll back together. Rollback after
// a successful Commit is a no-op, so it can be deferred.
type UnitOfWork interface {
	// ResetFacts deletes every fact row.
	ResetFacts(ctx context.Context) error
	// Upsert methods insert rows or overwrite the attributes of rows with the
	// same natural key (customer_id, date, stock code, country name).
	UpsertCustomers(ctx context.Context, rows []schema.DimCustomer) error
	UpsertDates(ctx context.Context, rows []schema.DimDate) error
	UpsertProducts(ctx context.Context, rows []schema.DimProduct) error
	UpsertCountries(ctx context.Context, rows []schema.DimCountry) error
	// InsertFacts appends facts and returns the number written.
	InsertFacts(ctx context.Context, rows []schema.FactSales) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Counts are row counts read from the store.
type Counts struct {
	Dimensions   map[string]int64 `json:"dimensions" yaml:"dimensions"`
	Facts        int64            `json:"facts" yaml:"facts"`
	ValidFacts   int64            `json:"valid_facts" yaml:"valid_facts"`
	InvalidFacts int64            `json:"invalid_facts" yaml:"invalid_facts"`
}
