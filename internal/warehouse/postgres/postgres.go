// Package postgres implements warehouse.Store for PostgreSQL using pgx.
// Dimension upserts are sent as a pgx batch; facts are written with COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

var _ warehouse.Store = (*Store)(nil)

// Store is a PostgreSQL warehouse.
type Store struct {
	pool    *pgxpool.Pool
	catalog *schema.Catalog
	logger  *slog.Logger
}

// Open connects to PostgreSQL and pings the server.
func Open(ctx context.Context, connStr string, catalog *schema.Catalog, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, catalog: catalog, logger: logger}, nil
}

func (s *Store) table(name string) string {
	return schema.TableName(s.catalog, schema.DialectPostgres, name)
}

func (s *Store) identifier(name string) pgx.Identifier {
	if s.catalog.SchemaName == "" {
		return pgx.Identifier{name}
	}
	return pgx.Identifier{s.catalog.SchemaName, name}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts, err := schema.RenderDDL(s.catalog, schema.DialectPostgres)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (warehouse.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &unit{store: s, tx: tx}, nil
}

func (s *Store) ReadDimensions(ctx context.Context) (schema.Dimensions, error) {
	var d schema.Dimensions
	var err error

	d.Customers, err = collect(ctx, s.pool,
		"SELECT customer_id, customer_segment, country FROM "+s.table(schema.TableDimCustomer),
		func(row pgx.CollectableRow) (schema.DimCustomer, error) {
			var c schema.DimCustomer
			var seg, country *string
			if err := row.Scan(&c.CustomerID, &seg, &country); err != nil {
				return c, err
			}
			c.CustomerSegment = schema.Segment(deref(seg))
			c.Country = deref(country)
			return c, nil
		})
	if err != nil {
		return d, fmt.Errorf("reading customers: %w", err)
	}

	d.Dates, err = collect(ctx, s.pool,
		`SELECT date_id, "date", year, month, day, quarter, day_of_week, day_name, month_name, is_weekend FROM `+s.table(schema.TableDimDate),
		func(row pgx.CollectableRow) (schema.DimDate, error) {
			var r schema.DimDate
			var date time.Time
			var weekend int16
			if err := row.Scan(&r.DateID, &date, &r.Year, &r.Month, &r.Day, &r.Quarter, &r.DayOfWeek, &r.DayName, &r.MonthName, &weekend); err != nil {
				return r, err
			}
			r.Date = civil.DateOf(date)
			r.IsWeekend = weekend != 0
			return r, nil
		})
	if err != nil {
		return d, fmt.Errorf("reading dates: %w", err)
	}

	d.Products, err = collect(ctx, s.pool,
		"SELECT product_id, description, product_category FROM "+s.table(schema.TableDimProduct),
		func(row pgx.CollectableRow) (schema.DimProduct, error) {
			var p schema.DimProduct
			var desc, cat *string
			if err := row.Scan(&p.ProductID, &desc, &cat); err != nil {
				return p, err
			}
			p.Description, p.ProductCategory = deref(desc), deref(cat)
			return p, nil
		})
	if err != nil {
		return d, fmt.Errorf("reading products: %w", err)
	}

	d.Countries, err = collect(ctx, s.pool,
		"SELECT country_id, country_name, region FROM "+s.table(schema.TableDimCountry),
		pgx.RowToStructByPos[schema.DimCountry])
	if err != nil {
		return d, fmt.Errorf("reading countries: %w", err)
	}
	return d, nil
}

func (s *Store) Counts(ctx context.Context) (*warehouse.Counts, error) {
	c := &warehouse.Counts{Dimensions: map[string]int64{}}
	for _, t := range s.catalog.Dimensions() {
		var n int64
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+s.table(t.Name)).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting rows in %s: %w", t.Name, err)
		}
		c.Dimensions[t.Name] = n
	}

	q := "SELECT COUNT(*), COUNT(*) FILTER (WHERE is_valid = 1) FROM " + s.table(schema.TableFactSales)
	if err := s.pool.QueryRow(ctx, q).Scan(&c.Facts, &c.ValidFacts); err != nil {
		return nil, fmt.Errorf("counting facts: %w", err)
	}
	c.InvalidFacts = c.Facts - c.ValidFacts
	return c, nil
}

func (s *Store) OrphanCounts(ctx context.Context) (map[string]int64, error) {
	fact := s.catalog.Table(schema.TableFactSales)
	out := make(map[string]int64, len(fact.ForeignKeys))
	for _, fk := range fact.ForeignKeys {
		col := pgx.Identifier{fk.Columns[0]}.Sanitize()
		ref := pgx.Identifier{fk.ReferencedColumns[0]}.Sanitize()
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s f WHERE NOT EXISTS (SELECT 1 FROM %s d WHERE d.%s = f.%s)",
			s.table(schema.TableFactSales), s.table(fk.ReferencedTable), ref, col)
		var n int64
		if err := s.pool.QueryRow(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("checking %s: %w", fk.Name, err)
		}
		out[fk.Name] = n
	}
	return out, nil
}

func (s *Store) Drop(ctx context.Context) error {
	tables := s.catalog.Tables
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+s.table(tables[i].Name)+" CASCADE"); err != nil {
			return fmt.Errorf("dropping %s: %w", tables[i].Name, err)
		}
	}
	return nil
}

func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

// unit wraps a pgx transaction.
type unit struct {
	store *Store
	tx    pgx.Tx
	done  bool
}

func (u *unit) ResetFacts(ctx context.Context) error {
	if _, err := u.tx.Exec(ctx, "DELETE FROM "+u.store.table(schema.TableFactSales)); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	return nil
}

func (u *unit) UpsertCustomers(ctx context.Context, rows []schema.DimCustomer) error {
	q := fmt.Sprintf(`INSERT INTO %s (customer_id, customer_segment, country) VALUES ($1, $2, $3)
ON CONFLICT (customer_id) DO UPDATE SET customer_segment = EXCLUDED.customer_segment, country = EXCLUDED.country,
updated_at = CURRENT_TIMESTAMP`,
		u.store.table(schema.TableDimCustomer))
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(q, r.CustomerID, string(r.CustomerSegment), nullable(r.Country))
	}
	return u.send(ctx, b, "customers")
}

func (u *unit) UpsertDates(ctx context.Context, rows []schema.DimDate) error {
	q := fmt.Sprintf(`INSERT INTO %s ("date", year, month, day, quarter, day_of_week, day_name, month_name, is_weekend)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT ("date") DO UPDATE SET year = EXCLUDED.year, month = EXCLUDED.month, day = EXCLUDED.day,
quarter = EXCLUDED.quarter, day_of_week = EXCLUDED.day_of_week, day_name = EXCLUDED.day_name,
month_name = EXCLUDED.month_name, is_weekend = EXCLUDED.is_weekend`,
		u.store.table(schema.TableDimDate))
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(q, r.Date.In(time.UTC), r.Year, r.Month, r.Day, r.Quarter, r.DayOfWeek,
			r.DayName, r.MonthName, int16(schema.FlagInt(r.IsWeekend)))
	}
	return u.send(ctx, b, "dates")
}

func (u *unit) UpsertProducts(ctx context.Context, rows []schema.DimProduct) error {
	q := fmt.Sprintf(`INSERT INTO %s (product_id, stock_code, description, product_category) VALUES ($1, $1, $2, $3)
ON CONFLICT (product_id) DO UPDATE SET stock_code = EXCLUDED.stock_code, description = EXCLUDED.description,
product_category = EXCLUDED.product_category`,
		u.store.table(schema.TableDimProduct))
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(q, r.ProductID, nullable(r.Description), nullable(r.ProductCategory))
	}
	return u.send(ctx, b, "products")
}

func (u *unit) UpsertCountries(ctx context.Context, rows []schema.DimCountry) error {
	q := fmt.Sprintf(`INSERT INTO %s (country_name, region) VALUES ($1, $2)
ON CONFLICT (country_name) DO UPDATE SET region = EXCLUDED.region, updated_at = CURRENT_TIMESTAMP`,
		u.store.table(schema.TableDimCountry))
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(q, r.CountryName, r.Region)
	}
	return u.send(ctx, b, "countries")
}

func (u *unit) InsertFacts(ctx context.Context, rows []schema.FactSales) (int64, error) {
	cols := []string{"customer_id", "date_id", "product_id", "country_id", "quantity",
		"unit_price", "total_amount", "rolling_7d_sales", "invoice_no", "is_valid"}

	n, err := u.tx.CopyFrom(ctx, u.store.identifier(schema.TableFactSales), cols,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			price, err := numeric(r.UnitPrice)
			if err != nil {
				return nil, err
			}
			total, err := numeric(r.TotalAmount)
			if err != nil {
				return nil, err
			}
			return []any{r.CustomerID, r.DateID, r.ProductID, r.CountryID, r.Quantity,
				price, total, r.Rolling7dSales, r.InvoiceNo, int16(schema.FlagInt(r.IsValid))}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copying facts: %w", err)
	}
	return n, nil
}

func (u *unit) Commit(ctx context.Context) error {
	u.done = true
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (u *unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (u *unit) send(ctx context.Context, b *pgx.Batch, what string) error {
	if b.Len() == 0 {
		return nil
	}
	if err := u.tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upserting %s: %w", what, err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func collect[T any](ctx context.Context, q querier, sql string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}

// numeric converts a decimal to its pgx representation without going through
// float64.
func numeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return n, fmt.Errorf("converting %s to numeric: %w", d, err)
	}
	return n, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
