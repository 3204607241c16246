// Package sqlstore implements warehouse.Store on database/sql for SQLite and
// MySQL. Both dialects use "?" placeholders; they differ only in upsert
// syntax and DDL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

var _ warehouse.Store = (*Store)(nil)

// Store is a database/sql warehouse.
type Store struct {
	db      *sql.DB
	dialect schema.Dialect
	catalog *schema.Catalog
	logger  *slog.Logger
}

// Open connects to a SQLite or MySQL warehouse and pings it.
//
// For SQLite the DSN is a file path or "file::memory:"; the pool is limited
// to one connection so an in-memory database is shared and foreign keys stay
// enabled. For MySQL the DSN uses the go-sql-driver format, e.g.
// "user:pass@tcp(host:3306)/".
func Open(ctx context.Context, dialect schema.Dialect, dsn string, catalog *schema.Catalog, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", dialect)
	}

	var driver string
	switch dialect {
	case schema.DialectSQLite:
		driver = "sqlite"
	case schema.DialectMySQL:
		driver = "mysql"
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", dialect, err)
	}
	if dialect == schema.DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", dialect, err)
	}

	if dialect == schema.DialectSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, catalog: catalog, logger: logger}, nil
}

func (s *Store) table(name string) string {
	return schema.TableName(s.catalog, s.dialect, name)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts, err := schema.RenderDDL(s.catalog, s.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: executing DDL: %w", s.dialect, err)
		}
	}
	s.logger.Debug("warehouse schema ensured", "dialect", s.dialect, "schema", s.catalog.SchemaName)
	return nil
}

func (s *Store) Begin(ctx context.Context) (warehouse.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", s.dialect, err)
	}
	return &unit{store: s, tx: tx}, nil
}

func (s *Store) ReadDimensions(ctx context.Context) (schema.Dimensions, error) {
	var d schema.Dimensions

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT customer_id, customer_segment, country FROM %s", s.table(schema.TableDimCustomer)))
	if err != nil {
		return d, fmt.Errorf("reading customers: %w", err)
	}
	for rows.Next() {
		var c schema.DimCustomer
		var seg, country sql.NullString
		if err := rows.Scan(&c.CustomerID, &seg, &country); err != nil {
			rows.Close()
			return d, fmt.Errorf("scanning customer: %w", err)
		}
		c.CustomerSegment = schema.Segment(seg.String)
		c.Country = country.String
		d.Customers = append(d.Customers, c)
	}
	if err := closeRows(rows); err != nil {
		return d, fmt.Errorf("reading customers: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT date_id, %s, year, month, day, quarter, day_of_week, day_name, month_name, is_weekend FROM %s",
		schema.QuoteIdent(s.dialect, "date"), s.table(schema.TableDimDate)))
	if err != nil {
		return d, fmt.Errorf("reading dates: %w", err)
	}
	for rows.Next() {
		var r schema.DimDate
		var date string
		var weekend int
		if err := rows.Scan(&r.DateID, &date, &r.Year, &r.Month, &r.Day, &r.Quarter, &r.DayOfWeek, &r.DayName, &r.MonthName, &weekend); err != nil {
			rows.Close()
			return d, fmt.Errorf("scanning date: %w", err)
		}
		if r.Date, err = parseDate(date); err != nil {
			rows.Close()
			return d, err
		}
		r.IsWeekend = weekend != 0
		d.Dates = append(d.Dates, r)
	}
	if err := closeRows(rows); err != nil {
		return d, fmt.Errorf("reading dates: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT product_id, description, product_category FROM %s", s.table(schema.TableDimProduct)))
	if err != nil {
		return d, fmt.Errorf("reading products: %w", err)
	}
	for rows.Next() {
		var p schema.DimProduct
		var desc, cat sql.NullString
		if err := rows.Scan(&p.ProductID, &desc, &cat); err != nil {
			rows.Close()
			return d, fmt.Errorf("scanning product: %w", err)
		}
		p.Description, p.ProductCategory = desc.String, cat.String
		d.Products = append(d.Products, p)
	}
	if err := closeRows(rows); err != nil {
		return d, fmt.Errorf("reading products: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT country_id, country_name, region FROM %s", s.table(schema.TableDimCountry)))
	if err != nil {
		return d, fmt.Errorf("reading countries: %w", err)
	}
	for rows.Next() {
		var c schema.DimCountry
		if err := rows.Scan(&c.CountryID, &c.CountryName, &c.Region); err != nil {
			rows.Close()
			return d, fmt.Errorf("scanning country: %w", err)
		}
		d.Countries = append(d.Countries, c)
	}
	if err := closeRows(rows); err != nil {
		return d, fmt.Errorf("reading countries: %w", err)
	}
	return d, nil
}

func (s *Store) Counts(ctx context.Context) (*warehouse.Counts, error) {
	c := &warehouse.Counts{Dimensions: map[string]int64{}}
	for _, t := range s.catalog.Dimensions() {
		n, err := s.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table(t.Name)))
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", t.Name, err)
		}
		c.Dimensions[t.Name] = n
	}

	facts := s.table(schema.TableFactSales)
	var err error
	if c.Facts, err = s.count(ctx, "SELECT COUNT(*) FROM "+facts); err != nil {
		return nil, fmt.Errorf("counting facts: %w", err)
	}
	if c.ValidFacts, err = s.count(ctx, "SELECT COUNT(*) FROM "+facts+" WHERE is_valid = 1"); err != nil {
		return nil, fmt.Errorf("counting valid facts: %w", err)
	}
	c.InvalidFacts = c.Facts - c.ValidFacts
	return c, nil
}

func (s *Store) OrphanCounts(ctx context.Context) (map[string]int64, error) {
	fact := s.catalog.Table(schema.TableFactSales)
	out := make(map[string]int64, len(fact.ForeignKeys))
	for _, fk := range fact.ForeignKeys {
		col := schema.QuoteIdent(s.dialect, fk.Columns[0])
		ref := schema.QuoteIdent(s.dialect, fk.ReferencedColumns[0])
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s f LEFT JOIN %s d ON f.%s = d.%s WHERE d.%s IS NULL",
			s.table(schema.TableFactSales), s.table(fk.ReferencedTable), col, ref, ref)
		n, err := s.count(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", fk.Name, err)
		}
		out[fk.Name] = n
	}
	return out, nil
}

// Drop removes the fact table first, then the dimensions.
func (s *Store) Drop(ctx context.Context) error {
	tables := s.catalog.Tables
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table(tables[i].Name)); err != nil {
			return fmt.Errorf("dropping %s: %w", tables[i].Name, err)
		}
	}
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

func (s *Store) count(ctx context.Context, q string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

// parseDate accepts a DATE column scanned as text. MySQL with parseTime=true
// yields an RFC 3339 timestamp, so only the leading date is used.
func parseDate(s string) (civil.Date, error) {
	if len(s) < 10 {
		return civil.Date{}, fmt.Errorf("invalid date value %q", s)
	}
	d, err := civil.ParseDate(s[:10])
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date value %q: %w", s, err)
	}
	return d, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// unit is a transaction-backed warehouse.UnitOfWork.
type unit struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

func (u *unit) ResetFacts(ctx context.Context) error {
	if _, err := u.tx.ExecContext(ctx, "DELETE FROM "+u.store.table(schema.TableFactSales)); err != nil {
		return fmt.Errorf("deleting facts: %w", err)
	}
	return nil
}

func (u *unit) UpsertCustomers(ctx context.Context, rows []schema.DimCustomer) error {
	q := u.store.upsertSQL(schema.TableDimCustomer,
		[]string{"customer_id", "customer_segment", "country"}, "customer_id")
	return u.execEach(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.CustomerID, string(r.CustomerSegment), nullable(r.Country)}
	})
}

func (u *unit) UpsertDates(ctx context.Context, rows []schema.DimDate) error {
	q := u.store.upsertSQL(schema.TableDimDate,
		[]string{"date", "year", "month", "day", "quarter", "day_of_week", "day_name", "month_name", "is_weekend"}, "date")
	return u.execEach(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.Date.String(), r.Year, r.Month, r.Day, r.Quarter, r.DayOfWeek, r.DayName, r.MonthName, schema.FlagInt(r.IsWeekend)}
	})
}

func (u *unit) UpsertProducts(ctx context.Context, rows []schema.DimProduct) error {
	q := u.store.upsertSQL(schema.TableDimProduct,
		[]string{"product_id", "stock_code", "description", "product_category"}, "product_id")
	return u.execEach(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.ProductID, r.ProductID, nullable(r.Description), nullable(r.ProductCategory)}
	})
}

func (u *unit) UpsertCountries(ctx context.Context, rows []schema.DimCountry) error {
	q := u.store.upsertSQL(schema.TableDimCountry,
		[]string{"country_name", "region"}, "country_name")
	return u.execEach(ctx, q, len(rows), func(i int) []any {
		return []any{rows[i].CountryName, rows[i].Region}
	})
}

func (u *unit) InsertFacts(ctx context.Context, rows []schema.FactSales) (int64, error) {
	cols := []string{"customer_id", "date_id", "product_id", "country_id", "quantity",
		"unit_price", "total_amount", "rolling_7d_sales", "invoice_no", "is_valid"}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		u.store.table(schema.TableFactSales), u.store.columnList(cols), placeholders(len(cols)))

	err := u.execEach(ctx, q, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.CustomerID, r.DateID, r.ProductID, r.CountryID, r.Quantity,
			r.UnitPrice, r.TotalAmount, r.Rolling7dSales, r.InvoiceNo, schema.FlagInt(r.IsValid)}
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (u *unit) Commit(_ context.Context) error {
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", u.store.dialect, err)
	}
	return nil
}

func (u *unit) Rollback(_ context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", u.store.dialect, err)
	}
	return nil
}

// execEach runs a prepared statement once per row inside the transaction.
func (u *unit) execEach(ctx context.Context, q string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := u.tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("%s: prepare: %w", u.store.dialect, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("%s: row %d: %w", u.store.dialect, i, err)
		}
	}
	return nil
}

// upsertSQL builds an insert that overwrites every non-key column when a row
// with the same conflict key exists, refreshing updated_at where the table
// has one.
func (s *Store) upsertSQL(table string, cols []string, key string) string {
	var sets []string
	for _, c := range cols {
		if c == key {
			continue
		}
		qc := schema.QuoteIdent(s.dialect, c)
		if s.dialect == schema.DialectMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", qc, qc))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", qc, qc))
		}
	}
	if t := s.catalog.Table(table); t != nil && t.HasColumn(schema.ColumnUpdatedAt) {
		sets = append(sets, schema.QuoteIdent(s.dialect, schema.ColumnUpdatedAt)+" = CURRENT_TIMESTAMP")
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table(table), s.columnList(cols), placeholders(len(cols)))
	if s.dialect == schema.DialectMySQL {
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return q + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", schema.QuoteIdent(s.dialect, key), strings.Join(sets, ", "))
}

func (s *Store) columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = schema.QuoteIdent(s.dialect, c)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
