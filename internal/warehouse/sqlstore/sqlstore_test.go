package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "warehouse.db")
	s, err := Open(context.Background(), schema.DialectSQLite, dsn, schema.StarSchema("dw"), slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func sale(invoice, customer, code, country string, at time.Time, valid bool) schema.TransactionRow {
	return schema.TransactionRow{
		InvoiceNo:       invoice,
		StockCode:       code,
		Description:     "WHITE METAL LANTERN",
		Quantity:        2,
		InvoiceDate:     at,
		UnitPrice:       decimal.RequireFromString("5.00"),
		CustomerID:      customer,
		Country:         country,
		TotalAmount:     decimal.RequireFromString("10.00"),
		CustomerSegment: schema.SegmentHigh,
		ProductCategory: "WHITE",
		IsValid:         valid,
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), schema.DialectSQLite, " ", schema.StarSchema("dw"), nil); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := Open(context.Background(), schema.DialectPostgres, "x", schema.StarSchema("dw"), nil); err == nil {
		t.Error("expected error for unsupported dialect")
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
	c, err := s.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c.Facts != 0 || len(c.Dimensions) != 4 {
		t.Errorf("counts = %+v", c)
	}
}

func TestUnitOfWork_UpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := civil.Date{Year: 2021, Month: time.January, Day: 4}

	for _, seg := range []schema.Segment{schema.SegmentLow, schema.SegmentHigh} {
		u, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := u.UpsertCustomers(ctx, []schema.DimCustomer{{CustomerID: "C1", CustomerSegment: seg, Country: "France"}}); err != nil {
			t.Fatalf("UpsertCustomers: %v", err)
		}
		if err := u.UpsertDates(ctx, []schema.DimDate{{Date: day, Year: 2021, Month: 1, Day: 4, Quarter: 1, DayName: "Monday", MonthName: "January"}}); err != nil {
			t.Fatalf("UpsertDates: %v", err)
		}
		if err := u.UpsertCountries(ctx, []schema.DimCountry{{CountryName: "France", Region: "Europe"}}); err != nil {
			t.Fatalf("UpsertCountries: %v", err)
		}
		if err := u.Commit(ctx); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	dims, err := s.ReadDimensions(ctx)
	if err != nil {
		t.Fatalf("ReadDimensions: %v", err)
	}
	if len(dims.Customers) != 1 || dims.Customers[0].CustomerSegment != schema.SegmentHigh {
		t.Errorf("customers = %+v, want one High customer", dims.Customers)
	}
	if len(dims.Dates) != 1 || dims.Dates[0].Date != day || dims.Dates[0].DateID != 1 {
		t.Errorf("dates = %+v, want one row with id 1", dims.Dates)
	}
	if len(dims.Countries) != 1 || dims.Countries[0].CountryID != 1 {
		t.Errorf("countries = %+v", dims.Countries)
	}
}

func TestUnitOfWork_Rollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := u.UpsertProducts(ctx, []schema.DimProduct{{ProductID: "P1", Description: "MUG"}}); err != nil {
		t.Fatalf("UpsertProducts: %v", err)
	}
	if err := u.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := u.Rollback(ctx); err != nil {
		t.Errorf("second Rollback should be a no-op: %v", err)
	}

	c, _ := s.Counts(ctx)
	if c.Dimensions[schema.TableDimProduct] != 0 {
		t.Errorf("products = %d after rollback, want 0", c.Dimensions[schema.TableDimProduct])
	}
}

func TestInsertFacts_ForeignKeyEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, _ := s.Begin(ctx)
	defer u.Rollback(ctx)
	_, err := u.InsertFacts(ctx, []schema.FactSales{{CustomerID: "nobody", DateID: 99, ProductID: "x", CountryID: 99, InvoiceNo: "1"}})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestLoader_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)

	var rows []schema.TransactionRow
	for i := 0; i < 25; i++ {
		rows = append(rows, sale(fmt.Sprint(536365+i), fmt.Sprintf("C%d", i%4), fmt.Sprintf("P%d", i%3),
			[]string{"United Kingdom", "Japan"}[i%2], base.AddDate(0, 0, i%6), i%5 != 0))
	}
	rows = append(rows, sale("536999", "", "P1", "Japan", base, true))

	l := warehouse.NewLoader(s, warehouse.Options{BatchSize: 10, ReplaceFacts: true}, slog.Default())
	sum, err := l.Load(ctx, rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if sum.BatchesCommitted != 3 || sum.FactsInserted != 25 || sum.RowsDropped != 1 {
		t.Errorf("summary = committed %d, inserted %d, dropped %d", sum.BatchesCommitted, sum.FactsInserted, sum.RowsDropped)
	}
	want := map[string]int64{
		schema.TableDimCustomer: 4, schema.TableDimDate: 6, schema.TableDimProduct: 3, schema.TableDimCountry: 2,
	}
	for table, n := range want {
		if sum.Store.Dimensions[table] != n {
			t.Errorf("%s = %d, want %d", table, sum.Store.Dimensions[table], n)
		}
	}
	if sum.Store.ValidFacts != 20 || sum.Store.InvalidFacts != 5 {
		t.Errorf("valid=%d invalid=%d, want 20/5", sum.Store.ValidFacts, sum.Store.InvalidFacts)
	}

	orphans, err := s.OrphanCounts(ctx)
	if err != nil {
		t.Fatalf("OrphanCounts: %v", err)
	}
	for fk, n := range orphans {
		if n != 0 {
			t.Errorf("%s orphans = %d", fk, n)
		}
	}

	// A rerun replaces facts and leaves dimension counts unchanged.
	again, err := l.Load(ctx, rows)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.Store.Facts != 25 {
		t.Errorf("facts after rerun = %d, want 25", again.Store.Facts)
	}
	for table, n := range want {
		if again.Store.Dimensions[table] != n {
			t.Errorf("%s after rerun = %d, want %d", table, again.Store.Dimensions[table], n)
		}
	}
}

func TestDrop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := s.Counts(ctx); err == nil {
		t.Error("expected error counting dropped tables")
	}
}

func TestUpsertSQL(t *testing.T) {
	lite := &Store{dialect: schema.DialectSQLite, catalog: schema.StarSchema("dw")}
	got := lite.upsertSQL(schema.TableDimCountry, []string{"country_name", "region"}, "country_name")
	want := `INSERT INTO "dim_country" ("country_name", "region") VALUES (?, ?) ON CONFLICT ("country_name") DO UPDATE SET "region" = excluded."region", "updated_at" = CURRENT_TIMESTAMP`
	if got != want {
		t.Errorf("sqlite upsert =\n%s\nwant\n%s", got, want)
	}

	my := &Store{dialect: schema.DialectMySQL, catalog: schema.StarSchema("dw")}
	got = my.upsertSQL(schema.TableDimCountry, []string{"country_name", "region"}, "country_name")
	if !strings.HasPrefix(got, "INSERT INTO `dw`.`dim_country`") || !strings.HasSuffix(got, "ON DUPLICATE KEY UPDATE `region` = VALUES(`region`), `updated_at` = CURRENT_TIMESTAMP") {
		t.Errorf("mysql upsert = %s", got)
	}

	// dim_date carries no updated_at column.
	got = lite.upsertSQL(schema.TableDimDate, []string{"date", "year"}, "date")
	if strings.Contains(got, "updated_at") {
		t.Errorf("date upsert refreshes updated_at: %s", got)
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2021-01-04", "2021-01-04T00:00:00Z"} {
		d, err := parseDate(in)
		if err != nil || d != (civil.Date{Year: 2021, Month: time.January, Day: 4}) {
			t.Errorf("parseDate(%q) = %v, %v", in, d, err)
		}
	}
	if _, err := parseDate("bad"); err == nil {
		t.Error("expected error for short value")
	}
}

func TestInsightsAndConsistency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jan := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2021, 2, 1, 10, 0, 0, 0, time.UTC)

	japan := sale("536400", "C2", "P2", "Japan", feb, true)
	japan.CustomerSegment = schema.SegmentLow
	japan.Quantity = 3
	japan.TotalAmount = decimal.RequireFromString("30.00")
	japan.UnitPrice = decimal.RequireFromString("10.00")
	refund := sale("C536401", "C3", "P3", "France", jan, false)
	refund.Quantity = -1
	refund.TotalAmount = decimal.RequireFromString("-5.00")
	rows := []schema.TransactionRow{
		sale("536365", "C1", "P1", "United Kingdom", jan, true),
		sale("536366", "C1", "P1", "United Kingdom", jan, true),
		japan,
		refund,
	}
	if _, err := warehouse.NewLoader(s, warehouse.Options{BatchSize: 10, ReplaceFacts: true}, slog.Default()).Load(ctx, rows); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c, err := s.Consistency(ctx)
	if err != nil {
		t.Fatalf("Consistency: %v", err)
	}
	if *c != (warehouse.Consistency{Facts: 4, NegativeAmounts: 1, NegativeQuantities: 1}) {
		t.Errorf("consistency = %+v", *c)
	}

	in, err := s.Insights(ctx, 1)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(in.TopCountries) != 1 || in.TopCountries[0].Country != "Japan" || !in.TopCountries[0].TotalSales.Equal(decimal.NewFromInt(30)) {
		t.Errorf("top countries = %+v, want only Japan at 30", in.TopCountries)
	}
	if len(in.Segments) != 2 || in.Segments[0].Segment != string(schema.SegmentLow) || in.Segments[1].Transactions != 2 {
		t.Errorf("segments = %+v", in.Segments)
	}
	if got := in.Segments[1]; got.Customers != 1 || !got.AvgTransactionValue.Equal(decimal.NewFromInt(10)) {
		t.Errorf("high segment = %+v", got)
	}
	if len(in.Monthly) != 2 || in.Monthly[0].MonthName != "January" || in.Monthly[0].Transactions != 2 || in.Monthly[1].Month != 2 {
		t.Errorf("monthly = %+v", in.Monthly)
	}
	if len(in.TopProducts) != 1 || in.TopProducts[0].StockCode != "P2" {
		t.Errorf("top products = %+v", in.TopProducts)
	}
}

func TestProductStockCodeAndAuditColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rows := []schema.TransactionRow{sale("536365", "C1", "85123A", "France", time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), true)}
	if _, err := warehouse.NewLoader(s, warehouse.Options{BatchSize: 10}, slog.Default()).Load(ctx, rows); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var code string
	var created sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT stock_code, created_at FROM "dim_product" WHERE product_id = ?`, "85123A").Scan(&code, &created)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if code != "85123A" || !created.Valid {
		t.Errorf("stock_code = %q, created_at = %+v", code, created)
	}
}

func TestStaging_ReplaceAndDrop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := schema.StagingSchema("dw")
	if err := s.EnsureStaging(ctx, c); err != nil {
		t.Fatalf("EnsureStaging: %v", err)
	}

	at := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	table := warehouse.StagedTable{
		Name:    schema.TableProcessedData,
		Columns: c.Table(schema.TableProcessedData).WritableColumns(),
	}
	row := func(invoice string) []any {
		return []any{invoice, "85123A", nil, int64(6), at, decimal.RequireFromString("2.55"), "17850",
			"United Kingdom", decimal.RequireFromString("15.30"), "High", "WHITE", 15.3, int64(1),
			int64(2010), int64(12), int64(1), int64(2), int64(4)}
	}
	table.Rows = [][]any{row("536365"), row("536366")}
	if err := s.ReplaceStaged(ctx, table); err != nil {
		t.Fatalf("ReplaceStaged: %v", err)
	}
	table.Rows = [][]any{row("536367")}
	if err := s.ReplaceStaged(ctx, table); err != nil {
		t.Fatalf("second ReplaceStaged: %v", err)
	}

	var n int64
	var invoice string
	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(invoice_no), MAX(total_amount) FROM "processed_data"`).Scan(&n, &invoice, &total); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 || invoice != "536367" || !total.Equal(decimal.RequireFromString("15.3")) {
		t.Errorf("processed_data = %d rows, invoice %s, total %s", n, invoice, total)
	}

	if err := s.DropStaging(ctx, c); err != nil {
		t.Fatalf("DropStaging: %v", err)
	}
	if _, err := s.count(ctx, `SELECT COUNT(*) FROM "raw_data"`); err == nil {
		t.Error("raw_data still exists after DropStaging")
	}
}
