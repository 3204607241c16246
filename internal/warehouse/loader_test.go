package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
)

func txRow(invoice, customer, code, country string, at time.Time) schema.TransactionRow {
	return schema.TransactionRow{
		InvoiceNo:       invoice,
		StockCode:       code,
		Description:     "WHITE HANGING HEART",
		Quantity:        2,
		InvoiceDate:     at,
		UnitPrice:       decimal.RequireFromString("5.00"),
		CustomerID:      customer,
		Country:         country,
		TotalAmount:     decimal.RequireFromString("10.00"),
		CustomerSegment: schema.SegmentMedium,
		ProductCategory: "WHITE",
		IsValid:         true,
	}
}

// manyRows returns n resolvable rows spread over a few customers, days,
// products and countries.
func manyRows(n int) []schema.TransactionRow {
	countries := []string{"France", "Germany", "Japan", "Brazil"}
	base := time.Date(2021, 1, 4, 9, 0, 0, 0, time.UTC)
	rows := make([]schema.TransactionRow, n)
	for i := range rows {
		rows[i] = txRow(
			fmt.Sprintf("INV%d", i),
			fmt.Sprintf("C%d", i%37),
			fmt.Sprintf("P%d", i%11),
			countries[i%len(countries)],
			base.AddDate(0, 0, i%13),
		)
		rows[i].IsValid = i%10 != 0
	}
	return rows
}

func newTestLoader(store Store, opts Options) *Loader {
	opts.ReplaceFacts = true
	return NewLoader(store, opts, slog.Default())
}

func TestLoad_Example(t *testing.T) {
	store := NewMockStore()
	l := newTestLoader(store, Options{})

	rows := []schema.TransactionRow{txRow("536365", "C1", "P9", "France", time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC))}
	sum, err := l.Load(context.Background(), rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if sum.FactsInserted != 1 || sum.RowsDropped != 0 {
		t.Errorf("inserted=%d dropped=%d, want 1/0", sum.FactsInserted, sum.RowsDropped)
	}
	for table, want := range map[string]int64{
		schema.TableDimCustomer: 1, schema.TableDimDate: 1, schema.TableDimProduct: 1, schema.TableDimCountry: 1,
	} {
		if got := sum.Store.Dimensions[table]; got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	dims, _ := store.ReadDimensions(context.Background())
	d := dims.Dates[0]
	if d.DayOfWeek != 0 || d.IsWeekend || d.Quarter != 1 || d.DayName != "Monday" {
		t.Errorf("date row = %+v", d)
	}
	if dims.Countries[0].Region != "Europe" {
		t.Errorf("region = %q, want Europe", dims.Countries[0].Region)
	}
	f := store.Facts()[0]
	if f.DateID != d.DateID || f.CountryID != dims.Countries[0].CountryID || f.CustomerID != "C1" || f.ProductID != "P9" {
		t.Errorf("fact keys = %+v", f)
	}
	if !f.TotalAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("TotalAmount = %s, want 10", f.TotalAmount)
	}
}

func TestLoad_MissingCustomerIsDropped(t *testing.T) {
	store := NewMockStore()
	l := newTestLoader(store, Options{})

	rows := []schema.TransactionRow{txRow("536365", "", "P9", "France", time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC))}
	sum, err := l.Load(context.Background(), rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sum.Store.Dimensions[schema.TableDimCustomer] != 0 {
		t.Errorf("customers = %d, want 0", sum.Store.Dimensions[schema.TableDimCustomer])
	}
	if sum.Store.Facts != 0 || sum.RowsDropped != 1 {
		t.Errorf("facts=%d dropped=%d, want 0/1", sum.Store.Facts, sum.RowsDropped)
	}
	if sum.DropsByReason["customer"] != 1 {
		t.Errorf("DropsByReason = %v", sum.DropsByReason)
	}
}

func TestLoad_BatchesCommitIndependently(t *testing.T) {
	store := NewMockStore()
	l := newTestLoader(store, Options{BatchSize: 1000})

	sum, err := l.Load(context.Background(), manyRows(2500))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sum.BatchesCommitted != 3 {
		t.Errorf("BatchesCommitted = %d, want 3", sum.BatchesCommitted)
	}
	if store.FactCalls != 3 {
		t.Errorf("InsertFacts calls = %d, want 3", store.FactCalls)
	}
	if want := []int{1000, 1000, 500}; !slices.Equal(store.FactBatchSizes, want) {
		t.Errorf("batch sizes = %v, want %v", store.FactBatchSizes, want)
	}
	// One dimension commit plus one per fact batch.
	if store.Commits != 4 {
		t.Errorf("Commits = %d, want 4", store.Commits)
	}
	if sum.Store.Facts != 2500 {
		t.Errorf("facts = %d, want 2500", sum.Store.Facts)
	}
	if sum.Store.ValidFacts != 2250 || sum.Store.InvalidFacts != 250 {
		t.Errorf("valid=%d invalid=%d, want 2250/250", sum.Store.ValidFacts, sum.Store.InvalidFacts)
	}
	if !sum.Complete() {
		t.Error("summary should be complete")
	}
}

func TestLoad_CustomerCountMatchesDistinctIDs(t *testing.T) {
	store := NewMockStore()
	rows := manyRows(200)
	rows[5].CustomerID = ""

	sum, err := newTestLoader(store, Options{}).Load(context.Background(), rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	distinct := map[string]bool{}
	for _, r := range rows {
		if r.CustomerID != "" {
			distinct[r.CustomerID] = true
		}
	}
	if got := sum.Store.Dimensions[schema.TableDimCustomer]; got != int64(len(distinct)) {
		t.Errorf("customers = %d, want %d", got, len(distinct))
	}
	if sum.FactsResolved+sum.RowsDropped != sum.InputRows {
		t.Errorf("resolved+dropped = %d, want %d", sum.FactsResolved+sum.RowsDropped, sum.InputRows)
	}
}

func TestLoad_Idempotent(t *testing.T) {
	store := NewMockStore()
	l := newTestLoader(store, Options{BatchSize: 100})
	rows := manyRows(450)

	first, err := l.Load(context.Background(), rows)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	firstDims, _ := store.ReadDimensions(context.Background())

	second, err := l.Load(context.Background(), rows)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	for table, n := range first.Store.Dimensions {
		if second.Store.Dimensions[table] != n {
			t.Errorf("%s rows = %d after rerun, want %d", table, second.Store.Dimensions[table], n)
		}
	}
	if second.Store.Facts != first.Store.Facts {
		t.Errorf("facts = %d after rerun, want %d", second.Store.Facts, first.Store.Facts)
	}

	secondDims, _ := store.ReadDimensions(context.Background())
	ids := map[string]int64{}
	for _, d := range firstDims.Dates {
		ids[d.Date.String()] = d.DateID
	}
	for _, d := range secondDims.Dates {
		if ids[d.Date.String()] != d.DateID {
			t.Errorf("date %s id changed from %d to %d", d.Date, ids[d.Date.String()], d.DateID)
		}
	}
}

func TestLoad_ReferentialIntegrity(t *testing.T) {
	store := NewMockStore()
	rows := manyRows(300)
	rows[1].Country = ""
	rows[2].InvoiceDate = time.Time{}
	rows[3].StockCode = ""

	if _, err := newTestLoader(store, Options{BatchSize: 64}).Load(context.Background(), rows); err != nil {
		t.Fatalf("Load: %v", err)
	}
	orphans, err := store.OrphanCounts(context.Background())
	if err != nil {
		t.Fatalf("OrphanCounts: %v", err)
	}
	for fk, n := range orphans {
		if n != 0 {
			t.Errorf("%s orphans = %d, want 0", fk, n)
		}
	}
}

func TestLoad_DimensionFailureRollsBack(t *testing.T) {
	store := NewMockStore()
	store.FailUpsert = "products"

	sum, err := newTestLoader(store, Options{}).Load(context.Background(), manyRows(50))
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseDimensions {
		t.Fatalf("error = %v, want dimensions PhaseError", err)
	}
	if store.Rollbacks != 1 || store.Commits != 0 {
		t.Errorf("rollbacks=%d commits=%d, want 1/0", store.Rollbacks, store.Commits)
	}
	counts, _ := store.Counts(context.Background())
	if counts.Dimensions[schema.TableDimCustomer] != 0 || counts.Dimensions[schema.TableDimDate] != 0 {
		t.Errorf("dimension rows persisted after rollback: %v", counts.Dimensions)
	}
	if sum == nil || sum.Duration == "" {
		t.Errorf("summary should be returned on failure: %+v", sum)
	}
}

func TestLoad_BatchFailureContinues(t *testing.T) {
	store := NewMockStore()
	store.FailFactBatch = map[int]bool{2: true}

	sum, err := newTestLoader(store, Options{BatchSize: 100}).Load(context.Background(), manyRows(350))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sum.BatchesCommitted != 3 || sum.BatchesFailed != 1 {
		t.Errorf("committed=%d failed=%d, want 3/1", sum.BatchesCommitted, sum.BatchesFailed)
	}
	if sum.FactsFailed != 100 || sum.FactsInserted != 250 {
		t.Errorf("failed=%d inserted=%d, want 100/250", sum.FactsFailed, sum.FactsInserted)
	}
	if len(sum.BatchErrors) != 1 || sum.BatchErrors[0].Batch != 2 {
		t.Errorf("BatchErrors = %+v", sum.BatchErrors)
	}
	if sum.Store.Facts != 250 {
		t.Errorf("stored facts = %d, want 250", sum.Store.Facts)
	}
	if sum.Complete() {
		t.Error("summary should not be complete")
	}
}

func TestLoad_BatchFailureAborts(t *testing.T) {
	store := NewMockStore()
	store.FailFactBatch = map[int]bool{2: true}

	sum, err := newTestLoader(store, Options{BatchSize: 100, OnBatchError: AbortOnBatchError}).
		Load(context.Background(), manyRows(350))
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseFacts {
		t.Fatalf("error = %v, want facts PhaseError", err)
	}
	if sum.BatchesCommitted != 1 || store.FactCalls != 2 {
		t.Errorf("committed=%d calls=%d, want 1/2", sum.BatchesCommitted, store.FactCalls)
	}
	if len(store.Facts()) != 100 {
		t.Errorf("stored facts = %d, want 100 from the first batch", len(store.Facts()))
	}
}

func TestLoad_SchemaFailure(t *testing.T) {
	store := NewMockStore()
	store.EnsureErr = errors.New("connection refused")

	_, err := newTestLoader(store, Options{}).Load(context.Background(), manyRows(5))
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseSchema {
		t.Fatalf("error = %v, want schema PhaseError", err)
	}
	if store.Begins != 0 {
		t.Errorf("Begins = %d, want 0", store.Begins)
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	store := NewMockStore()
	ctx, cancel := context.WithCancel(context.Background())

	l := newTestLoader(store, Options{BatchSize: 10})
	l.OnProgress(func(p Progress) {
		if p.Phase == PhaseFacts && p.BatchesDone == 1 {
			cancel()
		}
	})

	_, err := l.Load(ctx, manyRows(100))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if store.FactCalls != 1 {
		t.Errorf("InsertFacts calls = %d, want 1", store.FactCalls)
	}
}

func TestLoad_ProgressReported(t *testing.T) {
	var phases []string
	var last Progress
	l := newTestLoader(NewMockStore(), Options{BatchSize: 40})
	l.OnProgress(func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
		last = p
	})

	if _, err := l.Load(context.Background(), manyRows(100)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{PhaseSchema, PhaseDimensions, PhaseKeys, PhaseFacts, PhaseStats}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
	if last.BatchesDone != 3 || last.BatchesTotal != 3 || last.Percent() != 100 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestPlan(t *testing.T) {
	rows := manyRows(250)
	rows[0].CustomerID = ""

	p := newTestLoader(NewMockStore(), Options{BatchSize: 100}).Plan(rows)
	if p.FactsResolved != 249 || p.RowsDropped != 1 {
		t.Errorf("resolved=%d dropped=%d, want 249/1", p.FactsResolved, p.RowsDropped)
	}
	if p.Batches != 3 {
		t.Errorf("Batches = %d, want 3", p.Batches)
	}
	if p.Dimensions[schema.TableDimCountry] != 4 {
		t.Errorf("countries = %d, want 4", p.Dimensions[schema.TableDimCountry])
	}
}

func TestSummaryString(t *testing.T) {
	s := &Summary{
		RunID:         "r1",
		Duration:      "1s",
		InputRows:     10,
		FactsResolved: 8,
		RowsDropped:   2,
		DropsByReason: map[string]int64{"customer": 2},
		FactsInserted: 8,
		Store:         &Counts{Dimensions: map[string]int64{"dim_date": 3}, Facts: 8, ValidFacts: 7, InvalidFacts: 1},
	}
	out := s.String()
	for _, want := range []string{"Rows dropped:     2 (missing customer=2)", "dim_date", "(valid 7, invalid 1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
}
