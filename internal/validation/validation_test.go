package validation

import (
	"context"
	"errors"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

type stubStore struct {
	counts      *warehouse.Counts
	orphans     map[string]int64
	consistency *warehouse.Consistency
	err         error
}

func (s *stubStore) Counts(context.Context) (*warehouse.Counts, error) {
	return s.counts, s.err
}

func (s *stubStore) OrphanCounts(context.Context) (map[string]int64, error) {
	return s.orphans, s.err
}

func (s *stubStore) Consistency(context.Context) (*warehouse.Consistency, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.consistency == nil {
		return &warehouse.Consistency{Facts: s.counts.Facts}, nil
	}
	return s.consistency, nil
}

func loadedCounts() *warehouse.Counts {
	return &warehouse.Counts{
		Dimensions: map[string]int64{
			schema.TableDimCustomer: 3,
			schema.TableDimDate:     2,
			schema.TableDimProduct:  4,
			schema.TableDimCountry:  2,
		},
		Facts: 10,
	}
}

func expectation() *Expectation {
	return &Expectation{
		Dimensions: map[string]int64{
			schema.TableDimCustomer: 3,
			schema.TableDimDate:     2,
			schema.TableDimProduct:  4,
			schema.TableDimCountry:  2,
		},
		Facts:      10,
		ExactFacts: true,
	}
}

func TestValidate_Pass(t *testing.T) {
	v := &Validator{
		Store:    &stubStore{counts: loadedCounts(), orphans: map[string]int64{}},
		Catalog:  schema.StarSchema(""),
		Expected: expectation(),
	}
	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "PASS" {
		t.Errorf("expected PASS, got %s", result.Status)
	}
	if len(result.Tables) != 5 {
		t.Fatalf("expected 5 table results, got %d", len(result.Tables))
	}
}

func TestValidate_FactCountMismatch(t *testing.T) {
	counts := loadedCounts()
	counts.Facts = 8
	v := &Validator{
		Store:    &stubStore{counts: counts, orphans: map[string]int64{}},
		Catalog:  schema.StarSchema(""),
		Expected: expectation(),
	}
	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "PARTIAL" {
		t.Errorf("expected PARTIAL, got %s", result.Status)
	}
	for _, tr := range result.Tables {
		if tr.Name != schema.TableFactSales {
			continue
		}
		if tr.RowCountCheck.Match {
			t.Error("fact count should not match")
		}
		if tr.RowCountCheck.Message == "" {
			t.Error("expected mismatch message")
		}
	}
}

func TestValidate_DimensionsMayGrow(t *testing.T) {
	counts := loadedCounts()
	counts.Dimensions[schema.TableDimCustomer] = 50
	counts.Facts = 25
	exp := expectation()
	exp.ExactFacts = false

	v := &Validator{
		Store:    &stubStore{counts: counts, orphans: map[string]int64{}},
		Catalog:  schema.StarSchema(""),
		Expected: exp,
	}
	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "PASS" {
		t.Errorf("expected PASS, got %s", result.Status)
	}
}

func TestValidate_Orphans(t *testing.T) {
	var checks []string
	v := &Validator{
		Store: &stubStore{
			counts:  loadedCounts(),
			orphans: map[string]int64{"fk_fact_customer": 2, "fk_fact_date": 0},
		},
		Catalog: schema.StarSchema(""),
		Callback: func(table, check string, passed bool) {
			if !passed {
				checks = append(checks, table+"/"+check)
			}
		},
	}
	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var fact *TableResult
	for i := range result.Tables {
		if result.Tables[i].Name == schema.TableFactSales {
			fact = &result.Tables[i]
		}
		if result.Tables[i].RowCountCheck != nil {
			t.Errorf("%s: row count check should be skipped without expectation", result.Tables[i].Name)
		}
	}
	if fact == nil || fact.IntegrityCheck == nil {
		t.Fatal("missing fact integrity check")
	}
	if fact.IntegrityCheck.Orphans != 2 {
		t.Errorf("Orphans = %d, want 2", fact.IntegrityCheck.Orphans)
	}
	if fact.Status != "FAIL" {
		t.Errorf("fact status = %s, want FAIL", fact.Status)
	}
	if len(checks) != 1 || checks[0] != "fact_sales/integrity" {
		t.Errorf("failed checks = %v", checks)
	}
}

func TestValidate_StoreError(t *testing.T) {
	v := &Validator{
		Store:   &stubStore{err: errors.New("connection refused")},
		Catalog: schema.StarSchema(""),
	}
	if _, err := v.Validate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_AgainstLoadedMockStore(t *testing.T) {
	store := warehouse.NewMockStore()
	rows := []schema.TransactionRow{
		{InvoiceNo: "1", CustomerID: "C1", StockCode: "P1", Country: "France", Quantity: 1},
		{InvoiceNo: "2", CustomerID: "C2", StockCode: "P2", Country: "Japan", Quantity: 2},
	}
	for i := range rows {
		rows[i].InvoiceDate = time.Date(2024, 3, 1+i, 10, 0, 0, 0, time.UTC)
	}

	loader := warehouse.NewLoader(store, warehouse.Options{ReplaceFacts: true}, nil)
	plan := loader.Plan(rows)
	if _, err := loader.Load(context.Background(), rows); err != nil {
		t.Fatalf("Load: %v", err)
	}

	v := &Validator{
		Store:    store,
		Catalog:  schema.StarSchema(""),
		Expected: ExpectationFromPlan(plan, true),
	}
	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "PASS" {
		t.Errorf("expected PASS, got %s: %+v", result.Status, result.Tables)
	}
}

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		statuses []string
		want     string
	}{
		{nil, "PASS"},
		{[]string{"PASS", "PASS"}, "PASS"},
		{[]string{"PASS", "FAIL"}, "PARTIAL"},
		{[]string{"FAIL", "FAIL"}, "FAIL"},
	}
	for _, tt := range tests {
		var tables []TableResult
		for _, s := range tt.statuses {
			tables = append(tables, TableResult{Status: s})
		}
		if got := computeOverallStatus(tables); got != tt.want {
			t.Errorf("computeOverallStatus(%v) = %s, want %s", tt.statuses, got, tt.want)
		}
	}
}

func TestValidate_NegativeValuesAreInformational(t *testing.T) {
	v := &Validator{
		Store: &stubStore{
			counts:      loadedCounts(),
			orphans:     map[string]int64{},
			consistency: &warehouse.Consistency{Facts: 10, NegativeAmounts: 2, NegativeQuantities: 2},
		},
		Catalog:  schema.StarSchema(""),
		Expected: expectation(),
	}
	result, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "PASS" {
		t.Errorf("expected PASS, got %s", result.Status)
	}
	fact := result.Tables[len(result.Tables)-1]
	cc := fact.ConsistencyCheck
	if cc == nil {
		t.Fatal("missing consistency check")
	}
	if cc.NegativeAmountsPct != 20 || cc.NegativePricesPct != 0 {
		t.Errorf("pct = %v / %v, want 20 / 0", cc.NegativeAmountsPct, cc.NegativePricesPct)
	}
	if cc.Message != "negative values: total_amount=2, quantity=2" {
		t.Errorf("Message = %q", cc.Message)
	}
}

func TestMeasureCompleteness(t *testing.T) {
	at := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	rows := []schema.TransactionRow{
		{CustomerID: "C1", StockCode: "P1", Country: "France", InvoiceDate: at},
		{CustomerID: "", StockCode: "P1", Country: "France", InvoiceDate: at},
		{CustomerID: " ", StockCode: "P2", Country: "", InvoiceDate: at},
		{CustomerID: "C2", StockCode: "P3", Country: "Japan"},
	}
	c := MeasureCompleteness(rows)
	want := map[string]float64{"customer_id": 50, "country": 25, "invoice_date": 25, "stock_code": 0}
	if c.Rows != 4 || !maps.Equal(c.MissingPct, want) {
		t.Errorf("completeness = %+v, want %v", c, want)
	}
	if empty := MeasureCompleteness(nil); empty.MissingPct["customer_id"] != 0 {
		t.Errorf("empty input = %+v", empty)
	}
}

func TestRecommendations(t *testing.T) {
	if got := Recommendations(nil, nil); len(got) != 0 {
		t.Errorf("Recommendations(nil, nil) = %v", got)
	}

	comp := &Completeness{Rows: 100, MissingPct: map[string]float64{"customer_id": 24.93}}
	check := NewConsistencyCheck(&warehouse.Consistency{Facts: 100, NegativeAmounts: 2, NegativePrices: 1})
	got := Recommendations(comp, check)
	if len(got) != 3 {
		t.Fatalf("Recommendations = %v, want 3", got)
	}
	if !strings.Contains(got[0], "missing customer data") || !strings.Contains(got[2], "Negative prices") {
		t.Errorf("Recommendations = %v", got)
	}

	comp.MissingPct["customer_id"] = MissingCustomerThreshold
	if got := Recommendations(comp, NewConsistencyCheck(&warehouse.Consistency{Facts: 10})); len(got) != 0 {
		t.Errorf("at threshold = %v, want none", got)
	}
}

func TestPercent(t *testing.T) {
	for _, tc := range []struct {
		n, total int64
		want     float64
	}{{0, 0, 0}, {1, 3, 33.33}, {2, 3, 66.66}, {5, 5, 100}} {
		if got := percent(tc.n, tc.total); got != tc.want {
			t.Errorf("percent(%d, %d) = %v, want %v", tc.n, tc.total, got, tc.want)
		}
	}
}
