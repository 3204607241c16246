package warehouse

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
)

// MockStore is an in-memory Store for tests. It assigns surrogate keys and
// applies upserts the way a SQL store would, and records every call.
type MockStore struct {
	EnsureErr error
	BeginErr  error
	ReadErr   error
	CountsErr error
	DropErr   error
	InsightsErr error
	StagingErr  error

	// FailUpsert makes the named dimension upsert fail ("customers", "dates",
	// "products", "countries").
	FailUpsert string

	// FailFactBatch makes InsertFacts fail on these 1-based call numbers.
	FailFactBatch map[int]bool
	CommitErr     error

	customers map[string]schema.DimCustomer
	dates     map[string]schema.DimDate
	products  map[string]schema.DimProduct
	countries map[string]schema.DimCountry
	facts     []schema.FactSales

	nextDateID    int64
	nextCountryID int64
	nextFactID    int64

	// Track calls
	SchemaEnsured bool
	Dropped       bool
	Closed        bool
	Begins        int
	Commits       int
	Rollbacks     int
	FactCalls     int
	// FactBatchSizes holds the row count of each InsertFacts call in order.
	FactBatchSizes []int
	// Staged holds the last rows written to each staging table.
	Staged map[string]StagedTable
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		customers: map[string]schema.DimCustomer{},
		dates:     map[string]schema.DimDate{},
		products:  map[string]schema.DimProduct{},
		countries: map[string]schema.DimCountry{},
		Staged:    map[string]StagedTable{},
	}
}

func (m *MockStore) EnsureSchema(_ context.Context) error {
	m.SchemaEnsured = true
	return m.EnsureErr
}

func (m *MockStore) Begin(_ context.Context) (UnitOfWork, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	m.Begins++
	return &mockUnit{store: m}, nil
}

func (m *MockStore) ReadDimensions(_ context.Context) (schema.Dimensions, error) {
	if m.ReadErr != nil {
		return schema.Dimensions{}, m.ReadErr
	}
	var d schema.Dimensions
	for _, c := range m.customers {
		d.Customers = append(d.Customers, c)
	}
	for _, r := range m.dates {
		d.Dates = append(d.Dates, r)
	}
	for _, p := range m.products {
		d.Products = append(d.Products, p)
	}
	for _, c := range m.countries {
		d.Countries = append(d.Countries, c)
	}
	return d, nil
}

func (m *MockStore) Counts(_ context.Context) (*Counts, error) {
	if m.CountsErr != nil {
		return nil, m.CountsErr
	}
	c := &Counts{
		Dimensions: map[string]int64{
			schema.TableDimCustomer: int64(len(m.customers)),
			schema.TableDimDate:     int64(len(m.dates)),
			schema.TableDimProduct:  int64(len(m.products)),
			schema.TableDimCountry:  int64(len(m.countries)),
		},
		Facts: int64(len(m.facts)),
	}
	for _, f := range m.facts {
		if f.IsValid {
			c.ValidFacts++
		} else {
			c.InvalidFacts++
		}
	}
	return c, nil
}

func (m *MockStore) OrphanCounts(_ context.Context) (map[string]int64, error) {
	if m.CountsErr != nil {
		return nil, m.CountsErr
	}
	dateIDs := map[int64]bool{}
	for _, d := range m.dates {
		dateIDs[d.DateID] = true
	}
	countryIDs := map[int64]bool{}
	for _, c := range m.countries {
		countryIDs[c.CountryID] = true
	}

	out := map[string]int64{"fk_fact_customer": 0, "fk_fact_date": 0, "fk_fact_product": 0, "fk_fact_country": 0}
	for _, f := range m.facts {
		if _, ok := m.customers[f.CustomerID]; !ok {
			out["fk_fact_customer"]++
		}
		if !dateIDs[f.DateID] {
			out["fk_fact_date"]++
		}
		if _, ok := m.products[f.ProductID]; !ok {
			out["fk_fact_product"]++
		}
		if !countryIDs[f.CountryID] {
			out["fk_fact_country"]++
		}
	}
	return out, nil
}

func (m *MockStore) Consistency(_ context.Context) (*Consistency, error) {
	c := &Consistency{Facts: int64(len(m.facts))}
	for _, f := range m.facts {
		if f.TotalAmount.IsNegative() {
			c.NegativeAmounts++
		}
		if f.UnitPrice.IsNegative() {
			c.NegativePrices++
		}
		if f.Quantity < 0 {
			c.NegativeQuantities++
		}
	}
	return c, nil
}

// Insights aggregates in memory with the same joins and ordering as the SQL
// stores.
func (m *MockStore) Insights(_ context.Context, limit int) (*Insights, error) {
	if m.InsightsErr != nil {
		return nil, m.InsightsErr
	}
	dates := map[int64]schema.DimDate{}
	for _, d := range m.dates {
		dates[d.DateID] = d
	}
	countries := map[int64]string{}
	for _, c := range m.countries {
		countries[c.CountryID] = c.CountryName
	}

	type acc struct {
		n         int64
		total     decimal.Decimal
		prices    decimal.Decimal
		customers map[string]bool
	}
	add := func(groups map[string]*acc, key string, f schema.FactSales) {
		a, ok := groups[key]
		if !ok {
			a = &acc{customers: map[string]bool{}}
			groups[key] = a
		}
		a.n++
		a.total = a.total.Add(f.TotalAmount)
		a.prices = a.prices.Add(f.UnitPrice)
		a.customers[f.CustomerID] = true
	}
	avg := func(sum decimal.Decimal, n int64) decimal.Decimal {
		return RoundAmount(sum.Div(decimal.NewFromInt(n)))
	}

	byCountry, bySegment, byMonth, byProduct := map[string]*acc{}, map[string]*acc{}, map[string]*acc{}, map[string]*acc{}
	months := map[string]schema.DimDate{}
	for _, f := range m.facts {
		if !f.IsValid {
			continue
		}
		if name, ok := countries[f.CountryID]; ok {
			add(byCountry, name, f)
		}
		if c, ok := m.customers[f.CustomerID]; ok {
			add(bySegment, string(c.CustomerSegment), f)
		}
		if d, ok := dates[f.DateID]; ok {
			key := fmt.Sprintf("%04d-%02d", d.Year, d.Month)
			months[key] = d
			add(byMonth, key, f)
		}
		if _, ok := m.products[f.ProductID]; ok {
			add(byProduct, f.ProductID, f)
		}
	}

	out := &Insights{}
	for name, a := range byCountry {
		out.TopCountries = append(out.TopCountries, CountrySales{
			Country: name, Transactions: a.n, TotalSales: a.total, AvgUnitPrice: avg(a.prices, a.n),
		})
	}
	slices.SortFunc(out.TopCountries, func(x, y CountrySales) int {
		return cmp.Or(y.TotalSales.Cmp(x.TotalSales), cmp.Compare(x.Country, y.Country))
	})
	out.TopCountries = out.TopCountries[:min(limit, len(out.TopCountries))]

	for seg, a := range bySegment {
		out.Segments = append(out.Segments, SegmentSales{
			Segment: seg, Customers: int64(len(a.customers)), Transactions: a.n,
			TotalSales: a.total, AvgTransactionValue: avg(a.total, a.n),
		})
	}
	slices.SortFunc(out.Segments, func(x, y SegmentSales) int {
		return cmp.Or(y.TotalSales.Cmp(x.TotalSales), cmp.Compare(x.Segment, y.Segment))
	})

	for key, a := range byMonth {
		d := months[key]
		out.Monthly = append(out.Monthly, MonthlySales{
			Year: d.Year, Month: d.Month, MonthName: d.MonthName,
			Transactions: a.n, TotalSales: a.total, AvgUnitPrice: avg(a.prices, a.n),
		})
	}
	slices.SortFunc(out.Monthly, func(x, y MonthlySales) int {
		return cmp.Or(cmp.Compare(x.Year, y.Year), cmp.Compare(x.Month, y.Month))
	})

	for id, a := range byProduct {
		out.TopProducts = append(out.TopProducts, ProductSales{
			StockCode: id, Description: m.products[id].Description,
			Transactions: a.n, TotalSales: a.total, AvgUnitPrice: avg(a.prices, a.n),
		})
	}
	slices.SortFunc(out.TopProducts, func(x, y ProductSales) int {
		return cmp.Or(y.TotalSales.Cmp(x.TotalSales), cmp.Compare(x.StockCode, y.StockCode))
	})
	out.TopProducts = out.TopProducts[:min(limit, len(out.TopProducts))]
	return out, nil
}

func (m *MockStore) Drop(_ context.Context) error {
	if m.DropErr != nil {
		return m.DropErr
	}
	m.Dropped = true
	*m = *NewMockStore()
	m.Dropped = true
	return nil
}

func (m *MockStore) Close(_ context.Context) error {
	m.Closed = true
	return nil
}

func (m *MockStore) EnsureStaging(_ context.Context, c *schema.Catalog) error {
	if m.StagingErr != nil {
		return m.StagingErr
	}
	for _, t := range c.Tables {
		if _, ok := m.Staged[t.Name]; !ok {
			m.Staged[t.Name] = StagedTable{Name: t.Name, Columns: t.WritableColumns()}
		}
	}
	return nil
}

func (m *MockStore) ReplaceStaged(_ context.Context, t StagedTable) error {
	if m.StagingErr != nil {
		return m.StagingErr
	}
	if _, ok := m.Staged[t.Name]; !ok {
		return fmt.Errorf("mock: staging table %s does not exist", t.Name)
	}
	m.Staged[t.Name] = t
	return nil
}

func (m *MockStore) DropStaging(_ context.Context, c *schema.Catalog) error {
	for _, t := range c.Tables {
		delete(m.Staged, t.Name)
	}
	return nil
}

// Facts returns the committed fact rows.
func (m *MockStore) Facts() []schema.FactSales {
	return m.facts
}

// mockUnit buffers writes and applies them to the store on Commit.
type mockUnit struct {
	store  *MockStore
	ops    []func()
	closed bool
}

func (u *mockUnit) ResetFacts(_ context.Context) error {
	u.ops = append(u.ops, func() { u.store.facts = nil })
	return nil
}

func (u *mockUnit) UpsertCustomers(_ context.Context, rows []schema.DimCustomer) error {
	if u.store.FailUpsert == "customers" {
		return fmt.Errorf("mock: upsert customers failed")
	}
	u.ops = append(u.ops, func() {
		for _, r := range rows {
			u.store.customers[r.CustomerID] = r
		}
	})
	return nil
}

func (u *mockUnit) UpsertDates(_ context.Context, rows []schema.DimDate) error {
	if u.store.FailUpsert == "dates" {
		return fmt.Errorf("mock: upsert dates failed")
	}
	u.ops = append(u.ops, func() {
		for _, r := range rows {
			key := r.Date.String()
			if existing, ok := u.store.dates[key]; ok {
				r.DateID = existing.DateID
			} else {
				u.store.nextDateID++
				r.DateID = u.store.nextDateID
			}
			u.store.dates[key] = r
		}
	})
	return nil
}

func (u *mockUnit) UpsertProducts(_ context.Context, rows []schema.DimProduct) error {
	if u.store.FailUpsert == "products" {
		return fmt.Errorf("mock: upsert products failed")
	}
	u.ops = append(u.ops, func() {
		for _, r := range rows {
			u.store.products[r.ProductID] = r
		}
	})
	return nil
}

func (u *mockUnit) UpsertCountries(_ context.Context, rows []schema.DimCountry) error {
	if u.store.FailUpsert == "countries" {
		return fmt.Errorf("mock: upsert countries failed")
	}
	u.ops = append(u.ops, func() {
		for _, r := range rows {
			if existing, ok := u.store.countries[r.CountryName]; ok {
				r.CountryID = existing.CountryID
			} else {
				u.store.nextCountryID++
				r.CountryID = u.store.nextCountryID
			}
			u.store.countries[r.CountryName] = r
		}
	})
	return nil
}

func (u *mockUnit) InsertFacts(_ context.Context, rows []schema.FactSales) (int64, error) {
	u.store.FactCalls++
	u.store.FactBatchSizes = append(u.store.FactBatchSizes, len(rows))
	if u.store.FailFactBatch[u.store.FactCalls] {
		return 0, fmt.Errorf("mock: insert facts batch %d failed", u.store.FactCalls)
	}
	u.ops = append(u.ops, func() {
		for _, r := range rows {
			u.store.nextFactID++
			r.FactID = u.store.nextFactID
			u.store.facts = append(u.store.facts, r)
		}
	})
	return int64(len(rows)), nil
}

func (u *mockUnit) Commit(_ context.Context) error {
	if u.closed {
		return fmt.Errorf("mock: unit of work already closed")
	}
	if u.store.CommitErr != nil {
		return u.store.CommitErr
	}
	for _, op := range u.ops {
		op()
	}
	u.closed = true
	u.store.Commits++
	return nil
}

func (u *mockUnit) Rollback(_ context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.ops = nil
	u.store.Rollbacks++
	return nil
}
