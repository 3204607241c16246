package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
)

func TestMockStore_InsightsAndConsistency(t *testing.T) {
	jan := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2021, 2, 1, 10, 0, 0, 0, time.UTC)

	big := txRow("2", "C2", "P2", "Japan", feb)
	big.TotalAmount = decimal.RequireFromString("40.00")
	big.UnitPrice = decimal.RequireFromString("20.00")
	big.CustomerSegment = schema.SegmentHigh
	refund := txRow("C3", "C3", "P3", "Germany", jan)
	refund.Quantity = -2
	refund.TotalAmount = decimal.RequireFromString("-10.00")
	refund.IsValid = false
	rows := []schema.TransactionRow{
		txRow("1", "C1", "P1", "France", jan),
		txRow("3", "C1", "P1", "France", jan),
		big,
		refund,
	}

	store := NewMockStore()
	if _, err := newTestLoader(store, Options{}).Load(context.Background(), rows); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c, err := store.Consistency(context.Background())
	if err != nil {
		t.Fatalf("Consistency: %v", err)
	}
	if *c != (Consistency{Facts: 4, NegativeAmounts: 1, NegativeQuantities: 1}) {
		t.Errorf("consistency = %+v", *c)
	}

	in, err := store.Insights(context.Background(), 1)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(in.TopCountries) != 1 || in.TopCountries[0].Country != "Japan" {
		t.Errorf("top countries = %+v, want only Japan", in.TopCountries)
	}
	if len(in.Segments) != 2 || in.Segments[1].Segment != string(schema.SegmentMedium) || in.Segments[1].Customers != 1 || in.Segments[1].Transactions != 2 {
		t.Errorf("segments = %+v", in.Segments)
	}
	if len(in.Monthly) != 2 || in.Monthly[0].Month != 1 || !in.Monthly[0].TotalSales.Equal(decimal.NewFromInt(20)) {
		t.Errorf("monthly = %+v", in.Monthly)
	}
	if len(in.TopProducts) != 1 || in.TopProducts[0].StockCode != "P2" || !in.TopProducts[0].AvgUnitPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("top products = %+v", in.TopProducts)
	}
}

func TestRoundAmount(t *testing.T) {
	got := RoundAmount(decimal.RequireFromString("10").Div(decimal.RequireFromString("3")))
	if got.String() != "3.3333" {
		t.Errorf("RoundAmount = %s, want 3.3333", got)
	}
}
