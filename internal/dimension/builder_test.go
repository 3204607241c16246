package dimension

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/starload/starload/internal/schema"
)

func row(customer, country, code string, at time.Time) schema.TransactionRow {
	return schema.TransactionRow{
		InvoiceNo:       "536365",
		CustomerID:      customer,
		Country:         country,
		StockCode:       code,
		Description:     "WHITE HANGING HEART",
		ProductCategory: "WHITE",
		CustomerSegment: schema.SegmentMedium,
		InvoiceDate:     at,
	}
}

func TestCustomers_DistinctIDs(t *testing.T) {
	at := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	rows := []schema.TransactionRow{
		row("C1", "France", "A", at),
		row("C2", "Germany", "A", at),
		row("C1", "France", "B", at),
		row("", "France", "B", at),
		row("C3", "Spain", "B", at),
	}

	got := Customers(rows)
	if len(got) != 3 {
		t.Fatalf("customers = %d, want 3", len(got))
	}
	for i, want := range []string{"C1", "C2", "C3"} {
		if got[i].CustomerID != want {
			t.Errorf("customer[%d] = %q, want %q", i, got[i].CustomerID, want)
		}
	}
}

func TestCustomers_LastWins(t *testing.T) {
	at := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	first := row("C1", "France", "A", at)
	first.CustomerSegment = schema.SegmentLow
	second := row("C1", "Germany", "A", at)
	second.CustomerSegment = schema.SegmentHigh

	got := Customers([]schema.TransactionRow{first, second})
	if len(got) != 1 {
		t.Fatalf("customers = %d, want 1", len(got))
	}
	if got[0].Country != "Germany" || got[0].CustomerSegment != schema.SegmentHigh {
		t.Errorf("customer = %+v, want last row's attributes", got[0])
	}
}

func TestCustomers_EmptySegmentIsUnknown(t *testing.T) {
	r := row("C1", "France", "A", time.Time{})
	r.CustomerSegment = ""
	got := Customers([]schema.TransactionRow{r})
	if got[0].CustomerSegment != schema.SegmentUnknown {
		t.Errorf("segment = %q, want %q", got[0].CustomerSegment, schema.SegmentUnknown)
	}
}

func TestProducts_LastWins(t *testing.T) {
	a := row("C1", "France", "85123A", time.Time{})
	b := row("C1", "France", "85123A", time.Time{})
	b.Description = "CREAM HANGING HEART"
	c := row("C1", "France", " ", time.Time{})

	got := Products([]schema.TransactionRow{a, b, c})
	if len(got) != 1 {
		t.Fatalf("products = %d, want 1", len(got))
	}
	if got[0].ProductID != "85123A" || got[0].Description != "CREAM HANGING HEART" {
		t.Errorf("product = %+v", got[0])
	}
}

func TestCountries_Region(t *testing.T) {
	rows := []schema.TransactionRow{
		row("C1", "United Kingdom", "A", time.Time{}),
		row("C2", "Japan", "A", time.Time{}),
		row("C3", "United Kingdom", "A", time.Time{}),
		row("C4", "", "A", time.Time{}),
		row("C5", "Brazil", "A", time.Time{}),
	}

	got := Countries(rows)
	want := []schema.DimCountry{
		{CountryName: "United Kingdom", Region: "Europe"},
		{CountryName: "Japan", Region: "Asia"},
		{CountryName: "Brazil", Region: "Other"},
	}
	if len(got) != len(want) {
		t.Fatalf("countries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("country[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDates_DistinctAndSorted(t *testing.T) {
	rows := []schema.TransactionRow{
		row("C1", "France", "A", time.Date(2021, 1, 9, 23, 0, 0, 0, time.UTC)),
		row("C1", "France", "A", time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)),
		row("C1", "France", "A", time.Date(2021, 1, 4, 18, 30, 0, 0, time.UTC)),
		row("C1", "France", "A", time.Time{}),
	}

	got := Dates(rows)
	if len(got) != 2 {
		t.Fatalf("dates = %d, want 2", len(got))
	}
	if got[0].Date != (civil.Date{Year: 2021, Month: time.January, Day: 4}) {
		t.Errorf("first date = %v", got[0].Date)
	}
	if got[1].DateID != 0 {
		t.Errorf("DateID = %d, want 0 before persistence", got[1].DateID)
	}
}

func TestNewDate(t *testing.T) {
	tests := []struct {
		date    civil.Date
		dow     int
		name    string
		weekend bool
		quarter int
	}{
		{civil.Date{Year: 2021, Month: time.January, Day: 4}, 0, "Monday", false, 1},
		{civil.Date{Year: 2021, Month: time.January, Day: 9}, 5, "Saturday", true, 1},
		{civil.Date{Year: 2021, Month: time.January, Day: 10}, 6, "Sunday", true, 1},
		{civil.Date{Year: 2010, Month: time.December, Day: 1}, 2, "Wednesday", false, 4},
		{civil.Date{Year: 2011, Month: time.June, Day: 30}, 3, "Thursday", false, 2},
	}
	for _, tt := range tests {
		d := NewDate(tt.date)
		if d.DayOfWeek != tt.dow {
			t.Errorf("%v DayOfWeek = %d, want %d", tt.date, d.DayOfWeek, tt.dow)
		}
		if d.DayName != tt.name {
			t.Errorf("%v DayName = %q, want %q", tt.date, d.DayName, tt.name)
		}
		if d.IsWeekend != tt.weekend {
			t.Errorf("%v IsWeekend = %v, want %v", tt.date, d.IsWeekend, tt.weekend)
		}
		if d.Quarter != tt.quarter {
			t.Errorf("%v Quarter = %d, want %d", tt.date, d.Quarter, tt.quarter)
		}
	}
}

func TestNewDate_Example(t *testing.T) {
	d := NewDate(civil.Date{Year: 2021, Month: time.January, Day: 4})
	if d.Year != 2021 || d.Month != 1 || d.Day != 4 || d.MonthName != "January" {
		t.Errorf("date = %+v", d)
	}
}

func TestDates_UsesOwnCalendarFields(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2021-01-05 01:00 in UTC+9 is still 2021-01-04 in UTC.
	rows := []schema.TransactionRow{row("C1", "Japan", "A", time.Date(2021, 1, 5, 1, 0, 0, 0, loc))}
	got := Dates(rows)
	if got[0].Day != 5 {
		t.Errorf("Day = %d, want 5", got[0].Day)
	}
}

func TestBuild(t *testing.T) {
	at := time.Date(2021, 1, 4, 10, 0, 0, 0, time.UTC)
	dims := Build([]schema.TransactionRow{row("C1", "France", "A", at), row("C2", "France", "B", at)})
	counts := dims.Counts()
	if counts[schema.TableDimCustomer] != 2 || counts[schema.TableDimDate] != 1 ||
		counts[schema.TableDimProduct] != 2 || counts[schema.TableDimCountry] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
