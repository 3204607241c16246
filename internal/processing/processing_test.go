package processing

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/dataset"
	"github.com/starload/starload/internal/schema"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func raw(invoice, code, desc, qty, date, price, customer, country string) dataset.RawRow {
	return dataset.RawRow{
		InvoiceNo:   invoice,
		StockCode:   code,
		Description: desc,
		Quantity:    qty,
		InvoiceDate: date,
		UnitPrice:   price,
		CustomerID:  customer,
		Country:     country,
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"12/1/2010 8:26", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), true},
		{"2021-01-04 09:30:00", time.Date(2021, 1, 4, 9, 30, 0, 0, time.UTC), true},
		{"2021-01-04", time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), true},
		{"not a date", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCategory(t *testing.T) {
	tests := map[string]string{
		"WHITE HANGING HEART": "WHITE",
		"set of 3 CAKE tins":  "CAKE",
		"Unknown":             OtherCategory,
		"A B C":               OtherCategory,
		"":                    OtherCategory,
	}
	for in, want := range tests {
		if got := Category(in); got != want {
			t.Errorf("Category(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuantileLinear(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	if got := quantile(values, 0.5); got != 2.5 {
		t.Errorf("median = %v, want 2.5", got)
	}
	if got := quantile(values, 0.25); got != 1.75 {
		t.Errorf("q25 = %v, want 1.75", got)
	}
	if got := quantile(nil, 0.5); got != 0 {
		t.Errorf("empty quantile = %v, want 0", got)
	}
	if values[0] != 4 {
		t.Error("quantile must not reorder its input")
	}
}

func TestProcessImputesAndFills(t *testing.T) {
	rows := []dataset.RawRow{
		raw("1", "P1", "RED MUG", "2", "2021-01-04", "1.00", "C1", "France"),
		raw("2", "P2", "", "", "2021-01-05", "3.00", "C2", "France"),
		raw("3", "P3", "BLUE MUG", "4", "2021-01-06", "", "C3", "France"),
	}
	out, st, err := Process(context.Background(), rows, Options{SkipOutlierFlag: true}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.QuantityImputed != 1 || st.UnitPriceImputed != 1 || st.DescriptionsFilled != 1 {
		t.Errorf("stats = %+v", st)
	}

	byInvoice := map[string]schema.TransactionRow{}
	for _, r := range out {
		byInvoice[r.InvoiceNo] = r
	}
	if got := byInvoice["2"].Quantity; got != 3 {
		t.Errorf("imputed quantity = %d, want 3", got)
	}
	if got := byInvoice["2"].Description; got != UnknownText {
		t.Errorf("filled description = %q", got)
	}
	if got := byInvoice["3"].UnitPrice; !got.Equal(decimal.RequireFromString("2")) {
		t.Errorf("imputed unit price = %s, want 2", got)
	}
	if got := byInvoice["3"].TotalAmount; !got.Equal(decimal.RequireFromString("8")) {
		t.Errorf("total amount = %s, want 8", got)
	}
}

func TestProcessImputesOutOfRangeQuantities(t *testing.T) {
	rows := []dataset.RawRow{
		raw("1", "P1", "RED MUG", "2", "2021-01-04", "1.00", "C1", "France"),
		raw("2", "P2", "BLUE MUG", "1e19", "2021-01-05", "1.00", "C2", "France"),
		raw("3", "P3", "GREEN MUG", "Inf", "2021-01-06", "1.00", "C3", "France"),
		raw("4", "P4", "PINK MUG", "-1e300", "2021-01-07", "1.00", "C4", "France"),
	}
	out, st, err := Process(context.Background(), rows, Options{SkipOutlierFlag: true}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.QuantityImputed != 3 {
		t.Errorf("QuantityImputed = %d, want 3", st.QuantityImputed)
	}
	for _, r := range out {
		if r.Quantity != 2 {
			t.Errorf("invoice %s quantity = %d, want imputed median 2", r.InvoiceNo, r.Quantity)
		}
		if !r.TotalAmount.Equal(decimal.RequireFromString("2")) {
			t.Errorf("invoice %s total = %s, want 2", r.InvoiceNo, r.TotalAmount)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"3", true},
		{"-12", true},
		{"2.6", true},
		{"9e18", true},
		{"1e19", false},
		{"-1e19", false},
		{"Inf", false},
		{"-Infinity", false},
		{"NaN", false},
		{"", false},
		{"three", false},
	}
	for _, tt := range tests {
		if _, ok := parseQuantity(tt.in); ok != tt.ok {
			t.Errorf("parseQuantity(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

func TestProcessKeepsKeysMissing(t *testing.T) {
	rows := []dataset.RawRow{
		raw("1", "P1", "MUG", "1", "2021-01-04", "1.00", "", "France"),
		raw("2", "P1", "MUG", "1", "garbage", "1.00", "C1", ""),
	}
	out, st, err := Process(context.Background(), rows, Options{}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.DatesUnparsed != 1 {
		t.Errorf("DatesUnparsed = %d, want 1", st.DatesUnparsed)
	}
	for _, r := range out {
		switch r.InvoiceNo {
		case "1":
			if r.CustomerID != "" {
				t.Errorf("customer should stay missing, got %q", r.CustomerID)
			}
			if r.CustomerSegment != schema.SegmentUnknown {
				t.Errorf("segment = %s, want Unknown", r.CustomerSegment)
			}
		case "2":
			if !r.InvoiceDate.IsZero() || r.Country != "" {
				t.Errorf("date and country should stay missing: %+v", r)
			}
			if r.Rolling7dSales != 0 {
				t.Errorf("rolling sales without country = %v, want 0", r.Rolling7dSales)
			}
		}
	}
	if out[len(out)-1].InvoiceNo != "2" {
		t.Error("rows without a date should sort last")
	}
}

func TestProcessDropsDuplicates(t *testing.T) {
	rows := []dataset.RawRow{
		raw("1", "P1", "MUG", "1", "2021-01-04", "1.00", "C1", "France"),
		raw("1", "P1", "MUG", "1", "2021-01-04", "1.00", "C1", "France"),
		raw("1", "P1", "MUG", "2", "2021-01-04", "1.00", "C1", "France"),
	}
	out, st, err := Process(context.Background(), rows, Options{}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || st.DuplicatesRemoved != 1 {
		t.Errorf("rows = %d, duplicates = %d; want 2, 1", len(out), st.DuplicatesRemoved)
	}

	out, _, _ = Process(context.Background(), rows, Options{KeepDuplicates: true}, quiet)
	if len(out) != 3 {
		t.Errorf("KeepDuplicates rows = %d, want 3", len(out))
	}
}

func TestProcessFlagsOutliers(t *testing.T) {
	var rows []dataset.RawRow
	for i := 0; i < 9; i++ {
		rows = append(rows, raw(string(rune('a'+i)), "P1", "MUG", "2", "2021-01-04", "1.00", "C1", "France"))
	}
	rows = append(rows, raw("z", "P1", "MUG", "500", "2021-01-04", "1.00", "C1", "France"))

	out, st, err := Process(context.Background(), rows, Options{}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.OutliersFlagged != 1 {
		t.Errorf("OutliersFlagged = %d, want 1", st.OutliersFlagged)
	}
	for _, r := range out {
		if (r.InvoiceNo == "z") == r.IsValid {
			t.Errorf("invoice %s IsValid = %v", r.InvoiceNo, r.IsValid)
		}
	}
}

func TestProcessDateParts(t *testing.T) {
	rows := []dataset.RawRow{raw("1", "P1", "MUG", "1", "8/14/2021 10:00", "1.00", "C1", "France")}
	out, _, err := Process(context.Background(), rows, Options{}, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := out[0]
	// 2021-08-14 is a Saturday.
	if r.InvoiceYear != 2021 || r.InvoiceMonth != 8 || r.InvoiceDay != 14 || r.InvoiceQuarter != 3 || r.InvoiceDayOfWeek != 5 {
		t.Errorf("date parts = %d-%d-%d q%d dow%d", r.InvoiceYear, r.InvoiceMonth, r.InvoiceDay, r.InvoiceQuarter, r.InvoiceDayOfWeek)
	}
}

func TestAssignSegmentsTertiles(t *testing.T) {
	rows := []schema.TransactionRow{
		{CustomerID: "A", TotalAmount: decimal.NewFromInt(10)},
		{CustomerID: "B", TotalAmount: decimal.NewFromInt(20)},
		{CustomerID: "C", TotalAmount: decimal.NewFromInt(30)},
		{CustomerID: "D", TotalAmount: decimal.NewFromInt(-5)},
		{CustomerID: "", TotalAmount: decimal.NewFromInt(100)},
	}
	st := &Stats{Segments: map[schema.Segment]int{}}
	assignSegments(rows, st)

	// totals -5, 10, 20, 30: q33 = 9.85, q67 = 20.1
	want := []schema.Segment{schema.SegmentMedium, schema.SegmentMedium, schema.SegmentHigh, schema.SegmentUnknown, schema.SegmentUnknown}
	for i, r := range rows {
		if r.CustomerSegment != want[i] {
			t.Errorf("row %d (%s) segment = %s, want %s", i, r.CustomerID, r.CustomerSegment, want[i])
		}
	}
	if st.Segments[schema.SegmentHigh] != 1 {
		t.Errorf("High customers = %d, want 1", st.Segments[schema.SegmentHigh])
	}
}

func TestRollingSalesPerCountry(t *testing.T) {
	var rows []schema.TransactionRow
	for i := 1; i <= 9; i++ {
		rows = append(rows, schema.TransactionRow{Country: "France", TotalAmount: decimal.NewFromInt(int64(i))})
		rows = append(rows, schema.TransactionRow{Country: "Japan", TotalAmount: decimal.NewFromInt(100)})
	}
	rollingSales(rows)

	france := []float64{}
	for _, r := range rows {
		if r.Country == "France" {
			france = append(france, r.Rolling7dSales)
		}
		if r.Country == "Japan" && r.Rolling7dSales != 100 {
			t.Errorf("Japan rolling = %v, want 100", r.Rolling7dSales)
		}
	}
	// window of 1..k while k <= 7, then the last seven values
	want := []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 5, 6}
	for i := range want {
		if math.Abs(france[i]-want[i]) > 1e-9 {
			t.Errorf("France rolling[%d] = %v, want %v", i, france[i], want[i])
		}
	}
}

func TestProfileRaw(t *testing.T) {
	rows := []dataset.RawRow{
		raw("1", "P1", "MUG", "1", "2021-01-04", "1.00", "17850.0", "France"),
		raw("1", "P1", "MUG", "1", "2021-01-04", "1.00", "17850.0", "France"),
		raw("2", "P2", "", "1", "bad", "1.00", "", "Japan"),
	}
	p := ProfileRaw(rows)
	if p.TotalRows != 3 || p.Duplicates != 1 || p.BadDates != 1 {
		t.Errorf("profile = %+v", p)
	}
	if p.Missing[dataset.ColDescription] != 1 || p.Missing[dataset.ColCustomerID] != 1 {
		t.Errorf("missing = %v", p.Missing)
	}
	if p.Countries != 2 || p.Customers != 1 {
		t.Errorf("countries = %d, customers = %d", p.Countries, p.Customers)
	}
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Process(ctx, []dataset.RawRow{raw("1", "P", "M", "1", "", "1", "C", "F")}, Options{}, quiet); err == nil {
		t.Fatal("expected context error")
	}
}

func TestNormalizeID(t *testing.T) {
	tests := map[string]string{"17850.0": "17850", "17850": "17850", "A1.0": "A1.0", "": ""}
	for in, want := range tests {
		if got := normalizeID(in); got != want {
			t.Errorf("normalizeID(%q) = %q, want %q", in, got, want)
		}
	}
}
