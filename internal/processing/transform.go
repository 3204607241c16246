package processing

import (
	"regexp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
)

// OtherCategory is used when a description has no category token.
const OtherCategory = "OTHER"

// RollingWindow is the number of rows in the per-country sales average.
const RollingWindow = 7

var categoryPattern = regexp.MustCompile(`[A-Z]{2,}`)

// Category returns the first run of two or more capitals in description.
func Category(description string) string {
	if m := categoryPattern.FindString(description); m != "" {
		return m
	}
	return OtherCategory
}

// deriveColumns fills total_amount, the invoice date parts and the product
// category.
func deriveColumns(rows []schema.TransactionRow) {
	for i := range rows {
		r := &rows[i]
		r.TotalAmount = r.UnitPrice.Mul(decimal.NewFromInt(r.Quantity))
		r.ProductCategory = Category(r.Description)
		if r.InvoiceDate.IsZero() {
			continue
		}
		r.InvoiceYear = r.InvoiceDate.Year()
		r.InvoiceMonth = int(r.InvoiceDate.Month())
		r.InvoiceDay = r.InvoiceDate.Day()
		r.InvoiceDayOfWeek = (int(r.InvoiceDate.Weekday()) + 6) % 7
		r.InvoiceQuarter = (r.InvoiceMonth-1)/3 + 1
	}
}

// assignSegments buckets customers into spend tertiles over per-customer
// totals: (0, q33] Low, (q33, q67] Medium, above q67 High. Customers with a
// non-positive total, and rows without a customer, are Unknown.
func assignSegments(rows []schema.TransactionRow, st *Stats) {
	totals := map[string]decimal.Decimal{}
	for _, r := range rows {
		if r.CustomerID == "" {
			continue
		}
		totals[r.CustomerID] = totals[r.CustomerID].Add(r.TotalAmount)
	}

	values := make([]float64, 0, len(totals))
	for _, t := range totals {
		values = append(values, t.InexactFloat64())
	}
	q33 := quantile(values, 0.33)
	q67 := quantile(values, 0.67)

	segments := make(map[string]schema.Segment, len(totals))
	for id, t := range totals {
		v := t.InexactFloat64()
		switch {
		case v <= 0:
			segments[id] = schema.SegmentUnknown
		case v <= q33:
			segments[id] = schema.SegmentLow
		case v <= q67:
			segments[id] = schema.SegmentMedium
		default:
			segments[id] = schema.SegmentHigh
		}
		st.Segments[segments[id]]++
	}

	for i := range rows {
		seg, ok := segments[rows[i].CustomerID]
		if !ok {
			seg = schema.SegmentUnknown
		}
		rows[i].CustomerSegment = seg
	}
}

// sortByDate orders rows by invoice date, rows without a date last. Ties
// keep their input order.
func sortByDate(rows []schema.TransactionRow) {
	slices.SortStableFunc(rows, func(a, b schema.TransactionRow) int {
		switch az, bz := a.InvoiceDate.IsZero(), b.InvoiceDate.IsZero(); {
		case az && bz:
			return 0
		case az:
			return 1
		case bz:
			return -1
		}
		return a.InvoiceDate.Compare(b.InvoiceDate)
	})
}

// rollingSales sets Rolling7dSales to the mean total_amount of the row and
// up to RollingWindow-1 preceding rows of the same country. rows must be in
// date order. Rows without a country get 0.
func rollingSales(rows []schema.TransactionRow) {
	type window struct {
		vals []float64
		sum  float64
	}
	windows := map[string]*window{}

	for i := range rows {
		r := &rows[i]
		if r.Country == "" {
			r.Rolling7dSales = 0
			continue
		}
		w, ok := windows[r.Country]
		if !ok {
			w = &window{}
			windows[r.Country] = w
		}
		v := r.TotalAmount.InexactFloat64()
		w.vals = append(w.vals, v)
		w.sum += v
		if len(w.vals) > RollingWindow {
			w.sum -= w.vals[0]
			w.vals = w.vals[1:]
		}
		r.Rolling7dSales = w.sum / float64(len(w.vals))
	}
}
