package processing

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/starload/starload/internal/dataset"
	"github.com/starload/starload/internal/schema"
)

// dateLayouts are tried in order. The first matches the Kaggle export.
var dateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02",
	"1/2/2006",
}

// ParseDate parses an invoice timestamp in UTC. Unparseable values yield the
// zero time, which downstream code treats as missing.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// record carries a row through cleaning with the validity of each numeric
// input.
type record struct {
	row     schema.TransactionRow
	qty     float64
	qtyOK   bool
	priceOK bool
}

func parseRow(raw dataset.RawRow) record {
	rec := record{row: schema.TransactionRow{
		InvoiceNo:   raw.InvoiceNo,
		StockCode:   raw.StockCode,
		Description: normalizeText(raw.Description),
		CustomerID:  normalizeID(raw.CustomerID),
		Country:     normalizeText(raw.Country),
	}}

	if q, ok := parseQuantity(raw.Quantity); ok {
		rec.qty, rec.qtyOK = q, true
		rec.row.Quantity = int64(math.Round(q))
	}
	if p, err := decimal.NewFromString(raw.UnitPrice); err == nil {
		rec.row.UnitPrice, rec.priceOK = p, true
	}
	rec.row.InvoiceDate, _ = ParseDate(raw.InvoiceDate)
	return rec
}

// parseQuantity parses a quantity. NaN, infinities and values that do not
// round into the int64 range count as missing.
func parseQuantity(s string) (float64, bool) {
	q, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, false
	}
	if r := math.Round(q); r < math.MinInt64 || r >= math.MaxInt64 {
		return 0, false
	}
	return q, true
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// normalizeID strips the ".0" a float export appends to numeric IDs.
func normalizeID(s string) string {
	if head, ok := strings.CutSuffix(s, ".0"); ok {
		if _, err := strconv.ParseInt(head, 10, 64); err == nil {
			return head
		}
	}
	return s
}
