package validation

import (
	"strings"

	"github.com/starload/starload/internal/schema"
)

// MissingCustomerThreshold is the missing customer_id percentage above which
// the source data needs review.
const MissingCustomerThreshold = 5.0

// Completeness is the share of processed rows missing each key attribute.
// total_amount is derived for every row, so it is not listed.
type Completeness struct {
	Rows       int64              `json:"rows"`
	MissingPct map[string]float64 `json:"missing_pct"`
}

// MeasureCompleteness counts missing country, invoice_date, customer_id and
// stock_code values in processed rows.
func MeasureCompleteness(rows []schema.TransactionRow) *Completeness {
	missing := map[string]int64{"country": 0, "invoice_date": 0, "customer_id": 0, "stock_code": 0}
	for i := range rows {
		r := &rows[i]
		if strings.TrimSpace(r.Country) == "" {
			missing["country"]++
		}
		if r.InvoiceDate.IsZero() {
			missing["invoice_date"]++
		}
		if strings.TrimSpace(r.CustomerID) == "" {
			missing["customer_id"]++
		}
		if strings.TrimSpace(r.StockCode) == "" {
			missing["stock_code"]++
		}
	}
	c := &Completeness{Rows: int64(len(rows)), MissingPct: make(map[string]float64, len(missing))}
	for col, n := range missing {
		c.MissingPct[col] = percent(n, c.Rows)
	}
	return c
}

// Recommendations lists follow-ups for the quality findings. Either argument
// may be nil.
func Recommendations(comp *Completeness, check *ConsistencyCheck) []string {
	var out []string
	if comp != nil && comp.MissingPct["customer_id"] > MissingCustomerThreshold {
		out = append(out, "High percentage of missing customer data; validate the data source")
	}
	if check != nil && check.NegativeAmounts > 0 {
		out = append(out, "Negative amounts found; add validation rules for returns and cancellations")
	}
	if check != nil && check.NegativePrices > 0 {
		out = append(out, "Negative prices detected; review the price cleaning rules")
	}
	return out
}
