package processing

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/zeebo/xxh3"
)

// UnknownText fills missing descriptive text.
const UnknownText = "Unknown"

// imputeMedians fills missing quantity and unit price with the column median.
func imputeMedians(recs []record, st *Stats) {
	qtys := lo.FilterMap(recs, func(r record, _ int) (float64, bool) { return r.qty, r.qtyOK })
	if len(qtys) > 0 {
		median := int64(math.Round(quantile(qtys, 0.5)))
		for i := range recs {
			if !recs[i].qtyOK {
				recs[i].row.Quantity = median
				recs[i].qty = float64(median)
				recs[i].qtyOK = true
				st.QuantityImputed++
			}
		}
	}

	prices := lo.FilterMap(recs, func(r record, _ int) (decimal.Decimal, bool) { return r.row.UnitPrice, r.priceOK })
	if len(prices) > 0 {
		median := decimalMedian(prices)
		for i := range recs {
			if !recs[i].priceOK {
				recs[i].row.UnitPrice = median
				recs[i].priceOK = true
				st.UnitPriceImputed++
			}
		}
	}
}

func decimalMedian(values []decimal.Decimal) decimal.Decimal {
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, decimal.Decimal.Cmp)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// fillText replaces a missing description with UnknownText. Identifier
// columns stay empty so fact resolution can report them.
func fillText(recs []record, st *Stats) {
	for i := range recs {
		if recs[i].row.Description == "" {
			recs[i].row.Description = UnknownText
			st.DescriptionsFilled++
		}
	}
}

// dropDuplicates keeps the first of each set of identical rows.
func dropDuplicates(recs []record, st *Stats) []record {
	seen := make(map[xxh3.Uint128]struct{}, len(recs))
	out := recs[:0]
	for _, r := range recs {
		h := xxh3.HashString128(rowKey(r))
		if _, dup := seen[h]; dup {
			st.DuplicatesRemoved++
			continue
		}
		seen[h] = struct{}{}
		out = append(out, r)
	}
	return out
}

func rowKey(r record) string {
	date := ""
	if !r.row.InvoiceDate.IsZero() {
		date = r.row.InvoiceDate.Format(time.RFC3339Nano)
	}
	return strings.Join([]string{
		r.row.InvoiceNo,
		r.row.StockCode,
		r.row.Description,
		strconv.FormatInt(r.row.Quantity, 10),
		date,
		r.row.UnitPrice.String(),
		r.row.CustomerID,
		r.row.Country,
	}, "\x1f")
}

// flagOutliers marks rows whose quantity or unit price falls outside the
// Tukey fences as invalid. Rows stay in the dataset.
func flagOutliers(recs []record, st *Stats) {
	qtys := make([]float64, len(recs))
	prices := make([]float64, len(recs))
	for i, r := range recs {
		qtys[i] = float64(r.row.Quantity)
		prices[i] = r.row.UnitPrice.InexactFloat64()
	}
	if len(recs) == 0 {
		return
	}
	qLo, qHi := iqrBounds(qtys)
	pLo, pHi := iqrBounds(prices)

	for i := range recs {
		out := qtys[i] < qLo || qtys[i] > qHi || prices[i] < pLo || prices[i] > pHi
		if out && recs[i].row.IsValid {
			recs[i].row.IsValid = false
			st.OutliersFlagged++
		}
	}
}
