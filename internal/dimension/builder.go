// Package dimension derives deduplicated dimension rows from transaction rows.
package dimension

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/samber/lo"

	"github.com/starload/starload/internal/region"
	"github.com/starload/starload/internal/schema"
)

// Build derives all four dimension row sets. Surrogate keys are left zero for
// the store to assign.
func Build(rows []schema.TransactionRow) schema.Dimensions {
	return schema.Dimensions{
		Customers: Customers(rows),
		Dates:     Dates(rows),
		Products:  Products(rows),
		Countries: Countries(rows),
	}
}

// Customers returns one row per customer_id. When an id appears with several
// attribute combinations the last one in input order wins; output keeps the
// order in which ids first appeared.
func Customers(rows []schema.TransactionRow) []schema.DimCustomer {
	var order []string
	latest := make(map[string]schema.DimCustomer)
	for _, r := range rows {
		id := strings.TrimSpace(r.CustomerID)
		if id == "" {
			continue
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		seg := r.CustomerSegment
		if seg == "" {
			seg = schema.SegmentUnknown
		}
		latest[id] = schema.DimCustomer{CustomerID: id, CustomerSegment: seg, Country: r.Country}
	}
	return lo.Map(order, func(id string, _ int) schema.DimCustomer { return latest[id] })
}

// Products returns one row per stock code with last-wins attributes.
func Products(rows []schema.TransactionRow) []schema.DimProduct {
	var order []string
	latest := make(map[string]schema.DimProduct)
	for _, r := range rows {
		code := strings.TrimSpace(r.StockCode)
		if code == "" {
			continue
		}
		if _, seen := latest[code]; !seen {
			order = append(order, code)
		}
		latest[code] = schema.DimProduct{ProductID: code, Description: r.Description, ProductCategory: r.ProductCategory}
	}
	return lo.Map(order, func(code string, _ int) schema.DimProduct { return latest[code] })
}

// Countries returns the distinct non-blank country names in first-seen order.
func Countries(rows []schema.TransactionRow) []schema.DimCountry {
	names := lo.Uniq(lo.FilterMap(rows, func(r schema.TransactionRow, _ int) (string, bool) {
		return r.Country, strings.TrimSpace(r.Country) != ""
	}))
	return lo.Map(names, func(name string, _ int) schema.DimCountry {
		return schema.DimCountry{CountryName: name, Region: string(region.Classify(name))}
	})
}

// Dates returns one row per distinct invoice calendar date, ascending.
func Dates(rows []schema.TransactionRow) []schema.DimDate {
	seen := make(map[civil.Date]bool)
	var dates []civil.Date
	for i := range rows {
		d, ok := rows[i].InvoiceCalendarDate()
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return lo.Map(dates, func(d civil.Date, _ int) schema.DimDate { return NewDate(d) })
}
