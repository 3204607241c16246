package fact

import (
	"strings"

	"github.com/starload/starload/internal/schema"
)

// Missing is a bit set of the dimension keys a row failed to resolve.
type Missing uint8

const (
	MissingCustomer Missing = 1 << iota
	MissingDate
	MissingProduct
	MissingCountry
)

// Reasons returns a label per missing key, in dimension order.
func (m Missing) Reasons() []string {
	var out []string
	for _, r := range []struct {
		bit  Missing
		name string
	}{
		{MissingCustomer, "customer"},
		{MissingDate, "date"},
		{MissingProduct, "product"},
		{MissingCountry, "country"},
	} {
		if m&r.bit != 0 {
			out = append(out, r.name)
		}
	}
	return out
}

func (m Missing) String() string {
	return strings.Join(m.Reasons(), ",")
}

// Drop records an input row that could not be turned into a fact.
type Drop struct {
	Row       int
	InvoiceNo string
	Missing   Missing
}

// Resolution is the outcome of resolving one set of rows.
type Resolution struct {
	Facts []schema.FactSales
	Drops []Drop
}

// DropsByReason counts drops per missing key. A row missing several keys is
// counted once under each.
func (r *Resolution) DropsByReason() map[string]int64 {
	counts := map[string]int64{}
	for _, d := range r.Drops {
		for _, reason := range d.Missing.Reasons() {
			counts[reason]++
		}
	}
	return counts
}

// Resolve emits one fact per row whose customer, date, product and country
// keys are all present in maps, and one Drop for every other row.
func Resolve(rows []schema.TransactionRow, maps *KeyMaps) *Resolution {
	res := &Resolution{Facts: make([]schema.FactSales, 0, len(rows))}
	for i := range rows {
		f, missing := resolveRow(&rows[i], maps)
		if missing != 0 {
			res.Drops = append(res.Drops, Drop{Row: i, InvoiceNo: rows[i].InvoiceNo, Missing: missing})
			continue
		}
		res.Facts = append(res.Facts, f)
	}
	return res
}

func resolveRow(r *schema.TransactionRow, maps *KeyMaps) (schema.FactSales, Missing) {
	var missing Missing

	customerID, ok := maps.Customers[strings.TrimSpace(r.CustomerID)]
	if !ok {
		missing |= MissingCustomer
	}

	var dateID int64
	if d, has := r.InvoiceCalendarDate(); has {
		dateID, ok = maps.Dates[d]
	} else {
		ok = false
	}
	if !ok {
		missing |= MissingDate
	}

	productID, ok := maps.Products[strings.TrimSpace(r.StockCode)]
	if !ok {
		missing |= MissingProduct
	}

	countryID, ok := maps.Countries[r.Country]
	if !ok {
		missing |= MissingCountry
	}

	if missing != 0 {
		return schema.FactSales{}, missing
	}
	return schema.FactSales{
		CustomerID:     customerID,
		DateID:         dateID,
		ProductID:      productID,
		CountryID:      countryID,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		TotalAmount:    r.TotalAmount,
		Rolling7dSales: r.Rolling7dSales,
		InvoiceNo:      r.InvoiceNo,
		IsValid:        r.IsValid,
	}, 0
}
