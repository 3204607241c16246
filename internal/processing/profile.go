package processing

import (
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/starload/starload/internal/dataset"
)

// Profile summarizes raw data quality before cleaning.
type Profile struct {
	TotalRows  int            `json:"total_rows" yaml:"total_rows"`
	Missing    map[string]int `json:"missing_values" yaml:"missing_values"`
	Duplicates int            `json:"duplicates" yaml:"duplicates"`
	BadDates   int            `json:"unparseable_dates" yaml:"unparseable_dates"`
	Countries  int            `json:"countries" yaml:"countries"`
	Customers  int            `json:"customers" yaml:"customers"`
}

// ProfileRaw counts missing values per column, exact duplicate records and
// distinct customers and countries.
func ProfileRaw(raw []dataset.RawRow) *Profile {
	p := &Profile{TotalRows: len(raw), Missing: map[string]int{}}
	for _, col := range dataset.Columns {
		p.Missing[col] = 0
	}

	seen := make(map[xxh3.Uint128]struct{}, len(raw))
	countries := map[string]struct{}{}
	customers := map[string]struct{}{}
	for _, r := range raw {
		values := []string{r.InvoiceNo, r.StockCode, r.Description, r.Quantity, r.InvoiceDate, r.UnitPrice, r.CustomerID, r.Country}
		for i, v := range values {
			if v == "" {
				p.Missing[dataset.Columns[i]]++
			}
		}

		h := xxh3.HashString128(strings.Join(values, "\x1f"))
		if _, dup := seen[h]; dup {
			p.Duplicates++
		} else {
			seen[h] = struct{}{}
		}

		if r.InvoiceDate != "" {
			if _, ok := ParseDate(r.InvoiceDate); !ok {
				p.BadDates++
			}
		}
		if r.Country != "" {
			countries[r.Country] = struct{}{}
		}
		if r.CustomerID != "" {
			customers[normalizeID(r.CustomerID)] = struct{}{}
		}
	}
	p.Countries = len(countries)
	p.Customers = len(customers)
	return p
}
