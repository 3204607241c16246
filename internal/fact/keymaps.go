// Package fact resolves transaction rows into fact records against the
// persisted dimension keys.
package fact

import (
	"cloud.google.com/go/civil"
	"github.com/samber/lo"

	"github.com/starload/starload/internal/schema"
)

// KeyMaps holds the natural-key to stored-key lookups for each dimension.
type KeyMaps struct {
	Customers map[string]string
	Dates     map[civil.Date]int64
	Products  map[string]string
	Countries map[string]int64
}

// IdentityKeys maps each natural key onto itself. Customer and product rows are
// stored under their natural keys, so their lookup is the identity over the
// keys that were actually persisted.
func IdentityKeys(keys []string) map[string]string {
	return lo.SliceToMap(keys, func(k string) (string, string) { return k, k })
}

// NewKeyMaps builds lookups from dimension rows read back from the store.
func NewKeyMaps(dims schema.Dimensions) *KeyMaps {
	customers := lo.Map(dims.Customers, func(c schema.DimCustomer, _ int) string { return c.CustomerID })
	products := lo.Map(dims.Products, func(p schema.DimProduct, _ int) string { return p.ProductID })
	dates := lo.SliceToMap(dims.Dates, func(d schema.DimDate) (civil.Date, int64) { return d.Date, d.DateID })
	countries := lo.SliceToMap(dims.Countries, func(c schema.DimCountry) (string, int64) { return c.CountryName, c.CountryID })

	return &KeyMaps{
		Customers: IdentityKeys(customers),
		Dates:     dates,
		Products:  IdentityKeys(products),
		Countries: countries,
	}
}
