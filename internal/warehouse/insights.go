package warehouse

import (
	"github.com/shopspring/decimal"
)

// InsightsLimit caps the top-country and top-product rankings.
const InsightsLimit = 10

// Insights are fixed sales breakdowns over valid facts (is_valid = 1) joined
// to their dimensions. Facts whose dimension row is missing are left out.
type Insights struct {
	TopCountries []CountrySales `json:"top_countries" yaml:"top_countries"`
	Segments     []SegmentSales `json:"customer_segments" yaml:"customer_segments"`
	Monthly      []MonthlySales `json:"monthly_trends" yaml:"monthly_trends"`
	TopProducts  []ProductSales `json:"top_products" yaml:"top_products"`
}

// CountrySales ranks countries by total sales, highest first.
type CountrySales struct {
	Country      string          `json:"country" yaml:"country"`
	Transactions int64           `json:"transactions" yaml:"transactions"`
	TotalSales   decimal.Decimal `json:"total_sales" yaml:"total_sales"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price" yaml:"avg_unit_price"`
}

// SegmentSales groups sales by customer segment, highest total first.
type SegmentSales struct {
	Segment             string          `json:"customer_segment" yaml:"customer_segment"`
	Customers           int64           `json:"unique_customers" yaml:"unique_customers"`
	Transactions        int64           `json:"transactions" yaml:"transactions"`
	TotalSales          decimal.Decimal `json:"total_sales" yaml:"total_sales"`
	AvgTransactionValue decimal.Decimal `json:"avg_transaction_value" yaml:"avg_transaction_value"`
}

// MonthlySales is one calendar month, in chronological order.
type MonthlySales struct {
	Year         int             `json:"year" yaml:"year"`
	Month        int             `json:"month" yaml:"month"`
	MonthName    string          `json:"month_name" yaml:"month_name"`
	Transactions int64           `json:"transactions" yaml:"transactions"`
	TotalSales   decimal.Decimal `json:"total_sales" yaml:"total_sales"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price" yaml:"avg_unit_price"`
}

// ProductSales ranks products by total sales, highest first.
type ProductSales struct {
	StockCode    string          `json:"stock_code" yaml:"stock_code"`
	Description  string          `json:"description" yaml:"description"`
	Transactions int64           `json:"transactions" yaml:"transactions"`
	TotalSales   decimal.Decimal `json:"total_sales" yaml:"total_sales"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price" yaml:"avg_unit_price"`
}

// Consistency counts facts, valid or not, carrying negative measures.
type Consistency struct {
	Facts              int64 `json:"facts" yaml:"facts"`
	NegativeAmounts    int64 `json:"negative_amounts" yaml:"negative_amounts"`
	NegativePrices     int64 `json:"negative_prices" yaml:"negative_prices"`
	NegativeQuantities int64 `json:"negative_quantities" yaml:"negative_quantities"`
}

// amountScale matches the scale of the money columns.
const amountScale = 4

// RoundAmount rounds a store-computed sum or average to the money scale so
// backends that aggregate in floating point report the same value.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(amountScale)
}
