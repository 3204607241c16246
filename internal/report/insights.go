package report

import (
	"fmt"
	"strings"

	"github.com/starload/starload/internal/warehouse"
)

// FormatInsights renders the sales breakdowns as text tables.
func FormatInsights(in *warehouse.Insights) string {
	var b strings.Builder

	b.WriteString("Top Countries by Sales:\n")
	for i, c := range in.TopCountries {
		fmt.Fprintf(&b, "  %2d. %-24s %14s  %6d txns  avg price %s\n",
			i+1, c.Country, c.TotalSales.StringFixed(2), c.Transactions, c.AvgUnitPrice.StringFixed(2))
	}

	b.WriteString("\nCustomer Segments:\n")
	for _, s := range in.Segments {
		fmt.Fprintf(&b, "  %-8s %6d customers %8d txns %14s  avg %s\n",
			s.Segment, s.Customers, s.Transactions, s.TotalSales.StringFixed(2), s.AvgTransactionValue.StringFixed(2))
	}

	b.WriteString("\nMonthly Trends:\n")
	for _, m := range in.Monthly {
		fmt.Fprintf(&b, "  %04d-%02d %-9s %8d txns %14s  avg price %s\n",
			m.Year, m.Month, m.MonthName, m.Transactions, m.TotalSales.StringFixed(2), m.AvgUnitPrice.StringFixed(2))
	}

	b.WriteString("\nTop Products by Sales:\n")
	for i, p := range in.TopProducts {
		fmt.Fprintf(&b, "  %2d. %-10s %-36s %14s  %6d txns\n",
			i+1, p.StockCode, truncate(p.Description, 36), p.TotalSales.StringFixed(2), p.Transactions)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
