package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

func (s *Store) Consistency(ctx context.Context) (*warehouse.Consistency, error) {
	q := `SELECT COUNT(*),
  COUNT(*) FILTER (WHERE total_amount < 0),
  COUNT(*) FILTER (WHERE unit_price < 0),
  COUNT(*) FILTER (WHERE quantity < 0)
FROM ` + s.table(schema.TableFactSales)

	var c warehouse.Consistency
	if err := s.pool.QueryRow(ctx, q).Scan(&c.Facts, &c.NegativeAmounts, &c.NegativePrices, &c.NegativeQuantities); err != nil {
		return nil, fmt.Errorf("checking fact consistency: %w", err)
	}
	return &c, nil
}

// Aggregates are cast to text so numeric values reach decimal without a
// float64 round trip.
func (s *Store) Insights(ctx context.Context, limit int) (*warehouse.Insights, error) {
	facts := s.table(schema.TableFactSales)
	out := &warehouse.Insights{}
	var err error

	out.TopCountries, err = collectArgs(ctx, s.pool, fmt.Sprintf(`SELECT dc.country_name, COUNT(*), SUM(f.total_amount)::text, AVG(f.unit_price)::text
FROM %s f JOIN %s dc ON f.country_id = dc.country_id
WHERE f.is_valid = 1
GROUP BY dc.country_name
ORDER BY SUM(f.total_amount) DESC, dc.country_name
LIMIT $1`, facts, s.table(schema.TableDimCountry)), []any{limit},
		func(row pgx.CollectableRow) (warehouse.CountrySales, error) {
			var r warehouse.CountrySales
			var total, avg string
			if err := row.Scan(&r.Country, &r.Transactions, &total, &avg); err != nil {
				return r, err
			}
			r.TotalSales, r.AvgUnitPrice, err = amounts(total, avg)
			return r, err
		})
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}

	out.Segments, err = collectArgs(ctx, s.pool, fmt.Sprintf(`SELECT dc.customer_segment, COUNT(DISTINCT dc.customer_id), COUNT(*), SUM(f.total_amount)::text, AVG(f.total_amount)::text
FROM %s f JOIN %s dc ON f.customer_id = dc.customer_id
WHERE f.is_valid = 1
GROUP BY dc.customer_segment
ORDER BY SUM(f.total_amount) DESC, dc.customer_segment`, facts, s.table(schema.TableDimCustomer)), nil,
		func(row pgx.CollectableRow) (warehouse.SegmentSales, error) {
			var r warehouse.SegmentSales
			var seg *string
			var total, avg string
			if err := row.Scan(&seg, &r.Customers, &r.Transactions, &total, &avg); err != nil {
				return r, err
			}
			r.Segment = deref(seg)
			r.TotalSales, r.AvgTransactionValue, err = amounts(total, avg)
			return r, err
		})
	if err != nil {
		return nil, fmt.Errorf("customer segments: %w", err)
	}

	out.Monthly, err = collectArgs(ctx, s.pool, fmt.Sprintf(`SELECT dd.year, dd.month, dd.month_name, COUNT(*), SUM(f.total_amount)::text, AVG(f.unit_price)::text
FROM %s f JOIN %s dd ON f.date_id = dd.date_id
WHERE f.is_valid = 1
GROUP BY dd.year, dd.month, dd.month_name
ORDER BY dd.year, dd.month`, facts, s.table(schema.TableDimDate)), nil,
		func(row pgx.CollectableRow) (warehouse.MonthlySales, error) {
			var r warehouse.MonthlySales
			var total, avg string
			if err := row.Scan(&r.Year, &r.Month, &r.MonthName, &r.Transactions, &total, &avg); err != nil {
				return r, err
			}
			r.TotalSales, r.AvgUnitPrice, err = amounts(total, avg)
			return r, err
		})
	if err != nil {
		return nil, fmt.Errorf("monthly trends: %w", err)
	}

	out.TopProducts, err = collectArgs(ctx, s.pool, fmt.Sprintf(`SELECT dp.stock_code, dp.description, COUNT(*), SUM(f.total_amount)::text, AVG(f.unit_price)::text
FROM %s f JOIN %s dp ON f.product_id = dp.product_id
WHERE f.is_valid = 1
GROUP BY dp.stock_code, dp.description
ORDER BY SUM(f.total_amount) DESC, dp.stock_code
LIMIT $1`, facts, s.table(schema.TableDimProduct)), []any{limit},
		func(row pgx.CollectableRow) (warehouse.ProductSales, error) {
			var r warehouse.ProductSales
			var code, desc *string
			var total, avg string
			if err := row.Scan(&code, &desc, &r.Transactions, &total, &avg); err != nil {
				return r, err
			}
			r.StockCode, r.Description = deref(code), deref(desc)
			r.TotalSales, r.AvgUnitPrice, err = amounts(total, avg)
			return r, err
		})
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	return out, nil
}

func collectArgs[T any](ctx context.Context, q querier, sql string, args []any, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}

// amounts parses a text sum and average rounded to the money scale.
func amounts(total, avg string) (decimal.Decimal, decimal.Decimal, error) {
	t, err := decimal.NewFromString(total)
	if err != nil {
		return t, t, fmt.Errorf("parsing sum %q: %w", total, err)
	}
	a, err := decimal.NewFromString(avg)
	if err != nil {
		return t, a, fmt.Errorf("parsing average %q: %w", avg, err)
	}
	return warehouse.RoundAmount(t), warehouse.RoundAmount(a), nil
}
