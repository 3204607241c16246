package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

func (s *Store) Consistency(ctx context.Context) (*warehouse.Consistency, error) {
	q := fmt.Sprintf(`SELECT COUNT(*),
  COALESCE(SUM(CASE WHEN total_amount < 0 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN unit_price < 0 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN quantity < 0 THEN 1 ELSE 0 END), 0)
FROM %s`, s.table(schema.TableFactSales))

	var c warehouse.Consistency
	if err := s.db.QueryRowContext(ctx, q).Scan(&c.Facts, &c.NegativeAmounts, &c.NegativePrices, &c.NegativeQuantities); err != nil {
		return nil, fmt.Errorf("%s: checking fact consistency: %w", s.dialect, err)
	}
	return &c, nil
}

func (s *Store) Insights(ctx context.Context, limit int) (*warehouse.Insights, error) {
	facts := s.table(schema.TableFactSales)
	out := &warehouse.Insights{}

	err := s.queryEach(ctx, fmt.Sprintf(`SELECT dc.country_name, COUNT(*), SUM(f.total_amount), AVG(f.unit_price)
FROM %s f JOIN %s dc ON f.country_id = dc.country_id
WHERE f.is_valid = 1
GROUP BY dc.country_name
ORDER BY 3 DESC, dc.country_name
LIMIT ?`, facts, s.table(schema.TableDimCountry)), []any{limit}, func(rows *sql.Rows) error {
		var r warehouse.CountrySales
		if err := rows.Scan(&r.Country, &r.Transactions, &r.TotalSales, &r.AvgUnitPrice); err != nil {
			return err
		}
		r.TotalSales, r.AvgUnitPrice = warehouse.RoundAmount(r.TotalSales), warehouse.RoundAmount(r.AvgUnitPrice)
		out.TopCountries = append(out.TopCountries, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: top countries: %w", s.dialect, err)
	}

	err = s.queryEach(ctx, fmt.Sprintf(`SELECT dc.customer_segment, COUNT(DISTINCT dc.customer_id), COUNT(*), SUM(f.total_amount), AVG(f.total_amount)
FROM %s f JOIN %s dc ON f.customer_id = dc.customer_id
WHERE f.is_valid = 1
GROUP BY dc.customer_segment
ORDER BY 4 DESC, dc.customer_segment`, facts, s.table(schema.TableDimCustomer)), nil, func(rows *sql.Rows) error {
		var r warehouse.SegmentSales
		var seg sql.NullString
		if err := rows.Scan(&seg, &r.Customers, &r.Transactions, &r.TotalSales, &r.AvgTransactionValue); err != nil {
			return err
		}
		r.Segment = seg.String
		r.TotalSales, r.AvgTransactionValue = warehouse.RoundAmount(r.TotalSales), warehouse.RoundAmount(r.AvgTransactionValue)
		out.Segments = append(out.Segments, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: customer segments: %w", s.dialect, err)
	}

	err = s.queryEach(ctx, fmt.Sprintf(`SELECT dd.year, dd.month, dd.month_name, COUNT(*), SUM(f.total_amount), AVG(f.unit_price)
FROM %s f JOIN %s dd ON f.date_id = dd.date_id
WHERE f.is_valid = 1
GROUP BY dd.year, dd.month, dd.month_name
ORDER BY dd.year, dd.month`, facts, s.table(schema.TableDimDate)), nil, func(rows *sql.Rows) error {
		var r warehouse.MonthlySales
		if err := rows.Scan(&r.Year, &r.Month, &r.MonthName, &r.Transactions, &r.TotalSales, &r.AvgUnitPrice); err != nil {
			return err
		}
		r.TotalSales, r.AvgUnitPrice = warehouse.RoundAmount(r.TotalSales), warehouse.RoundAmount(r.AvgUnitPrice)
		out.Monthly = append(out.Monthly, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: monthly trends: %w", s.dialect, err)
	}

	err = s.queryEach(ctx, fmt.Sprintf(`SELECT dp.stock_code, dp.description, COUNT(*), SUM(f.total_amount), AVG(f.unit_price)
FROM %s f JOIN %s dp ON f.product_id = dp.product_id
WHERE f.is_valid = 1
GROUP BY dp.stock_code, dp.description
ORDER BY 4 DESC, dp.stock_code
LIMIT ?`, facts, s.table(schema.TableDimProduct)), []any{limit}, func(rows *sql.Rows) error {
		var r warehouse.ProductSales
		var code, desc sql.NullString
		if err := rows.Scan(&code, &desc, &r.Transactions, &r.TotalSales, &r.AvgUnitPrice); err != nil {
			return err
		}
		r.StockCode, r.Description = code.String, desc.String
		r.TotalSales, r.AvgUnitPrice = warehouse.RoundAmount(r.TotalSales), warehouse.RoundAmount(r.AvgUnitPrice)
		out.TopProducts = append(out.TopProducts, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: top products: %w", s.dialect, err)
	}
	return out, nil
}

func (s *Store) queryEach(ctx context.Context, q string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		if err := scan(rows); err != nil {
			rows.Close()
			return err
		}
	}
	return closeRows(rows)
}
