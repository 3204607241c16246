// Package staging copies the source rows and the processed rows into the
// raw_data and processed_data tables next to the star schema.
package staging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starload/starload/internal/dataset"
	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

// Writer replaces the contents of both staging tables on every run.
type Writer struct {
	Store   warehouse.Stager
	Catalog *schema.Catalog
	Logger  *slog.Logger
}

// Write creates the staging tables when absent and replaces their rows.
func (w *Writer) Write(ctx context.Context, raw []dataset.RawRow, processed []schema.TransactionRow) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := w.Store.EnsureStaging(ctx, w.Catalog); err != nil {
		return fmt.Errorf("creating staging tables: %w", err)
	}
	for _, t := range []warehouse.StagedTable{RawTable(raw), ProcessedTable(processed)} {
		if err := w.Store.ReplaceStaged(ctx, t); err != nil {
			return err
		}
		logger.Info("staged rows", "table", t.Name, "rows", len(t.Rows))
	}
	return nil
}

var rawColumns = []string{"source_line", "invoice_no", "stock_code", "description", "quantity",
	"invoice_date", "unit_price", "customer_id", "country"}

// RawTable stages the rows as read; blank fields become NULL.
func RawTable(rows []dataset.RawRow) warehouse.StagedTable {
	t := warehouse.StagedTable{Name: schema.TableRawData, Columns: rawColumns, Rows: make([][]any, len(rows))}
	for i, r := range rows {
		t.Rows[i] = []any{int64(r.Line), null(r.InvoiceNo), null(r.StockCode), null(r.Description), null(r.Quantity),
			null(r.InvoiceDate), null(r.UnitPrice), null(r.CustomerID), null(r.Country)}
	}
	return t
}

var processedColumns = []string{"invoice_no", "stock_code", "description", "quantity", "invoice_date",
	"unit_price", "customer_id", "country", "total_amount", "customer_segment", "product_category",
	"rolling_7d_sales", "is_valid", "invoice_year", "invoice_month", "invoice_day",
	"invoice_day_of_week", "invoice_quarter"}

// ProcessedTable stages cleaned rows. Date parts are NULL when the invoice
// date is missing.
func ProcessedTable(rows []schema.TransactionRow) warehouse.StagedTable {
	t := warehouse.StagedTable{Name: schema.TableProcessedData, Columns: processedColumns, Rows: make([][]any, len(rows))}
	for i := range rows {
		r := &rows[i]
		var date, year, month, day, dow, quarter any
		if !r.InvoiceDate.IsZero() {
			date = r.InvoiceDate
			year, month, day = int64(r.InvoiceYear), int64(r.InvoiceMonth), int64(r.InvoiceDay)
			dow, quarter = int64(r.InvoiceDayOfWeek), int64(r.InvoiceQuarter)
		}
		t.Rows[i] = []any{null(r.InvoiceNo), null(r.StockCode), null(r.Description), r.Quantity, date,
			r.UnitPrice, null(r.CustomerID), null(r.Country), r.TotalAmount, null(string(r.CustomerSegment)),
			null(r.ProductCategory), r.Rolling7dSales, int64(schema.FlagInt(r.IsValid)),
			year, month, day, dow, quarter}
	}
	return t
}

func null(s string) any {
	if s == "" {
		return nil
	}
	return s
}
