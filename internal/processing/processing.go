// Package processing cleans raw transaction records and derives the columns
// the warehouse needs.
package processing

import (
	"context"
	"log/slog"
	"time"

	"github.com/starload/starload/internal/dataset"
	"github.com/starload/starload/internal/metrics"
	"github.com/starload/starload/internal/schema"
)

// Options toggle cleaning steps. The zero value runs every step.
type Options struct {
	SkipImputation  bool
	SkipOutlierFlag bool
	KeepDuplicates  bool
	// Job labels emitted metrics.
	Job string
}

// Stats counts what cleaning changed.
type Stats struct {
	RowsIn             int                    `json:"rows_in" yaml:"rows_in"`
	DatesUnparsed      int                    `json:"dates_unparsed" yaml:"dates_unparsed"`
	QuantityImputed    int                    `json:"quantity_imputed" yaml:"quantity_imputed"`
	UnitPriceImputed   int                    `json:"unit_price_imputed" yaml:"unit_price_imputed"`
	DescriptionsFilled int                    `json:"descriptions_filled" yaml:"descriptions_filled"`
	DuplicatesRemoved  int                    `json:"duplicates_removed" yaml:"duplicates_removed"`
	OutliersFlagged    int                    `json:"outliers_flagged" yaml:"outliers_flagged"`
	RowsOut            int                    `json:"rows_out" yaml:"rows_out"`
	Segments           map[schema.Segment]int `json:"customer_segments" yaml:"customer_segments"`
	Duration           string                 `json:"duration" yaml:"duration"`
}

// Process turns raw records into warehouse-ready transaction rows: parse,
// impute, fill, dedupe, flag outliers, then derive totals, date parts,
// segments, categories and the rolling sales average. Output is ordered by
// invoice date.
func Process(ctx context.Context, raw []dataset.RawRow, opts Options, logger *slog.Logger) ([]schema.TransactionRow, *Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Job == "" {
		opts.Job = "starload"
	}
	start := time.Now()
	st := &Stats{RowsIn: len(raw), Segments: map[schema.Segment]int{}}

	recs := make([]record, len(raw))
	for i, r := range raw {
		recs[i] = parseRow(r)
		recs[i].row.IsValid = true
		if r.InvoiceDate != "" && recs[i].row.InvoiceDate.IsZero() {
			st.DatesUnparsed++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, st, err
	}

	if !opts.SkipImputation {
		imputeMedians(recs, st)
	}
	fillText(recs, st)
	if !opts.KeepDuplicates {
		recs = dropDuplicates(recs, st)
	}
	if !opts.SkipOutlierFlag {
		flagOutliers(recs, st)
	}
	if err := ctx.Err(); err != nil {
		return nil, st, err
	}

	rows := make([]schema.TransactionRow, len(recs))
	for i, r := range recs {
		rows[i] = r.row
	}
	deriveColumns(rows)
	assignSegments(rows, st)
	sortByDate(rows)
	rollingSales(rows)

	st.RowsOut = len(rows)
	elapsed := time.Since(start)
	st.Duration = elapsed.Round(time.Millisecond).String()

	metrics.RecordStep(opts.Job, "process", nil, elapsed)
	metrics.RecordRows(opts.Job, "processed", int64(st.RowsOut))
	metrics.RecordRows(opts.Job, "duplicates", int64(st.DuplicatesRemoved))
	metrics.RecordRows(opts.Job, "outliers", int64(st.OutliersFlagged))

	logger.Info("processing complete",
		"rows_in", st.RowsIn,
		"rows_out", st.RowsOut,
		"duplicates_removed", st.DuplicatesRemoved,
		"outliers_flagged", st.OutliersFlagged,
		"quantity_imputed", st.QuantityImputed,
		"unit_price_imputed", st.UnitPriceImputed,
		"dates_unparsed", st.DatesUnparsed,
		"duration", st.Duration,
	)
	return rows, st, nil
}
