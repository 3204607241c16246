package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starload/starload/internal/processing"
	"github.com/starload/starload/internal/validation"
	"github.com/starload/starload/internal/warehouse"
)

// LoadReport is the summary written after every load.
type LoadReport struct {
	Version     string              `json:"version"`
	GeneratedAt time.Time           `json:"generated_at"`
	Dataset     DatasetSummary      `json:"dataset"`
	Warehouse   WarehouseSummary    `json:"warehouse"`
	Profile     *processing.Profile `json:"profile,omitempty"`
	Processing  *processing.Stats   `json:"processing,omitempty"`
	Load        *warehouse.Summary  `json:"load,omitempty"`
	Validation  *validation.Result  `json:"validation,omitempty"`
	Quality     *QualitySummary     `json:"data_quality,omitempty"`
	Insights    *warehouse.Insights `json:"insights,omitempty"`
	Status      string              `json:"status"` // succeeded, partial, failed
	Error       string              `json:"error,omitempty"`
	Checks      []QualityCheck      `json:"checks"`
	NextSteps   []string            `json:"next_steps,omitempty"`
}

// DatasetSummary describes the input file.
type DatasetSummary struct {
	Location string `json:"location"`
	Encoding string `json:"encoding"`
	Rows     int    `json:"rows"`
	Skipped  int    `json:"skipped"`
}

// WarehouseSummary describes the target store.
type WarehouseSummary struct {
	Type   string `json:"type"`
	Schema string `json:"schema"`
}

// QualitySummary gathers completeness of the processed rows, negative
// values in the fact table and what to do about them.
type QualitySummary struct {
	Completeness    *validation.Completeness     `json:"completeness,omitempty"`
	Consistency     *validation.ConsistencyCheck `json:"consistency,omitempty"`
	Recommendations []string                     `json:"recommendations,omitempty"`
}

// QualityCheck is a single pass/fail condition on the load.
type QualityCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Input collects what a report is generated from. Nil parts are omitted.
type Input struct {
	Dataset    DatasetSummary
	Warehouse  WarehouseSummary
	Profile    *processing.Profile
	Processing *processing.Stats
	Load       *warehouse.Summary
	Validation *validation.Result
	// Completeness is measured on the processed rows.
	Completeness *validation.Completeness
	Insights     *warehouse.Insights
	Err          error
}

// GenerateReport derives quality checks and a status from in.
func GenerateReport(in Input) *LoadReport {
	r := &LoadReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		Dataset:     in.Dataset,
		Warehouse:   in.Warehouse,
		Profile:     in.Profile,
		Processing:  in.Processing,
		Load:        in.Load,
		Validation:  in.Validation,
		Insights:    in.Insights,
		Quality:     quality(in),
	}
	if in.Err != nil {
		r.Error = in.Err.Error()
	}

	r.Checks = checks(in)
	allPassed := true
	for _, c := range r.Checks {
		if !c.Passed {
			allPassed = false
			r.NextSteps = append(r.NextSteps, c.Message)
		}
	}

	if r.Quality != nil {
		r.NextSteps = append(r.NextSteps, r.Quality.Recommendations...)
	}

	switch {
	case in.Err != nil:
		r.Status = "failed"
	case allPassed:
		r.Status = "succeeded"
	default:
		r.Status = "partial"
	}
	return r
}

func checks(in Input) []QualityCheck {
	var out []QualityCheck

	if in.Load != nil {
		c := QualityCheck{Name: "facts_loaded", Passed: in.Load.Complete(), Message: "All resolved facts were inserted"}
		if !c.Passed {
			c.Message = fmt.Sprintf("%d facts in %d batches failed to commit; rerun the load", in.Load.FactsFailed, in.Load.BatchesFailed)
		}
		out = append(out, c)

		c = QualityCheck{Name: "rows_resolved", Passed: in.Load.RowsDropped == 0, Message: "Every input row resolved to a fact"}
		if !c.Passed {
			c.Message = fmt.Sprintf("%d rows were dropped for missing keys (%s); review the source data",
				in.Load.RowsDropped, formatCounts(in.Load.DropsByReason))
		}
		out = append(out, c)
	}

	if in.Validation != nil {
		c := QualityCheck{Name: "validation", Passed: in.Validation.Status == "PASS", Message: "Warehouse validation passed"}
		if !c.Passed {
			c.Message = fmt.Sprintf("Warehouse validation status %s; run starload validate for details", in.Validation.Status)
		}
		out = append(out, c)
	}

	if in.Err != nil {
		out = append(out, QualityCheck{Name: "run", Passed: false, Message: "Load failed: " + in.Err.Error()})
	}
	return out
}

// quality is nil when neither completeness nor a consistency check is known.
// Recommendations do not affect the report status.
func quality(in Input) *QualitySummary {
	var cc *validation.ConsistencyCheck
	if in.Validation != nil {
		for _, t := range in.Validation.Tables {
			if t.ConsistencyCheck != nil {
				cc = t.ConsistencyCheck
			}
		}
	}
	if in.Completeness == nil && cc == nil {
		return nil
	}
	return &QualitySummary{
		Completeness:    in.Completeness,
		Consistency:     cc,
		Recommendations: validation.Recommendations(in.Completeness, cc),
	}
}

func formatCounts(m map[string]int64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// Path returns the report file path for a run inside dir.
func Path(dir, runID, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("starload-%s.%s", runID, ext))
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *LoadReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*LoadReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &LoadReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(report *LoadReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(report)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(report *LoadReport) string {
	var b strings.Builder

	b.WriteString("=== Starload Report ===\n")
	fmt.Fprintf(&b, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Status:    %s\n\n", strings.ToUpper(report.Status))

	b.WriteString("Dataset:\n")
	fmt.Fprintf(&b, "  Location: %s\n", report.Dataset.Location)
	fmt.Fprintf(&b, "  Encoding: %s\n", report.Dataset.Encoding)
	fmt.Fprintf(&b, "  Rows:     %d (%d skipped)\n\n", report.Dataset.Rows, report.Dataset.Skipped)

	b.WriteString("Warehouse:\n")
	fmt.Fprintf(&b, "  Type:   %s\n", report.Warehouse.Type)
	fmt.Fprintf(&b, "  Schema: %s\n\n", report.Warehouse.Schema)

	if p := report.Processing; p != nil {
		b.WriteString("Processing:\n")
		fmt.Fprintf(&b, "  Rows in/out:        %d / %d\n", p.RowsIn, p.RowsOut)
		fmt.Fprintf(&b, "  Duplicates removed: %d\n", p.DuplicatesRemoved)
		fmt.Fprintf(&b, "  Outliers flagged:   %d\n", p.OutliersFlagged)
		fmt.Fprintf(&b, "  Values imputed:     %d quantity, %d unit price\n", p.QuantityImputed, p.UnitPriceImputed)
		fmt.Fprintf(&b, "  Unparseable dates:  %d\n\n", p.DatesUnparsed)
	}

	if report.Load != nil {
		b.WriteString("Load:\n")
		for _, line := range strings.Split(strings.TrimRight(report.Load.String(), "\n"), "\n") {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
	}

	if report.Validation != nil {
		fmt.Fprintf(&b, "Validation: %s\n", report.Validation.Status)
		for _, t := range report.Validation.Tables {
			fmt.Fprintf(&b, "  %s: %s\n", t.Name, t.Status)
		}
		b.WriteString("\n")
	}

	if q := report.Quality; q != nil {
		b.WriteString("Data Quality:\n")
		if c := q.Completeness; c != nil {
			cols := make([]string, 0, len(c.MissingPct))
			for col := range c.MissingPct {
				cols = append(cols, col)
			}
			sort.Strings(cols)
			for _, col := range cols {
				fmt.Fprintf(&b, "  Missing %-13s %6.2f%%\n", col+":", c.MissingPct[col])
			}
		}
		if c := q.Consistency; c != nil {
			fmt.Fprintf(&b, "  Negative amounts:      %d (%.2f%%)\n", c.NegativeAmounts, c.NegativeAmountsPct)
			fmt.Fprintf(&b, "  Negative prices:       %d (%.2f%%)\n", c.NegativePrices, c.NegativePricesPct)
			fmt.Fprintf(&b, "  Negative quantities:   %d (%.2f%%)\n", c.NegativeQuantities, c.NegativeQuantitiesPct)
		}
		b.WriteString("\n")
	}

	if report.Insights != nil {
		b.WriteString(FormatInsights(report.Insights))
		b.WriteString("\n")
	}

	if report.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n\n", report.Error)
	}

	b.WriteString("Checks:\n")
	for _, c := range report.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s\n", status, c.Name)
	}

	if len(report.NextSteps) > 0 {
		b.WriteString("\nNext Steps:\n")
		for i, s := range report.NextSteps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, s)
		}
	}

	return b.String()
}
