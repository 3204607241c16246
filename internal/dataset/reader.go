package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column names of the transaction CSV, in canonical form.
const (
	ColInvoiceNo   = "invoice_no"
	ColStockCode   = "stock_code"
	ColDescription = "description"
	ColQuantity    = "quantity"
	ColInvoiceDate = "invoice_date"
	ColUnitPrice   = "unit_price"
	ColCustomerID  = "customer_id"
	ColCountry     = "country"
)

// Columns lists the canonical columns in file order.
var Columns = []string{
	ColInvoiceNo, ColStockCode, ColDescription, ColQuantity,
	ColInvoiceDate, ColUnitPrice, ColCustomerID, ColCountry,
}

// RawRow is one CSV record with values as read. Empty means missing.
type RawRow struct {
	Line        int
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// Result is the parsed file.
type Result struct {
	Rows    []RawRow
	Skipped int // malformed records
}

// ErrMissingColumns is returned when the header lacks required columns.
var ErrMissingColumns = errors.New("missing required columns")

// Read parses transaction CSV from r. Encoding is "latin1" or "utf8".
// Malformed records are logged and skipped.
func Read(ctx context.Context, r io.Reader, encoding string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cr := csv.NewReader(decoder(r, encoding))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	colIx, err := mapHeader(hdr)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	line := 1
	for {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line++

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Skipped++
			logger.Warn("skipping malformed record", "line", line, "error", err)
			continue
		}

		get := func(col string) string {
			i := colIx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		res.Rows = append(res.Rows, RawRow{
			Line:        line,
			InvoiceNo:   get(ColInvoiceNo),
			StockCode:   get(ColStockCode),
			Description: get(ColDescription),
			Quantity:    get(ColQuantity),
			InvoiceDate: get(ColInvoiceDate),
			UnitPrice:   get(ColUnitPrice),
			CustomerID:  get(ColCustomerID),
			Country:     get(ColCountry),
		})
	}

	logger.Info("dataset parsed", "rows", len(res.Rows), "skipped", res.Skipped)
	return res, nil
}

func decoder(r io.Reader, encoding string) io.Reader {
	if encoding == "utf8" {
		return transform.NewReader(r, xunicode.UTF8BOM.NewDecoder())
	}
	return charmap.ISO8859_1.NewDecoder().Reader(r)
}

// mapHeader maps each canonical column to its index in the header.
func mapHeader(hdr []string) (map[string]int, error) {
	byKey := make(map[string]int, len(hdr))
	for i, h := range hdr {
		byKey[HeaderKey(h)] = i
	}

	colIx := make(map[string]int, len(Columns))
	var missing []string
	for _, col := range Columns {
		i, ok := byKey[HeaderKey(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		colIx[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return colIx, nil
}

var notAlnum = runes.Predicate(func(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
})

// HeaderKey folds a header name so "InvoiceNo", "Invoice No" and
// "invoice_no" compare equal.
func HeaderKey(h string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(notAlnum), norm.NFC)
	out, _, err := transform.String(fold, h)
	if err != nil {
		out = h
	}
	return strings.ToLower(out)
}
