package schema

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Segment buckets customers by total spend.
type Segment string

const (
	SegmentLow     Segment = "Low"
	SegmentMedium  Segment = "Medium"
	SegmentHigh    Segment = "High"
	SegmentUnknown Segment = "Unknown"
)

// TransactionRow is one cleaned and enriched transaction line. Empty strings
// and a zero InvoiceDate mean the value is missing.
type TransactionRow struct {
	InvoiceNo       string
	StockCode       string
	Description     string
	Quantity        int64
	InvoiceDate     time.Time
	UnitPrice       decimal.Decimal
	CustomerID      string
	Country         string
	TotalAmount     decimal.Decimal
	CustomerSegment Segment
	ProductCategory string
	Rolling7dSales  float64
	IsValid         bool

	InvoiceYear      int
	InvoiceMonth     int
	InvoiceDay       int
	InvoiceDayOfWeek int
	InvoiceQuarter   int
}

// InvoiceCalendarDate returns the calendar date of the invoice in the
// timestamp's own location.
func (r *TransactionRow) InvoiceCalendarDate() (civil.Date, bool) {
	if r.InvoiceDate.IsZero() {
		return civil.Date{}, false
	}
	return civil.DateOf(r.InvoiceDate), true
}

// DimCustomer is keyed by the natural customer_id.
type DimCustomer struct {
	CustomerID      string
	CustomerSegment Segment
	Country         string
}

// DimDate is keyed by a surrogate date_id assigned by the store.
type DimDate struct {
	DateID    int64
	Date      civil.Date
	Year      int
	Month     int
	Day       int
	Quarter   int
	DayOfWeek int // 0=Monday .. 6=Sunday
	DayName   string
	MonthName string
	IsWeekend bool
}

// DimProduct is keyed by the natural stock code.
type DimProduct struct {
	ProductID       string
	Description     string
	ProductCategory string
}

// DimCountry is keyed by a surrogate country_id assigned by the store.
type DimCountry struct {
	CountryID   int64
	CountryName string
	Region      string
}

// FactSales is one resolved sales line.
type FactSales struct {
	FactID         int64
	CustomerID     string
	DateID         int64
	ProductID      string
	CountryID      int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	TotalAmount    decimal.Decimal
	Rolling7dSales float64
	InvoiceNo      string
	IsValid        bool
}

// Dimensions holds one row set per dimension table.
type Dimensions struct {
	Customers []DimCustomer
	Dates     []DimDate
	Products  []DimProduct
	Countries []DimCountry
}

// Counts returns the number of rows per dimension table.
func (d *Dimensions) Counts() map[string]int64 {
	return map[string]int64{
		TableDimCustomer: int64(len(d.Customers)),
		TableDimDate:     int64(len(d.Dates)),
		TableDimProduct:  int64(len(d.Products)),
		TableDimCountry:  int64(len(d.Countries)),
	}
}

// FlagInt renders a boolean as the 0/1 integer stored in flag columns.
func FlagInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
