package mongo

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/starload/starload/internal/schema"
)

type customerDoc struct {
	ID      string `bson:"_id"`
	Segment string `bson:"customer_segment"`
	Country string `bson:"country"`
}

func (d customerDoc) toRow() schema.DimCustomer {
	return schema.DimCustomer{CustomerID: d.ID, CustomerSegment: schema.Segment(d.Segment), Country: d.Country}
}

type dateDoc struct {
	ID        int64  `bson:"_id"`
	Date      string `bson:"date"`
	Year      int    `bson:"year"`
	Month     int    `bson:"month"`
	Day       int    `bson:"day"`
	Quarter   int    `bson:"quarter"`
	DayOfWeek int    `bson:"day_of_week"`
	DayName   string `bson:"day_name"`
	MonthName string `bson:"month_name"`
	IsWeekend int    `bson:"is_weekend"`
}

func newDateDoc(id int64, r schema.DimDate) dateDoc {
	return dateDoc{
		ID:        id,
		Date:      r.Date.String(),
		Year:      r.Year,
		Month:     r.Month,
		Day:       r.Day,
		Quarter:   r.Quarter,
		DayOfWeek: r.DayOfWeek,
		DayName:   r.DayName,
		MonthName: r.MonthName,
		IsWeekend: schema.FlagInt(r.IsWeekend),
	}
}

func (d dateDoc) toRow() (schema.DimDate, error) {
	date, err := parseDocDate(d.Date)
	if err != nil {
		return schema.DimDate{}, err
	}
	return schema.DimDate{
		DateID:    d.ID,
		Date:      date,
		Year:      d.Year,
		Month:     d.Month,
		Day:       d.Day,
		Quarter:   d.Quarter,
		DayOfWeek: d.DayOfWeek,
		DayName:   d.DayName,
		MonthName: d.MonthName,
		IsWeekend: d.IsWeekend != 0,
	}, nil
}

type productDoc struct {
	ID          string `bson:"_id"`
	StockCode   string `bson:"stock_code"`
	Description string `bson:"description"`
	Category    string `bson:"product_category"`
}

func (d productDoc) toRow() schema.DimProduct {
	return schema.DimProduct{ProductID: d.ID, Description: d.Description, ProductCategory: d.Category}
}

type countryDoc struct {
	ID     int64  `bson:"_id"`
	Name   string `bson:"country_name"`
	Region string `bson:"region"`
}

func (d countryDoc) toRow() schema.DimCountry {
	return schema.DimCountry{CountryID: d.ID, CountryName: d.Name, Region: d.Region}
}

type factDoc struct {
	ID             int64           `bson:"_id"`
	CustomerID     string          `bson:"customer_id"`
	DateID         int64           `bson:"date_id"`
	ProductID      string          `bson:"product_id"`
	CountryID      int64           `bson:"country_id"`
	Quantity       int64           `bson:"quantity"`
	UnitPrice      bson.Decimal128 `bson:"unit_price"`
	TotalAmount    bson.Decimal128 `bson:"total_amount"`
	Rolling7dSales float64         `bson:"rolling_7d_sales"`
	InvoiceNo      string          `bson:"invoice_no"`
	IsValid        int             `bson:"is_valid"`
}

func newFactDoc(id int64, f schema.FactSales) (factDoc, error) {
	price, err := decimal128(f.UnitPrice)
	if err != nil {
		return factDoc{}, err
	}
	total, err := decimal128(f.TotalAmount)
	if err != nil {
		return factDoc{}, err
	}
	return factDoc{
		ID:             id,
		CustomerID:     f.CustomerID,
		DateID:         f.DateID,
		ProductID:      f.ProductID,
		CountryID:      f.CountryID,
		Quantity:       f.Quantity,
		UnitPrice:      price,
		TotalAmount:    total,
		Rolling7dSales: f.Rolling7dSales,
		InvoiceNo:      f.InvoiceNo,
		IsValid:        schema.FlagInt(f.IsValid),
	}, nil
}

func decimal128(d decimal.Decimal) (bson.Decimal128, error) {
	return bson.ParseDecimal128(d.String())
}

func fromDecimal128(d bson.Decimal128) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(d.String())
	if err != nil {
		return v, fmt.Errorf("converting %s: %w", d.String(), err)
	}
	return v, nil
}

// setFields encodes doc for a $set update, leaving out _id.
func setFields(doc any) (bson.D, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var fields bson.D
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	out := fields[:0]
	for _, f := range fields {
		if f.Key != "_id" {
			out = append(out, f)
		}
	}
	return out, nil
}
