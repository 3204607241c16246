package mongo

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

func (s *Store) Consistency(ctx context.Context) (*warehouse.Consistency, error) {
	facts := s.db.Collection(schema.TableFactSales)
	c := &warehouse.Consistency{}
	var err error
	if c.Facts, err = facts.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, fmt.Errorf("counting facts: %w", err)
	}
	for field, n := range map[string]*int64{
		"total_amount": &c.NegativeAmounts,
		"unit_price":   &c.NegativePrices,
		"quantity":     &c.NegativeQuantities,
	} {
		if *n, err = facts.CountDocuments(ctx, bson.D{{Key: field, Value: bson.D{{Key: "$lt", Value: 0}}}}); err != nil {
			return nil, fmt.Errorf("counting negative %s: %w", field, err)
		}
	}
	return c, nil
}

// salesGroup is the shape every insights pipeline ends in.
type salesGroup struct {
	Name         string          `bson:"name"`
	Description  string          `bson:"description"`
	Year         int             `bson:"year"`
	Month        int             `bson:"month"`
	Customers    int64           `bson:"customers"`
	Transactions int64           `bson:"transactions"`
	Total        bson.Decimal128 `bson:"total"`
	Avg          bson.Decimal128 `bson:"avg"`
}

// decimals returns the group's total and average rounded to the money scale.
func (g salesGroup) decimals() (decimal.Decimal, decimal.Decimal, error) {
	total, err := fromDecimal128(g.Total)
	if err != nil {
		return total, total, fmt.Errorf("decoding total: %w", err)
	}
	avg, err := fromDecimal128(g.Avg)
	if err != nil {
		return total, avg, fmt.Errorf("decoding average: %w", err)
	}
	return warehouse.RoundAmount(total), warehouse.RoundAmount(avg), nil
}

// Insights groups valid facts by dimension key before the $lookup where the
// breakdown allows it, so the join touches one document per group.
func (s *Store) Insights(ctx context.Context, limit int) (*warehouse.Insights, error) {
	out := &warehouse.Insights{}

	countries, err := s.aggregateFacts(ctx, mongo.Pipeline{
		groupBy("$country_id", "$unit_price"),
		lookupDim(schema.TableDimCountry),
		unwindDim,
		{{Key: "$set", Value: bson.D{{Key: "name", Value: "$dim.country_name"}}}},
		sortByTotal("name"),
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}
	for _, g := range countries {
		r := warehouse.CountrySales{Country: g.Name, Transactions: g.Transactions}
		if r.TotalSales, r.AvgUnitPrice, err = g.decimals(); err != nil {
			return nil, err
		}
		out.TopCountries = append(out.TopCountries, r)
	}

	segments, err := s.aggregateFacts(ctx, mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: schema.TableDimCustomer},
			{Key: "localField", Value: "customer_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "dim"},
		}}},
		unwindDim,
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$dim.customer_segment"},
			{Key: "customer_ids", Value: bson.D{{Key: "$addToSet", Value: "$customer_id"}}},
			{Key: "transactions", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$total_amount"}}},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$total_amount"}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "name", Value: "$_id"},
			{Key: "customers", Value: bson.D{{Key: "$size", Value: "$customer_ids"}}},
		}}},
		sortByTotal("name"),
	})
	if err != nil {
		return nil, fmt.Errorf("customer segments: %w", err)
	}
	for _, g := range segments {
		r := warehouse.SegmentSales{Segment: g.Name, Customers: g.Customers, Transactions: g.Transactions}
		if r.TotalSales, r.AvgTransactionValue, err = g.decimals(); err != nil {
			return nil, err
		}
		out.Segments = append(out.Segments, r)
	}

	// Prices are summed per date and averaged per month after the join.
	monthly, err := s.aggregateFacts(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$date_id"},
			{Key: "transactions", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$total_amount"}}},
			{Key: "price_sum", Value: bson.D{{Key: "$sum", Value: "$unit_price"}}},
		}}},
		lookupDim(schema.TableDimDate),
		unwindDim,
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "year", Value: "$dim.year"}, {Key: "month", Value: "$dim.month"}}},
			{Key: "name", Value: bson.D{{Key: "$first", Value: "$dim.month_name"}}},
			{Key: "transactions", Value: bson.D{{Key: "$sum", Value: "$transactions"}}},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$total"}}},
			{Key: "price_sum", Value: bson.D{{Key: "$sum", Value: "$price_sum"}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "year", Value: "$_id.year"},
			{Key: "month", Value: "$_id.month"},
			{Key: "avg", Value: bson.D{{Key: "$divide", Value: bson.A{"$price_sum", "$transactions"}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "year", Value: 1}, {Key: "month", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("monthly trends: %w", err)
	}
	for _, g := range monthly {
		r := warehouse.MonthlySales{Year: g.Year, Month: g.Month, MonthName: g.Name, Transactions: g.Transactions}
		if r.TotalSales, r.AvgUnitPrice, err = g.decimals(); err != nil {
			return nil, err
		}
		out.Monthly = append(out.Monthly, r)
	}

	products, err := s.aggregateFacts(ctx, mongo.Pipeline{
		groupBy("$product_id", "$unit_price"),
		lookupDim(schema.TableDimProduct),
		unwindDim,
		{{Key: "$set", Value: bson.D{
			{Key: "name", Value: "$dim.stock_code"},
			{Key: "description", Value: "$dim.description"},
		}}},
		sortByTotal("name"),
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	for _, g := range products {
		r := warehouse.ProductSales{StockCode: g.Name, Description: g.Description, Transactions: g.Transactions}
		if r.TotalSales, r.AvgUnitPrice, err = g.decimals(); err != nil {
			return nil, err
		}
		out.TopProducts = append(out.TopProducts, r)
	}
	return out, nil
}

// aggregateFacts runs stages over the valid facts.
func (s *Store) aggregateFacts(ctx context.Context, stages mongo.Pipeline) ([]salesGroup, error) {
	pipeline := append(mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "is_valid", Value: 1}}}}}, stages...)
	cur, err := s.db.Collection(schema.TableFactSales).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var out []salesGroup
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// groupBy counts facts per key with their sales total and the average of avgField.
func groupBy(key, avgField string) bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: key},
		{Key: "transactions", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: "$total_amount"}}},
		{Key: "avg", Value: bson.D{{Key: "$avg", Value: avgField}}},
	}}}
}

// lookupDim joins the dimension document whose _id is the group key.
func lookupDim(collection string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: collection},
		{Key: "localField", Value: "_id"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "dim"},
	}}}
}

// unwindDim drops groups with no dimension document, as an inner join would.
var unwindDim = bson.D{{Key: "$unwind", Value: "$dim"}}

func sortByTotal(tiebreak string) bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}, {Key: tiebreak, Value: 1}}}}
}
