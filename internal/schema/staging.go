package schema

// Staging table names.
const (
	TableRawData       = "raw_data"
	TableProcessedData = "processed_data"
)

// StagingSchema builds the catalog of the optional staging tables: the source
// rows as read and the rows after processing. Both live next to the star
// schema under the same schema name and carry no keys into it.
func StagingSchema(name string) *Catalog {
	return &Catalog{
		SchemaName: name,
		Tables: []Table{
			{
				Name: TableRawData,
				Kind: KindStaging,
				Columns: []Column{
					{Name: "row_id", DataType: TypeSerial, Role: RoleSurrogateKey},
					{Name: "source_line", DataType: TypeInteger, Role: RoleAttribute},
					textCol("invoice_no"),
					textCol("stock_code"),
					textCol("description"),
					textCol("quantity"),
					textCol("invoice_date"),
					textCol("unit_price"),
					textCol("customer_id"),
					textCol("country"),
					createdAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "raw_data_pkey", Columns: []string{"row_id"}},
			},
			{
				Name: TableProcessedData,
				Kind: KindStaging,
				Columns: []Column{
					{Name: "row_id", DataType: TypeSerial, Role: RoleSurrogateKey},
					textCol("invoice_no"),
					textCol("stock_code"),
					textCol("description"),
					{Name: "quantity", DataType: TypeInteger, Role: RoleMeasure},
					{Name: "invoice_date", DataType: TypeTime, Role: RoleAttribute, Nullable: true},
					{Name: "unit_price", DataType: TypeDecimal, Role: RoleMeasure, Precision: intPtr(12), Scale: intPtr(4)},
					textCol("customer_id"),
					textCol("country"),
					{Name: "total_amount", DataType: TypeDecimal, Role: RoleMeasure, Precision: intPtr(14), Scale: intPtr(4)},
					textCol("customer_segment"),
					textCol("product_category"),
					{Name: "rolling_7d_sales", DataType: TypeFloat, Role: RoleMeasure, Nullable: true},
					{Name: "is_valid", DataType: TypeFlag, Role: RoleAttribute},
					{Name: "invoice_year", DataType: TypeInteger, Role: RoleAttribute, Nullable: true},
					{Name: "invoice_month", DataType: TypeInteger, Role: RoleAttribute, Nullable: true},
					{Name: "invoice_day", DataType: TypeInteger, Role: RoleAttribute, Nullable: true},
					{Name: "invoice_day_of_week", DataType: TypeInteger, Role: RoleAttribute, Nullable: true},
					{Name: "invoice_quarter", DataType: TypeInteger, Role: RoleAttribute, Nullable: true},
					createdAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "processed_data_pkey", Columns: []string{"row_id"}},
			},
		},
	}
}

// WritableColumns returns the columns a writer supplies: everything except
// store-generated keys and audit timestamps.
func (t *Table) WritableColumns() []string {
	var names []string
	for _, col := range t.Columns {
		if col.DataType == TypeSerial || col.Role == RoleAudit {
			continue
		}
		names = append(names, col.Name)
	}
	return names
}

func textCol(name string) Column {
	return Column{Name: name, DataType: TypeText, Role: RoleAttribute, Nullable: true}
}
