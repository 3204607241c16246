package schema

// DefaultSchemaName is the warehouse schema used when none is configured.
const DefaultSchemaName = "data_warehouse"

// Warehouse table names.
const (
	TableDimCustomer = "dim_customer"
	TableDimDate     = "dim_date"
	TableDimProduct  = "dim_product"
	TableDimCountry  = "dim_country"
	TableFactSales   = "fact_sales"
)

// StarSchema builds the warehouse catalog under the given schema name.
// Dimension tables come first so they can be created before the fact table.
func StarSchema(name string) *Catalog {
	return &Catalog{
		SchemaName: name,
		Tables: []Table{
			{
				Name: TableDimCustomer,
				Kind: KindDimension,
				Columns: []Column{
					{Name: "customer_id", DataType: TypeString, Role: RoleNaturalKey, MaxLength: intPtr(50)},
					{Name: "customer_segment", DataType: TypeString, Role: RoleAttribute, Nullable: true, MaxLength: intPtr(20)},
					{Name: "country", DataType: TypeString, Role: RoleAttribute, Nullable: true, MaxLength: intPtr(100)},
					createdAt(),
					updatedAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "dim_customer_pkey", Columns: []string{"customer_id"}},
			},
			{
				Name: TableDimDate,
				Kind: KindDimension,
				Columns: []Column{
					{Name: "date_id", DataType: TypeSerial, Role: RoleSurrogateKey},
					{Name: "date", DataType: TypeDate, Role: RoleAttribute},
					{Name: "year", DataType: TypeInteger, Role: RoleAttribute},
					{Name: "month", DataType: TypeInteger, Role: RoleAttribute},
					{Name: "day", DataType: TypeInteger, Role: RoleAttribute},
					{Name: "quarter", DataType: TypeInteger, Role: RoleAttribute},
					{Name: "day_of_week", DataType: TypeInteger, Role: RoleAttribute},
					{Name: "day_name", DataType: TypeString, Role: RoleAttribute, MaxLength: intPtr(20)},
					{Name: "month_name", DataType: TypeString, Role: RoleAttribute, MaxLength: intPtr(20)},
					{Name: "is_weekend", DataType: TypeFlag, Role: RoleAttribute},
					createdAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "dim_date_pkey", Columns: []string{"date_id"}},
				UniqueKeys: [][]string{{"date"}},
			},
			{
				Name: TableDimProduct,
				Kind: KindDimension,
				Columns: []Column{
					{Name: "product_id", DataType: TypeString, Role: RoleNaturalKey, MaxLength: intPtr(50)},
					{Name: "stock_code", DataType: TypeString, Role: RoleAttribute, Nullable: true, MaxLength: intPtr(50)},
					{Name: "description", DataType: TypeText, Role: RoleAttribute, Nullable: true},
					{Name: "product_category", DataType: TypeString, Role: RoleAttribute, Nullable: true, MaxLength: intPtr(50)},
					createdAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "dim_product_pkey", Columns: []string{"product_id"}},
			},
			{
				Name: TableDimCountry,
				Kind: KindDimension,
				Columns: []Column{
					{Name: "country_id", DataType: TypeSerial, Role: RoleSurrogateKey},
					{Name: "country_name", DataType: TypeString, Role: RoleAttribute, MaxLength: intPtr(100)},
					{Name: "region", DataType: TypeString, Role: RoleAttribute, MaxLength: intPtr(50)},
					createdAt(),
					updatedAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "dim_country_pkey", Columns: []string{"country_id"}},
				UniqueKeys: [][]string{{"country_name"}},
			},
			{
				Name: TableFactSales,
				Kind: KindFact,
				Columns: []Column{
					{Name: "fact_id", DataType: TypeSerial, Role: RoleSurrogateKey},
					{Name: "customer_id", DataType: TypeString, Role: RoleForeignKey, MaxLength: intPtr(50)},
					{Name: "date_id", DataType: TypeInteger, Role: RoleForeignKey},
					{Name: "product_id", DataType: TypeString, Role: RoleForeignKey, MaxLength: intPtr(50)},
					{Name: "country_id", DataType: TypeInteger, Role: RoleForeignKey},
					{Name: "quantity", DataType: TypeInteger, Role: RoleMeasure},
					{Name: "unit_price", DataType: TypeDecimal, Role: RoleMeasure, Precision: intPtr(12), Scale: intPtr(4)},
					{Name: "total_amount", DataType: TypeDecimal, Role: RoleMeasure, Precision: intPtr(14), Scale: intPtr(4)},
					{Name: "rolling_7d_sales", DataType: TypeFloat, Role: RoleMeasure, Nullable: true},
					{Name: "invoice_no", DataType: TypeString, Role: RoleAttribute, MaxLength: intPtr(50)},
					{Name: "is_valid", DataType: TypeFlag, Role: RoleAttribute},
					createdAt(),
				},
				PrimaryKey: &PrimaryKey{Name: "fact_sales_pkey", Columns: []string{"fact_id"}},
				ForeignKeys: []ForeignKey{
					{Name: "fk_fact_customer", Columns: []string{"customer_id"}, ReferencedTable: TableDimCustomer, ReferencedColumns: []string{"customer_id"}},
					{Name: "fk_fact_date", Columns: []string{"date_id"}, ReferencedTable: TableDimDate, ReferencedColumns: []string{"date_id"}},
					{Name: "fk_fact_product", Columns: []string{"product_id"}, ReferencedTable: TableDimProduct, ReferencedColumns: []string{"product_id"}},
					{Name: "fk_fact_country", Columns: []string{"country_id"}, ReferencedTable: TableDimCountry, ReferencedColumns: []string{"country_id"}},
				},
			},
		},
	}
}

func intPtr(v int) *int { return &v }

// createdAt is set once when the row is inserted.
func createdAt() Column {
	return Column{Name: ColumnCreatedAt, DataType: TypeTime, Role: RoleAudit}
}

// updatedAt is refreshed whenever an upsert overwrites the row.
func updatedAt() Column {
	return Column{Name: ColumnUpdatedAt, DataType: TypeTime, Role: RoleAudit}
}
