package domain

// FieldType represents the warehouse type of an entity column.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeTimestamp FieldType = "timestamp"
)

// FieldDefinition describes one column of an entity kind.
type FieldDefinition struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	// ReferenceEntityType names the entity kind whose primary keys must contain
	// this column's value. Empty for plain columns.
	ReferenceEntityType Kind `json:"referenceEntityType,omitempty"`
}

var schemas = map[Kind][]FieldDefinition{
	KindSales: {
		{Name: "sale_id", Type: FieldTypeInteger, Required: true},
		{Name: "customer_id", Type: FieldTypeInteger, Required: true, ReferenceEntityType: KindCustomers},
		{Name: "product_id", Type: FieldTypeInteger, Required: true, ReferenceEntityType: KindProducts},
		{Name: "sale_date", Type: FieldTypeDate, Required: true},
		{Name: "quantity", Type: FieldTypeInteger, Required: true},
		{Name: "channel", Type: FieldTypeString, Required: true},
		{Name: "payment_method", Type: FieldTypeString, Required: true},
	},
	KindProducts: {
		{Name: "product_id", Type: FieldTypeInteger, Required: true},
		{Name: "description", Type: FieldTypeString, Required: true},
		{Name: "category", Type: FieldTypeString, Required: true},
		{Name: "price_usd", Type: FieldTypeFloat, Required: true},
		{Name: "active", Type: FieldTypeBoolean, Required: true},
	},
	KindCustomers: {
		{Name: "customer_id", Type: FieldTypeInteger, Required: true},
		{Name: "name", Type: FieldTypeString, Required: true},
		{Name: "country", Type: FieldTypeString, Required: true},
		{Name: "industry", Type: FieldTypeString, Required: true},
		{Name: "registration_date", Type: FieldTypeDate, Required: true},
	},
	KindSupportTickets: {
		{Name: "ticket_id", Type: FieldTypeInteger, Required: true},
		{Name: "customer_id", Type: FieldTypeInteger, Required: true, ReferenceEntityType: KindCustomers},
		{Name: "product_id", Type: FieldTypeInteger, Required: true, ReferenceEntityType: KindProducts},
		{Name: "status", Type: FieldTypeString, Required: true},
		{Name: "priority", Type: FieldTypeString, Required: true},
		{Name: "opened_at", Type: FieldTypeTimestamp, Required: true},
		{Name: "handled_by", Type: FieldTypeString, Required: true},
	},
}

var primaryKeys = map[Kind]string{
	KindSales:          "sale_id",
	KindProducts:       "product_id",
	KindCustomers:      "customer_id",
	KindSupportTickets: "ticket_id",
}

// headerAliases maps source column names onto schema field names.
var headerAliases = map[Kind]map[string]string{
	KindSales: {
		"customer": "customer_id",
		"product":  "product_id",
	},
	KindSupportTickets: {
		"customer": "customer_id",
		"product":  "product_id",
	},
}

// Fields returns the ordered column definitions for the kind. The returned
// slice is a copy.
func (k Kind) Fields() []FieldDefinition {
	fields := schemas[k]
	out := make([]FieldDefinition, len(fields))
	copy(out, fields)
	return out
}

// PrimaryKey returns the name of the kind's identifying column.
func (k Kind) PrimaryKey() string {
	return primaryKeys[k]
}

// CanonicalHeader resolves a sanitized source header to the schema field name.
func (k Kind) CanonicalHeader(header string) string {
	if alias, ok := headerAliases[k][header]; ok {
		return alias
	}
	return header
}
