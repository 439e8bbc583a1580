package domain

import (
	"fmt"
	"time"
)

// Record is one validated row of an input file, typed per entity kind.
type Record interface {
	Kind() Kind
	// ID returns the record's primary key value.
	ID() int64
	// Values returns column values in the order of Kind().Fields().
	Values() []any
}

// Sale is a row of the sales file.
type Sale struct {
	SaleID        int64     `json:"sale_id"`
	CustomerID    int64     `json:"customer_id"`
	ProductID     int64     `json:"product_id"`
	SaleDate      time.Time `json:"sale_date"`
	Quantity      int64     `json:"quantity"`
	Channel       string    `json:"channel"`
	PaymentMethod string    `json:"payment_method"`
}

func (Sale) Kind() Kind      { return KindSales }
func (s Sale) ID() int64     { return s.SaleID }
func (s Sale) Values() []any {
	return []any{s.SaleID, s.CustomerID, s.ProductID, s.SaleDate, s.Quantity, s.Channel, s.PaymentMethod}
}

// Product is a row of the products file.
type Product struct {
	ProductID   int64   `json:"product_id"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	PriceUSD    float64 `json:"price_usd"`
	Active      bool    `json:"active"`
}

func (Product) Kind() Kind      { return KindProducts }
func (p Product) ID() int64     { return p.ProductID }
func (p Product) Values() []any { return []any{p.ProductID, p.Description, p.Category, p.PriceUSD, p.Active} }

// Customer is a row of the customers file.
type Customer struct {
	CustomerID       int64     `json:"customer_id"`
	Name             string    `json:"name"`
	Country          string    `json:"country"`
	Industry         string    `json:"industry"`
	RegistrationDate time.Time `json:"registration_date"`
}

func (Customer) Kind() Kind      { return KindCustomers }
func (c Customer) ID() int64     { return c.CustomerID }
func (c Customer) Values() []any { return []any{c.CustomerID, c.Name, c.Country, c.Industry, c.RegistrationDate} }

// SupportTicket is a row of the support tickets file.
type SupportTicket struct {
	TicketID   int64     `json:"ticket_id"`
	CustomerID int64     `json:"customer_id"`
	ProductID  int64     `json:"product_id"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	OpenedAt   time.Time `json:"opened_at"`
	HandledBy  string    `json:"handled_by"`
}

func (SupportTicket) Kind() Kind  { return KindSupportTickets }
func (t SupportTicket) ID() int64 { return t.TicketID }
func (t SupportTicket) Values() []any {
	return []any{t.TicketID, t.CustomerID, t.ProductID, t.Status, t.Priority, t.OpenedAt, t.HandledBy}
}

// NewRecord builds the typed record for kind from coerced column values. The
// values must already match the kind's field types.
func NewRecord(kind Kind, values map[string]any) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("build %s record: %v", kind, r)
		}
	}()

	switch kind {
	case KindSales:
		return Sale{
			SaleID:        values["sale_id"].(int64),
			CustomerID:    values["customer_id"].(int64),
			ProductID:     values["product_id"].(int64),
			SaleDate:      values["sale_date"].(time.Time),
			Quantity:      values["quantity"].(int64),
			Channel:       values["channel"].(string),
			PaymentMethod: values["payment_method"].(string),
		}, nil
	case KindProducts:
		return Product{
			ProductID:   values["product_id"].(int64),
			Description: values["description"].(string),
			Category:    values["category"].(string),
			PriceUSD:    values["price_usd"].(float64),
			Active:      values["active"].(bool),
		}, nil
	case KindCustomers:
		return Customer{
			CustomerID:       values["customer_id"].(int64),
			Name:             values["name"].(string),
			Country:          values["country"].(string),
			Industry:         values["industry"].(string),
			RegistrationDate: values["registration_date"].(time.Time),
		}, nil
	case KindSupportTickets:
		return SupportTicket{
			TicketID:   values["ticket_id"].(int64),
			CustomerID: values["customer_id"].(int64),
			ProductID:  values["product_id"].(int64),
			Status:     values["status"].(string),
			Priority:   values["priority"].(string),
			OpenedAt:   values["opened_at"].(time.Time),
			HandledBy:  values["handled_by"].(string),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
