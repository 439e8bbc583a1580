package domain

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnknownKind is returned when a file name does not map to an entity kind.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind identifies one of the ingested entity types.
type Kind string

const (
	KindCustomers      Kind = "customers"
	KindProducts       Kind = "products"
	KindSales          Kind = "sales"
	KindSupportTickets Kind = "support_tickets"
)

// ProcessingOrder lists kinds in the order a run must handle them. Reference
// kinds come first so dependent kinds validate against a complete set.
var ProcessingOrder = []Kind{
	KindCustomers,
	KindProducts,
	KindSales,
	KindSupportTickets,
}

// DefaultFiles is the file list used when none is configured.
var DefaultFiles = []string{
	"sales.xlsx",
	"products.xlsx",
	"customers.xlsx",
	"support_tickets.xlsx",
}

// ParseKind validates a raw kind name.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := schemas[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return k, nil
}

// KindFromFileName derives the entity kind from an object name such as
// "sales.xlsx" or "exports/customers.csv".
func KindFromFileName(name string) (Kind, error) {
	base := path.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, path.Ext(base))
	return ParseKind(base)
}

// RawTable is the warehouse table that receives valid rows.
func (k Kind) RawTable() string {
	return "raw_" + string(k)
}

// InvalidTable is the warehouse table that receives rejected rows.
func (k Kind) InvalidTable() string {
	return "invalid_" + string(k)
}

// Rank returns the position of the kind in ProcessingOrder.
func (k Kind) Rank() int {
	for i, candidate := range ProcessingOrder {
		if candidate == k {
			return i
		}
	}
	return len(ProcessingOrder)
}

// IsReference reports whether other kinds point at this kind's primary key.
func (k Kind) IsReference() bool {
	return k == KindCustomers || k == KindProducts
}
