package validation

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/sheet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var salesHeaders = []string{"sale_id", "customer_id", "product_id", "sale_date", "quantity", "channel", "payment_method"}

func salesTable(rows ...[]string) sheet.Table {
	table := sheet.Table{Headers: salesHeaders}
	for i, cells := range rows {
		table.Rows = append(table.Rows, sheet.Row{Number: i + 2, Cells: cells})
	}
	return table
}

func referenceSet() *References {
	refs := NewReferences()
	refs.Add(domain.KindCustomers, 10, 11)
	refs.Add(domain.KindProducts, 100)
	return refs
}

func TestValidateBuildsTypedSale(t *testing.T) {
	table := salesTable([]string{"1", "10", "100", "2024-03-05", "2.0", "online", "card"})

	results := slices.Collect(Validate(domain.KindSales, table, referenceSet()))
	require.Len(t, results, 1)
	require.True(t, results[0].Valid(), "reasons: %v", results[0].Reasons)

	sale, ok := results[0].Record.(domain.Sale)
	require.True(t, ok)
	assert.Equal(t, int64(1), sale.SaleID)
	assert.Equal(t, int64(2), sale.Quantity)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), sale.SaleDate)
	assert.Equal(t, "card", sale.PaymentMethod)
}

func TestValidateCollectsEveryReason(t *testing.T) {
	table := salesTable([]string{"2", "99", "abc", "", "1", "store", ""})

	results := slices.Collect(Validate(domain.KindSales, table, referenceSet()))
	require.Len(t, results, 1)

	result := results[0]
	assert.False(t, result.Valid())
	assert.Nil(t, result.Record)
	assert.Equal(t, []string{
		"fk_violation:customer_id",
		"type_error:product_id",
		"missing_field:sale_date",
		"missing_field:payment_method",
	}, result.Reasons)
	assert.Equal(t, "fk_violation:customer_id; type_error:product_id; missing_field:sale_date; missing_field:payment_method", result.Reason())
	assert.Equal(t, "2", result.RecordID())
}

func TestValidateMissingColumnFailsEveryRow(t *testing.T) {
	table := sheet.Table{
		Headers: []string{"customer_id", "name", "country", "industry"},
		Rows: []sheet.Row{
			{Number: 2, Cells: []string{"1", "Acme", "US", "Retail"}},
			{Number: 3, Cells: []string{"2", "Globex", "UK", "Energy"}},
		},
	}

	assert.Equal(t, []string{"registration_date"}, MissingColumns(domain.KindCustomers, table))
	for result := range Validate(domain.KindCustomers, table, nil) {
		assert.Contains(t, result.Reason(), "missing_field:registration_date")
	}
}

func TestValidateEmptyReferenceSetInvalidatesDependents(t *testing.T) {
	table := salesTable(
		[]string{"1", "10", "100", "2024-03-05", "1", "online", "card"},
		[]string{"2", "11", "100", "2024-03-06", "1", "online", "card"},
	)
	refs := NewReferences()
	refs.Add(domain.KindProducts, 100)

	for result := range Validate(domain.KindSales, table, refs) {
		assert.Equal(t, []string{"fk_violation:customer_id"}, result.Reasons)
	}
}

func TestValidateFlagsDuplicateKeys(t *testing.T) {
	table := salesTable(
		[]string{"1", "10", "100", "2024-03-05", "1", "online", "card"},
		[]string{"1", "11", "100", "2024-03-06", "1", "online", "card"},
	)

	results := slices.Collect(Validate(domain.KindSales, table, referenceSet()))
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid())
	require.Len(t, results[1].Reasons, 1)
	assert.True(t, strings.HasPrefix(results[1].Reasons[0], "duplicate_key:sale_id"))
}

func TestValidateResolvesHeaderAliases(t *testing.T) {
	table := sheet.Table{
		Headers: []string{"ticket_id", "customer", "product", "status", "priority", "opened_at", "handled_by"},
		Rows: []sheet.Row{
			{Number: 2, Cells: []string{"7", "10", "100", "open", "high", "2024-03-05 10:30:00", "ana"}},
		},
	}

	results := slices.Collect(Validate(domain.KindSupportTickets, table, referenceSet()))
	require.Len(t, results, 1)
	require.True(t, results[0].Valid(), "reasons: %v", results[0].Reasons)
	ticket := results[0].Record.(domain.SupportTicket)
	assert.Equal(t, int64(10), ticket.CustomerID)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), ticket.OpenedAt)
}

func TestValidateAcceptsExcelSerialDates(t *testing.T) {
	table := sheet.Table{
		Headers:     []string{"customer_id", "name", "country", "industry", "registration_date"},
		Rows:        []sheet.Row{{Number: 2, Cells: []string{"1", "Acme", "US", "Retail", "45306"}}},
		SerialDates: true,
	}

	results := slices.Collect(Validate(domain.KindCustomers, table, nil))
	require.True(t, results[0].Valid(), "reasons: %v", results[0].Reasons)
	customer := results[0].Record.(domain.Customer)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), customer.RegistrationDate)
}

func TestValidateStopsWhenConsumerStops(t *testing.T) {
	table := salesTable(
		[]string{"1", "10", "100", "2024-03-05", "1", "online", "card"},
		[]string{"2", "10", "100", "2024-03-05", "1", "online", "card"},
	)

	count := 0
	for range Validate(domain.KindSales, table, referenceSet()) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

// Scenario: 100 sales rows, 5 pointing at unknown customers and 3 without a
// sale date.
func TestValidateSalesScenarioCounts(t *testing.T) {
	var rows [][]string
	for i := 1; i <= 100; i++ {
		customer := "10"
		date := "2024-01-02"
		switch {
		case i <= 5:
			customer = "404"
		case i <= 8:
			date = ""
		}
		rows = append(rows, []string{fmt.Sprint(i), customer, "100", date, "3", "online", "card"})
	}

	valid, invalid := 0, 0
	for result := range Validate(domain.KindSales, salesTable(rows...), referenceSet()) {
		if result.Valid() {
			valid++
			continue
		}
		invalid++
		if result.RowNumber <= 6 {
			assert.Contains(t, result.Reason(), "fk_violation")
		} else {
			assert.Contains(t, result.Reason(), "missing_field:sale_date")
		}
	}
	assert.Equal(t, 92, valid)
	assert.Equal(t, 8, invalid)
}

func TestReferencesDigestIgnoresOrder(t *testing.T) {
	a := NewReferences()
	a.Add(domain.KindCustomers, 3, 1, 2)
	b := NewReferences()
	b.Add(domain.KindCustomers, 1, 2, 3)

	assert.Equal(t, a.Digest(domain.KindCustomers), b.Digest(domain.KindCustomers))

	b.Add(domain.KindCustomers, 4)
	assert.NotEqual(t, a.Digest(domain.KindCustomers), b.Digest(domain.KindCustomers))
}

func TestReferencedKinds(t *testing.T) {
	assert.Equal(t, []domain.Kind{domain.KindCustomers, domain.KindProducts}, ReferencedKinds(domain.KindSales))
	assert.Empty(t, ReferencedKinds(domain.KindCustomers))
}
