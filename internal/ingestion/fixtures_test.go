package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/sheetingest/internal/config"
	"github.com/rpattn/sheetingest/internal/retry"
	"github.com/rpattn/sheetingest/internal/storage"
	"github.com/rpattn/sheetingest/internal/warehouse"
)

var (
	_ storage.Fetcher     = (*stubFetcher)(nil)
	_ SettingsResolver    = (*stubResolver)(nil)
	_ warehouse.Warehouse = (*warehouse.Memory)(nil)
)

type stubResolver struct {
	settings config.Settings
	err      error
}

func (s *stubResolver) Settings(ctx context.Context) (config.Settings, error) {
	return s.settings, s.err
}

// stubFetcher serves payloads by object name. failures are consumed one per
// call before the payload is returned.
type stubFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	failures map[string][]error
	calls    map[string]int
}

func newStubFetcher(payloads map[string][]byte) *stubFetcher {
	return &stubFetcher{payloads: payloads, failures: map[string][]error{}, calls: map[string]int{}}
}

func (s *stubFetcher) Fetch(ctx context.Context, bucket, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	if queue := s.failures[name]; len(queue) > 0 {
		s.failures[name] = queue[1:]
		return nil, queue[0]
	}
	payload, ok := s.payloads[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrFileNotFound, bucket, name)
	}
	return payload, nil
}

func (s *stubFetcher) Close() error { return nil }

func fastPolicy() retry.Policy {
	return retry.Policy{
		Attempts:   3,
		Initial:    time.Millisecond,
		Max:        time.Millisecond,
		Multiplier: 1,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

type harness struct {
	resolver       *stubResolver
	fetcher        *stubFetcher
	warehouse      *warehouse.Memory
	warehouseOpens int
	service        *Service
}

func newHarness(t *testing.T, files map[string][]byte, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		resolver: &stubResolver{settings: config.Settings{
			ProjectID: "bixlabs",
			Dataset:   "challenge",
			Bucket:    "bucket",
			Files:     []string{"sales.xlsx", "products.xlsx", "customers.xlsx", "support_tickets.xlsx"},
		}},
		fetcher:   newStubFetcher(files),
		warehouse: warehouse.NewMemory(),
	}
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	base := []Option{
		WithFetchPolicy(fastPolicy()),
		WithLoadPolicy(fastPolicy()),
		WithClock(func() time.Time { return clock }),
	}
	h.service = NewService(
		h.resolver,
		func(ctx context.Context, settings config.Settings) (storage.Fetcher, error) {
			return h.fetcher, nil
		},
		func(ctx context.Context, settings config.Settings) (warehouse.Warehouse, error) {
			h.warehouseOpens++
			return h.warehouse, nil
		},
		append(base, opts...)...,
	)
	return h
}

func xlsxPayload(t *testing.T, header []string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheetName := f.GetSheetName(0)

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &headerRow))
	for idx, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, idx+2)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow(sheetName, cell, &values))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func customersFile(t *testing.T, n int) []byte {
	rows := make([][]any, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, []any{i, fmt.Sprintf("Customer %d", i), "AR", "Retail", "2024-01-15"})
	}
	return xlsxPayload(t, []string{"customer_id", "name", "country", "industry", "registration_date"}, rows)
}

func productsFile(t *testing.T, n int) []byte {
	rows := make([][]any, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, []any{i, fmt.Sprintf("Product %d", i), "Hardware", 9.5 + float64(i), "true"})
	}
	return xlsxPayload(t, []string{"product_id", "description", "category", "price_usd", "active"}, rows)
}

// salesFile has 100 rows. Rows with sale_id 10, 20, 30 lack a quantity; 40,
// 50, 60 point at customer 999; 70 and 80 carry an unparseable date.
func salesFile(t *testing.T) []byte {
	rows := make([][]any, 0, 100)
	for i := 1; i <= 100; i++ {
		var customer any = i%10 + 1
		var quantity any = 2
		var date any = "2024-02-01"
		switch i {
		case 10, 20, 30:
			quantity = ""
		case 40, 50, 60:
			customer = 999
		case 70, 80:
			date = "not-a-date"
		}
		rows = append(rows, []any{i, customer, i%5 + 1, date, quantity, "online", "card"})
	}
	return xlsxPayload(t, []string{"sale_id", "customer", "product", "sale_date", "quantity", "channel", "payment_method"}, rows)
}

func ticketsFile(t *testing.T) []byte {
	rows := [][]any{
		{1, 1, 1, "open", "high", "2024-03-01T10:00:00Z", "ana"},
		{2, 2, 3, "closed", "low", "2024-03-02 08:30:00", "luis"},
		{3, 3, 5, "open", "medium", "2024-03-03T09:15:00Z", "ana"},
	}
	return xlsxPayload(t, []string{"ticket_id", "customer_id", "product_id", "status", "priority", "opened_at", "handled_by"}, rows)
}

func allFiles(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"customers.xlsx":       customersFile(t, 10),
		"products.xlsx":        productsFile(t, 5),
		"sales.xlsx":           salesFile(t),
		"support_tickets.xlsx": ticketsFile(t),
	}
}

func fixedIDs(ids ...string) func() uuid.UUID {
	i := 0
	return func() uuid.UUID {
		id := uuid.MustParse(ids[i%len(ids)])
		i++
		return id
	}
}
