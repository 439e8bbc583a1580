package validation

import (
	"math"
	"testing"
	"time"

	"github.com/rpattn/sheetingest/internal/domain"
)

func TestCoerceValue(t *testing.T) {
	cases := []struct {
		name    string
		typ     domain.FieldType
		raw     string
		serial  bool
		want    any
		wantErr bool
	}{
		{name: "integer", typ: domain.FieldTypeInteger, raw: "42", want: int64(42)},
		{name: "integral float", typ: domain.FieldTypeInteger, raw: "42.0", want: int64(42)},
		{name: "fractional integer", typ: domain.FieldTypeInteger, raw: "4.2", wantErr: true},
		{name: "integer just past max", typ: domain.FieldTypeInteger, raw: "9223372036854775808", wantErr: true},
		{name: "integer exponent overflow", typ: domain.FieldTypeInteger, raw: "1e19", wantErr: true},
		{name: "negative exponent overflow", typ: domain.FieldTypeInteger, raw: "-1e30", wantErr: true},
		{name: "integer at min as float", typ: domain.FieldTypeInteger, raw: "-9.223372036854775808e18", want: int64(math.MinInt64)},
		{name: "integer exponent", typ: domain.FieldTypeInteger, raw: "1e3", want: int64(1000)},
		{name: "float", typ: domain.FieldTypeFloat, raw: "19.99", want: 19.99},
		{name: "nan float", typ: domain.FieldTypeFloat, raw: "NaN", wantErr: true},
		{name: "bool word", typ: domain.FieldTypeBoolean, raw: "TRUE", want: true},
		{name: "bool digit", typ: domain.FieldTypeBoolean, raw: "0", want: false},
		{name: "bool garbage", typ: domain.FieldTypeBoolean, raw: "maybe", wantErr: true},
		{name: "iso date", typ: domain.FieldTypeDate, raw: "2024-02-29", want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{name: "us date", typ: domain.FieldTypeDate, raw: "02/29/2024", want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{name: "datetime as date", typ: domain.FieldTypeDate, raw: "2024-02-29 13:45:00", want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{name: "serial without spreadsheet", typ: domain.FieldTypeDate, raw: "45306", wantErr: true},
		{name: "serial from spreadsheet", typ: domain.FieldTypeDate, raw: "45306", serial: true, want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339 timestamp", typ: domain.FieldTypeTimestamp, raw: "2024-02-29T13:45:00Z", want: time.Date(2024, 2, 29, 13, 45, 0, 0, time.UTC)},
		{name: "bad timestamp", typ: domain.FieldTypeTimestamp, raw: "yesterday", wantErr: true},
		{name: "string", typ: domain.FieldTypeString, raw: "online", want: "online"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerceValue(tc.typ, tc.raw, tc.serial)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ts, ok := tc.want.(time.Time); ok {
				if !ts.Equal(got.(time.Time)) {
					t.Fatalf("expected %v, got %v", ts, got)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("expected %v (%T), got %v (%T)", tc.want, tc.want, got, got)
			}
		})
	}
}
