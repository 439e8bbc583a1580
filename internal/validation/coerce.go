package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/sheetingest/internal/domain"

	"github.com/xuri/excelize/v2"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000000000",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"01-02-06",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
}

// coerceValue converts a trimmed, non-empty cell into the Go value of
// fieldType. serialDates allows spreadsheet serial numbers for date columns.
func coerceValue(fieldType domain.FieldType, raw string, serialDates bool) (any, error) {
	switch fieldType {
	case domain.FieldTypeString:
		return raw, nil
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 && inInt64Range(f) {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unable to coerce %q to float", raw)
		}
		return f, nil
	case domain.FieldTypeBoolean:
		value := strings.ToLower(raw)
		switch value {
		case "1", "yes", "y":
			return true, nil
		case "0", "no", "n":
			return false, nil
		}
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return boolVal, nil
	case domain.FieldTypeDate:
		ts, err := parseTimestamp(raw, serialDates)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case domain.FieldTypeTimestamp:
		ts, err := parseTimestamp(raw, serialDates)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts.UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported field type %q", fieldType)
	}
}

func parseTimestamp(raw string, serialDates bool) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	if serialDates {
		if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
			ts, err := excelize.ExcelDateToTime(serial, false)
			if err == nil {
				return ts, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// inInt64Range reports whether f converts to int64 without overflow. 2^63 is
// exactly representable as a float64, so the upper bound is exclusive.
func inInt64Range(f float64) bool {
	return f >= math.MinInt64 && f < math.MaxInt64
}
