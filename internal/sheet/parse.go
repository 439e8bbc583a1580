// Package sheet reads tabular spreadsheet payloads into header-addressed rows.
package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when a file extension is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned for payloads without a header row.
	ErrEmptyFile = errors.New("no rows found in file")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Row is one data row of a table.
type Row struct {
	// Number is the 1-based line or sheet row the values came from.
	Number int
	Cells  []string
}

// Table is a parsed sheet. Every row is padded to len(Headers).
type Table struct {
	Headers []string
	Rows    []Row
	// SerialDates is set when cell values are raw spreadsheet values, so date
	// columns may hold Excel serial numbers.
	SerialDates bool
}

// Parse detects the format from fileName and reads payload. The first
// non-empty row is the header row; blank rows are skipped.
func Parse(fileName string, payload []byte) (Table, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	table, err := normalizeTable(rows)
	if err != nil {
		return Table{}, err
	}
	table.SerialDates = true
	return table, nil
}

func normalizeTable(records [][]string) (Table, error) {
	headerIndex := -1
	for idx, row := range records {
		if !isBlank(row) {
			headerIndex = idx
			break
		}
	}
	if headerIndex < 0 {
		return Table{}, ErrEmptyFile
	}

	headerRow := records[headerIndex]
	headers := sanitizeHeaders(headerRow)

	var rows []Row
	for idx := headerIndex + 1; idx < len(records); idx++ {
		record := records[idx]
		if isBlank(record) {
			continue
		}
		rows = append(rows, Row{
			Number: idx + 1,
			Cells:  padRow(record, len(headers)),
		})
	}

	return Table{
		Headers: headers,
		Rows:    rows,
	}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
