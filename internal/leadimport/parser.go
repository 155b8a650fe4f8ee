package leadimport

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/driverdesk/internal/phone"
)

// xlsxMagic is the ZIP local-file signature; XLSX files are ZIP containers.
var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// ParseBuffer turns an uploaded spreadsheet buffer into canonical records.
// XLSX workbooks (detected by filename extension or ZIP magic) are read from
// their first sheet; everything else is treated as CSV. The first row is the
// header row.
func ParseBuffer(data []byte, filename string) ([]CanonicalRecord, error) {
	rows, err := readRows(data, filename)
	if err != nil {
		return nil, err
	}
	return ParseRows(rows)
}

func readRows(data []byte, filename string) ([][]string, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") || bytes.HasPrefix(data, xlsxMagic) {
		return readXLSX(data)
	}
	return readCSV(data)
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(stripBOM(bytes.NewReader(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// stripBOM wraps a reader to strip a UTF-8 BOM if present.
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, err := r.Read(buf)
	if err != nil || n < 3 {
		return io.MultiReader(strings.NewReader(string(buf[:n])), r)
	}
	if buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return r
	}
	return io.MultiReader(strings.NewReader(string(buf[:n])), r)
}

// ParseRows converts raw sheet rows (header first) into canonical records.
// Rows carrying neither an email nor a phone value are dropped; rows with a
// phone but no email get a generated placeholder address so every record has
// a non-empty email identity.
func ParseRows(rows [][]string) ([]CanonicalRecord, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	if len(rows) < 2 {
		return nil, ErrNoDataRows
	}

	cols := mapColumns(rows[0])
	batchStamp := time.Now().UnixMilli()

	records := make([]CanonicalRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, ok := parseRow(row, cols, batchStamp, i)
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseRow(row []string, cols columnMap, batchStamp int64, rowIdx int) (CanonicalRecord, bool) {
	first := cell(row, cols.firstName)
	last := cell(row, cols.lastName)

	// Fall back to splitting a full-name column when either part is missing.
	if first == "" || last == "" {
		if full := cell(row, cols.fullName); full != "" {
			splitFirst, splitLast := splitFullName(full)
			if first == "" {
				first = splitFirst
			}
			if last == "" {
				last = splitLast
			}
		}
	}
	if first == "" {
		first = "Unknown"
	}
	if last == "" {
		last = "Driver"
	}

	rawEmail := cell(row, cols.email)
	rawPhone := cell(row, cols.phone)

	// Validity gate: a lead we can never contact is not a lead. Checked on
	// the original cells, before any placeholder substitution.
	if rawEmail == "" && rawPhone == "" {
		return CanonicalRecord{}, false
	}

	driverType := cell(row, cols.driverType)
	if driverType == "" || strings.EqualFold(driverType, "undefined") {
		driverType = UnidentifiedDriverType
	}

	rec := CanonicalRecord{
		FirstName:       first,
		LastName:        last,
		Email:           strings.ToLower(rawEmail),
		Phone:           phone.Format(rawPhone),
		NormalizedPhone: phone.Normalize(rawPhone),
		DriverType:      driverType,
		Experience:      cell(row, cols.experience),
		City:            cell(row, cols.city),
		State:           cell(row, cols.state),
	}

	if rec.Email == "" {
		rec.Email = fmt.Sprintf("no_email_%d_%d@placeholder.com", batchStamp, rowIdx)
		rec.IsEmailPlaceholder = true
	}
	return rec, true
}

// splitFullName breaks a single name cell into (first, last). "Smith, John"
// style cells split on the first comma with the surname in front; otherwise
// the first whitespace token is the first name and the rest is the last
// name, defaulting to "Driver" for single-token names.
func splitFullName(full string) (string, string) {
	if idx := strings.Index(full, ","); idx >= 0 {
		last := strings.TrimSpace(full[:idx])
		first := strings.TrimSpace(full[idx+1:])
		return first, last
	}
	tokens := strings.Fields(full)
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], "Driver"
	default:
		return tokens[0], strings.Join(tokens[1:], " ")
	}
}
