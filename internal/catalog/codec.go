package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

const (
	utf8BOM = "\ufeff"

	// ExportDelimiter separates fields in exported CSV files
	ExportDelimiter = ';'

	minImportColumns = 5
	xlsxSheet        = "Products"
)

// ExportHeader is the first row of every export
var ExportHeader = []string{"#", "Name", "NameKZ", "Barcode", "Price"}

// ErrCSVTooShort is returned when the input has no data rows
var ErrCSVTooShort = apperror.Invalid("CSV must have header + at least one data row")

// detectDelimiter picks ';' when the first line contains one, ',' otherwise
func detectDelimiter(raw string) rune {
	first := raw
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		first = raw[:i]
	}
	if strings.ContainsRune(first, ';') {
		return ';'
	}
	return ','
}

// repairBarcode undoes spreadsheet scientific notation, e.g. 4.87E+12
func repairBarcode(barcode string) string {
	if !strings.ContainsAny(barcode, "eE") {
		return barcode
	}
	f, err := strconv.ParseFloat(barcode, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) >= 1e18 {
		return barcode
	}
	return strconv.FormatInt(int64(f), 10)
}

// parsePrice accepts a decimal comma; anything unparsable is 0
func parsePrice(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseCSV reads catalog rows: #, name_full, name_kz, barcode, price.
// The header is skipped, short rows and rows without a barcode are dropped.
func ParseCSV(raw string) ([]*database.Product, error) {
	raw = strings.TrimPrefix(raw, utf8BOM)

	r := csv.NewReader(strings.NewReader(raw))
	r.Comma = detectDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, apperror.Invalid(fmt.Sprintf("Invalid CSV: %v", err))
	}
	if len(rows) < 2 {
		return nil, ErrCSVTooShort
	}

	products := make([]*database.Product, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < minImportColumns {
			continue
		}
		barcode := repairBarcode(strings.TrimSpace(row[3]))
		if barcode == "" {
			continue
		}
		products = append(products, &database.Product{
			NameFull: strings.TrimSpace(row[1]),
			NameKZ:   strings.TrimSpace(row[2]),
			Barcode:  barcode,
			Price:    parsePrice(row[4]),
		})
	}
	return products, nil
}

func exportRow(i int, p database.Product) []string {
	return []string{
		strconv.Itoa(i),
		p.NameFull,
		p.NameKZ,
		p.Barcode,
		strconv.FormatFloat(p.Price, 'f', -1, 64),
	}
}

// WriteCSV writes products as ';'-separated rows under ExportHeader
func WriteCSV(w io.Writer, products []database.Product) error {
	cw := csv.NewWriter(w)
	cw.Comma = ExportDelimiter

	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for i, p := range products {
		if err := cw.Write(exportRow(i+1, p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes products as a single-sheet workbook with the export columns
func WriteXLSX(w io.Writer, products []database.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{i + 1, p.NameFull, p.NameKZ, p.Barcode, p.Price}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(xlsxSheet, "B", "C", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(xlsxSheet, "D", "D", 18); err != nil {
		return err
	}

	return f.Write(w)
}
