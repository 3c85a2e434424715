// Package importer parses spreadsheet workbooks into stock import rows.
// Workbooks come from labs migrating off hand-kept Excel inventories, so
// header names are matched loosely and in both English and Turkish.
package importer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/labstock/labstock-backend/pkg/errors"
)

// Row is one parsed spreadsheet line. Item fields identify or create the
// item definition; the lot fields are optional and, when present, create an
// opening lot alongside the item.
type Row struct {
	RowNumber     int
	Code          string
	Name          string
	Category      string
	Department    string
	Unit          string
	MinStock      string
	Supplier      string
	CatalogNumber string
	LotNumber     string
	Quantity      string
	ExpiryDate    *time.Time
}

// Canonical column names
const (
	colCode          = "code"
	colName          = "name"
	colCategory      = "category"
	colDepartment    = "department"
	colUnit          = "unit"
	colMinStock      = "min_stock"
	colSupplier      = "supplier"
	colCatalogNumber = "catalog_number"
	colLotNumber     = "lot_number"
	colQuantity      = "quantity"
	colExpiryDate    = "expiry_date"
)

// headerAliases maps normalized header cells to canonical columns. Turkish
// aliases cover the spreadsheet vocabulary seen in migrated lab inventories.
var headerAliases = map[string]string{
	"code":          colCode,
	"item code":     colCode,
	"kod":           colCode,
	"malzeme kodu":  colCode,
	"stok kodu":     colCode,
	"name":          colName,
	"item name":     colName,
	"ad":            colName,
	"malzeme adi":   colName,
	"malzeme":       colName,
	"category":      colCategory,
	"kategori":      colCategory,
	"tur":           colCategory,
	"department":    colDepartment,
	"departman":     colDepartment,
	"bolum":         colDepartment,
	"laboratuvar":   colDepartment,
	"unit":          colUnit,
	"birim":         colUnit,
	"olcu birimi":   colUnit,
	"min stock":     colMinStock,
	"min stok":      colMinStock,
	"minimum stok":  colMinStock,
	"kritik stok":   colMinStock,
	"supplier":      colSupplier,
	"tedarikci":     colSupplier,
	"firma":         colSupplier,
	"catalog no":    colCatalogNumber,
	"catalog":       colCatalogNumber,
	"katalog no":    colCatalogNumber,
	"lot":           colLotNumber,
	"lot no":        colLotNumber,
	"lot number":    colLotNumber,
	"parti no":      colLotNumber,
	"quantity":      colQuantity,
	"miktar":        colQuantity,
	"adet":          colQuantity,
	"mevcut miktar": colQuantity,
	"expiry":        colExpiryDate,
	"expiry date":   colExpiryDate,
	"skt":           colExpiryDate,
	"son kullanma":  colExpiryDate,
	"son kullanma tarihi": colExpiryDate,
}

// dateLayouts tried in order when parsing expiry cells
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2.1.2006",
	"01-02-06",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
}

// turkishReplacer folds Turkish letters so header matching survives both
// spellings.
var turkishReplacer = strings.NewReplacer(
	"ı", "i", "İ", "i", "ş", "s", "Ş", "s", "ğ", "g", "Ğ", "g",
	"ü", "u", "Ü", "u", "ö", "o", "Ö", "o", "ç", "c", "Ç", "c",
)

func normalizeHeader(cell string) string {
	s := strings.TrimSpace(strings.ToLower(turkishReplacer.Replace(cell)))
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// ParseWorkbook reads the first sheet of an xlsx workbook and returns its
// data rows. The first non-empty row is treated as the header; unrecognized
// columns are ignored.
func ParseWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.BadRequest("could not open workbook: " + err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.BadRequest("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.BadRequest("could not read sheet: " + err.Error())
	}

	columns, headerIdx, err := findHeader(rows)
	if err != nil {
		return nil, err
	}

	var parsed []Row
	for i := headerIdx + 1; i < len(rows); i++ {
		row, ok, err := parseRow(rows[i], columns, i+1)
		if err != nil {
			return nil, err
		}
		if ok {
			parsed = append(parsed, row)
		}
	}

	if len(parsed) == 0 {
		return nil, errors.BadRequest("workbook contains no data rows")
	}

	return parsed, nil
}

// findHeader locates the header row and maps column index to canonical name
func findHeader(rows [][]string) (map[int]string, int, error) {
	for i, cells := range rows {
		columns := map[int]string{}
		for idx, cell := range cells {
			if canonical, ok := headerAliases[normalizeHeader(cell)]; ok {
				columns[idx] = canonical
			}
		}
		// A usable header identifies at least the code and name columns.
		if hasColumn(columns, colCode) && hasColumn(columns, colName) {
			return columns, i, nil
		}
	}
	return nil, 0, errors.BadRequest("no header row found: need at least code and name columns")
}

func hasColumn(columns map[int]string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

func parseRow(cells []string, columns map[int]string, rowNumber int) (Row, bool, error) {
	row := Row{RowNumber: rowNumber}
	empty := true

	for idx, canonical := range columns {
		if idx >= len(cells) {
			continue
		}
		value := strings.TrimSpace(cells[idx])
		if value == "" {
			continue
		}
		empty = false

		switch canonical {
		case colCode:
			row.Code = value
		case colName:
			row.Name = value
		case colCategory:
			row.Category = value
		case colDepartment:
			row.Department = value
		case colUnit:
			row.Unit = value
		case colMinStock:
			row.MinStock = normalizeNumber(value)
		case colSupplier:
			row.Supplier = value
		case colCatalogNumber:
			row.CatalogNumber = value
		case colLotNumber:
			row.LotNumber = value
		case colQuantity:
			row.Quantity = normalizeNumber(value)
		case colExpiryDate:
			t, err := parseDate(value)
			if err != nil {
				return Row{}, false, errors.Validation(map[string]string{
					fmt.Sprintf("row_%d", rowNumber): "unparseable expiry date: " + value,
				})
			}
			row.ExpiryDate = &t
		}
	}

	if empty {
		return Row{}, false, nil
	}
	return row, true, nil
}

// normalizeNumber converts a decimal-comma cell to decimal-point form and
// strips thousands separators.
func normalizeNumber(value string) string {
	if strings.Contains(value, ",") && !strings.Contains(value, ".") {
		return strings.ReplaceAll(value, ",", ".")
	}
	return strings.ReplaceAll(value, ",", "")
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %s", value)
}
