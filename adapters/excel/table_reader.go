// Package excel reads suitability tables from Excel and CSV files into
// datasets usable by the suitability model constructors.
package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// TableReader handles reading suitability tables from Excel and CSV files
type TableReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewTableReader creates a reader that handles both Excel and CSV files
func NewTableReader(filePath string) *TableReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &TableReader{filePath: filePath, fileType: fileType}
}

// ReadTemperatureTable reads a two-column table (temperature, suitability)
// into a dataset with a single variable on a temperature axis.
func (r *TableReader) ReadTemperatureTable() (*dataset.Dataset, error) {
	rows, err := r.readRows()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.InvalidInput("suitability table needs a header row and at least one data row")
	}

	varName := "suitability"
	if len(rows[0]) >= 2 && rows[0][1] != "" {
		varName = normalizeName(rows[0][1])
	}

	var temps, values []float64
	for i, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		t, err := parseCell(row[0], i+2, 1)
		if err != nil {
			return nil, err
		}
		v, err := parseCell(row[1], i+2, 2)
		if err != nil {
			return nil, err
		}
		temps = append(temps, t)
		values = append(values, v)
	}
	if len(temps) == 0 {
		return nil, errors.InvalidInput("suitability table has no data rows")
	}

	ds := dataset.New()
	tempCoord := dataset.NewNumericCoord("temperature", temps)
	tempCoord.Attrs["units"] = "°C"
	ds.SetCoord(tempCoord)
	a, err := dataset.NewDataArray(varName, []string{"temperature"}, []int{len(values)}, values)
	if err != nil {
		return nil, err
	}
	ds.SetVar(a)
	return ds, nil
}

// ReadTemperaturePrecipitationTable reads a grid table whose header row holds
// precipitation values, first column holds temperature values and cells hold
// suitability.
func (r *TableReader) ReadTemperaturePrecipitationTable() (*dataset.Dataset, error) {
	rows, err := r.readRows()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 || len(rows[0]) < 2 {
		return nil, errors.InvalidInput("suitability grid needs a precipitation header row and temperature rows")
	}

	var precips []float64
	for j, cell := range rows[0][1:] {
		p, err := parseCell(cell, 1, j+2)
		if err != nil {
			return nil, err
		}
		precips = append(precips, p)
	}

	var temps []float64
	values := make([]float64, 0, (len(rows)-1)*len(precips))
	for i, row := range rows[1:] {
		if len(row) < len(precips)+1 {
			return nil, errors.InvalidInput("suitability grid row " + strconv.Itoa(i+2) + " is too short")
		}
		t, err := parseCell(row[0], i+2, 1)
		if err != nil {
			return nil, err
		}
		temps = append(temps, t)
		for j := 0; j < len(precips); j++ {
			v, err := parseCell(row[j+1], i+2, j+2)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	}

	ds := dataset.New()
	tempCoord := dataset.NewNumericCoord("temperature", temps)
	tempCoord.Attrs["units"] = "°C"
	ds.SetCoord(tempCoord)
	precipCoord := dataset.NewNumericCoord("precipitation", precips)
	precipCoord.Attrs["units"] = "mm/day"
	ds.SetCoord(precipCoord)
	a, err := dataset.NewDataArray("suitability",
		[]string{"temperature", "precipitation"},
		[]int{len(temps), len(precips)}, values)
	if err != nil {
		return nil, err
	}
	ds.SetVar(a)
	return ds, nil
}

func (r *TableReader) readRows() ([][]string, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound("suitability table file " + r.filePath)
	}
	switch r.fileType {
	case "csv":
		return r.readCSVRows()
	case "xlsx":
		return r.readExcelRows()
	default:
		return nil, errors.UnsupportedConfig("unsupported table file type " + r.fileType)
	}
}

func (r *TableReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening Excel file")
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, errors.Wrap(err, "reading Excel sheet")
	}
	return rows, nil
}

func (r *TableReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening CSV file")
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading CSV file")
	}
	return rows, nil
}

func parseCell(cell string, row, col int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, errors.InvalidInput(
			"non-numeric table cell at row " + strconv.Itoa(row) + ", column " + strconv.Itoa(col))
	}
	return v, nil
}

func normalizeName(header string) string {
	name := strings.ToLower(strings.TrimSpace(header))
	return strings.ReplaceAll(name, " ", "_")
}
