// Package spreadsheet reads batch scoring requests from XLSX workbooks and
// writes the scored rows back out.
package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

const resultsSheet = "results"

// InputRow is one data row of the source sheet. Line is the 1-based sheet row.
type InputRow struct {
	Line  int
	Raw   map[string]string
	Input domain.RawInput
}

// ResultRow pairs an input row with its outcome. Exactly one of Recommendation
// and Err is set.
type ResultRow struct {
	InputRow
	Recommendation *domain.Recommendation
	Err            error
}

// ReadInputs loads the named sheet, or the first sheet when sheet is empty. The
// header row must name every request field; extra columns are ignored and blank
// cells are treated as missing values.
func ReadInputs(path, sheet string) ([]InputRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if strings.TrimSpace(sheet) == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	columns, err := headerColumns(rows[0])
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}

	out := make([]InputRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if blankRow(cells) {
			continue
		}
		row := InputRow{Line: i + 2, Raw: make(map[string]string, len(columns))}
		for field, col := range columns {
			if col >= len(cells) {
				continue
			}
			value := cells[col]
			row.Raw[field] = value
			if strings.TrimSpace(value) == "" {
				continue
			}
			_ = row.Input.Set(field, domain.TextValue(value))
		}
		out = append(out, row)
	}
	return out, nil
}

func headerColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	out := make(map[string]int, len(domain.RequestFields()))
	var missing []string
	for _, field := range domain.RequestFields() {
		col, ok := columns[field]
		if !ok {
			missing = append(missing, field)
			continue
		}
		out[field] = col
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing columns: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ResultHeader is the column layout of the results sheet.
func ResultHeader() []string {
	header := append([]string{"row"}, domain.RequestFields()...)
	header = append(header, "crop", "confidence")
	for i := 1; i <= domain.MaxAlternatives; i++ {
		n := strconv.Itoa(i)
		header = append(header, "alternative_"+n, "alternative_"+n+"_confidence")
	}
	return append(header, "model_version", "error")
}

// WriteResults writes one results sheet to path, replacing any existing file.
func WriteResults(path string, results []ResultRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("name results sheet: %w", err)
	}

	header := ResultHeader()
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, result := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := resultCells(result)
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", result.Line, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func resultCells(result ResultRow) []any {
	cells := make([]any, 0, len(ResultHeader()))
	cells = append(cells, result.Line)
	for _, field := range domain.RequestFields() {
		cells = append(cells, result.Raw[field])
	}

	if result.Recommendation == nil {
		for i := 0; i < 2+2*domain.MaxAlternatives+1; i++ {
			cells = append(cells, "")
		}
		return append(cells, domain.ErrorText(result.Err))
	}

	pred := result.Recommendation.Prediction
	cells = append(cells, pred.Primary.Info.DisplayName, pred.Primary.Confidence())
	for i := 0; i < domain.MaxAlternatives; i++ {
		if i < len(pred.Alternatives) {
			cells = append(cells, pred.Alternatives[i].Info.DisplayName, pred.Alternatives[i].Confidence())
			continue
		}
		cells = append(cells, "", "")
	}
	return append(cells, result.Recommendation.ModelVersion, "")
}
