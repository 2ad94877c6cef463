// Package export writes the variance table to a spreadsheet workbook.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"findash/internal/catalog"
	"findash/internal/core"
	"findash/internal/services"
)

// Sheet names in the exported workbook.
const (
	VarianceSheet = "Variance"
	KPISheet      = "KPIs"
)

// VarianceWorkbook builds a workbook with the variance table and, when
// kpis is non-empty, a KPI summary sheet. Missing values are left blank.
func VarianceWorkbook(table services.VarianceTable, kpis []services.KPI, cat *catalog.Catalog) (*excelize.File, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", VarianceSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeVariance(f, table, cat); err != nil {
		f.Close()
		return nil, err
	}
	if len(kpis) > 0 {
		if err := writeKPIs(f, kpis); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteVariance streams the workbook to w.
func WriteVariance(w io.Writer, table services.VarianceTable, kpis []services.KPI, cat *catalog.Catalog) error {
	f, err := VarianceWorkbook(table, kpis, cat)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeVariance(f *excelize.File, table services.VarianceTable, cat *catalog.Catalog) error {
	header := []any{core.MonthColumn}
	for _, m := range table.Metrics {
		header = append(header, m+core.ActualSuffix, m+core.BudgetSuffix)
	}
	if err := setRow(f, VarianceSheet, 1, header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(VarianceSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	currency, err := f.NewStyle(&excelize.Style{NumFmt: 5})
	if err != nil {
		return fmt.Errorf("create currency style: %w", err)
	}
	for i, row := range table.Rows {
		line := []any{row.Month}
		for _, c := range row.Cells {
			line = append(line, cellValue(c.Actual), cellValue(c.Budget))
		}
		if err := setRow(f, VarianceSheet, i+2, line); err != nil {
			return err
		}
	}
	for j, m := range table.Metrics {
		if cat.Kind(m) != catalog.KindCurrency || len(table.Rows) == 0 {
			continue
		}
		from, _ := excelize.CoordinatesToCellName(2+2*j, 2)
		to, _ := excelize.CoordinatesToCellName(3+2*j, len(table.Rows)+1)
		if err := f.SetCellStyle(VarianceSheet, from, to, currency); err != nil {
			return fmt.Errorf("style %s: %w", m, err)
		}
	}
	return f.SetPanes(VarianceSheet, &excelize.Panes{Freeze: true, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight"})
}

func writeKPIs(f *excelize.File, kpis []services.KPI) error {
	if _, err := f.NewSheet(KPISheet); err != nil {
		return fmt.Errorf("new sheet %s: %w", KPISheet, err)
	}
	header := []any{"Metric", core.MonthColumn, "Actual", "Budget", "Variance", "Variance %"}
	if err := setRow(f, KPISheet, 1, header); err != nil {
		return err
	}
	for i, k := range kpis {
		line := []any{k.Metric, k.Month, k.ActualFmt, k.BudgetFmt, k.VarianceFmt, k.VariancePercentFmt}
		if err := setRow(f, KPISheet, i+2, line); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// cellValue returns a float for present values and nil for missing ones.
func cellValue(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	f, _ := v.Decimal.Float64()
	return f
}
