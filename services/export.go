package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"tracebrief/internal/logger"
	"tracebrief/models"
)

// BuildBriefWorkbook renders a brief and its metrics as an XLSX workbook:
// one sheet of claims, one of omitted themes, one of metrics.
func BuildBriefWorkbook(doc *models.Document, brief *models.Brief, metrics models.Metrics) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	sheetName := "Brief"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Section", "Statement", "Risk", "Verification", "Sources", "Details", "Rationale",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	row := 2
	for _, section := range brief.Sections {
		for _, claim := range section.KeyPoints {
			verification := "Verified"
			if claim.Unverifiable {
				verification = "Unverifiable"
			}

			sources := strings.Join(claim.SourceIDs, ", ")
			if len(claim.UnknownSources) > 0 {
				if sources != "" {
					sources += ", "
				}
				sources += "unknown: " + strings.Join(claim.UnknownSources, ", ")
			}

			f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), section.Title)
			f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), claim.Statement)
			f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), string(claim.Category))
			f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), verification)
			f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), sources)
			f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), claim.Details)
			f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), claim.Rationale)
			row++
		}
	}

	for i := 0; i < len(headers); i++ {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 25)
	}

	themesSheet := "Omitted Themes"
	if _, err := f.NewSheet(themesSheet); err != nil {
		return nil, fmt.Errorf("failed to create themes sheet: %w", err)
	}
	f.SetCellValue(themesSheet, "A1", "Theme")
	f.SetCellValue(themesSheet, "B1", "Reason For Omission")
	f.SetCellValue(themesSheet, "C1", "Impact")
	for i, theme := range brief.OmittedThemes {
		r := i + 2
		f.SetCellValue(themesSheet, fmt.Sprintf("A%d", r), theme.Theme)
		f.SetCellValue(themesSheet, fmt.Sprintf("B%d", r), theme.Reason)
		f.SetCellValue(themesSheet, fmt.Sprintf("C%d", r), string(theme.Impact))
	}

	metricsSheet := "Metrics"
	if _, err := f.NewSheet(metricsSheet); err != nil {
		return nil, fmt.Errorf("failed to create metrics sheet: %w", err)
	}
	rows := [][2]interface{}{
		{"Document", doc.OriginalName},
		{"Model", brief.Model},
		{"Generated At", brief.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"High Level Summary", brief.HighLevelSummary},
		{"Retention Rationale", brief.RetentionRationale},
		{"Compression Ratio", metrics.CompressionRatio},
		{"Coverage", metrics.Coverage},
		{"Risk Count", metrics.RiskCount},
		{"Paragraphs", metrics.ParagraphCount},
		{"Cited Paragraphs", metrics.CitedParagraphs},
		{"Claims", metrics.ClaimCount},
		{"Unverifiable Claims", metrics.UnverifiableCnt},
	}
	for i, kv := range rows {
		r := i + 1
		f.SetCellValue(metricsSheet, fmt.Sprintf("A%d", r), kv[0])
		f.SetCellValue(metricsSheet, fmt.Sprintf("B%d", r), kv[1])
	}
	f.SetColWidth(metricsSheet, "A:A", "A:A", 22)
	f.SetColWidth(metricsSheet, "B:B", "B:B", 60)

	// drop the default empty sheet
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}
