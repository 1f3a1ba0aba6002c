package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"multcheck/domain/registry"
	apperrors "multcheck/internal/errors"
)

const (
	sheetSession     = "Session"
	sheetTests       = "Tests"
	sheetCorrections = "Corrections"
)

// WriteExcel writes the session workbook: a Session sheet with metadata and
// summary, a Tests sheet with the flattened records, and a Corrections sheet
// with the audit rows.
func (e *Exporter) WriteExcel(w io.Writer, session *registry.Session) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSessionSheet(f, session); err != nil {
		return err
	}
	if err := e.writeTestsSheet(f, session); err != nil {
		return err
	}
	if err := e.writeCorrectionsSheet(f, session); err != nil {
		return err
	}

	// Drop the default sheet created by excelize
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}
	return nil
}

func (e *Exporter) writeSessionSheet(f *excelize.File, session *registry.Session) error {
	if _, err := f.NewSheet(sheetSession); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	summary := session.Summarize()
	rows := [][]interface{}{
		{"session_id", session.ID.String()},
		{"start_time", session.CreatedAt.String()},
		{"study_type", string(session.StudyType)},
		{"alpha", session.Config.Alpha},
		{"n_tests", summary.NTests},
		{"raw_significant", summary.RawSignificant},
		{"corrected_significant", summary.CorrectedSignificant},
		{"warning_level", string(summary.WarningLevel)},
		{"risk_score", summary.RiskScore},
		{"risk_label", string(summary.RiskLabel)},
		{"export_blocked", summary.ExportBlocked},
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheetSession, cell, &row); err != nil {
			return apperrors.WithCode(apperrors.CodeExportFailed, err)
		}
	}
	return nil
}

func (e *Exporter) writeTestsSheet(f *excelize.File, session *registry.Session) error {
	if _, err := f.NewSheet(sheetTests); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	header := make([]interface{}, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetTests, "A1", &header); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	for i, t := range session.Tests {
		row := []interface{}{
			t.ID.String(), t.Name, t.TestType, string(t.Family), t.Timestamp.String(),
			excelP(t.PValue), t.Statistic, excelOptional(t.EffectSize), t.SampleSize,
			joinVariables(t.Variables), t.Group, t.DataHash.String(),
			t.Corrected, excelOptional(t.AdjustedP), string(t.CorrectionMethod),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetTests, cell, &row); err != nil {
			return apperrors.WithCode(apperrors.CodeExportFailed, err)
		}
	}
	return nil
}

func (e *Exporter) writeCorrectionsSheet(f *excelize.File, session *registry.Session) error {
	if _, err := f.NewSheet(sheetCorrections); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	header := []interface{}{"method", "error_rate", "alpha", "n_tests", "n_rejected", "threshold", "warnings"}
	if err := f.SetSheetRow(sheetCorrections, "A1", &header); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	for i, c := range session.Corrections {
		warnings := ""
		for j, w := range c.Warnings {
			if j > 0 {
				warnings += "; "
			}
			warnings += w
		}
		row := []interface{}{
			string(c.Method), string(c.ErrorRate), c.Alpha, c.NTests, c.NRejected, c.Threshold, warnings,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetCorrections, cell, &row); err != nil {
			return apperrors.WithCode(apperrors.CodeExportFailed, err)
		}
	}
	return nil
}

func excelP(p float64) interface{} {
	if math.IsNaN(p) {
		return "NA"
	}
	return p
}

func excelOptional(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
