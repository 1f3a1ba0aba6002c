package export

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"multcheck/domain/registry"
	apperrors "multcheck/internal/errors"
)

var csvHeader = []string{
	"test_id", "name", "test_type", "family", "timestamp",
	"p_value", "statistic", "effect_size", "sample_size",
	"variables", "group", "data_hash",
	"corrected", "adjusted_p_value", "correction_method",
}

// WriteCSV writes the flattened test records
func (e *Exporter) WriteCSV(w io.Writer, session *registry.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}

	for _, t := range session.Tests {
		row := []string{
			t.ID.String(),
			t.Name,
			t.TestType,
			string(t.Family),
			t.Timestamp.String(),
			formatP(t.PValue),
			strconv.FormatFloat(t.Statistic, 'g', -1, 64),
			formatOptional(t.EffectSize),
			strconv.Itoa(t.SampleSize),
			joinVariables(t.Variables),
			t.Group,
			t.DataHash.String(),
			strconv.FormatBool(t.Corrected),
			formatOptional(t.AdjustedP),
			string(t.CorrectionMethod),
		}
		if err := cw.Write(row); err != nil {
			return apperrors.WithCode(apperrors.CodeExportFailed, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}
	return nil
}

func formatP(p float64) string {
	if math.IsNaN(p) {
		return "NA"
	}
	return strconv.FormatFloat(p, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func joinVariables(vars []string) string {
	out := ""
	for i, v := range vars {
		if i > 0 {
			out += ";"
		}
		out += v
	}
	return out
}
