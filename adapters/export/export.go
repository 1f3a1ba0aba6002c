package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"multcheck/domain/correction"
	"multcheck/domain/registry"
	"multcheck/internal"
	apperrors "multcheck/internal/errors"
)

// Format selects the export serialization
type Format string

const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatExcel:
		return Format(s), nil
	}
	return "", apperrors.InvalidInput(fmt.Sprintf("unknown export format %q", s))
}

// Exporter serializes session snapshots obtained from the registry. It never
// bypasses the export policy: callers must hand it a session the registry
// already released.
type Exporter struct {
	outputDir string
	logger    *internal.Logger
}

// NewExporter creates an exporter writing files under outputDir
func NewExporter(outputDir string, logger *internal.Logger) *Exporter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Exporter{outputDir: outputDir, logger: logger}
}

// Payload is the JSON export shape
type Payload struct {
	Session     SessionMeta                `json:"session"`
	Summary     *registry.Summary          `json:"summary"`
	Tests       []*registry.HypothesisTest `json:"tests"`
	Corrections []CorrectionMeta           `json:"corrections"`
}

// SessionMeta is the session header block
type SessionMeta struct {
	ID        string               `json:"id"`
	StartTime string               `json:"start_time"`
	Alpha     float64              `json:"alpha"`
	StudyType correction.StudyType `json:"study_type"`
}

// CorrectionMeta is the per-correction audit row
type CorrectionMeta struct {
	Method    correction.Method    `json:"method"`
	NTests    int                  `json:"n_tests"`
	NRejected int                  `json:"n_rejected"`
	Alpha     float64              `json:"alpha"`
	ErrorRate correction.ErrorRate `json:"error_rate"`
}

// BuildPayload assembles the export payload from a session snapshot
func BuildPayload(session *registry.Session) *Payload {
	payload := &Payload{
		Session: SessionMeta{
			ID:        session.ID.String(),
			StartTime: session.CreatedAt.String(),
			Alpha:     session.Config.Alpha,
			StudyType: session.StudyType,
		},
		Summary: session.Summarize(),
		Tests:   session.Tests,
	}
	for _, c := range session.Corrections {
		payload.Corrections = append(payload.Corrections, CorrectionMeta{
			Method:    c.Method,
			NTests:    c.NTests,
			NRejected: c.NRejected,
			Alpha:     c.Alpha,
			ErrorRate: c.ErrorRate,
		})
	}
	return payload
}

// WriteJSON writes the payload as indented JSON
func (e *Exporter) WriteJSON(w io.Writer, session *registry.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildPayload(session)); err != nil {
		return apperrors.WithCode(apperrors.CodeExportFailed, err)
	}
	return nil
}

// Write serializes the session in the requested format
func (e *Exporter) Write(w io.Writer, session *registry.Session, format Format) error {
	switch format {
	case FormatJSON:
		return e.WriteJSON(w, session)
	case FormatCSV:
		return e.WriteCSV(w, session)
	case FormatExcel:
		return e.WriteExcel(w, session)
	}
	return apperrors.InvalidInput(fmt.Sprintf("unknown export format %q", format))
}

// ExportFile writes the session to a timestamped file in the output directory
// and returns the path.
func (e *Exporter) ExportFile(session *registry.Session, format Format) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", apperrors.Wrap(err, "failed to create export directory")
	}

	name := fmt.Sprintf("session_%s_%s.%s", session.ID, time.Now().Format("20060102_150405"), format)
	path := filepath.Join(e.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to create export file")
	}
	defer f.Close()

	if err := e.Write(f, session, format); err != nil {
		return "", err
	}
	e.logger.Info("exported session %s to %s", session.ID, path)
	return path, nil
}
