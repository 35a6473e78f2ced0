package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"diskinspector/internal/config"
)

const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRefused   = "refused"
	StatusFailed    = "failed"
)

// Report is the JSON record of one diagnostic flow.
type Report struct {
	RunID     string      `json:"run_id"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Operation string      `json:"operation"`
	Device    string      `json:"device"`
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Duration  string      `json:"duration"`
}

// Summary counts the statuses of every report recorded in a session.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Refused   int `json:"refused"`
	Failed    int `json:"failed"`
}

// Writer stamps reports with the session run ID and saves them when
// reporting is enabled. Every recorded report is kept for the session summary.
type Writer struct {
	cfg     config.ReportingConfig
	runID   string
	version string
	now     func() time.Time
	session []Report
}

func NewWriter(cfg config.ReportingConfig, version string) *Writer {
	return &Writer{
		cfg:     cfg,
		runID:   uuid.NewString(),
		version: version,
		now:     time.Now,
	}
}

func (w *Writer) RunID() string {
	return w.runID
}

// Record builds a report for one finished flow, keeps it for the session
// summary and saves it. The returned path is empty when reporting is disabled.
func (w *Writer) Record(operation, device, status string, started time.Time, result interface{}, opErr error) (string, error) {
	now := w.now()
	report := Report{
		RunID:     w.runID,
		Version:   w.version,
		Timestamp: now,
		Operation: operation,
		Device:    device,
		Status:    status,
		Result:    result,
		Duration:  now.Sub(started).Round(time.Millisecond).String(),
	}
	if opErr != nil {
		report.Error = opErr.Error()
	}
	w.session = append(w.session, report)
	return w.Save(report)
}

// Save writes report as indented JSON into the configured directory.
func (w *Writer) Save(report Report) (string, error) {
	if !w.cfg.Enabled {
		return "", nil
	}

	if err := os.MkdirAll(w.cfg.LocalPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("diskinspector_%s_%s.json", report.Operation, report.Timestamp.Format("20060102_150405.000"))
	path := filepath.Join(w.cfg.LocalPath, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Summary aggregates the reports recorded so far.
func (w *Writer) Summary() Summary {
	var s Summary
	for _, r := range w.session {
		s.Total++
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusCancelled:
			s.Cancelled++
		case StatusRefused:
			s.Refused++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
