package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorReporter receives fatal errors together with what is needed to
// reproduce them: a short operation tag and the offending request.
type ErrorReporter interface {
	Report(err error, message string, context any, tag string)
}

// FileReporter writes one JSON report per error into Dir and logs where it
// went.
type FileReporter struct {
	Dir    string
	Logger *zap.Logger
}

// NewFileReporter reports into the system temp directory.
func NewFileReporter(logger *zap.Logger) *FileReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileReporter{Dir: os.TempDir(), Logger: logger}
}

type errorReport struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Context any `json:"context,omitempty"`
}

// Report writes the report file. Failing to write it is logged, never
// returned.
func (r *FileReporter) Report(err error, message string, context any, tag string) {
	var report errorReport
	report.Error.Message = err.Error()
	report.Error.Type = fmt.Sprintf("%T", err)
	report.Context = context

	data, marshalErr := json.MarshalIndent(report, "", "  ")
	if marshalErr != nil {
		// The context may not be serializable; keep the error at least.
		report.Context = nil
		data, _ = json.MarshalIndent(report, "", "  ")
	}

	path := filepath.Join(r.Dir, reportFileName(tag, time.Now()))
	if writeErr := os.WriteFile(path, data, 0o600); writeErr != nil {
		r.Logger.Error(message,
			zap.Error(err),
			zap.String("tag", tag),
			zap.NamedError("report_error", writeErr))
		return
	}
	r.Logger.Error(message,
		zap.Error(err),
		zap.String("tag", tag),
		zap.String("report", path))
}

func reportFileName(tag string, now time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format("2006-01-02T15:04:05.000Z"))
	return fmt.Sprintf("gemini-client-error-%s-%s-%s.json", tag, stamp, uuid.NewString()[:8])
}
