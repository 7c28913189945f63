// Package json persists the serialized audit record of a pipeline run.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Writer implements the verify.AuditWriter interface.
type Writer struct {
	outputDir string
}

// NewWriter creates a JSON audit writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// Write persists the run's audit record to disk and returns the path.
func (w *Writer) Write(ctx context.Context, report domain.Report, result domain.PipelineResult) (string, error) {
	dir := filepath.Join(w.outputDir, sanitise(report.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run-%s.json", sanitise(result.RunID)))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create json file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result.ToAuditRecord()); err != nil {
		return "", fmt.Errorf("failed to encode audit record: %w", err)
	}

	return path, nil
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	return filepath.Base(value)
}
