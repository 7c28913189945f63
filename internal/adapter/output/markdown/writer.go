// Package markdown renders a human-readable verdict report for auditors.
package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Writer renders pipeline results into Markdown files.
type Writer struct {
	outputDir string
}

// NewWriter constructs a Markdown audit writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// Write persists a Markdown verdict report to disk and returns the path.
func (w *Writer) Write(ctx context.Context, report domain.Report, result domain.PipelineResult) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.md", sanitise(report.ID), sanitise(result.RunID))
	path := filepath.Join(w.outputDir, filename)

	content := buildContent(report, result)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	return path, nil
}

func buildContent(report domain.Report, result domain.PipelineResult) string {
	var builder strings.Builder
	caser := cases.Title(language.English)

	builder.WriteString("# Verification Report\n\n")
	builder.WriteString(fmt.Sprintf("- Report: %s\n", report.ID))
	builder.WriteString(fmt.Sprintf("- Run: %s\n", result.RunID))
	builder.WriteString(fmt.Sprintf("- Tier: %s\n", result.Tier))
	builder.WriteString(fmt.Sprintf("- Verdict: %s\n", caser.String(string(result.Status))))
	builder.WriteString(fmt.Sprintf("- Score: %d of %d\n\n", result.Score, result.MaxScore))

	if len(result.Notes) > 0 {
		builder.WriteString("## Notes\n\n")
		for _, note := range result.Notes {
			builder.WriteString(fmt.Sprintf("- %s\n", note))
		}
		builder.WriteString("\n")
	}

	if len(result.Levels) == 0 {
		builder.WriteString("No levels executed.\n")
		return builder.String()
	}

	builder.WriteString("## Levels\n\n")
	for _, lr := range result.Levels {
		builder.WriteString(fmt.Sprintf("### %s (%d of %d)\n", lr.Label, lr.Score, lr.MaxScore))
		for _, note := range lr.Notes {
			builder.WriteString(fmt.Sprintf("- %s\n", note))
		}
		for _, key := range sortedSignalKeys(lr.Signals) {
			builder.WriteString(fmt.Sprintf("- %s: %v\n", key, lr.Signals[key]))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

func sortedSignalKeys(signals map[string]any) []string {
	keys := make([]string, 0, len(signals))
	for key := range signals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, string(filepath.Separator), "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
