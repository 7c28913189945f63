package domain

import "time"

// Status is a verification lifecycle state. The pipeline itself only ever
// produces verified, pending or rejected; the remaining states are set by
// the surrounding lifecycle (skipped, disabled, processing, failed).
type Status string

const (
	StatusSkipped    Status = "skipped"
	StatusDisabled   Status = "disabled"
	StatusProcessing Status = "processing"
	StatusVerified   Status = "verified"
	StatusPending    Status = "pending"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

// LevelResult is the immutable outcome of one scoring level.
type LevelResult struct {
	Key      string
	Label    string
	Score    int
	MaxScore int
	Notes    []string
	Signals  map[string]any
}

// Clipped returns a copy with the score forced into [0, MaxScore].
// Every level clips before returning, and the orchestrator clips again
// before aggregation so a misbehaving level cannot corrupt the totals.
func (r LevelResult) Clipped() LevelResult {
	if r.MaxScore < 0 {
		r.MaxScore = 0
	}
	if r.Score < 0 {
		r.Score = 0
	}
	if r.Score > r.MaxScore {
		r.Score = r.MaxScore
	}
	return r
}

// PipelineResult is the immutable outcome of one full pipeline run.
// It is constructed fresh on every run and never mutated afterwards.
type PipelineResult struct {
	RunID       string
	Tier        string
	Score       int
	MaxScore    int
	Status      Status
	Notes       []string
	Levels      []LevelResult
	StartedAt   time.Time
	CompletedAt time.Time
}

// AuditLevel is the serialized form of a LevelResult.
type AuditLevel struct {
	Key      string         `json:"key"`
	Label    string         `json:"label"`
	Score    int            `json:"score"`
	MaxScore int            `json:"max_score"`
	Notes    []string       `json:"notes"`
	Signals  map[string]any `json:"signals"`
}

// AuditRecord is the durable audit shape external callers persist verbatim.
// An auditor can reconstruct why a verdict was reached from this record alone.
type AuditRecord struct {
	Score    int          `json:"score"`
	MaxScore int          `json:"max_score"`
	Tier     string       `json:"tier"`
	Status   string       `json:"status"`
	Notes    []string     `json:"notes"`
	Levels   []AuditLevel `json:"levels"`
}

// ToAuditRecord flattens the result into its serialized audit shape.
func (p PipelineResult) ToAuditRecord() AuditRecord {
	levels := make([]AuditLevel, 0, len(p.Levels))
	for _, lr := range p.Levels {
		notes := lr.Notes
		if notes == nil {
			notes = []string{}
		}
		signals := lr.Signals
		if signals == nil {
			signals = map[string]any{}
		}
		levels = append(levels, AuditLevel{
			Key:      lr.Key,
			Label:    lr.Label,
			Score:    lr.Score,
			MaxScore: lr.MaxScore,
			Notes:    notes,
			Signals:  signals,
		})
	}
	notes := p.Notes
	if notes == nil {
		notes = []string{}
	}
	return AuditRecord{
		Score:    p.Score,
		MaxScore: p.MaxScore,
		Tier:     p.Tier,
		Status:   string(p.Status),
		Notes:    notes,
		Levels:   levels,
	}
}
