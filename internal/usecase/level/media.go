package level

import (
	"fmt"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Media scores attached evidence: how much of it there is, whether any of
// it is video, and whether it was captured promptly after submission.
type Media struct{}

func (Media) Key() string   { return KeyMedia }
func (Media) Label() string { return "Media Evidence" }
func (Media) MaxScore() int { return 20 }

func (l Media) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		MaxScore: l.MaxScore(),
		Signals:  map[string]any{"attachments": len(report.Media)},
	}

	if len(report.Media) == 0 {
		result.Notes = append(result.Notes, "no media attached")
		return result.Clipped()
	}

	if len(report.Media) >= 2 {
		result.Score = 15
	} else {
		result.Score = 10
	}
	result.Notes = append(result.Notes, fmt.Sprintf("%d attachment(s)", len(report.Media)))

	if report.HasVideo() {
		result.Score += 3
		result.Signals["has_video"] = true
		result.Notes = append(result.Notes, "includes video evidence")
	}

	if anyMediaWithin24h(report) {
		result.Score += 2
		result.Signals["fresh_media"] = true
		result.Notes = append(result.Notes, "media captured within 24h of the report")
	}

	return result.Clipped()
}

func anyMediaWithin24h(report domain.Report) bool {
	for _, m := range report.Media {
		delta := m.CreatedAt.Sub(report.CreatedAt)
		if delta >= 0 && delta.Hours() <= 24 {
			return true
		}
	}
	return false
}
