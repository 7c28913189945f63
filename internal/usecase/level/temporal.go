package level

import (
	"fmt"
	"time"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Temporal clustering window and radius for corroborating reports.
const (
	TemporalWindow   = 3 * time.Hour
	TemporalRadiusKm = 2.0
)

// Temporal scores corroboration from other recent reports near the same
// location. The nearby count is precomputed by the orchestrator so the
// level itself stays a pure function.
type Temporal struct{}

func (Temporal) Key() string   { return KeyTemporal }
func (Temporal) Label() string { return "Temporal Clustering" }
func (Temporal) MaxScore() int { return 10 }

func (l Temporal) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		MaxScore: l.MaxScore(),
		Signals:  map[string]any{},
	}

	if !ValidCoordinate(report.Latitude, report.Longitude) {
		result.Notes = append(result.Notes, "report coordinates missing, cannot correlate nearby reports")
		return result.Clipped()
	}
	if !env.NearbyKnown {
		result.Notes = append(result.Notes, "nearby report count unavailable, cannot correlate nearby reports")
		return result.Clipped()
	}

	result.Signals["nearby_reports"] = env.NearbyReports
	result.Score = nearbyPoints(env.NearbyReports)
	result.Notes = append(result.Notes, fmt.Sprintf(
		"%d other report(s) within %.0f km in the last %s",
		env.NearbyReports, TemporalRadiusKm, TemporalWindow,
	))

	return result.Clipped()
}

func nearbyPoints(count int) int {
	switch {
	case count >= 3:
		return 10
	case count >= 2:
		return 7
	case count >= 1:
		return 4
	default:
		return 0
	}
}
