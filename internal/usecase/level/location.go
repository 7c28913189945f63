package level

import (
	"fmt"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Location correlates the incident coordinates with the device location
// captured at submission time. Close agreement is strong evidence the
// reporter was actually there.
type Location struct{}

func (Location) Key() string   { return KeyLocation }
func (Location) Label() string { return "Location Correlation" }
func (Location) MaxScore() int { return 20 }

func (l Location) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		MaxScore: l.MaxScore(),
		Signals:  map[string]any{},
	}

	if !ValidCoordinate(report.Latitude, report.Longitude) {
		result.Notes = append(result.Notes, "report coordinates missing or invalid")
		return result.Clipped()
	}
	if !ValidCoordinate(report.SubmitterLatitude, report.SubmitterLongitude) {
		result.Notes = append(result.Notes, "submitter coordinates missing or invalid")
		return result.Clipped()
	}

	distanceKm := HaversineKm(
		*report.Latitude, *report.Longitude,
		*report.SubmitterLatitude, *report.SubmitterLongitude,
	)
	result.Signals["distance_km"] = distanceKm
	result.Score = distancePoints(distanceKm)
	result.Notes = append(result.Notes, fmt.Sprintf("submitter was %.2f km from the incident", distanceKm))

	if report.SubmitterAccuracyM != nil {
		accuracy := *report.SubmitterAccuracyM
		result.Signals["accuracy_m"] = accuracy
		switch {
		case accuracy <= 50:
			result.Score += 2
			result.Notes = append(result.Notes, fmt.Sprintf("device accuracy %.0f m", accuracy))
		case accuracy <= 100:
			result.Score++
			result.Notes = append(result.Notes, fmt.Sprintf("device accuracy %.0f m", accuracy))
		default:
			result.Notes = append(result.Notes, fmt.Sprintf("low accuracy (%.0f m)", accuracy))
		}
	}

	return result.Clipped()
}

func distancePoints(km float64) int {
	switch {
	case km <= 0.5:
		return 20
	case km <= 2:
		return 15
	case km <= 5:
		return 10
	case km <= 10:
		return 5
	default:
		return 0
	}
}
