package level

import (
	"fmt"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Community scores validation by other citizens: comments and ratings left
// on the report.
type Community struct{}

func (Community) Key() string   { return KeyCommunity }
func (Community) Label() string { return "Community Validation" }
func (Community) MaxScore() int { return 10 }

func (l Community) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	comments := len(report.Comments)
	ratings := len(report.Ratings)

	score := commentPoints(comments) + ratingPoints(ratings)

	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		Score:    score,
		MaxScore: l.MaxScore(),
		Notes: []string{
			fmt.Sprintf("%d comment(s), %d rating(s)", comments, ratings),
		},
		Signals: map[string]any{
			"comments": comments,
			"ratings":  ratings,
		},
	}
	return result.Clipped()
}

func commentPoints(count int) int {
	switch {
	case count >= 3:
		return 6
	case count >= 1:
		return 3
	default:
		return 0
	}
}

func ratingPoints(count int) int {
	switch {
	case count >= 3:
		return 4
	case count >= 1:
		return 2
	default:
		return 0
	}
}
