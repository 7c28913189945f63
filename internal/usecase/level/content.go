package level

import (
	"fmt"
	"unicode/utf8"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Content scores the textual quality of the report: a meaningful title and
// a substantial description.
type Content struct{}

func (Content) Key() string   { return KeyContent }
func (Content) Label() string { return "Content Quality" }
func (Content) MaxScore() int { return 10 }

func (l Content) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	descLen := utf8.RuneCountInString(report.Description)
	titleLen := utf8.RuneCountInString(report.Title)

	score := descriptionPoints(descLen) + titlePoints(titleLen)

	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		Score:    score,
		MaxScore: l.MaxScore(),
		Notes: []string{
			fmt.Sprintf("description %d chars, title %d chars", descLen, titleLen),
		},
		Signals: map[string]any{
			"description_chars": descLen,
			"title_chars":       titleLen,
		},
	}
	return result.Clipped()
}

func descriptionPoints(chars int) int {
	switch {
	case chars >= 120:
		return 7
	case chars >= 60:
		return 5
	case chars >= 30:
		return 3
	default:
		return 0
	}
}

func titlePoints(chars int) int {
	switch {
	case chars >= 12:
		return 3
	case chars >= 6:
		return 1
	default:
		return 0
	}
}
