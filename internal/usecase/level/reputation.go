package level

import (
	"fmt"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Reputation scores the reporter's track record: account age, verified and
// rejected history, and the long-lived reputation score.
type Reputation struct{}

func (Reputation) Key() string   { return KeyReputation }
func (Reputation) Label() string { return "Reporter Reputation" }
func (Reputation) MaxScore() int { return 30 }

func (l Reputation) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	ageDays := int(env.Now.Sub(user.CreatedAt).Hours() / 24)
	if ageDays < 0 {
		ageDays = 0
	}

	score := agePoints(ageDays)
	score += min(10, 2*user.VerifiedReports)
	score -= min(10, 2*user.RejectedReports)
	score += reputationBonus(user.ReputationScore)

	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		Score:    score,
		MaxScore: l.MaxScore(),
		Notes: []string{
			fmt.Sprintf("account age %d days", ageDays),
			fmt.Sprintf("%d verified, %d rejected past reports", user.VerifiedReports, user.RejectedReports),
			fmt.Sprintf("reputation score %d", user.ReputationScore),
		},
		Signals: map[string]any{
			"account_age_days": ageDays,
			"verified_reports": user.VerifiedReports,
			"rejected_reports": user.RejectedReports,
			"reputation_score": user.ReputationScore,
		},
	}
	return result.Clipped()
}

func agePoints(days int) int {
	switch {
	case days >= 365:
		return 10
	case days >= 180:
		return 8
	case days >= 90:
		return 6
	case days >= 30:
		return 4
	case days >= 7:
		return 2
	default:
		return 1
	}
}

func reputationBonus(score int) int {
	switch {
	case score >= 500:
		return 10
	case score >= 200:
		return 6
	case score >= 100:
		return 4
	case score >= 50:
		return 2
	default:
		return 0
	}
}
