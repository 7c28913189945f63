package level

import (
	"fmt"
	"sort"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// ExternalSignals iterates the configured cross-check services and records
// which of them could participate in verification. Provider integrations
// are an extension point: a configured service contributes a signal for the
// audit record but no score yet.
type ExternalSignals struct{}

func (ExternalSignals) Key() string   { return KeyExternal }
func (ExternalSignals) Label() string { return "External Cross-Checks" }
func (ExternalSignals) MaxScore() int { return 0 }

func (l ExternalSignals) Run(report domain.Report, user domain.User, env Env) domain.LevelResult {
	result := domain.LevelResult{
		Key:      l.Key(),
		Label:    l.Label(),
		MaxScore: l.MaxScore(),
		Signals:  map[string]any{},
	}

	if len(env.Services) == 0 {
		result.Notes = append(result.Notes, "no external services configured")
		return result.Clipped()
	}

	keys := make([]string, 0, len(env.Services))
	for key := range env.Services {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		svc := env.Services[key]
		switch {
		case !svc.Enabled:
			result.Notes = append(result.Notes, fmt.Sprintf("%s: disabled", key))
		case !svc.HasCredential:
			result.Notes = append(result.Notes, fmt.Sprintf("%s: enabled but no credential configured", key))
		default:
			result.Signals[key] = "configured"
			result.Notes = append(result.Notes, fmt.Sprintf("%s: configured (provider %s)", key, svc.Provider))
		}
	}

	return result.Clipped()
}
