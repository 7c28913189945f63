// Package level implements the independent verification scoring units.
// Each level is a pure function over read-only report and user snapshots;
// missing or invalid data lowers the score and leaves an explanatory note,
// it never produces an error.
package level

import (
	"time"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Level keys. The registry below is the only place a key is bound to an
// implementation, so an unknown configured key surfaces at startup instead
// of at run time.
const (
	KeyReputation = "reputation"
	KeyLocation   = "location"
	KeyMedia      = "media"
	KeyTemporal   = "temporal"
	KeyContent    = "content"
	KeyCommunity  = "community"
	KeyExternal   = "external_signals"
)

// Env carries the shared per-run context handed to every level. All fields
// are captured once by the orchestrator before the fan-out, so levels stay
// deterministic for a given snapshot.
type Env struct {
	Now time.Time

	// Services is the resolved external cross-check configuration.
	// Only the external signals level reads it.
	Services map[string]domain.ServiceConfig

	// NearbyReports is the number of other reports created within the
	// temporal clustering window and radius of this report. NearbyKnown
	// is false when the report had no usable coordinates to query with.
	NearbyReports int
	NearbyKnown   bool
}

// Level is the common contract every scoring unit satisfies.
type Level interface {
	Key() string
	Label() string
	MaxScore() int

	// Run scores one report. Implementations clip their own score into
	// [0, MaxScore()] before returning.
	Run(report domain.Report, user domain.User, env Env) domain.LevelResult
}

// Registry returns the compile-time mapping of level key to implementation.
func Registry() map[string]Level {
	levels := []Level{
		Reputation{},
		Location{},
		Media{},
		Temporal{},
		Content{},
		Community{},
		ExternalSignals{},
	}
	registry := make(map[string]Level, len(levels))
	for _, l := range levels {
		registry[l.Key()] = l
	}
	return registry
}
