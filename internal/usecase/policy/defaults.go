package policy

import (
	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/level"
)

// Settings store keys. Absent keys resolve to the compiled-in defaults
// below, never to an error.
const (
	KeySystemEnabled = "verification.enabled"
	KeyDefaultTier   = "verification.default_tier"
	KeyEnabledLevels = "verification.enabled_levels"
	KeyEnabledTiers  = "verification.enabled_tiers"
	KeyServices      = "verification.services"
)

// Tier keys.
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierStrict   = "strict"
)

// DefaultTierKey is the fallback tier when nothing else resolves.
const DefaultTierKey = TierStandard

var allLevelKeys = []string{
	level.KeyReputation,
	level.KeyLocation,
	level.KeyMedia,
	level.KeyTemporal,
	level.KeyContent,
	level.KeyCommunity,
	level.KeyExternal,
}

// DefaultTierConfigs returns the statically configured verification tiers.
func DefaultTierConfigs() map[string]domain.TierConfig {
	return map[string]domain.TierConfig{
		TierBasic: {
			Key:             TierBasic,
			Label:           "Basic",
			Levels:          []string{level.KeyReputation, level.KeyLocation, level.KeyMedia, level.KeyContent},
			AutoVerifyScore: 80,
			ReviewScore:     50,
		},
		TierStandard: {
			Key:             TierStandard,
			Label:           "Standard",
			Levels:          append([]string(nil), allLevelKeys...),
			AutoVerifyScore: 75,
			ReviewScore:     45,
		},
		TierStrict: {
			Key:             TierStrict,
			Label:           "Strict",
			Levels:          append([]string(nil), allLevelKeys...),
			AutoVerifyScore: 90,
			ReviewScore:     60,
		},
	}
}

// DefaultLevelConfigs derives the administered level definitions from the
// compile-time level registry, so configuration and implementation cannot
// drift apart.
func DefaultLevelConfigs() map[string]domain.LevelConfig {
	configs := make(map[string]domain.LevelConfig)
	for key, impl := range level.Registry() {
		configs[key] = domain.LevelConfig{
			Key:      key,
			Label:    impl.Label(),
			MaxScore: impl.MaxScore(),
		}
	}
	return configs
}

// DefaultServiceConfigs returns the static external provider metadata.
// Administered settings toggle the enable flags and credentials on top.
func DefaultServiceConfigs() map[string]domain.ServiceConfig {
	return map[string]domain.ServiceConfig{
		"weather": {Key: "weather", Provider: "openweather"},
		"news":    {Key: "news", Provider: "newsapi"},
		"social":  {Key: "social", Provider: "none"},
	}
}
