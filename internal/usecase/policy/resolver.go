// Package policy resolves the administered verification configuration into
// an immutable per-run policy: which tier applies to a user, which levels
// execute, and which external services are usable.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// Store is the persistent key/value mechanism backing administered
// settings. A missing key returns ok=false; only infrastructure faults
// return an error, and the resolver degrades to defaults on those too.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Logger receives resolver warnings. Optional.
type Logger interface {
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
}

// Resolver merges the compiled-in static configuration with administered
// overrides from the settings store. It holds no mutable state; every read
// goes to the store so administrative changes apply to the next run.
type Resolver struct {
	store    Store
	logger   Logger
	tiers    map[string]domain.TierConfig
	levels   map[string]domain.LevelConfig
	services map[string]domain.ServiceConfig
}

// NewResolver wires a resolver over a settings store. The logger is
// optional.
func NewResolver(store Store, logger Logger) *Resolver {
	return &Resolver{
		store:    store,
		logger:   logger,
		tiers:    DefaultTierConfigs(),
		levels:   DefaultLevelConfigs(),
		services: DefaultServiceConfigs(),
	}
}

// SystemEnabled is the global kill switch for the verification subsystem.
func (r *Resolver) SystemEnabled(ctx context.Context) bool {
	raw, ok := r.get(ctx, KeySystemEnabled)
	if !ok {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		r.warn(ctx, "invalid system enable flag, defaulting to enabled", map[string]interface{}{"value": raw})
		return true
	}
	return enabled
}

// DefaultTier returns the fallback tier key.
func (r *Resolver) DefaultTier(ctx context.Context) string {
	raw, ok := r.get(ctx, KeyDefaultTier)
	if ok {
		if _, known := r.tiers[raw]; known {
			return raw
		}
		r.warn(ctx, "administered default tier is unknown, using built-in default", map[string]interface{}{"tier": raw})
	}
	return DefaultTierKey
}

// EnabledLevels returns the system-wide level allow-list. An empty or
// invalid stored list enables all statically configured levels, so newly
// shipped levels participate without an administration step.
func (r *Resolver) EnabledLevels(ctx context.Context) map[string]bool {
	return r.enabledSet(ctx, KeyEnabledLevels, keysOfLevels(r.levels))
}

// EnabledTiers returns the system-wide tier allow-list with the same
// empty-means-all semantics as EnabledLevels.
func (r *Resolver) EnabledTiers(ctx context.Context) map[string]bool {
	return r.enabledSet(ctx, KeyEnabledTiers, keysOfTiers(r.tiers))
}

// ResolveUserTier returns the user's explicit tier override when it names
// an enabled tier, otherwise the default tier.
func (r *Resolver) ResolveUserTier(ctx context.Context, user domain.User) string {
	if user.TierOverride != "" {
		if _, known := r.tiers[user.TierOverride]; known && r.EnabledTiers(ctx)[user.TierOverride] {
			return user.TierOverride
		}
	}
	return r.DefaultTier(ctx)
}

// ResolveUserLevels returns the level keys to execute for a run: the
// user's explicit override when non-empty, otherwise the tier's configured
// list, both intersected with the system-wide allow-list. Order follows
// the source list.
func (r *Resolver) ResolveUserLevels(ctx context.Context, user domain.User, tier string) []string {
	source := user.LevelOverride
	if len(source) == 0 {
		if cfg, ok := r.tiers[tier]; ok {
			source = cfg.Levels
		}
	}

	enabled := r.EnabledLevels(ctx)
	resolved := make([]string, 0, len(source))
	for _, key := range source {
		if enabled[key] {
			resolved = append(resolved, key)
		}
	}
	return resolved
}

// TierConfigs returns the administered tier definitions.
func (r *Resolver) TierConfigs(ctx context.Context) map[string]domain.TierConfig {
	configs := make(map[string]domain.TierConfig, len(r.tiers))
	for key, cfg := range r.tiers {
		configs[key] = cfg
	}
	return configs
}

// LevelConfigs returns the administered level definitions.
func (r *Resolver) LevelConfigs(ctx context.Context) map[string]domain.LevelConfig {
	configs := make(map[string]domain.LevelConfig, len(r.levels))
	for key, cfg := range r.levels {
		configs[key] = cfg
	}
	return configs
}

// ServiceSettings merges the static provider metadata with administered
// enable flags and credential presence. A service without a credential is
// reported as configured-but-unusable.
func (r *Resolver) ServiceSettings(ctx context.Context) map[string]domain.ServiceConfig {
	merged := make(map[string]domain.ServiceConfig, len(r.services))
	for key, cfg := range r.services {
		merged[key] = cfg
	}

	raw, ok := r.get(ctx, KeyServices)
	if !ok {
		return merged
	}

	var administered map[string]struct {
		Enabled    bool   `json:"enabled"`
		Provider   string `json:"provider"`
		Credential string `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &administered); err != nil {
		r.warn(ctx, "invalid service settings, using static defaults", map[string]interface{}{"error": err.Error()})
		return merged
	}

	for key, override := range administered {
		cfg, known := merged[key]
		if !known {
			cfg = domain.ServiceConfig{Key: key}
		}
		cfg.Enabled = override.Enabled
		if override.Provider != "" {
			cfg.Provider = override.Provider
		}
		cfg.HasCredential = override.Credential != ""
		merged[key] = cfg
	}
	return merged
}

// ShouldRunForUser reports whether the pipeline should run at all for this
// user: the system must be enabled and the user opted in.
func (r *Resolver) ShouldRunForUser(ctx context.Context, user domain.User) bool {
	return r.SystemEnabled(ctx) && user.AutoVerifyEnabled
}

// Snapshot captures one consistent policy for a run. Administrative
// changes after the snapshot do not affect the in-flight run.
func (r *Resolver) Snapshot(ctx context.Context, user domain.User) domain.Policy {
	tier := r.ResolveUserTier(ctx, user)
	return domain.Policy{
		Tier:         tier,
		Levels:       r.ResolveUserLevels(ctx, user, tier),
		TierConfigs:  r.TierConfigs(ctx),
		LevelConfigs: r.LevelConfigs(ctx),
		Services:     r.ServiceSettings(ctx),
	}
}

// ValidateTiers reports tiers whose auto-verify threshold exceeds the
// combined max score of their level set, so the verdict could never reach
// verified. A warning, not a rejection: the tier still runs.
func (r *Resolver) ValidateTiers(ctx context.Context) []string {
	var warnings []string
	for key, tier := range r.tiers {
		total := 0
		for _, lvl := range tier.Levels {
			if cfg, ok := r.levels[lvl]; ok {
				total += cfg.MaxScore
			}
		}
		if tier.AutoVerifyScore > total {
			warning := fmt.Sprintf("tier %s: auto-verify threshold %d exceeds combined max score %d", key, tier.AutoVerifyScore, total)
			warnings = append(warnings, warning)
			r.warn(ctx, "unreachable auto-verify threshold", map[string]interface{}{"tier": key, "threshold": tier.AutoVerifyScore, "max": total})
		}
	}
	return warnings
}

// get reads one settings key, degrading to absent on store faults.
func (r *Resolver) get(ctx context.Context, key string) (string, bool) {
	value, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.warn(ctx, "settings read failed, falling back to defaults", map[string]interface{}{"key": key, "error": err.Error()})
		return "", false
	}
	return value, ok
}

func (r *Resolver) enabledSet(ctx context.Context, key string, all []string) map[string]bool {
	set := make(map[string]bool, len(all))

	raw, ok := r.get(ctx, key)
	if ok {
		var stored []string
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			r.warn(ctx, "invalid allow-list, enabling all", map[string]interface{}{"key": key, "error": err.Error()})
		} else if len(stored) > 0 {
			for _, entry := range stored {
				set[entry] = true
			}
			return set
		}
	}

	for _, entry := range all {
		set[entry] = true
	}
	return set
}

func (r *Resolver) warn(ctx context.Context, message string, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.LogWarning(ctx, message, fields)
	}
}

func keysOfLevels(m map[string]domain.LevelConfig) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}

func keysOfTiers(m map[string]domain.TierConfig) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}
