package domain

// TierConfig describes a named verification rigor profile: the set of
// levels it runs and the score thresholds that classify the total.
type TierConfig struct {
	Key    string
	Label  string
	Levels []string

	// AutoVerifyScore is the minimum total score for automatic verification.
	AutoVerifyScore int

	// ReviewScore is the minimum total score for manual review; totals
	// below it are rejected outright.
	ReviewScore int
}

// LevelConfig describes an administered scoring level.
type LevelConfig struct {
	Key      string
	Label    string
	MaxScore int
}

// ServiceConfig describes an external cross-check provider. A service
// lacking a credential is configured-but-unusable, never an error.
type ServiceConfig struct {
	Key           string
	Provider      string
	Enabled       bool
	HasCredential bool
}

// Policy is the fully resolved configuration for one pipeline run,
// captured once at run start so concurrent administrative changes cannot
// affect an in-flight run.
type Policy struct {
	Tier         string
	Levels       []string
	TierConfigs  map[string]TierConfig
	LevelConfigs map[string]LevelConfig
	Services     map[string]ServiceConfig
}

// TierConfigFor returns the resolved tier's configuration.
func (p Policy) TierConfigFor() (TierConfig, bool) {
	cfg, ok := p.TierConfigs[p.Tier]
	return cfg, ok
}
