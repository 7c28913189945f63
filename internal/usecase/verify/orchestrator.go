// Package verify implements the trust scoring pipeline: policy resolution,
// concurrent level execution, aggregation and the tri-state verdict.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/level"
)

// DefaultRunTimeout bounds a single pipeline run.
const DefaultRunTimeout = 30 * time.Second

// PolicyResolver is the inbound view of the settings resolver.
type PolicyResolver interface {
	SystemEnabled(ctx context.Context) bool
	ShouldRunForUser(ctx context.Context, user domain.User) bool
	DefaultTier(ctx context.Context) string
	Snapshot(ctx context.Context, user domain.User) domain.Policy
}

// NearbyCounter counts other reports near a location within a time window,
// excluding the report being verified. Backed by the report repository.
type NearbyCounter interface {
	CountNearbyReports(ctx context.Context, excludeID string, lat, lng, radiusKm float64, since time.Time) (int, error)
}

// Logger receives structured pipeline diagnostics. Optional.
type Logger interface {
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
}

// OrchestratorDeps captures the collaborators for the orchestrator.
type OrchestratorDeps struct {
	Policy PolicyResolver
	Levels map[string]level.Level
	Nearby NearbyCounter
	Logger Logger

	// Clock defaults to time.Now. Injected for deterministic tests.
	Clock func() time.Time

	// RunTimeout bounds one run; defaults to DefaultRunTimeout.
	RunTimeout time.Duration
}

// Orchestrator runs the scoring pipeline for one report at a time. It owns
// no persistent state; every run produces a fresh PipelineResult.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator wires the orchestrator. Levels default to the built-in
// registry when not supplied.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Policy == nil {
		return nil, errors.New("policy resolver is required")
	}
	if deps.Levels == nil {
		deps.Levels = level.Registry()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = DefaultRunTimeout
	}
	return &Orchestrator{deps: deps}, nil
}

// Run executes the pipeline for one report snapshot and returns the
// verdict. Missing or insufficient data degrades scores; only storage
// faults and programming errors inside a level are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, report domain.Report) (domain.PipelineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deps.RunTimeout)
	defer cancel()

	started := o.deps.Clock()
	result := domain.PipelineResult{
		RunID:     uuid.NewString(),
		StartedAt: started,
	}

	if report.User == nil {
		result.Tier = o.deps.Policy.DefaultTier(ctx)
		result.Status = domain.StatusPending
		result.Notes = append(result.Notes, "missing reporter")
		result.CompletedAt = o.deps.Clock()
		return result, nil
	}

	pol := o.deps.Policy.Snapshot(ctx, *report.User)
	result.Tier = pol.Tier

	env, err := o.buildEnv(ctx, report, pol)
	if err != nil {
		return domain.PipelineResult{}, err
	}

	levelResults, err := o.executeLevels(ctx, report, *report.User, pol, env)
	if err != nil {
		return domain.PipelineResult{}, err
	}
	result.Levels = levelResults

	for _, lr := range levelResults {
		result.Score += lr.Score
		result.MaxScore += lr.MaxScore
	}

	o.decide(&result, pol)
	result.CompletedAt = o.deps.Clock()

	if o.deps.Logger != nil {
		o.deps.Logger.LogInfo(ctx, "pipeline run complete", map[string]interface{}{
			"run_id":    result.RunID,
			"report_id": report.ID,
			"tier":      result.Tier,
			"score":     result.Score,
			"max_score": result.MaxScore,
			"status":    string(result.Status),
		})
	}
	return result, nil
}

// buildEnv captures the shared level context, including the nearby-report
// count the temporal level needs. A repository fault here is fatal for the
// run; it is not a data insufficiency.
func (o *Orchestrator) buildEnv(ctx context.Context, report domain.Report, pol domain.Policy) (level.Env, error) {
	env := level.Env{
		Now:      o.deps.Clock(),
		Services: pol.Services,
	}

	if o.deps.Nearby == nil || !level.ValidCoordinate(report.Latitude, report.Longitude) {
		return env, nil
	}

	since := env.Now.Add(-level.TemporalWindow)
	count, err := o.deps.Nearby.CountNearbyReports(ctx, report.ID, *report.Latitude, *report.Longitude, level.TemporalRadiusKm, since)
	if err != nil {
		return level.Env{}, fmt.Errorf("count nearby reports: %w", err)
	}
	env.NearbyReports = count
	env.NearbyKnown = true
	return env, nil
}

// executeLevels runs the resolved level set concurrently. Level ordering
// never affects the outcome; results keep the policy's order for stable
// audit records. A level whose implementation cannot be resolved degrades
// to a synthetic zero-score result whose configured max still counts.
func (o *Orchestrator) executeLevels(ctx context.Context, report domain.Report, user domain.User, pol domain.Policy, env level.Env) ([]domain.LevelResult, error) {
	slots := make([]*domain.LevelResult, len(pol.Levels))
	g, ctx := errgroup.WithContext(ctx)

	for i, key := range pol.Levels {
		cfg, ok := pol.LevelConfigs[key]
		if !ok {
			// Resolved key with no administered definition contributes
			// nothing, not zero-padding.
			if o.deps.Logger != nil {
				o.deps.Logger.LogWarning(ctx, "resolved level has no configuration", map[string]interface{}{"level": key})
			}
			continue
		}

		impl, ok := o.deps.Levels[key]
		if !ok {
			slots[i] = &domain.LevelResult{
				Key:      key,
				Label:    cfg.Label,
				Score:    0,
				MaxScore: cfg.MaxScore,
				Notes:    []string{"level unavailable"},
				Signals:  map[string]any{},
			}
			if o.deps.Logger != nil {
				o.deps.Logger.LogWarning(ctx, "configured level has no implementation", map[string]interface{}{"level": key})
			}
			continue
		}

		i, key, impl := i, key, impl
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("level %s panicked: %v", key, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			lr := impl.Run(report, user, env).Clipped()
			slots[i] = &lr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]domain.LevelResult, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			results = append(results, *slot)
		}
	}
	return results, nil
}

// decide applies the tier thresholds to the aggregate score.
func (o *Orchestrator) decide(result *domain.PipelineResult, pol domain.Policy) {
	if result.MaxScore == 0 {
		result.Status = domain.StatusPending
		result.Notes = append(result.Notes, "no enabled verification levels")
		return
	}

	tier, ok := pol.TierConfigFor()
	if !ok {
		result.Status = domain.StatusPending
		result.Notes = append(result.Notes, fmt.Sprintf("tier %s has no configuration", pol.Tier))
		return
	}

	switch {
	case result.Score >= tier.AutoVerifyScore:
		result.Status = domain.StatusVerified
	case result.Score >= tier.ReviewScore:
		result.Status = domain.StatusPending
	default:
		result.Status = domain.StatusRejected
	}
}
