package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boyiajas/omni247-sub001/internal/domain"
)

// ErrRunInProgress is returned when a verification run for the same report
// is already in flight in this process.
var ErrRunInProgress = errors.New("verification already in progress for this report")

// ReportRepository is the outbound port for report access and for
// flattening the pipeline result back onto the report.
type ReportRepository interface {
	GetReport(ctx context.Context, reportID string) (domain.Report, error)
	SaveVerification(ctx context.Context, reportID string, v domain.Verification) error
}

// RewardNotifier observes the first transition of a report into verified.
// Reward issuance itself is external; implementations must be idempotent.
type RewardNotifier interface {
	FirstVerification(ctx context.Context, reportID, userID string)
}

// AuditWriter persists a run's audit artifact. Optional; failures are
// logged and never break the run.
type AuditWriter interface {
	Write(ctx context.Context, report domain.Report, result domain.PipelineResult) (string, error)
}

// ServiceDeps captures the collaborators for the lifecycle service.
type ServiceDeps struct {
	Repo         ReportRepository
	Policy       PolicyResolver
	Orchestrator *Orchestrator
	Logger       Logger
	Rewards      RewardNotifier // optional
	Auditors     []AuditWriter  // optional
	Clock        func() time.Time
}

// Outcome is what one verification attempt produced. Result is nil when
// the run was skipped or disabled before the pipeline executed.
type Outcome struct {
	Status domain.Status
	Result *domain.PipelineResult
}

// Service drives the verification lifecycle around the pure pipeline:
// guards, the processing marker, persistence and the reward edge.
type Service struct {
	deps  ServiceDeps
	locks *ReportLocks
}

// NewService wires the lifecycle service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("report repository is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("policy resolver is required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{deps: deps, locks: NewReportLocks()}, nil
}

// VerifyReport runs the full lifecycle for one report. Re-running against
// the same snapshots yields the same verdict; the caller re-triggers
// explicitly after failures, there is no retry loop here.
func (s *Service) VerifyReport(ctx context.Context, reportID string) (Outcome, error) {
	release, ok := s.locks.TryAcquire(reportID)
	if !ok {
		return Outcome{}, ErrRunInProgress
	}
	defer release()

	report, err := s.deps.Repo.GetReport(ctx, reportID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load report %s: %w", reportID, err)
	}
	previousStatus := report.Verification.Status

	if !s.deps.Policy.SystemEnabled(ctx) {
		return s.terminal(ctx, reportID, domain.StatusDisabled)
	}
	if report.User != nil && !report.User.AutoVerifyEnabled {
		return s.terminal(ctx, reportID, domain.StatusSkipped)
	}

	// The processing marker goes down before execution so a crash mid-run
	// leaves a diagnosable trace instead of stale prior data.
	started := s.deps.Clock()
	processing := domain.Verification{Status: domain.StatusProcessing, StartedAt: &started}
	if err := s.deps.Repo.SaveVerification(ctx, reportID, processing); err != nil {
		return Outcome{}, fmt.Errorf("mark report %s processing: %w", reportID, err)
	}

	result, err := s.deps.Orchestrator.Run(ctx, report)
	if err != nil {
		failed := domain.Verification{Status: domain.StatusFailed, StartedAt: &started}
		if saveErr := s.deps.Repo.SaveVerification(ctx, reportID, failed); saveErr != nil {
			s.warn(ctx, "could not record failed status", map[string]interface{}{
				"report_id": reportID, "error": saveErr.Error(),
			})
		}
		return Outcome{Status: domain.StatusFailed}, fmt.Errorf("pipeline run for report %s: %w", reportID, err)
	}

	breakdown, err := json.Marshal(result.ToAuditRecord())
	if err != nil {
		return Outcome{}, fmt.Errorf("serialize breakdown for report %s: %w", reportID, err)
	}

	verification := domain.Verification{
		Status:      result.Status,
		Tier:        result.Tier,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Breakdown:   string(breakdown),
		StartedAt:   &result.StartedAt,
		CompletedAt: &result.CompletedAt,
	}
	if err := s.deps.Repo.SaveVerification(ctx, reportID, verification); err != nil {
		return Outcome{}, fmt.Errorf("persist verification for report %s: %w", reportID, err)
	}

	s.writeAudits(ctx, report, result)

	// Reward issuance reacts to the transition edge only: the previously
	// persisted status was not verified and the new one is.
	if s.deps.Rewards != nil && report.User != nil &&
		result.Status == domain.StatusVerified && previousStatus != domain.StatusVerified {
		s.deps.Rewards.FirstVerification(ctx, reportID, report.User.ID)
	}

	return Outcome{Status: result.Status, Result: &result}, nil
}

// terminal records a short-circuit status with no score.
func (s *Service) terminal(ctx context.Context, reportID string, status domain.Status) (Outcome, error) {
	now := s.deps.Clock()
	v := domain.Verification{Status: status, CompletedAt: &now}
	if err := s.deps.Repo.SaveVerification(ctx, reportID, v); err != nil {
		return Outcome{}, fmt.Errorf("record %s status for report %s: %w", status, reportID, err)
	}
	return Outcome{Status: status}, nil
}

func (s *Service) writeAudits(ctx context.Context, report domain.Report, result domain.PipelineResult) {
	for _, auditor := range s.deps.Auditors {
		if _, err := auditor.Write(ctx, report, result); err != nil {
			s.warn(ctx, "audit artifact write failed", map[string]interface{}{
				"report_id": report.ID, "run_id": result.RunID, "error": err.Error(),
			})
		}
	}
}

func (s *Service) warn(ctx context.Context, message string, fields map[string]interface{}) {
	if s.deps.Logger != nil {
		s.deps.Logger.LogWarning(ctx, message, fields)
	}
}
