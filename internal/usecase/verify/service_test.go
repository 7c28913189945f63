package verify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/verify"
)

// fakeRepo is an in-memory report repository recording every save.
type fakeRepo struct {
	report  domain.Report
	getErr  error
	saveErr error
	saves   []domain.Verification
}

func (r *fakeRepo) GetReport(ctx context.Context, reportID string) (domain.Report, error) {
	if r.getErr != nil {
		return domain.Report{}, r.getErr
	}
	return r.report, nil
}

func (r *fakeRepo) SaveVerification(ctx context.Context, reportID string, v domain.Verification) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves = append(r.saves, v)
	return nil
}

type fakeRewards struct {
	calls []string
}

func (f *fakeRewards) FirstVerification(ctx context.Context, reportID, userID string) {
	f.calls = append(f.calls, reportID+"/"+userID)
}

func newService(t *testing.T, repo *fakeRepo, pol *stubPolicy, rewards verify.RewardNotifier) *verify.Service {
	t.Helper()
	orch, err := verify.NewOrchestrator(verify.OrchestratorDeps{
		Policy: pol,
		Nearby: &stubNearby{},
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	svc, err := verify.NewService(verify.ServiceDeps{
		Repo:         repo,
		Policy:       pol,
		Orchestrator: orch,
		Rewards:      rewards,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestService_FullRunPersistsVerification(t *testing.T) {
	repo := &fakeRepo{report: exampleReport()}
	pol := &stubPolicy{enabled: true, policy: basicPolicy()}

	svc := newService(t, repo, pol, nil)
	outcome, err := svc.VerifyReport(context.Background(), "report-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, outcome.Status)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, 56, outcome.Result.Score)

	// Processing marker first, final verification second.
	require.Len(t, repo.saves, 2)
	assert.Equal(t, domain.StatusProcessing, repo.saves[0].Status)
	require.NotNil(t, repo.saves[0].StartedAt)

	final := repo.saves[1]
	assert.Equal(t, domain.StatusPending, final.Status)
	assert.Equal(t, "basic", final.Tier)
	assert.Equal(t, 56, final.Score)
	assert.Equal(t, 80, final.MaxScore)
	require.NotNil(t, final.CompletedAt)

	// The persisted breakdown is the serialized audit record.
	var record domain.AuditRecord
	require.NoError(t, json.Unmarshal([]byte(final.Breakdown), &record))
	assert.Equal(t, 56, record.Score)
	assert.Equal(t, "pending", record.Status)
	assert.Len(t, record.Levels, 4)
}

func TestService_SystemDisabled(t *testing.T) {
	repo := &fakeRepo{report: exampleReport()}
	pol := &stubPolicy{enabled: false, policy: basicPolicy()}

	svc := newService(t, repo, pol, nil)
	outcome, err := svc.VerifyReport(context.Background(), "report-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, outcome.Status)
	assert.Nil(t, outcome.Result)
	require.Len(t, repo.saves, 1)
	assert.Equal(t, domain.StatusDisabled, repo.saves[0].Status)
}

func TestService_UserNotOptedIn(t *testing.T) {
	report := exampleReport()
	report.User.AutoVerifyEnabled = false
	repo := &fakeRepo{report: report}
	pol := &stubPolicy{enabled: true, policy: basicPolicy()}

	svc := newService(t, repo, pol, nil)
	outcome, err := svc.VerifyReport(context.Background(), "report-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, outcome.Status)
	require.Len(t, repo.saves, 1)
	assert.Equal(t, domain.StatusSkipped, repo.saves[0].Status)
}

func TestService_MissingReporterEndsPending(t *testing.T) {
	report := exampleReport()
	report.User = nil
	repo := &fakeRepo{report: report}
	pol := &stubPolicy{enabled: true, policy: basicPolicy()}

	svc := newService(t, repo, pol, nil)
	outcome, err := svc.VerifyReport(context.Background(), "report-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, outcome.Status)
	require.Len(t, repo.saves, 2)
	assert.Equal(t, domain.StatusPending, repo.saves[1].Status)
	assert.Equal(t, 0, repo.saves[1].Score)
}

func TestService_LoadFailureIsFatal(t *testing.T) {
	repo := &fakeRepo{getErr: errors.New("connection refused")}
	pol := &stubPolicy{enabled: true, policy: basicPolicy()}

	svc := newService(t, repo, pol, nil)
	_, err := svc.VerifyReport(context.Background(), "report-1")

	require.Error(t, err)
	assert.Empty(t, repo.saves)
}

func TestService_RewardFiresOnVerifiedEdgeOnly(t *testing.T) {
	pol := basicPolicy()
	tier := pol.TierConfigs["basic"]
	tier.AutoVerifyScore = 50
	pol.TierConfigs["basic"] = tier

	t.Run("first verification fires", func(t *testing.T) {
		repo := &fakeRepo{report: exampleReport()}
		rewards := &fakeRewards{}
		svc := newService(t, repo, &stubPolicy{enabled: true, policy: pol}, rewards)

		outcome, err := svc.VerifyReport(context.Background(), "report-1")

		require.NoError(t, err)
		assert.Equal(t, domain.StatusVerified, outcome.Status)
		assert.Equal(t, []string{"report-1/user-1"}, rewards.calls)
	})

	t.Run("already verified does not fire again", func(t *testing.T) {
		report := exampleReport()
		report.Verification.Status = domain.StatusVerified
		repo := &fakeRepo{report: report}
		rewards := &fakeRewards{}
		svc := newService(t, repo, &stubPolicy{enabled: true, policy: pol}, rewards)

		_, err := svc.VerifyReport(context.Background(), "report-1")

		require.NoError(t, err)
		assert.Empty(t, rewards.calls)
	})
}

func TestService_ConcurrentRunsAreRejected(t *testing.T) {
	repo := &fakeRepo{report: exampleReport()}
	pol := &stubPolicy{enabled: true, policy: basicPolicy()}

	blocked := make(chan struct{})
	release := make(chan struct{})
	slowRepo := &blockingRepo{inner: repo, blocked: blocked, release: release}

	orch, err := verify.NewOrchestrator(verify.OrchestratorDeps{
		Policy: pol,
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)
	svc, err := verify.NewService(verify.ServiceDeps{
		Repo:         slowRepo,
		Policy:       pol,
		Orchestrator: orch,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.VerifyReport(context.Background(), "report-1")
		done <- err
	}()

	<-blocked
	_, err = svc.VerifyReport(context.Background(), "report-1")
	assert.ErrorIs(t, err, verify.ErrRunInProgress)
	close(release)
	require.NoError(t, <-done)
}

// blockingRepo parks the first GetReport so a second caller can observe
// the in-flight lock.
type blockingRepo struct {
	inner   *fakeRepo
	once    sync.Once
	blocked chan struct{}
	release chan struct{}
}

func (r *blockingRepo) GetReport(ctx context.Context, reportID string) (domain.Report, error) {
	r.once.Do(func() {
		close(r.blocked)
		<-r.release
	})
	return r.inner.GetReport(ctx, reportID)
}

func (r *blockingRepo) SaveVerification(ctx context.Context, reportID string, v domain.Verification) error {
	return r.inner.SaveVerification(ctx, reportID, v)
}
