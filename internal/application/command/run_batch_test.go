package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeCandidateSource struct {
	pool []matching.Candidate
	err  error
}

func (f *fakeCandidateSource) ListEligible(_ context.Context, _ matching.WeekID) ([]matching.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pool, nil
}

type fakeBatchRepo struct {
	mu    sync.Mutex
	runs  map[string]matching.BatchRun
	order []string
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{runs: make(map[string]matching.BatchRun)}
}

func (f *fakeBatchRepo) Create(_ context.Context, run *matching.BatchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	f.order = append(f.order, run.ID)
	return nil
}

func (f *fakeBatchRepo) Update(_ context.Context, run *matching.BatchRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeBatchRepo) GetByID(_ context.Context, id string) (*matching.BatchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, matching.ErrRunNotFound
	}
	return &run, nil
}

func (f *fakeBatchRepo) GetLatestByWeek(_ context.Context, week matching.WeekID) (*matching.BatchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		run := f.runs[f.order[i]]
		if run.Week == week {
			return &run, nil
		}
	}
	return nil, matching.ErrRunNotFound
}

func (f *fakeBatchRepo) FindBlockingRun(_ context.Context, week matching.WeekID) (*matching.BatchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		run := f.runs[f.order[i]]
		if run.Week == week && run.Status.BlocksWeek() {
			return &run, nil
		}
	}
	return nil, matching.ErrRunNotFound
}

func (f *fakeBatchRepo) FindStuck(_ context.Context, cutoff time.Time) ([]*matching.BatchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stuck []*matching.BatchRun
	for _, id := range f.order {
		run := f.runs[id]
		if run.Status == matching.RunStatusRunning && run.HeartbeatAt.Before(cutoff) {
			r := run
			stuck = append(stuck, &r)
		}
	}
	return stuck, nil
}

type fakeGroupRepo struct {
	mu       sync.Mutex
	created  []matching.Group
	attempts map[string]int

	// failPlan decides whether a Create attempt fails. Attempt numbers
	// start at 1. A nil plan never fails.
	failPlan func(group matching.Group, attempt int) error
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{attempts: make(map[string]int)}
}

func (f *fakeGroupRepo) Create(_ context.Context, group *matching.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[group.ID]++
	if f.failPlan != nil {
		if err := f.failPlan(*group, f.attempts[group.ID]); err != nil {
			return err
		}
	}
	f.created = append(f.created, *group)
	return nil
}

func (f *fakeGroupRepo) GetByBatch(_ context.Context, batchID string) ([]*matching.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*matching.Group
	for i := range f.created {
		if f.created[i].BatchID == batchID {
			g := f.created[i]
			out = append(out, &g)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	mu        sync.Mutex
	entries   []matching.HistoryEntry
	window    []matching.HistoryEntry
	loadErr   error
	loadCalls int
}

func (f *fakeHistoryRepo) Record(_ context.Context, entries []matching.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeHistoryRepo) LoadWindow(_ context.Context, _ matching.WeekID, _ int) ([]matching.HistoryEntry, error) {
	f.mu.Lock()
	f.loadCalls++
	f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.window, nil
}

type fakeRunLock struct {
	mu   sync.Mutex
	held map[matching.WeekID]string
}

func newFakeRunLock() *fakeRunLock {
	return &fakeRunLock{held: make(map[matching.WeekID]string)}
}

func (f *fakeRunLock) Acquire(_ context.Context, week matching.WeekID, runID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, ok := f.held[week]; ok && holder != runID {
		return matching.ErrRunInProgress
	}
	f.held[week] = runID
	return nil
}

func (f *fakeRunLock) Refresh(_ context.Context, week matching.WeekID, runID string, _ time.Duration) error {
	return nil
}

func (f *fakeRunLock) Release(_ context.Context, week matching.WeekID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[week] == runID {
		delete(f.held, week)
	}
	return nil
}

type fakeEventBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (f *fakeEventBus) Publish(event shared.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventBus) byType(t shared.EventType) []shared.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []shared.Event
	for _, e := range f.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) GenerateID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%03d", g.n)
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

const testWeek = matching.WeekID("2026-W35")

// poolCandidate builds a fully specified candidate. Identical profiles
// score 100 against each other, which keeps formation outcomes easy to
// predict in orchestrator tests.
func poolCandidate(id string) matching.Candidate {
	verified := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return matching.Candidate{
		ID:                matching.CandidateID(id),
		DisplayName:       "Dr. " + id,
		Specialty:         "cardiology",
		City:              "new_york",
		Age:               34,
		Gender:            matching.GenderFemale,
		CareerStage:       matching.CareerStageAttending,
		ActivityLevel:     matching.ActivityModerate,
		SocialEnergy:      matching.SocialEnergyAmbivert,
		ConversationStyle: matching.ConversationBalance,
		LifeStage:         matching.LifeStagePartnered,
		Interests:         []string{"hiking", "jazz", "research", "cooking"},
		AvailabilityDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		GenderPreference:    matching.GenderPrefNone,
		SpecialtyPreference: matching.SpecialtyPrefNone,
		VerifiedAt:          verified,
	}
}

func identicalPool(ids ...string) []matching.Candidate {
	pool := make([]matching.Candidate, 0, len(ids))
	for _, id := range ids {
		pool = append(pool, poolCandidate(id))
	}
	return pool
}

type handlerFixture struct {
	handler    *RunBatchHandler
	candidates *fakeCandidateSource
	batches    *fakeBatchRepo
	groups     *fakeGroupRepo
	history    *fakeHistoryRepo
	lock       *fakeRunLock
	bus        *fakeEventBus
}

func newHandlerFixture(t *testing.T, pool []matching.Candidate) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		candidates: &fakeCandidateSource{pool: pool},
		batches:    newFakeBatchRepo(),
		groups:     newFakeGroupRepo(),
		history:    &fakeHistoryRepo{},
		lock:       newFakeRunLock(),
		bus:        &fakeEventBus{},
	}

	scorer, err := matching.NewScorer(matching.DefaultFactorWeights())
	require.NoError(t, err)

	cfg := DefaultRunBatchConfig()
	cfg.WallClock = 30 * time.Second

	handler, err := NewRunBatchHandler(
		f.candidates, f.batches, f.groups, f.history,
		f.lock, f.bus, &seqIDGen{}, scorer, cfg, nil,
	)
	require.NoError(t, err)
	f.handler = handler
	return f
}

func (f *handlerFixture) seedTerminalRun(t *testing.T, status matching.RunStatus) *matching.BatchRun {
	t.Helper()
	run, err := matching.NewBatchRun(matching.NewBatchRunParams{
		ID:      "prior-run",
		Week:    testWeek,
		Trigger: matching.TriggerScheduled,
	})
	require.NoError(t, err)
	switch status {
	case matching.RunStatusCompleted:
		require.NoError(t, run.Complete())
	case matching.RunStatusPartiallyCompleted:
		require.NoError(t, run.CompletePartially("seeded"))
	case matching.RunStatusFailed:
		require.NoError(t, run.Fail("seeded"))
	}
	require.NoError(t, f.batches.Create(context.Background(), run))
	return run
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRunBatchHandler_SuccessfulRun(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)

	assert.Equal(t, OutcomeExecuted, result.Outcome)
	assert.Equal(t, matching.RunStatusCompleted, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, 6, result.Report.EligibleCount)
	assert.Equal(t, 2, result.Report.GroupsPersisted)
	assert.Equal(t, 6, result.Report.UsersPlaced)
	assert.Equal(t, 0, result.Report.UsersUnplaced)
	assert.Empty(t, result.Report.Failures)
	assert.Equal(t, matching.AlgorithmVersion, result.Report.AlgorithmVersion)

	// Persisted groups are disjoint and tagged with the run.
	require.Len(t, f.groups.created, 2)
	seen := make(map[matching.CandidateID]bool)
	for _, g := range f.groups.created {
		assert.Equal(t, result.RunID, g.BatchID)
		for _, m := range g.Members {
			assert.False(t, seen[m], "candidate %s placed twice", m)
			seen[m] = true
		}
	}

	// Two groups of three record three pairwise history entries each.
	assert.Len(t, f.history.entries, 6)

	// The run record reached its terminal state.
	stored, err := f.batches.GetByID(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, matching.RunStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.GroupsPersisted)

	// Lifecycle events fired and the week lock was released.
	assert.Len(t, f.bus.byType(shared.EventBatchStarted), 1)
	assert.Len(t, f.bus.byType(shared.EventGroupFormed), 2)
	assert.Len(t, f.bus.byType(shared.EventBatchCompleted), 1)
	assert.Empty(t, f.lock.held)
}

func TestRunBatchHandler_SecondTriggerIsNoOp(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))
	prior := f.seedTerminalRun(t, matching.RunStatusCompleted)

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyRun, result.Outcome)
	assert.Equal(t, prior.ID, result.RunID)
	assert.Equal(t, matching.RunStatusCompleted, result.Status)
	assert.Nil(t, result.Report)

	// No second run record, no groups, no events.
	assert.Len(t, f.batches.order, 1)
	assert.Empty(t, f.groups.created)
	assert.Empty(t, f.bus.events)
}

func TestRunBatchHandler_FailedRunDoesNotBlockRetry(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))
	f.seedTerminalRun(t, matching.RunStatusFailed)

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, result.Outcome)
	assert.Equal(t, matching.RunStatusCompleted, result.Status)
}

func TestRunBatchHandler_RunInProgressRejected(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d"))
	run, err := matching.NewBatchRun(matching.NewBatchRunParams{
		ID:      "live-run",
		Week:    testWeek,
		Trigger: matching.TriggerScheduled,
	})
	require.NoError(t, err)
	require.NoError(t, f.batches.Create(context.Background(), run))

	_, err = f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	assert.ErrorIs(t, err, matching.ErrRunInProgress)

	// Even a forced trigger cannot preempt a running batch.
	_, err = f.handler.Handle(context.Background(), RunBatchCommand{
		Week: testWeek, Forced: true, OperatorID: "ops@medcircle",
	})
	assert.ErrorIs(t, err, matching.ErrRunInProgress)
}

func TestRunBatchHandler_ForcedRunSupersedes(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))
	prior := f.seedTerminalRun(t, matching.RunStatusCompleted)

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{
		Week: testWeek, Forced: true, OperatorID: "ops@medcircle",
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeExecuted, result.Outcome)
	assert.NotEqual(t, prior.ID, result.RunID)

	stored, err := f.batches.GetByID(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, matching.TriggerForced, stored.Trigger)
	assert.Equal(t, "ops@medcircle", stored.OperatorID)
}

func TestRunBatchHandler_ForcedWithoutOperatorRejected(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b"))

	_, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek, Forced: true})
	assert.Error(t, err)
	assert.Empty(t, f.batches.order, "no run record for a rejected command")
}

func TestRunBatchHandler_EligibilityFailureFailsRun(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.candidates.err = matching.ErrEligibilityUnavailable

	_, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.ErrorIs(t, err, matching.ErrDataUnavailable)
	assert.True(t, shared.IsExternalService(err), "unreachable store must carry the external-service kind")

	// The run record exists and is terminal Failed; no groups were written.
	require.Len(t, f.batches.order, 1)
	stored, err := f.batches.GetByID(context.Background(), f.batches.order[0])
	require.NoError(t, err)
	assert.Equal(t, matching.RunStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)
	assert.Empty(t, f.groups.created)
	assert.Empty(t, f.history.entries)

	assert.Len(t, f.bus.byType(shared.EventBatchFailed), 1)
	assert.Empty(t, f.lock.held)
}

func TestRunBatchHandler_PoolBelowMinGroupSize(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a"))

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)

	// One candidate cannot form a group of two: the run completes with
	// everyone unplaced and formation never runs.
	assert.Equal(t, matching.RunStatusCompleted, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, 1, result.Report.EligibleCount)
	assert.Equal(t, 0, result.Report.GroupsFormed)
	assert.Equal(t, 0, result.Report.EdgeCount)
	assert.Equal(t, []matching.CandidateID{"a"}, result.Report.UnplacedIDs)

	assert.Empty(t, f.groups.created)
	assert.Zero(t, f.history.loadCalls, "history window loaded for a skipped formation")
}

func TestRunBatchHandler_PartialPersistence(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))

	// Every write for the group containing "d" fails, including the retry.
	f.groups.failPlan = func(group matching.Group, _ int) error {
		if group.Contains("d") {
			return errors.New("store rejected write")
		}
		return nil
	}

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)

	assert.Equal(t, matching.RunStatusPartiallyCompleted, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, 2, result.Report.GroupsFormed)
	assert.Equal(t, 1, result.Report.GroupsPersisted)
	assert.Equal(t, 3, result.Report.UsersPlaced)
	assert.Equal(t, 3, result.Report.UsersUnplaced)
	require.Len(t, result.Report.Failures, 1)
	assert.ElementsMatch(t,
		[]matching.CandidateID{"d", "e", "f"},
		result.Report.Failures[0].Members)

	// History was recorded only for the group that made it to storage.
	assert.Len(t, f.history.entries, 3)
	for _, entry := range f.history.entries {
		assert.NotEqual(t, matching.CandidateID("d"), entry.Pair.Lo)
		assert.NotEqual(t, matching.CandidateID("d"), entry.Pair.Hi)
	}

	assert.Len(t, f.bus.byType(shared.EventGroupFormed), 1)
	assert.Len(t, f.bus.byType(shared.EventBatchPartiallyCompleted), 1)
}

func TestRunBatchHandler_AllGroupsFailPersistence(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))
	f.groups.failPlan = func(matching.Group, int) error {
		return errors.New("store down")
	}

	_, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.ErrorIs(t, err, matching.ErrPartialPersistence)

	stored, err := f.batches.GetByID(context.Background(), f.batches.order[0])
	require.NoError(t, err)
	assert.Equal(t, matching.RunStatusFailed, stored.Status)
	assert.Empty(t, f.history.entries)
}

func TestRunBatchHandler_PersistenceRetriedOnce(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d", "e", "f"))

	// First attempt fails for every group; the single retry succeeds.
	f.groups.failPlan = func(_ matching.Group, attempt int) error {
		if attempt == 1 {
			return errors.New("transient write error")
		}
		return nil
	}

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)

	assert.Equal(t, matching.RunStatusCompleted, result.Status)
	require.Len(t, f.groups.created, 2)
	for _, g := range f.groups.created {
		assert.Equal(t, 2, f.groups.attempts[g.ID])
	}
}

func TestRunBatchHandler_HonorsHistoryWindow(t *testing.T) {
	// Four identical candidates would normally form one group of three
	// with "d" unplaced. Excluding a-b and a-c steers "a" out of the
	// seed group entirely.
	f := newHandlerFixture(t, identicalPool("a", "b", "c", "d"))
	now := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	f.history.window = []matching.HistoryEntry{
		{Pair: matching.NewPairKey("a", "b"), Week: matching.WeekID("2026-W33"), GroupedAt: now},
		{Pair: matching.NewPairKey("a", "c"), Week: matching.WeekID("2026-W33"), GroupedAt: now},
	}

	result, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: testWeek})
	require.NoError(t, err)
	require.NotNil(t, result.Report)

	for _, g := range f.groups.created {
		if g.Contains("a") {
			assert.False(t, g.Contains("b"), "cooldown pair a-b regrouped")
			assert.False(t, g.Contains("c"), "cooldown pair a-c regrouped")
		}
	}
}

func TestRunBatchHandler_InvalidWeekRejected(t *testing.T) {
	f := newHandlerFixture(t, identicalPool("a", "b"))
	_, err := f.handler.Handle(context.Background(), RunBatchCommand{Week: "not-a-week"})
	assert.ErrorIs(t, err, matching.ErrInvalidWeekID)
}

func TestNewRunBatchHandler_RejectsInvalidConfig(t *testing.T) {
	scorer, err := matching.NewScorer(nil)
	require.NoError(t, err)

	cfg := DefaultRunBatchConfig()
	cfg.Formation.MinGroupSize = 1

	_, err = NewRunBatchHandler(
		&fakeCandidateSource{}, newFakeBatchRepo(), newFakeGroupRepo(), &fakeHistoryRepo{},
		newFakeRunLock(), &fakeEventBus{}, &seqIDGen{}, scorer, cfg, nil,
	)
	assert.ErrorIs(t, err, matching.ErrInvalidConfiguration)
}

func TestFailStuckRunsHandler(t *testing.T) {
	batches := newFakeBatchRepo()
	bus := &fakeEventBus{}
	handler := NewFailStuckRunsHandler(batches, bus, nil)

	stuck, err := matching.NewBatchRun(matching.NewBatchRunParams{
		ID: "stuck-run", Week: testWeek, Trigger: matching.TriggerScheduled,
	})
	require.NoError(t, err)
	stuck.HeartbeatAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, batches.Create(context.Background(), stuck))

	healthy, err := matching.NewBatchRun(matching.NewBatchRunParams{
		ID: "healthy-run", Week: matching.WeekID("2026-W36"), Trigger: matching.TriggerScheduled,
	})
	require.NoError(t, err)
	require.NoError(t, batches.Create(context.Background(), healthy))

	result, err := handler.Handle(context.Background(), FailStuckRunsCommand{Bound: 10 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck-run"}, result.Failed)

	stored, err := batches.GetByID(context.Background(), "stuck-run")
	require.NoError(t, err)
	assert.Equal(t, matching.RunStatusFailed, stored.Status)

	untouched, err := batches.GetByID(context.Background(), "healthy-run")
	require.NoError(t, err)
	assert.Equal(t, matching.RunStatusRunning, untouched.Status)

	assert.Len(t, bus.byType(shared.EventWatchdogTimeout), 1)
}

func TestFailStuckRunsCommand_Validate(t *testing.T) {
	assert.Error(t, FailStuckRunsCommand{}.Validate())
	assert.NoError(t, FailStuckRunsCommand{Bound: time.Minute}.Validate())
}
