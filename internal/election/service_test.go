package election

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/internal/directory"
	"sabha/internal/eligibility"
	dErrors "sabha/pkg/domain-errors"
)

type fakeGate struct {
	mu     sync.Mutex
	denied map[uuid.UUID]bool
	calls  int
}

func (g *fakeGate) RequireCommission(_ context.Context, memberID uuid.UUID, _ directory.Level, _ uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.denied[memberID] {
		return dErrors.New(dErrors.CodeForbidden, "requires an election commission portfolio")
	}
	return nil
}

type fakeRecomputer struct {
	mu     sync.Mutex
	scopes []eligibility.Scope
	err    error
}

func (r *fakeRecomputer) Recompute(_ context.Context, scope eligibility.Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.scopes = append(r.scopes, scope)
	return nil
}

func newTestService(t *testing.T) (*Service, *InMemoryStore, *fakeGate, *fakeRecomputer) {
	t.Helper()
	store := NewInMemoryStore()
	gate := &fakeGate{denied: map[uuid.UUID]bool{}}
	recomputer := &fakeRecomputer{}
	return New(store, gate, recomputer), store, gate, recomputer
}

func createDraft(t *testing.T, svc *Service, actorID uuid.UUID) *Election {
	t.Helper()
	e, err := svc.Create(context.Background(), actorID, directory.LevelTehsil, uuid.New(), "office_bearer", Window{}, Window{})
	require.NoError(t, err)
	return e
}

func TestServiceCreate(t *testing.T) {
	svc, _, gate, _ := newTestService(t)
	actorID := uuid.New()

	t.Run("creates a draft election", func(t *testing.T) {
		e := createDraft(t, svc, actorID)
		assert.Equal(t, StatusDraft, e.Status)
		assert.Equal(t, actorID, e.CreatedBy)
	})

	t.Run("rejects non commission actors", func(t *testing.T) {
		outsider := uuid.New()
		gate.denied[outsider] = true
		_, err := svc.Create(context.Background(), outsider, directory.LevelTehsil, uuid.New(), "office_bearer", Window{}, Window{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("rejects invalid level as validation", func(t *testing.T) {
		_, err := svc.Create(context.Background(), actorID, directory.Level("zone"), uuid.New(), "office_bearer", Window{}, Window{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestServiceFullLifecycle(t *testing.T) {
	svc, _, _, recomputer := newTestService(t)
	ctx := context.Background()
	actorID := uuid.New()

	e := createDraft(t, svc, actorID)

	e, err := svc.OpenNominations(ctx, actorID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNominationsOpen, e.Status)

	e, err = svc.CloseNominations(ctx, actorID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNominationsClosed, e.Status)

	e, err = svc.OpenVoting(ctx, actorID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVotingOpen, e.Status)
	require.Len(t, recomputer.scopes, 1, "opening voting refreshes the voter roll")
	assert.Equal(t, e.ID, recomputer.scopes[0].ElectionID)

	e, err = svc.CloseVoting(ctx, actorID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVotingClosed, e.Status)

	e, err = svc.Complete(ctx, actorID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, e.Status)
}

func TestServiceRejectsSkippedPhases(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actorID := uuid.New()

	e := createDraft(t, svc, actorID)

	// Draft election cannot jump straight to voting.
	_, err := svc.OpenVoting(ctx, actorID, e.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	_, err = svc.CloseVoting(ctx, actorID, e.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
}

func TestServiceCancel(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actorID := uuid.New()

	t.Run("cancels an in-flight election", func(t *testing.T) {
		e := createDraft(t, svc, actorID)
		_, err := svc.OpenNominations(ctx, actorID, e.ID)
		require.NoError(t, err)

		e, err = svc.Cancel(ctx, actorID, e.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, e.Status)
	})

	t.Run("rejects cancelling a completed election", func(t *testing.T) {
		e := createDraft(t, svc, actorID)
		for _, step := range []func(context.Context, uuid.UUID, uuid.UUID) (*Election, error){
			svc.OpenNominations, svc.CloseNominations, svc.OpenVoting, svc.CloseVoting, svc.Complete,
		} {
			_, err := step(ctx, actorID, e.ID)
			require.NoError(t, err)
		}

		_, err := svc.Cancel(ctx, actorID, e.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func TestServiceSetWindows(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actorID := uuid.New()
	now := time.Now()

	e := createDraft(t, svc, actorID)
	voting := Window{Start: now, End: now.Add(8 * time.Hour)}

	updated, err := svc.SetWindows(ctx, actorID, e.ID, Window{}, voting)
	require.NoError(t, err)
	assert.Equal(t, voting, updated.VotingWindow)

	// Windows freeze once the election leaves draft.
	_, err = svc.OpenNominations(ctx, actorID, e.ID)
	require.NoError(t, err)
	_, err = svc.SetWindows(ctx, actorID, e.ID, Window{}, voting)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
}

func TestServiceConcurrentTransitions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actorID := uuid.New()

	e := createDraft(t, svc, actorID)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.OpenNominations(ctx, actorID, e.ID)
		}(i)
	}
	wg.Wait()

	var ok, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.HasCode(err, dErrors.CodeInvalidStateTransition):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one racer wins the transition")
	assert.Equal(t, racers-1, conflicted)
}
