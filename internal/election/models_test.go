package election

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/internal/directory"
	dErrors "sabha/pkg/domain-errors"
)

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"draft to nominations open", StatusDraft, StatusNominationsOpen, true},
		{"draft to voting open skips a phase", StatusDraft, StatusVotingOpen, false},
		{"nominations open to closed", StatusNominationsOpen, StatusNominationsClosed, true},
		{"nominations closed to voting open", StatusNominationsClosed, StatusVotingOpen, true},
		{"voting open to closed", StatusVotingOpen, StatusVotingClosed, true},
		{"voting closed to completed", StatusVotingClosed, StatusCompleted, true},
		{"no backward move", StatusVotingOpen, StatusNominationsOpen, false},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusDraft, false},
		{"cancel from draft", StatusDraft, StatusCancelled, true},
		{"cancel from voting open", StatusVotingOpen, StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWindowContains(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	w := Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(now.Add(2*time.Hour)))
	assert.False(t, w.Contains(now.Add(-2*time.Hour)))

	// Zero window means the commission left timing unrestricted.
	assert.True(t, Window{}.Contains(now))
}

func TestNewElection(t *testing.T) {
	now := time.Now()

	t.Run("starts in draft", func(t *testing.T) {
		e, err := NewElection(uuid.New(), directory.LevelTehsil, uuid.New(), "office_bearer", uuid.New(), now)
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, e.Status)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := NewElection(uuid.New(), directory.Level("zone"), uuid.New(), "office_bearer", uuid.New(), now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects missing org unit", func(t *testing.T) {
		_, err := NewElection(uuid.New(), directory.LevelDistrict, uuid.Nil, "office_bearer", uuid.New(), now)
		require.Error(t, err)
	})

	t.Run("rejects empty type", func(t *testing.T) {
		_, err := NewElection(uuid.New(), directory.LevelState, uuid.New(), "", uuid.New(), now)
		require.Error(t, err)
	})
}
