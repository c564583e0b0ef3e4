package voting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/pkg/platform/sentinel"
)

func TestInMemoryOTPStoreRecordFailure(t *testing.T) {
	ctx := context.Background()

	newRecord := func() OTPRecord {
		return OTPRecord{
			ElectionID: uuid.New(),
			MemberID:   uuid.New(),
			CodeHash:   "hash",
			IssuedAt:   time.Now(),
			ExpiresAt:  time.Now().Add(5 * time.Minute),
		}
	}

	t.Run("concurrent wrong guesses all count", func(t *testing.T) {
		store := NewInMemoryOTPStore()
		record := newRecord()
		require.NoError(t, store.Save(ctx, record, 5*time.Minute))

		const guesses = 50
		var wg sync.WaitGroup
		for i := 0; i < guesses; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.RecordFailure(ctx, record.ElectionID, record.MemberID)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		found, err := store.Find(ctx, record.ElectionID, record.MemberID)
		require.NoError(t, err)
		assert.Equal(t, guesses, found.Attempts)
	})

	t.Run("a replacement code resets the count", func(t *testing.T) {
		store := NewInMemoryOTPStore()
		record := newRecord()
		require.NoError(t, store.Save(ctx, record, 5*time.Minute))

		attempts, err := store.RecordFailure(ctx, record.ElectionID, record.MemberID)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)

		require.NoError(t, store.Save(ctx, record, 5*time.Minute))
		attempts, err = store.RecordFailure(ctx, record.ElectionID, record.MemberID)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("missing record is reported", func(t *testing.T) {
		store := NewInMemoryOTPStore()
		_, err := store.RecordFailure(ctx, uuid.New(), uuid.New())
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
