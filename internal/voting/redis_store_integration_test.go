//go:build integration

package voting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sabha/pkg/platform/sentinel"
	"sabha/pkg/testutil/containers"
)

func TestRedisOTPStoreRoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisOTPStore(rc.Client)
	electionID, memberID := uuid.New(), uuid.New()
	record := OTPRecord{
		ElectionID: electionID,
		MemberID:   memberID,
		CodeHash:   "$2a$10$fakehashforthetest",
		IssuedAt:   time.Now().UTC().Truncate(time.Second),
		ExpiresAt:  time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second),
		Attempts:   2,
	}

	require.NoError(t, store.Save(ctx, record, 5*time.Minute))

	found, err := store.Find(ctx, electionID, memberID)
	require.NoError(t, err)
	assert.Equal(t, record.CodeHash, found.CodeHash)
	assert.Equal(t, record.Attempts, found.Attempts)
	assert.True(t, record.ExpiresAt.Equal(found.ExpiresAt))

	require.NoError(t, store.Consume(ctx, electionID, memberID))

	_, err = store.Find(ctx, electionID, memberID)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	err = store.Consume(ctx, electionID, memberID)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound), "second consume must miss")
}

func TestRedisOTPStoreSaveReplacesEarlierCode(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisOTPStore(rc.Client)
	electionID, memberID := uuid.New(), uuid.New()

	first := OTPRecord{ElectionID: electionID, MemberID: memberID, CodeHash: "hash-one"}
	second := OTPRecord{ElectionID: electionID, MemberID: memberID, CodeHash: "hash-two"}
	require.NoError(t, store.Save(ctx, first, time.Minute))
	require.NoError(t, store.Save(ctx, second, time.Minute))

	found, err := store.Find(ctx, electionID, memberID)
	require.NoError(t, err)
	assert.Equal(t, "hash-two", found.CodeHash)
}

func TestRedisOTPStoreRecordFailure(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisOTPStore(rc.Client)
	electionID, memberID := uuid.New(), uuid.New()
	record := OTPRecord{ElectionID: electionID, MemberID: memberID, CodeHash: "hash-one"}
	require.NoError(t, store.Save(ctx, record, time.Minute))

	attempts, err := store.RecordFailure(ctx, electionID, memberID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	attempts, err = store.RecordFailure(ctx, electionID, memberID)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	// A replacement code starts its own count.
	require.NoError(t, store.Save(ctx, record, time.Minute))
	attempts, err = store.RecordFailure(ctx, electionID, memberID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	// Consuming the code clears the counter with it.
	require.NoError(t, store.Consume(ctx, electionID, memberID))
	require.NoError(t, store.Save(ctx, record, time.Minute))
	attempts, err = store.RecordFailure(ctx, electionID, memberID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRedisSessionStoreFindDoesNotClaim(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisSessionStore(rc.Client)
	session := VerifiedSession{
		Token:      uuid.NewString(),
		ElectionID: uuid.New(),
		MemberID:   uuid.New(),
		VerifiedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt:  time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, session, 10*time.Minute))

	got, err := store.Find(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.MemberID, got.MemberID)

	// Find leaves the session for Consume to claim.
	got, err = store.Consume(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.MemberID, got.MemberID)

	_, err = store.Find(ctx, session.Token)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestRedisSessionStoreSingleUse(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	store := NewRedisSessionStore(rc.Client)
	session := VerifiedSession{
		Token:      uuid.NewString(),
		ElectionID: uuid.New(),
		MemberID:   uuid.New(),
		VerifiedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt:  time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second),
	}

	require.NoError(t, store.Save(ctx, session, 10*time.Minute))

	got, err := store.Consume(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.MemberID, got.MemberID)
	assert.Equal(t, session.ElectionID, got.ElectionID)

	// GETDEL makes the token single-use.
	_, err = store.Consume(ctx, session.Token)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
