// Package storetest holds the behaviour every domain.SessionStore backend must satisfy.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the session store suite against stores returned by newStore.
// newStore is called once per subtest and should return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) domain.SessionStore) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "owner-7")

		require.NoError(t, store.Create(ctx, session))

		got, err := store.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.Title, got.Title)
		assert.Equal(t, session.Questions, got.Questions)
		assert.Equal(t, session.OwnerCode, got.OwnerCode)
		assert.Equal(t, domain.StateOpen, got.State)
		assert.WithinDuration(t, session.CreatedAt, got.CreatedAt, time.Millisecond)
		assert.Nil(t, got.ClaimedAt)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		session.Questions[0] = "mutated by caller"

		got, err := store.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "Is the exit clear?", got.Questions[0])

		got.Questions[1] = "mutated again"
		again, err := store.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "Are extinguishers present?", again.Questions[1])
	})

	t.Run("PreservesQuestionOrderAndDuplicates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		session.Questions = []string{"b", "a", "b", "", "Ærø, ok?"}
		require.NoError(t, store.Create(ctx, session))

		got, err := store.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "b", "", "Ærø, ok?"}, got.Questions)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")

		require.NoError(t, store.Create(ctx, session))
		err := store.Create(ctx, session)
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		claimed, err := store.Claim(ctx, session.ID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, session.Questions, claimed.Questions)

		_, err = store.Claim(ctx, session.ID, time.Minute)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// Viewers still see the session while a finalize is in flight
		_, err = store.Get(ctx, session.ID)
		assert.NoError(t, err)
	})

	t.Run("ClaimMissing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Claim(context.Background(), "does-not-exist", time.Minute)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ReleaseAllowsReclaim", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		claimed, err := store.Claim(ctx, session.ID, time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, claimed.ClaimToken)
		require.NoError(t, store.Release(ctx, session.ID, claimed.ClaimToken))

		_, err = store.Claim(ctx, session.ID, time.Minute)
		assert.NoError(t, err)
	})

	t.Run("StaleReleaseKeepsTakenOverClaim", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		first, err := store.Claim(ctx, session.ID, 50*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(120 * time.Millisecond)

		second, err := store.Claim(ctx, session.ID, time.Minute)
		require.NoError(t, err)
		assert.NotEqual(t, first.ClaimToken, second.ClaimToken)

		// The expired finalizer gives up after the takeover
		require.NoError(t, store.Release(ctx, session.ID, first.ClaimToken))

		_, err = store.Claim(ctx, session.ID, time.Minute)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, store.Release(ctx, session.ID, second.ClaimToken))
		_, err = store.Claim(ctx, session.ID, time.Minute)
		assert.NoError(t, err)
	})

	t.Run("ReleaseUnknownTokenIsNoop", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		_, err := store.Claim(ctx, session.ID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Release(ctx, session.ID, "not-the-claim"))
		require.NoError(t, store.Release(ctx, "does-not-exist", "not-the-claim"))

		_, err = store.Claim(ctx, session.ID, time.Minute)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ExpiredClaimCanBeTakenOver", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		_, err := store.Claim(ctx, session.ID, 50*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(120 * time.Millisecond)

		_, err = store.Claim(ctx, session.ID, 50*time.Millisecond)
		assert.NoError(t, err)
	})

	t.Run("DeleteRetiresSession", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		_, err := store.Claim(ctx, session.ID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, session.ID))

		_, err = store.Get(ctx, session.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.Claim(ctx, session.ID, time.Minute)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// Deleting twice is harmless
		assert.NoError(t, store.Delete(ctx, session.ID))
	})

	t.Run("ConcurrentClaimsHaveOneWinner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		session := newSession(t, "")
		require.NoError(t, store.Create(ctx, session))

		const workers = 16
		var (
			wg       sync.WaitGroup
			winners  atomic.Int32
			notFound atomic.Int32
			start    = make(chan struct{})
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := store.Claim(ctx, session.ID, time.Minute)
				switch {
				case err == nil:
					winners.Add(1)
				case assert.ErrorIs(t, err, domain.ErrNotFound):
					notFound.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.EqualValues(t, 1, winners.Load())
		assert.EqualValues(t, workers-1, notFound.Load())
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("Purge", func(t *testing.T) {
		store := newStore(t)
		purger, ok := store.(domain.SessionPurger)
		if !ok {
			t.Skip("store expires sessions on its own")
		}
		ctx := context.Background()

		old := newSession(t, "")
		old.CreatedAt = time.Now().Add(-48 * time.Hour).UTC()
		fresh := newSession(t, "")
		require.NoError(t, store.Create(ctx, old))
		require.NoError(t, store.Create(ctx, fresh))

		n, err := purger.Purge(ctx, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, err = store.Get(ctx, old.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.Get(ctx, fresh.ID)
		assert.NoError(t, err)
	})
}

func newSession(t *testing.T, ownerCode string) *domain.Session {
	t.Helper()

	id, err := domain.NewSessionID()
	require.NoError(t, err)

	return &domain.Session{
		ID:        id,
		Title:     "Fire Safety",
		Questions: []string{"Is the exit clear?", "Are extinguishers present?"},
		OwnerCode: ownerCode,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		State:     domain.StateOpen,
	}
}
