package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/storage"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqliteStore, err := OpenSQLiteStore(ctx, storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_SaveGetRemove(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := bus.ConversationKey{ChatID: -100, UserID: 7}

			got, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, s.Save(ctx, PendingCommand{Key: key, CommandID: "files", PartialText: "files fsM0 "}))
			require.NoError(t, s.Save(ctx, PendingCommand{Key: key, CommandID: "calc", PartialText: "calc "}))

			got, err = s.Get(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "calc", got.CommandID)
			assert.Equal(t, "calc ", got.PartialText)
			assert.False(t, got.UpdatedAt.IsZero())

			other, err := s.Get(ctx, bus.ConversationKey{ChatID: -100, UserID: 8})
			require.NoError(t, err)
			assert.Nil(t, other, "keys are per user")

			require.NoError(t, s.Remove(ctx, key))
			require.NoError(t, s.Remove(ctx, key))
			got, err = s.Get(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_TakeIsExclusive(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := bus.ConversationKey{ChatID: 1, UserID: 1}
			require.NoError(t, s.Save(ctx, PendingCommand{Key: key, CommandID: "calc", PartialText: "calc "}))

			var (
				wg    sync.WaitGroup
				found atomic.Int32
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					p, err := s.Take(ctx, key)
					assert.NoError(t, err)
					if p != nil {
						found.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), found.Load())

			p, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestStore_PurgeOlderThan(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			stale := bus.ConversationKey{ChatID: 1, UserID: 1}
			fresh := bus.ConversationKey{ChatID: 1, UserID: 2}

			require.NoError(t, s.Save(ctx, PendingCommand{Key: stale, CommandID: "calc", UpdatedAt: now.Add(-2 * time.Hour)}))
			require.NoError(t, s.Save(ctx, PendingCommand{Key: fresh, CommandID: "calc", UpdatedAt: now}))

			n, err := s.PurgeOlderThan(ctx, now.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			p, err := s.Get(ctx, fresh)
			require.NoError(t, err)
			assert.NotNil(t, p)
			p, err = s.Get(ctx, stale)
			require.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/state.db"
	key := bus.ConversationKey{ChatID: 5, UserID: 6}

	s, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, PendingCommand{Key: key, CommandID: "files", PartialText: "files fsA3 ", Finished: true}))
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Take(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "files fsA3 ", p.PartialText)
	assert.True(t, p.Finished)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), bus.ConversationKey{})
	assert.ErrorIs(t, err, ErrClosed)
}
