package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
	"github.com/sty1228/hyperliquid-sentiment-trader/internal/storage/memory"
	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/logger"
)

type fakeCache struct {
	expired   int
	err       error
	heads     []int64
	persisted []contracts.SnapshotStore
}

func (f *fakeCache) RefreshExpired(context.Context) (int, error) { return f.expired, f.err }

func (f *fakeCache) OnCursorAdvance(head int64) int {
	f.heads = append(f.heads, head)
	return 1
}

func (f *fakeCache) Persist(_ context.Context, store contracts.SnapshotStore) (int, error) {
	f.persisted = append(f.persisted, store)
	return 3, f.err
}

type fakeEngine struct {
	next  int64
	err   error
	froms []int64
}

func (f *fakeEngine) IncrementalRefresh(_ context.Context, cursor int64) (int64, error) {
	f.froms = append(f.froms, cursor)
	if f.err != nil {
		return cursor, f.err
	}
	if f.next < cursor {
		return cursor, nil
	}
	return f.next, nil
}

func TestTTLSweepJob(t *testing.T) {
	c := &fakeCache{expired: 2}
	j := NewTTLSweepJob(c, logger.Nop())

	assert.Equal(t, "leaderboard_ttl_sweep", j.Name())
	assert.Equal(t, "*/15 * * * * *", j.Schedule())
	require.NoError(t, j.Run(context.Background()))

	c.err = context.Canceled
	assert.ErrorIs(t, j.Run(context.Background()), context.Canceled)
}

func TestCursorWatchJob(t *testing.T) {
	c := &fakeCache{}
	e := &fakeEngine{next: 40}
	j := NewCursorWatchJob(e, c, 10, logger.Nop())

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, int64(40), j.Cursor())
	assert.Equal(t, []int64{40}, c.heads)

	// Nothing new: no trigger
	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, []int64{10, 40}, e.froms)
	assert.Len(t, c.heads, 1)
}

func TestCursorWatchJob_StoreFailureKeepsCursor(t *testing.T) {
	e := &fakeEngine{err: contracts.ErrStoreUnavailable}
	j := NewCursorWatchJob(e, &fakeCache{}, 7, logger.Nop())

	err := j.Run(context.Background())
	assert.ErrorIs(t, err, contracts.ErrStoreUnavailable)
	assert.Equal(t, int64(7), j.Cursor())
}

func TestSnapshotPersistJob(t *testing.T) {
	store := memory.NewSnapshotStore()
	c := &fakeCache{}
	j := NewSnapshotPersistJob(c, store, logger.Nop())

	require.NoError(t, j.Run(context.Background()))
	require.Len(t, c.persisted, 1)
	assert.Same(t, store, c.persisted[0])

	c.err = errors.New("redis down")
	assert.Error(t, j.Run(context.Background()))
}
