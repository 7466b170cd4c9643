package operation

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/internal/core/storage"
	"github.com/dep2p/go-messenger/pkg/types"
)

type recorder struct {
	mu    sync.Mutex
	fired map[Kind][]types.Hash
}

func newRecorder() *recorder {
	return &recorder{fired: make(map[Kind][]types.Hash)}
}

func (r *recorder) add(kind Kind, hash types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired[kind] = append(r.fired[kind], hash)
}

func (r *recorder) OnRequestExpired(hash types.Hash) { r.add(KindRequest, hash) }
func (r *recorder) OnMerge(hash types.Hash)          { r.add(KindMerge, hash) }
func (r *recorder) OnDelete(hash types.Hash)         { r.add(KindDelete, hash) }

func (r *recorder) count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired[kind])
}

func TestStore_SingleFlight(t *testing.T) {
	clk := clock.NewMock()
	rec := newRecorder()
	s := NewStore(clk, rec)
	h := types.HashBytes([]byte("m"))

	require.NoError(t, s.Use(h, KindRequest, time.Second))
	assert.ErrorIs(t, s.Use(h, KindRequest, time.Second), ErrOperationConflict)
	assert.ErrorIs(t, s.Use(h, KindDelete, time.Second), ErrOperationConflict)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, KindRequest, s.Kind(h))

	clk.Add(2 * time.Second)
	require.Eventually(t, func() bool { return rec.count(KindRequest) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindUnknown, s.Kind(h))

	// 到期后可以重新登记
	require.NoError(t, s.Use(h, KindRequest, time.Second))
}

func TestStore_Denied(t *testing.T) {
	s := NewStore(clock.NewMock(), newRecorder())
	h := types.HashBytes([]byte("m"))

	assert.ErrorIs(t, s.Use(h, KindDelete, -1), ErrOperationDenied)
	assert.ErrorIs(t, s.UseAt(h, KindDelete, types.Forever), ErrOperationDenied)
	assert.ErrorIs(t, s.Use(h, KindUnknown, time.Second), ErrOperationDenied)
	assert.Equal(t, 0, s.Len())
}

func TestStore_CancelPreventsExpiry(t *testing.T) {
	clk := clock.NewMock()
	rec := newRecorder()
	s := NewStore(clk, rec)
	h := types.HashBytes([]byte("m"))

	require.NoError(t, s.Use(h, KindMerge, time.Second))
	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h))

	clk.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.count(KindMerge))
}

func TestStore_ExpiresOnce(t *testing.T) {
	clk := clock.NewMock()
	rec := newRecorder()
	s := NewStore(clk, rec)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Use(types.HashBytes([]byte{byte(i)}), KindDelete, time.Duration(i+1)*time.Second))
	}

	clk.Add(10 * time.Second)
	require.Eventually(t, func() bool { return rec.count(KindDelete) == 3 }, time.Second, 5*time.Millisecond)

	clk.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, rec.count(KindDelete))
}

func TestStore_Close(t *testing.T) {
	clk := clock.NewMock()
	rec := newRecorder()
	s := NewStore(clk, rec)
	h := types.HashBytes([]byte("m"))

	require.NoError(t, s.Use(h, KindMerge, time.Second))
	s.Close()
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Use(h, KindMerge, time.Second), ErrClosed)

	clk.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.count(KindMerge))
}

func TestStore_SaveLoad(t *testing.T) {
	eng, store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer eng.Close()

	clk := clock.NewMock()
	s := NewStore(clk, newRecorder())
	h1 := types.HashBytes([]byte("a"))
	h2 := types.HashBytes([]byte("b"))
	require.NoError(t, s.Use(h1, KindDelete, time.Hour))
	require.NoError(t, s.Use(h2, KindRequest, time.Second))
	require.NoError(t, s.Save(store))
	s.Close()

	// 过了 2 秒，REQUEST 已过期但仍会按零延迟恢复
	clk.Add(2 * time.Second)
	rec := newRecorder()
	restored := NewStore(clk, rec)
	require.NoError(t, restored.Load(store))
	assert.Equal(t, KindDelete, restored.Kind(h1))
	assert.Equal(t, KindRequest, restored.Kind(h2))

	clk.Add(0)
	require.Eventually(t, func() bool { return rec.count(KindRequest) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindDelete, restored.Kind(h1))
}
