package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/types"
)

// recorder 记录回调的测试 handler
type recorder struct {
	mu           sync.Mutex
	accept       bool
	channels     []interfaces.Channel
	frames       []string
	disconnected int
}

func newRecorder(accept bool) *recorder {
	return &recorder{accept: accept}
}

func (r *recorder) HandleChannel(ch interfaces.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accept {
		r.channels = append(r.channels, ch)
	}
	return r.accept
}

func (r *recorder) HandleReceive(_ interfaces.Channel, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(data))
}

func (r *recorder) HandleDisconnect(_ interfaces.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func (r *recorder) snapshot() ([]string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...), len(r.channels), r.disconnected
}

func peer(b byte) types.PeerID {
	var id types.PeerID
	id[0] = b
	return id
}

// TestHub_SendOrdered 测试帧按顺序异步投递
func TestHub_SendOrdered(t *testing.T) {
	hub := NewHub()
	a := hub.NewService(peer(1))
	b := hub.NewService(peer(2))
	port := types.DerivePort(types.DeriveRoomKeyFromName("room"), 1)

	rb := newRecorder(true)
	require.NoError(t, b.Open(port, rb))

	ra := newRecorder(true)
	ch, err := a.Connect(context.Background(), peer(2), port, ra)
	require.NoError(t, err)
	assert.Equal(t, peer(2), ch.Peer())

	var done sync.WaitGroup
	done.Add(3)
	for _, s := range []string{"one", "two", "three"} {
		ch.Send([]byte(s), func(err error) {
			assert.NoError(t, err)
			done.Done()
		})
	}
	done.Wait()

	frames, accepted, _ := rb.snapshot()
	assert.Equal(t, []string{"one", "two", "three"}, frames)
	assert.Equal(t, 1, accepted)
}

// TestHub_Reply 测试入站端可以回发
func TestHub_Reply(t *testing.T) {
	hub := NewHub()
	a := hub.NewService(peer(1))
	b := hub.NewService(peer(2))
	var port types.Port

	rb := newRecorder(true)
	require.NoError(t, b.Open(port, rb))
	ra := newRecorder(true)
	_, err := a.Connect(context.Background(), peer(2), port, ra)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, n, _ := rb.snapshot()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	rb.mu.Lock()
	in := rb.channels[0]
	rb.mu.Unlock()
	assert.Equal(t, peer(1), in.Peer())
	in.Send([]byte("pong"), nil)

	require.Eventually(t, func() bool {
		frames, _, _ := ra.snapshot()
		return len(frames) == 1 && frames[0] == "pong"
	}, time.Second, 5*time.Millisecond)
}

// TestHub_CloseNotifiesRemote 测试关闭一端时对端收到断开通知
func TestHub_CloseNotifiesRemote(t *testing.T) {
	hub := NewHub()
	a := hub.NewService(peer(1))
	b := hub.NewService(peer(2))
	var port types.Port

	rb := newRecorder(true)
	require.NoError(t, b.Open(port, rb))
	ra := newRecorder(true)
	ch, err := a.Connect(context.Background(), peer(2), port, ra)
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.Eventually(t, func() bool {
		_, _, d := rb.snapshot()
		return d == 1
	}, time.Second, 5*time.Millisecond)

	// 本端主动关闭不回调自身
	_, _, d := ra.snapshot()
	assert.Equal(t, 0, d)

	// 关闭后发送失败
	errCh := make(chan error, 1)
	ch.Send([]byte("late"), func(err error) { errCh <- err })
	assert.ErrorIs(t, <-errCh, ErrClosed)
}

// TestHub_Rejected 测试被拒绝的通道
func TestHub_Rejected(t *testing.T) {
	hub := NewHub()
	a := hub.NewService(peer(1))
	b := hub.NewService(peer(2))
	var port types.Port

	require.NoError(t, b.Open(port, newRecorder(false)))
	ra := newRecorder(true)
	_, err := a.Connect(context.Background(), peer(2), port, ra)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, d := ra.snapshot()
		return d == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHub_ConnectErrors 测试连接错误
func TestHub_ConnectErrors(t *testing.T) {
	hub := NewHub()
	a := hub.NewService(peer(1))
	b := hub.NewService(peer(2))
	var port types.Port
	ctx := context.Background()

	_, err := a.Connect(ctx, peer(9), port, newRecorder(true))
	assert.ErrorIs(t, err, ErrPeerUnreachable)

	_, err = a.Connect(ctx, peer(2), port, newRecorder(true))
	assert.ErrorIs(t, err, ErrPortClosed)

	_, err = a.Connect(ctx, peer(1), port, newRecorder(true))
	assert.ErrorIs(t, err, ErrSelfConnect)

	require.NoError(t, b.Open(port, newRecorder(true)))
	assert.ErrorIs(t, b.Open(port, newRecorder(true)), ErrPortInUse)

	require.NoError(t, b.Close())
	_, err = a.Connect(ctx, peer(2), port, newRecorder(true))
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}
