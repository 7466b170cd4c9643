package quic

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/types"
)

type testHandler struct {
	mu           sync.Mutex
	inbound      []interfaces.Channel
	frames       [][]byte
	disconnected bool
}

func (h *testHandler) HandleChannel(ch interfaces.Channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbound = append(h.inbound, ch)
	return true
}

func (h *testHandler) HandleReceive(_ interfaces.Channel, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, data)
}

func (h *testHandler) HandleDisconnect(_ interfaces.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
}

func (h *testHandler) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)

	cfg := config.DefaultChannelConfig()
	cfg.Transport = config.TransportQUIC
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DialTimeout = config.Duration(5 * time.Second)

	s, err := New(id, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestService_Exchange(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)
	a.AddPeer(b.Self(), b.Addr().String())

	port := types.DerivePort(types.DeriveRoomKeyFromName("quic"), 1)
	hb := &testHandler{}
	require.NoError(t, b.Open(port, hb))

	ha := &testHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := a.Connect(ctx, b.Self(), port, ha)
	require.NoError(t, err)
	assert.Equal(t, b.Self(), ch.Peer())

	sent := make(chan error, 1)
	ch.Send([]byte("hello"), func(err error) { sent <- err })
	require.NoError(t, <-sent)

	require.Eventually(t, func() bool { return hb.frameCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	hb.mu.Lock()
	require.Len(t, hb.inbound, 1)
	in := hb.inbound[0]
	assert.Equal(t, []byte("hello"), hb.frames[0])
	hb.mu.Unlock()

	// 入站通道的对端身份来自证书
	assert.Equal(t, a.Self(), in.Peer())

	in.Send([]byte("world"), nil)
	require.Eventually(t, func() bool { return ha.frameCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Close())
	require.Eventually(t, func() bool {
		hb.mu.Lock()
		defer hb.mu.Unlock()
		return hb.disconnected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_PeerMismatch(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)

	other, err := identity.Generate()
	require.NoError(t, err)

	// 地址簿把 other 指向 b 的地址，b 的证书无法通过校验
	a.AddPeer(other.PeerID(), b.Addr().String())

	var port types.Port
	require.NoError(t, b.Open(port, &testHandler{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = a.Connect(ctx, other.PeerID(), port, &testHandler{})
	require.Error(t, err)
}

func TestService_ConnectErrors(t *testing.T) {
	a := newTestService(t)
	var port types.Port
	ctx := context.Background()

	_, err := a.Connect(ctx, a.Self(), port, &testHandler{})
	assert.ErrorIs(t, err, ErrSelfConnect)

	unknown, err := identity.Generate()
	require.NoError(t, err)
	_, err = a.Connect(ctx, unknown.PeerID(), port, &testHandler{})
	assert.ErrorIs(t, err, ErrUnknownPeer)

	require.NoError(t, a.Open(port, &testHandler{}))
	assert.ErrorIs(t, a.Open(port, &testHandler{}), ErrPortInUse)
}

func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, make([]byte, 2048)))
	_, err := readFrame(&buf, 1024)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
