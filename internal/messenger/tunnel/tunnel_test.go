package tunnel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/interfaces/mocks"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

var testConfig = Config{Version: 1 << 16, ReceiveRate: 1000, ReceiveBurst: 1000}

func peerID(b byte) types.PeerID {
	var id types.PeerID
	id[0] = b
	return id
}

func newTunnel(t *testing.T, self, peer types.PeerID, cfg Config) (*Tunnel, *mocks.MockChannelService, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockChannelService(ctrl)
	svc.EXPECT().Self().Return(self).AnyTimes()
	handler := mocks.NewMockChannelHandler(ctrl)
	return New(svc, types.Port{7}, peer, handler, cfg), svc, ctrl
}

func TestTunnel_Connect(t *testing.T) {
	tun, svc, ctrl := newTunnel(t, peerID(1), peerID(2), testConfig)
	ch := mocks.NewMockChannel(ctrl)
	svc.EXPECT().Connect(gomock.Any(), peerID(2), types.Port{7}, gomock.Any()).Return(ch, nil)

	require.NoError(t, tun.Connect(context.Background()))
	assert.True(t, tun.IsConnected())
	assert.Equal(t, ch, tun.Channel())

	// 已连接时再次连接
	assert.ErrorIs(t, tun.Connect(context.Background()), ErrAlreadyConnected)
}

func TestTunnel_ConnectFailure(t *testing.T) {
	tun, svc, _ := newTunnel(t, peerID(1), peerID(2), testConfig)
	svc.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("unreachable"))

	err := tun.Connect(context.Background())
	assert.ErrorIs(t, err, ErrChannelFailure)
	assert.False(t, tun.IsConnected())
}

func TestTunnel_SimultaneousDial(t *testing.T) {
	// 本端 PeerID 较小：保留本端发起的通道
	tun, svc, ctrl := newTunnel(t, peerID(1), peerID(2), testConfig)
	outbound := mocks.NewMockChannel(ctrl)
	inbound := mocks.NewMockChannel(ctrl)
	// 拨号过程中对端的入站通道先到达
	svc.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, types.PeerID, types.Port, interfaces.ChannelHandler) (interfaces.Channel, error) {
			assert.True(t, tun.Attach(inbound))
			return outbound, nil
		})

	closed := make(chan struct{})
	inbound.EXPECT().Close().DoAndReturn(func() error {
		close(closed)
		return nil
	})

	require.NoError(t, tun.Connect(context.Background()))
	assert.Equal(t, outbound, tun.Channel())

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("replaced channel was not closed")
	}

	// 旧通道的断开通知不影响隧道
	assert.False(t, tun.Detach(inbound))
	assert.True(t, tun.IsConnected())
}

func TestTunnel_SimultaneousDialHigherPeer(t *testing.T) {
	// 本端 PeerID 较大：保留对端发起的通道，丢弃自己拨出的
	tun, svc, ctrl := newTunnel(t, peerID(3), peerID(2), testConfig)
	outbound := mocks.NewMockChannel(ctrl)
	inbound := mocks.NewMockChannel(ctrl)
	svc.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, types.PeerID, types.Port, interfaces.ChannelHandler) (interfaces.Channel, error) {
			assert.True(t, tun.Attach(inbound))
			return outbound, nil
		})
	outbound.EXPECT().Close().Return(nil)

	assert.ErrorIs(t, tun.Connect(context.Background()), ErrAlreadyConnected)
	assert.Equal(t, inbound, tun.Channel())
}

func TestTunnel_SendUpdatesLastMessage(t *testing.T) {
	tun, _, ctrl := newTunnel(t, peerID(1), peerID(2), testConfig)
	hash := types.HashBytes([]byte("m"))

	assert.ErrorIs(t, tun.Send([]byte("x"), hash), ErrChannelFailure)

	ch := mocks.NewMockChannel(ctrl)
	ch.EXPECT().Send([]byte("x"), gomock.Any()).Do(func(_ []byte, done func(error)) {
		done(nil)
	})
	tun.Attach(ch)

	require.NoError(t, tun.Send([]byte("x"), hash))
	assert.Equal(t, hash, tun.LastMessage())
}

func TestTunnel_Disconnect(t *testing.T) {
	tun, _, ctrl := newTunnel(t, peerID(1), peerID(2), testConfig)
	ch := mocks.NewMockChannel(ctrl)
	closed := make(chan struct{})
	ch.EXPECT().Close().DoAndReturn(func() error {
		close(closed)
		return nil
	})
	tun.Attach(ch)
	assert.True(t, tun.MarkInfoSent())
	assert.False(t, tun.MarkInfoSent())

	assert.True(t, tun.Disconnect())
	assert.False(t, tun.Disconnect())
	assert.False(t, tun.IsConnected())
	assert.False(t, tun.MarkInfoSent())

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestTunnel_Check(t *testing.T) {
	tun, _, _ := newTunnel(t, peerID(1), peerID(2), testConfig)

	_, _, err := tun.Check([]byte{1, 2, 3})
	assert.ErrorIs(t, err, message.ErrInvalidMessage)

	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	data, err := message.Sign(message.NewText("hello"), priv)
	require.NoError(t, err)

	msg, hash, err := tun.Check(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, message.Hash(data), hash)
}

func TestTunnel_CheckRateLimited(t *testing.T) {
	tun, _, _ := newTunnel(t, peerID(1), peerID(2), Config{Version: 1 << 16, ReceiveRate: 0.001, ReceiveBurst: 2})

	data, err := message.Encode(message.NewPeer(peerID(9)))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := tun.Check(data)
		require.NoError(t, err)
	}
	_, _, err = tun.Check(data)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestTunnel_Version(t *testing.T) {
	tun, _, _ := newTunnel(t, peerID(1), peerID(2), Config{Version: 1<<16 | 3, ReceiveRate: 1, ReceiveBurst: 1})
	assert.Equal(t, uint32(1<<16|3), tun.Version())

	require.NoError(t, tun.UpdateVersion(1<<16|1))
	assert.Equal(t, uint32(1<<16|1), tun.Version())

	assert.ErrorIs(t, tun.UpdateVersion(2<<16), ErrIncompatibleVersion)
	assert.Equal(t, uint32(1<<16|1), tun.Version())

	assert.True(t, Compatible(1<<16, 1<<16|9))
	assert.False(t, Compatible(1<<16, 2<<16))
}

func TestTunnel_PeerMessage(t *testing.T) {
	tun, _, _ := newTunnel(t, peerID(1), peerID(2), testConfig)
	_, ok := tun.PeerMessage()
	assert.False(t, ok)

	h := types.HashBytes([]byte("peer"))
	tun.SetPeerMessage(h)
	got, ok := tun.PeerMessage()
	assert.True(t, ok)
	assert.Equal(t, h, got)
}
