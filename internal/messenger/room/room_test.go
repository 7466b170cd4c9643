package room

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-messenger/internal/core/channel/memory"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/internal/core/storage"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/internal/messenger/handle"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/operation"
	"github.com/dep2p/go-messenger/pkg/interfaces/mocks"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

const waitFor = 5 * time.Second

type node struct {
	id   *identity.Identity
	svc  *memory.Service
	room *Room
}

func newClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	return clk
}

func newNode(t *testing.T, hub *memory.Hub, key types.RoomKey, clk clock.Clock, store *kv.Store) *node {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	return newNodeWith(t, hub, id, key, clk, store)
}

func newNodeWith(t *testing.T, hub *memory.Hub, id *identity.Identity, key types.RoomKey, clk clock.Clock, store *kv.Store) *node {
	t.Helper()
	return newNodeConfig(t, hub, id, key, clk, store, DefaultConfig())
}

func newNodeConfig(t *testing.T, hub *memory.Hub, id *identity.Identity, key types.RoomKey, clk clock.Clock, store *kv.Store, cfg Config) *node {
	t.Helper()
	svc := hub.NewService(id.PeerID())
	r, err := New(key, cfg, Deps{
		Identity: id,
		Channels: svc,
		Clock:    clk,
		Store:    store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return &node{id: id, svc: svc, room: r}
}

func newHandle(t *testing.T, name string) *handle.Handle {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return handle.New(priv, crypto.NewAnonymous(), name, 256)
}

// waitEvent 读取事件直到 match 命中
func waitEvent(t *testing.T, h *handle.Handle, match func(handle.Event) bool) handle.Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev, ok := <-h.Events():
			require.True(t, ok, "event channel closed")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return handle.Event{}
		}
	}
}

func kindFrom(kind message.Kind, member types.MemberID) func(handle.Event) bool {
	return func(ev handle.Event) bool {
		return ev.Kind == handle.EventMessage && ev.Message.Kind == kind && ev.Member == member
	}
}

func memberID(t *testing.T, h *handle.Handle, key types.RoomKey) types.MemberID {
	t.Helper()
	id, ok := h.MemberID(key)
	require.True(t, ok)
	return id
}

// signedPeer 以 id 签发一条 PEER 消息
func signedPeer(t *testing.T, id *identity.Identity, clk clock.Clock) ([]byte, types.Hash) {
	t.Helper()
	msg := message.NewPeer(id.PeerID())
	msg.Timestamp = types.Now(clk)
	data, err := message.Sign(msg, id.PrivateKey())
	require.NoError(t, err)
	return data, message.Hash(data)
}

// signedSession 以 priv 签发一条会话消息
func signedSession(t *testing.T, msg *message.Message, sender types.MemberID, previous types.Hash,
	priv crypto.PrivateKey, clk clock.Clock) ([]byte, types.Hash) {
	t.Helper()
	msg.SenderID = sender
	msg.Previous = previous
	msg.Timestamp = types.Now(clk)
	data, err := message.Sign(msg, priv)
	require.NoError(t, err)
	return data, message.Hash(data)
}

// attachMock 把一条 gomock 通道挂到房间上
func attachMock(t *testing.T, r *Room, peer types.PeerID) *mocks.MockChannel {
	t.Helper()
	ctrl := gomock.NewController(t)
	ch := mocks.NewMockChannel(ctrl)
	ch.EXPECT().Peer().Return(peer).AnyTimes()
	ch.EXPECT().Send(gomock.Any(), gomock.Any()).AnyTimes()
	ch.EXPECT().Close().Return(nil).AnyTimes()
	require.True(t, r.HandleChannel(ch))
	return ch
}

// ============================================================================
//                              打开与进入
// ============================================================================

func TestRoom_OpenAndEnter(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	hub := memory.NewHub()
	key := types.GenerateRoomKey()

	a := newNode(t, hub, key, clk, nil)
	b := newNode(t, hub, key, clk, nil)
	alice := newHandle(t, "alice")
	bob := newHandle(t, "bob")

	require.NoError(t, a.room.Open(ctx, alice))
	assert.True(t, a.room.IsOpen())
	aliceID := memberID(t, alice, key)

	ev := waitEvent(t, alice, kindFrom(message.KindJoin, aliceID))
	assert.Equal(t, handle.FlagSent|handle.FlagRecent, ev.Flags)

	require.NoError(t, b.room.Enter(ctx, bob, a.id.PeerID()))
	assert.False(t, b.room.IsOpen(), "entering does not bind the port")
	bobID := memberID(t, bob, key)

	waitEvent(t, alice, kindFrom(message.KindJoin, bobID))
	waitEvent(t, bob, kindFrom(message.KindJoin, aliceID))

	seen := b.room.ChainHash()
	_, forked := b.room.MergeHash()
	hash, err := b.room.Send(bob, message.NewText("hello"))
	require.NoError(t, err)

	// TEXT 以发送时的链头为前驱，存在分叉时先经过一条 MERGE
	text := b.room.Message(hash)
	require.NotNil(t, text)
	if forked {
		merge := b.room.Message(text.Previous)
		require.NotNil(t, merge)
		assert.Equal(t, message.KindMerge, merge.Kind)
		assert.Contains(t, merge.Predecessors(), seen)
	} else {
		assert.Equal(t, seen, text.Previous)
	}

	ev = waitEvent(t, alice, kindFrom(message.KindText, bobID))
	assert.Equal(t, hash, ev.Hash)
	assert.Equal(t, "hello", ev.Message.Text)
	assert.Equal(t, handle.FlagRecent, ev.Flags)
	require.NotNil(t, ev.Sender)
	assert.Equal(t, "bob", ev.Sender.Name())

	// 同一条消息只通知一次
	assert.Never(t, func() bool {
		select {
		case ev := <-alice.Events():
			return ev.Kind == handle.EventMessage && ev.Hash == hash
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)

	// 两端收敛到同一链头
	require.Eventually(t, func() bool {
		_, forked := a.room.MergeHash()
		return a.room.ChainHash() == hash && !forked
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, hash, b.room.ChainHash())

	assert.True(t, a.room.IsConnected(b.id.PeerID()))
	assert.Contains(t, b.room.BasementPeers(), a.id.PeerID())
}

func TestRoom_EnterUnreachableDoor(t *testing.T) {
	clk := newClock()
	hub := memory.NewHub()
	key := types.GenerateRoomKey()
	b := newNode(t, hub, key, clk, nil)

	var missing types.PeerID
	missing[0] = 0xee
	err := b.room.Enter(context.Background(), newHandle(t, ""), missing)
	assert.Error(t, err)
}

func TestRoom_SendRequiresJoin(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	h := newHandle(t, "")

	_, err := n.room.Send(h, message.NewText("x"))
	assert.ErrorIs(t, err, ErrNotMember)

	require.NoError(t, n.room.Open(context.Background(), h))
	_, err = n.room.Send(h, message.NewLeave())
	assert.ErrorIs(t, err, ErrReservedKind)
	_, err = n.room.Send(h, message.NewPeer(n.id.PeerID()))
	assert.ErrorIs(t, err, message.ErrUnknownKind)
}

func TestRoom_Leave(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	key := types.GenerateRoomKey()
	n := newNode(t, memory.NewHub(), key, clk, nil)
	alice, bob := newHandle(t, ""), newHandle(t, "")

	require.NoError(t, n.room.Open(ctx, alice))
	require.NoError(t, n.room.Enter(ctx, bob, types.EmptyPeerID))
	assert.Equal(t, 2, n.room.HandleCount())

	remaining, err := n.room.Leave(alice)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	assert.False(t, n.room.Joined(alice))
	_, ok := alice.MemberID(key)
	assert.False(t, ok)

	_, err = n.room.Send(alice, message.NewText("gone"))
	assert.ErrorIs(t, err, ErrNotMember)
	_, err = n.room.Leave(alice)
	assert.ErrorIs(t, err, ErrNotMember)
}

// ============================================================================
//                              成员 ID 冲突
// ============================================================================

func TestRoom_MemberCollision(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	key := types.GenerateRoomKey()
	n := newNode(t, memory.NewHub(), key, clk, nil)
	alice, bob := newHandle(t, ""), newHandle(t, "")

	require.NoError(t, n.room.Open(ctx, alice))
	shared := memberID(t, alice, key)

	// bob 以同一成员 ID、不同公钥、同一时间戳加入
	bob.SetMemberID(key, shared)
	require.NoError(t, n.room.Enter(ctx, bob, types.EmptyPeerID))

	aliceID, bobID := memberID(t, alice, key), memberID(t, bob, key)
	assert.NotEqual(t, aliceID, bobID)

	reassigned := 0
	for _, id := range []types.MemberID{aliceID, bobID} {
		if id != shared {
			reassigned++
		}
	}
	assert.Equal(t, 1, reassigned, "exactly one handle gives up the shared id")

	// 被重新分配的一方可以继续发送
	for _, h := range []*handle.Handle{alice, bob} {
		_, err := n.room.Send(h, message.NewText("still here"))
		require.NoError(t, err)
	}
}

// ============================================================================
//                              删除
// ============================================================================

func TestRoom_Delete(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	key := types.GenerateRoomKey()
	n := newNode(t, memory.NewHub(), key, clk, nil)
	alice, bob := newHandle(t, ""), newHandle(t, "")

	require.NoError(t, n.room.Open(ctx, alice))
	require.NoError(t, n.room.Enter(ctx, bob, types.EmptyPeerID))

	hash, err := n.room.Send(alice, message.NewText("secret"))
	require.NoError(t, err)

	_, err = n.room.Delete(bob, hash, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = n.room.Delete(alice, hash, -1)
	assert.ErrorIs(t, err, operation.ErrOperationDenied)

	_, err = n.room.Delete(alice, hash, time.Minute)
	require.NoError(t, err)

	_, err = n.room.Delete(alice, hash, time.Minute)
	assert.ErrorIs(t, err, operation.ErrOperationConflict)
	assert.NotNil(t, n.room.Message(hash))

	clk.Add(time.Minute)
	require.Eventually(t, func() bool {
		return n.room.IsDeleted(hash)
	}, waitFor, 10*time.Millisecond)
	assert.Nil(t, n.room.Message(hash))

	ev := waitEvent(t, bob, func(ev handle.Event) bool { return ev.Kind == handle.EventDeleted })
	assert.Equal(t, hash, ev.Hash)
}

// ============================================================================
//                              入站校验
// ============================================================================

func TestRoom_VerifyInbound(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	require.NoError(t, n.room.Open(context.Background(), newHandle(t, "")))
	chain := n.room.ChainHash()

	unknown := &message.Message{Header: message.Header{Kind: message.Kind(99)}}
	assert.ErrorIs(t, n.room.VerifyInbound(unknown, types.EmptyHash), message.ErrUnknownKind)

	late := message.NewText("late")
	late.Previous = chain
	late.Timestamp = types.FromTime(clk.Now().Add(-time.Second))
	assert.ErrorIs(t, n.room.VerifyInbound(late, types.HashBytes([]byte("late"))), ErrTimestampMismatch)

	same := message.NewText("same")
	same.Previous = chain
	same.Timestamp = types.Now(clk)
	assert.NoError(t, n.room.VerifyInbound(same, types.HashBytes([]byte("same"))))

	// 前驱未知时无从比较
	orphan := message.NewText("orphan")
	orphan.Previous = types.HashBytes([]byte("unknown"))
	assert.NoError(t, n.room.VerifyInbound(orphan, types.HashBytes([]byte("orphan"))))
}

func TestRoom_DuplicateIsIdempotent(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	require.NoError(t, n.room.Open(context.Background(), newHandle(t, "")))

	other, err := identity.Generate()
	require.NoError(t, err)
	ch := attachMock(t, n.room, other.PeerID())

	data, hash := signedPeer(t, other, clk)
	n.room.HandleReceive(ch, data)
	frontier := n.room.ChainHash()
	n.room.HandleReceive(ch, data)

	assert.Equal(t, frontier, n.room.ChainHash())
	assert.NotNil(t, n.room.Message(hash))
	assert.ElementsMatch(t, []types.PeerID{n.id.PeerID(), other.PeerID()}, n.room.BasementPeers())
}

func TestRoom_RejectsMalformedFrame(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	require.NoError(t, n.room.Open(context.Background(), newHandle(t, "")))

	other, err := identity.Generate()
	require.NoError(t, err)
	ch := attachMock(t, n.room, other.PeerID())
	chain := n.room.ChainHash()

	n.room.HandleReceive(ch, []byte{1, 2, 3})
	n.room.HandleReceive(ch, make([]byte, message.MinSize))

	assert.Equal(t, chain, n.room.ChainHash())
	assert.True(t, n.room.IsConnected(other.PeerID()), "channel stays up")
}

// ============================================================================
//                              合并
// ============================================================================

// fork 注入一条不以当前链头为前驱的节点消息
func fork(t *testing.T, n *node, clk clock.Clock) types.Hash {
	t.Helper()
	other, err := identity.Generate()
	require.NoError(t, err)
	ch := attachMock(t, n.room, other.PeerID())
	data, hash := signedPeer(t, other, clk)
	n.room.HandleReceive(ch, data)

	_, forked := n.room.MergeHash()
	require.True(t, forked)
	return hash
}

func TestRoom_SendFlushesMerge(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	h := newHandle(t, "")
	require.NoError(t, n.room.Open(context.Background(), h))
	fork(t, n, clk)

	hash, err := n.room.Send(h, message.NewText("after fork"))
	require.NoError(t, err)

	_, forked := n.room.MergeHash()
	assert.False(t, forked)
	assert.Equal(t, hash, n.room.ChainHash())

	text := n.room.Message(hash)
	require.NotNil(t, text)
	merge := n.room.Message(text.Previous)
	require.NotNil(t, merge)
	assert.Equal(t, message.KindMerge, merge.Kind)
}

func TestRoom_IdleMerge(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	require.NoError(t, n.room.Open(context.Background(), newHandle(t, "")))
	fork(t, n, clk)
	mh, _ := n.room.MergeHash()

	cfg := DefaultConfig()
	clk.Add(cfg.IdleDelay)
	require.Eventually(t, func() bool {
		return n.room.ops.Kind(mh) == operation.KindMerge
	}, waitFor, 10*time.Millisecond)

	clk.Add(cfg.MergeDelay)
	require.Eventually(t, func() bool {
		_, forked := n.room.MergeHash()
		return !forked
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, message.KindMerge, n.room.Message(n.room.ChainHash()).Kind)
}

// ============================================================================
//                              持久化
// ============================================================================

func TestRoom_Persistence(t *testing.T) {
	eng, root, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	clk := newClock()
	hub := memory.NewHub()
	key := types.GenerateRoomKey()
	store := root.SubStore([]byte("r/" + key.String() + "/"))

	id, err := identity.Generate()
	require.NoError(t, err)
	first := newNodeWith(t, hub, id, key, clk, store)
	h := newHandle(t, "alice")
	require.NoError(t, first.room.Open(ctx, h))
	hash, err := first.room.Send(h, message.NewText("persisted"))
	require.NoError(t, err)
	require.NoError(t, first.room.Close())
	require.NoError(t, first.room.Close(), "close is idempotent")

	second := newNodeWith(t, hub, id, key, clk, store)
	assert.Equal(t, hash, second.room.ChainHash())
	msg := second.room.Message(hash)
	require.NotNil(t, msg)
	assert.Equal(t, "persisted", msg.Text)
	assert.Equal(t, []types.PeerID{id.PeerID()}, second.room.BasementPeers())

	// 以原成员 ID 重新加入
	require.NoError(t, second.room.Open(ctx, h))
	_, err = second.room.Send(h, message.NewText("again"))
	require.NoError(t, err)
	require.NoError(t, second.room.Close())
}

func TestRoom_Closed(t *testing.T) {
	clk := newClock()
	n := newNode(t, memory.NewHub(), types.GenerateRoomKey(), clk, nil)
	h := newHandle(t, "")
	require.NoError(t, n.room.Open(context.Background(), h))
	require.NoError(t, n.room.Close())

	assert.False(t, n.room.IsOpen())
	_, err := n.room.Send(h, message.NewText("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, n.room.Open(context.Background(), h), ErrClosed)
}
