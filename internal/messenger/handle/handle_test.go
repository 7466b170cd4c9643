package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/internal/core/storage"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

func TestHandle_Anonymous(t *testing.T) {
	anon := crypto.NewAnonymous()
	h := New(nil, anon, "", 4)

	assert.True(t, h.IsAnonymous())
	assert.Nil(t, h.Ego())
	assert.True(t, anon.IsAnonymous(h.PublicKey()))
	assert.True(t, h.SigningKey().Equals(anon.PrivateKey()))
}

func TestHandle_Ego(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	h := New(priv, crypto.NewAnonymous(), "alice", 4)

	assert.False(t, h.IsAnonymous())
	assert.True(t, h.PublicKey().Equals(pub))
	assert.Equal(t, "alice", h.Name())
	h.SetName("bob")
	assert.Equal(t, "bob", h.Name())
}

func TestHandle_Rooms(t *testing.T) {
	h := New(nil, crypto.NewAnonymous(), "", 4)
	room := types.GenerateRoomKey()
	id := types.GenerateMemberID()

	_, ok := h.MemberID(room)
	assert.False(t, ok)

	h.SetMemberID(room, id)
	got, ok := h.MemberID(room)
	assert.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, []types.RoomKey{room}, h.Rooms())

	h.RemoveRoom(room)
	assert.Empty(t, h.Rooms())
}

func TestHandle_NotifyDropsWhenFull(t *testing.T) {
	h := New(nil, crypto.NewAnonymous(), "", 2)

	assert.True(t, h.Notify(Event{Kind: EventMessage}))
	assert.True(t, h.Notify(Event{Kind: EventDeleted}))
	assert.False(t, h.Notify(Event{Kind: EventMessage}))

	ev := <-h.Events()
	assert.Equal(t, EventMessage, ev.Kind)
	ev = <-h.Events()
	assert.Equal(t, EventDeleted, ev.Kind)

	h.Close()
	h.Close()
	assert.False(t, h.Notify(Event{Kind: EventMessage}))
	_, open := <-h.Events()
	assert.False(t, open)
}

func TestHandle_SaveLoad(t *testing.T) {
	eng, root, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer eng.Close()

	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	anon := crypto.NewAnonymous()

	h := New(priv, anon, "", 4)
	r1, r2 := types.GenerateRoomKey(), types.GenerateRoomKey()
	id1, id2 := types.GenerateMemberID(), types.GenerateMemberID()
	h.SetMemberID(r1, id1)
	h.SetMemberID(r2, id2)
	require.NoError(t, h.Save(root))

	// 再次保存会覆盖已移除的房间
	h.RemoveRoom(r2)
	require.NoError(t, h.Save(root))

	loaded := New(priv, anon, "", 4)
	require.NoError(t, loaded.Load(root))
	got, ok := loaded.MemberID(r1)
	assert.True(t, ok)
	assert.Equal(t, id1, got)
	_, ok = loaded.MemberID(r2)
	assert.False(t, ok)

	// 匿名 Handle 不持久化
	anonymous := New(nil, anon, "", 4)
	anonymous.SetMemberID(r1, id1)
	require.NoError(t, anonymous.Save(root))
	fresh := New(nil, anon, "", 4)
	require.NoError(t, fresh.Load(root))
	assert.Empty(t, fresh.Rooms())
}
