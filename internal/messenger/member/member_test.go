package member

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/internal/core/storage"
	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

type fixture struct {
	room     types.RoomKey
	contacts *contact.Store
	store    *Store
}

func newFixture() *fixture {
	room := types.GenerateRoomKey()
	contacts := contact.NewStore(crypto.NewAnonymous())
	return &fixture{room: room, contacts: contacts, store: NewStore(room, contacts)}
}

// signed 签名消息并返回其哈希
func signed(t *testing.T, m *message.Message, priv crypto.PrivateKey) types.Hash {
	t.Helper()
	data, err := message.Sign(m, priv)
	require.NoError(t, err)
	return message.Hash(data)
}

func genKey(t *testing.T) (crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return priv, pub
}

func TestStore_Generate(t *testing.T) {
	f := newFixture()
	seen := make(map[types.MemberID]bool)
	for i := 0; i < 16; i++ {
		id := f.store.Generate()
		assert.False(t, seen[id])
		assert.Nil(t, f.store.Get(id))
		f.store.Add(id)
		seen[id] = true
	}
	assert.Equal(t, 16, f.store.Len())
}

func TestMember_SessionFor(t *testing.T) {
	f := newFixture()
	priv, pub := genKey(t)
	otherPriv, _ := genKey(t)
	m := f.store.Add(f.store.Generate())

	join := message.NewJoin(pub)
	join.SenderID = m.ID()
	join.Timestamp = 10
	jh := signed(t, join, priv)

	s := m.SessionFor(join, jh)
	require.NotNil(t, s)
	assert.True(t, s.Key().Equals(pub))
	s.Reset(join.Timestamp)
	s.UpdateHistory(join, jh)

	// 签名由会话公钥产生的后续消息归属该会话
	text := message.NewText("hi")
	text.SenderID = m.ID()
	th := signed(t, text, priv)
	assert.Same(t, s, m.SessionFor(text, th))

	// 别人签的消息没有归属
	forged := message.NewText("hi")
	forged.SenderID = m.ID()
	fh := signed(t, forged, otherPriv)
	assert.Nil(t, m.SessionFor(forged, fh))

	// JOIN 的签名必须来自消息内的公钥
	badJoin := message.NewJoin(pub)
	bh := signed(t, badJoin, otherPriv)
	assert.Nil(t, m.SessionFor(badJoin, bh))
}

func TestSession_SwitchKey(t *testing.T) {
	f := newFixture()
	_, oldKey := genKey(t)
	_, newKey := genKey(t)
	m := f.store.Add(f.store.Generate())

	s := m.TrySession(oldKey)
	s.Contact().SetName("alice")
	authored := types.HashBytes([]byte("authored"))
	s.UpdateHistory(message.NewText("x"), authored)

	key := message.NewKey(newKey)
	key.Timestamp = 50
	next, err := s.Switch(key, types.HashBytes([]byte("key")))
	require.NoError(t, err)

	assert.Same(t, next, s.Next())
	assert.Same(t, s, next.Prev())
	assert.True(t, s.IsClosed())
	assert.Equal(t, s.IsClosed() && s.Next() != nil, s.Completed())
	assert.Nil(t, m.Session(oldKey), "completed session leaves the member map")
	assert.Same(t, next, m.Session(newKey))

	// 历史复制但不继承所有权
	assert.True(t, next.CheckHistory(authored, false))
	assert.False(t, next.CheckHistory(authored, true))
	assert.True(t, s.CheckHistory(authored, true))

	// 联系人迁到新公钥并保留名字
	assert.True(t, next.Contact().Key().Equals(newKey))
	assert.Equal(t, "alice", next.Contact().Name())
	assert.Same(t, next.Contact(), s.Contact())
	assert.Equal(t, types.Timestamp(50), next.Start())
}

func TestSession_SwitchID(t *testing.T) {
	f := newFixture()
	_, pub := genKey(t)
	m := f.store.Add(f.store.Generate())
	s := m.TrySession(pub)

	newID := f.store.Generate()
	next, err := s.Switch(message.NewID(newID), types.HashBytes([]byte("id")))
	require.NoError(t, err)

	assert.Equal(t, newID, next.Member().ID())
	assert.True(t, next.Key().Equals(pub))
	assert.True(t, s.Completed())
	assert.Empty(t, m.Sessions())
	assert.Same(t, s, next.Oldest())

	// 已完成的会话不能再切换
	_, err = s.Switch(message.NewID(f.store.Generate()), types.EmptyHash)
	assert.ErrorIs(t, err, ErrSessionCompleted)

	// 切到相同 ID 无效
	_, err = next.Switch(message.NewID(newID), types.EmptyHash)
	assert.ErrorIs(t, err, ErrInvalidSwitch)
}

func TestSession_HistoryPropagatesToSuccessors(t *testing.T) {
	f := newFixture()
	_, k1 := genKey(t)
	_, k2 := genKey(t)
	m := f.store.Add(f.store.Generate())
	s := m.TrySession(k1)
	next, err := s.Switch(message.NewKey(k2), types.EmptyHash)
	require.NoError(t, err)

	// 前驱晚到的消息对后继可见但不归其所有
	late := types.HashBytes([]byte("late"))
	s.UpdateHistory(message.NewText("late"), late)
	assert.True(t, next.CheckHistory(late, false))
	assert.False(t, next.CheckHistory(late, true))
}

func TestSession_CloseWithoutNext(t *testing.T) {
	f := newFixture()
	_, pub := genKey(t)
	m := f.store.Add(f.store.Generate())
	s := m.TrySession(pub)

	s.Close()
	assert.True(t, s.IsClosed())
	assert.False(t, s.Completed())
	assert.Same(t, s, m.Session(pub))

	s.Reset(99)
	assert.False(t, s.IsClosed())
	assert.Equal(t, types.Timestamp(99), s.Start())
}

func TestStore_SaveLoad(t *testing.T) {
	eng, root, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer eng.Close()
	kvs := root.SubStore([]byte("r/room/"))

	f := newFixture()
	_, k1 := genKey(t)
	_, k2 := genKey(t)
	m := f.store.Add(f.store.Generate())
	s := m.TrySession(k1)
	s.Reset(5)
	s.Contact().SetName("bob")
	h1 := types.HashBytes([]byte("1"))
	h2 := types.HashBytes([]byte("2"))
	s.UpdateHistory(message.NewText("1"), h1)
	s.UpdateHistory(message.NewText("2"), h2)

	other := f.store.Add(f.store.Generate()).TrySession(k2)
	other.Close()

	require.NoError(t, f.store.Save(kvs))

	loaded := NewStore(f.room, contact.NewStore(crypto.NewAnonymous()))
	require.NoError(t, loaded.Load(kvs))
	assert.Equal(t, 2, loaded.Len())

	ls := loaded.Get(m.ID()).Session(k1)
	require.NotNil(t, ls)
	assert.Equal(t, []types.Hash{h1, h2}, ls.Authored())
	assert.True(t, ls.CheckHistory(h2, true))
	assert.Equal(t, types.Timestamp(5), ls.Start())
	assert.Equal(t, "bob", ls.Contact().Name())

	lo := loaded.Get(other.Member().ID()).Session(k2)
	require.NotNil(t, lo)
	assert.True(t, lo.IsClosed())
}

func TestHistory_Malformed(t *testing.T) {
	f := newFixture()
	_, pub := genKey(t)
	s := f.store.Add(f.store.Generate()).TrySession(pub)

	assert.ErrorIs(t, decodeHistory(s, []byte{0x0a, 0x05, 0x01}), errBadHistory)
}
