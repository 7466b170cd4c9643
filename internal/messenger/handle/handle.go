// Package handle 本地客户端会话
//
// Handle 绑定一个身份（ego，为空时使用匿名身份），并记录它在各个房间中的成员 ID。
// 房间把消息通知以 Event 投递到 Handle 的缓冲通道，缓冲区满时丢弃并记录告警。
package handle

import (
	"strings"
	"sync"

	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/handle")

// EventKind 事件类型
type EventKind uint8

const (
	// EventMessage 房间消息
	EventMessage EventKind = iota + 1
	// EventDeleted 消息已被删除
	EventDeleted
	// EventMemberID 本 Handle 在房间中的成员 ID 变更
	EventMemberID
)

// Flags 消息事件标志
type Flags uint8

const (
	// FlagSent 消息由本 Handle 发出
	FlagSent Flags = 1 << iota
	// FlagRecent 消息是在线期间新到达的（而非加入时的回放）
	FlagRecent
)

// Event 投递给 Handle 的事件
type Event struct {
	Kind    EventKind
	Room    types.RoomKey
	Hash    types.Hash
	Message *message.Message
	Sender  *contact.Contact
	Member  types.MemberID
	Flags   Flags
}

// Handle 本地客户端会话
type Handle struct {
	anonymous *crypto.Anonymous
	events    chan Event

	mu     sync.Mutex
	ego    crypto.PrivateKey
	name   string
	rooms  map[types.RoomKey]types.MemberID
	closed bool
}

// New 创建 Handle
//
// ego 为 nil 时使用匿名身份；buffer 为事件通道容量。
func New(ego crypto.PrivateKey, anonymous *crypto.Anonymous, name string, buffer int) *Handle {
	if buffer <= 0 {
		buffer = 1
	}
	return &Handle{
		ego:       ego,
		anonymous: anonymous,
		events:    make(chan Event, buffer),
		name:      name,
		rooms:     make(map[types.RoomKey]types.MemberID),
	}
}

// Ego 返回身份私钥，匿名时为 nil
func (h *Handle) Ego() crypto.PrivateKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ego
}

// SetEgo 更换身份私钥（KEY 轮换之后）
func (h *Handle) SetEgo(ego crypto.PrivateKey) {
	h.mu.Lock()
	h.ego = ego
	h.mu.Unlock()
}

// IsAnonymous 是否匿名
func (h *Handle) IsAnonymous() bool {
	return h.Ego() == nil
}

// SigningKey 返回签名使用的私钥
func (h *Handle) SigningKey() crypto.PrivateKey {
	if ego := h.Ego(); ego != nil {
		return ego
	}
	return h.anonymous.PrivateKey()
}

// PublicKey 返回会话公钥
func (h *Handle) PublicKey() crypto.PublicKey {
	if ego := h.Ego(); ego != nil {
		return ego.GetPublic()
	}
	return h.anonymous.PublicKey()
}

// Name 返回显示名
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// SetName 设置显示名
func (h *Handle) SetName(name string) {
	h.mu.Lock()
	h.name = name
	h.mu.Unlock()
}

// MemberID 返回 Handle 在房间中的成员 ID
func (h *Handle) MemberID(room types.RoomKey) (types.MemberID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.rooms[room]
	return id, ok
}

// SetMemberID 设置 Handle 在房间中的成员 ID
func (h *Handle) SetMemberID(room types.RoomKey, id types.MemberID) {
	h.mu.Lock()
	h.rooms[room] = id
	h.mu.Unlock()
}

// RemoveRoom 移除房间映射
func (h *Handle) RemoveRoom(room types.RoomKey) {
	h.mu.Lock()
	delete(h.rooms, room)
	h.mu.Unlock()
}

// Rooms 返回 Handle 所在的房间
func (h *Handle) Rooms() []types.RoomKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.RoomKey, 0, len(h.rooms))
	for k := range h.rooms {
		out = append(out, k)
	}
	return out
}

// Events 返回事件通道，Close 后关闭
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Notify 非阻塞投递事件，返回是否投递成功
func (h *Handle) Notify(ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.events <- ev:
		return true
	default:
		logger.Warn("事件缓冲区已满，丢弃事件",
			"room", ev.Room.ShortString(),
			"hash", ev.Hash.ShortString(),
			"kind", ev.Kind)
		return false
	}
}

// Close 关闭事件通道
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.events)
}

// ============================================================================
//                              持久化
// ============================================================================

// 键布局：i/<ego 公钥哈希>/<room> -> member id
const identitiesPrefix = "i/"

func (h *Handle) prefix() []byte {
	return []byte(identitiesPrefix + crypto.KeyHash(h.PublicKey()).String() + "/")
}

// Save 保存房间到成员 ID 的映射，匿名 Handle 不保存
func (h *Handle) Save(store *kv.Store) error {
	if h.IsAnonymous() || store == nil {
		return nil
	}
	prefix := h.prefix()
	if err := store.DeletePrefix(prefix); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	batch := store.NewBatch()
	for room, id := range h.rooms {
		batch.Put(append(append([]byte(nil), prefix...), room.String()...), id.Bytes())
	}
	return batch.Write()
}

// Load 加载房间到成员 ID 的映射
func (h *Handle) Load(store *kv.Store) error {
	if h.IsAnonymous() || store == nil {
		return nil
	}
	prefix := h.prefix()

	h.mu.Lock()
	defer h.mu.Unlock()
	return store.PrefixScan(prefix, func(key, value []byte) bool {
		roomText := strings.TrimPrefix(string(key), string(prefix))
		room, err := types.ParseRoomKey(roomText)
		if err != nil {
			logger.Warn("跳过无效的房间映射", "key", string(key), "error", err)
			return true
		}
		id, err := types.MemberIDFromBytes(value)
		if err != nil {
			logger.Warn("跳过无效的成员 ID", "room", room.ShortString(), "error", err)
			return true
		}
		h.rooms[room] = id
		return true
	})
}
