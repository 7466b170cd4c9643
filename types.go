package messenger

import (
	"github.com/dep2p/go-messenger/internal/core/channel/memory"
	"github.com/dep2p/go-messenger/internal/messenger/handle"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/room"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
//
// 表示节点在生命周期中的当前阶段。
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateInitializing 初始化中（Fx App 启动中）
	StateInitializing

	// StateRunning 运行中（正常工作状态）
	StateRunning

	// StateClosed 已关闭（不可重新启动）
	StateClosed
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// Handle 本地客户端在节点上的入口，持有身份并接收事件
	Handle = handle.Handle

	// Event 投递给 Handle 的事件
	Event = handle.Event

	// Room 房间实例
	Room = room.Room

	// Message 房间消息
	Message = message.Message

	// PrivateKey 身份私钥
	PrivateKey = crypto.PrivateKey

	// PeerID 节点 ID
	PeerID = types.PeerID

	// RoomKey 房间密钥
	RoomKey = types.RoomKey

	// Hash 消息哈希
	Hash = types.Hash

	// Hub 进程内通道 Hub，共享同一 Hub 的节点可以互相连接
	Hub = memory.Hub
)

// 事件类型
const (
	EventMessage  = handle.EventMessage
	EventMemberID = handle.EventMemberID
	EventDeleted  = handle.EventDeleted
)

// NewHub 创建进程内通道 Hub
func NewHub() *Hub {
	return memory.NewHub()
}

// GenerateKey 生成新的身份私钥
func GenerateKey() (PrivateKey, error) {
	priv, _, err := crypto.GenerateKeyPair()
	return priv, err
}

// RoomKeyFromName 由房间名派生房间密钥
func RoomKeyFromName(name string) RoomKey {
	return types.DeriveRoomKeyFromName(name)
}
