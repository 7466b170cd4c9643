// Package room 房间编排
//
// Room 组合成员存储、消息存储、操作存储、消息状态、Basement 与隧道集合，
// 对外提供打开/进入、发送、删除，并作为 ChannelHandler 处理入站流量。
//
// 状态机：Created → Open（端口已绑定，接受隧道）→ {Joined | NotJoined} → Destroyed。
//
// 房间的全部状态由 mu 保护。通道回调、定时器回调与本地调用都先取得 mu，
// 因此分派过程中不会并发修改；阻塞的通道建立在锁外的 goroutine 中完成。
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/multierr"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/internal/core/metrics"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/internal/messenger/basement"
	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/internal/messenger/handle"
	"github.com/dep2p/go-messenger/internal/messenger/member"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/msgstore"
	"github.com/dep2p/go-messenger/internal/messenger/operation"
	"github.com/dep2p/go-messenger/internal/messenger/state"
	"github.com/dep2p/go-messenger/internal/messenger/tunnel"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/room")

var (
	// ErrPermissionDenied 会话不拥有目标消息
	ErrPermissionDenied = errors.New("room: permission denied")

	// ErrTimestampMismatch 消息时间戳早于其前驱
	ErrTimestampMismatch = errors.New("room: timestamp mismatch")

	// ErrNotMember Handle 尚未加入房间
	ErrNotMember = errors.New("room: handle has not joined")

	// ErrReservedKind 该类型只能由房间自身发送
	ErrReservedKind = errors.New("room: reserved message kind")

	// ErrClosed 房间已销毁
	ErrClosed = errors.New("room: closed")
)

// Config 房间协议参数
type Config struct {
	Version         uint32
	IdleDelay       time.Duration
	MergeDelay      time.Duration
	RequestDelay    time.Duration
	DialTimeout     time.Duration
	ReceiveRate     float64
	ReceiveBurst    int
	AnswerCacheSize int
	AnswerCacheTTL  time.Duration

	PendingMembers   int
	PendingPerMember int
	PendingTTL       time.Duration
}

// ConfigFrom 由统一配置构造房间参数
func ConfigFrom(m config.MessengerConfig, c config.ChannelConfig) Config {
	return Config{
		Version:         m.Version,
		IdleDelay:       m.IdleDelay.Duration(),
		MergeDelay:      m.MergeDelay.Duration(),
		RequestDelay:    m.RequestDelay.Duration(),
		DialTimeout:     c.DialTimeout.Duration(),
		ReceiveRate:     m.ReceiveRate,
		ReceiveBurst:    m.ReceiveBurst,
		AnswerCacheSize: m.AnswerCacheSize,
		AnswerCacheTTL:  m.AnswerCacheTTL.Duration(),

		PendingMembers:   m.PendingMembers,
		PendingPerMember: m.PendingPerMember,
		PendingTTL:       m.PendingTTL.Duration(),
	}
}

// DefaultConfig 返回默认房间参数
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultMessengerConfig(), config.DefaultChannelConfig())
}

// Deps 房间依赖的协作者
type Deps struct {
	// Identity 本节点身份，用于签发节点消息
	Identity *identity.Identity

	// Channels 通道服务
	Channels interfaces.ChannelService

	// Contacts 共享联系人存储，为 nil 时房间独占一个
	Contacts *contact.Store

	// Anonymous 匿名身份上下文
	Anonymous *crypto.Anonymous

	// Store 房间的持久化子存储，nil 表示不持久化
	Store *kv.Store

	// Clock 时钟，为 nil 时使用系统时钟
	Clock clock.Clock

	// Metrics 可选
	Metrics *metrics.Metrics
}

// pending 处理队列中的一条消息
type pending struct {
	msg    *message.Message
	hash   types.Hash
	origin *handle.Handle
	recent bool
}

// answerKey 已应答的 REQUEST
type answerKey struct {
	peer types.PeerID
	hash types.Hash
}

// Room 房间
type Room struct {
	key      types.RoomKey
	port     types.Port
	cfg      Config
	id       *identity.Identity
	self     types.PeerID
	channels interfaces.ChannelService
	contacts *contact.Store
	store    *kv.Store
	clock    clock.Clock
	metrics  *metrics.Metrics
	answered *expirable.LRU[answerKey, struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	members     *member.Store
	messages    *msgstore.Store
	ops         *operation.Store
	state       *state.State
	basement    *basement.Basement
	tunnels     map[types.PeerID]*tunnel.Tunnel
	handles     map[*handle.Handle]struct{}
	requested   map[types.Hash]struct{}
	unresolved  *expirable.LRU[types.MemberID, []pending]
	handling    []pending
	peerMessage types.Hash
	idle        *clock.Timer
	opened      bool
	closed      bool
}

// New 创建房间，配置了持久化时加载已保存的状态
func New(key types.RoomKey, cfg Config, deps Deps) (*Room, error) {
	if deps.Identity == nil || deps.Channels == nil {
		return nil, errors.New("room: identity and channel service are required")
	}
	if deps.Anonymous == nil {
		deps.Anonymous = crypto.NewAnonymous()
	}
	if deps.Contacts == nil {
		deps.Contacts = contact.NewStore(deps.Anonymous)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		key:        key,
		port:       types.DerivePort(key, cfg.Version),
		cfg:        cfg,
		id:         deps.Identity,
		self:       deps.Identity.PeerID(),
		channels:   deps.Channels,
		contacts:   deps.Contacts,
		store:      deps.Store,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		answered:   expirable.NewLRU[answerKey, struct{}](cfg.AnswerCacheSize, nil, cfg.AnswerCacheTTL),
		ctx:        ctx,
		cancel:     cancel,
		members:    member.NewStore(key, deps.Contacts),
		messages:   msgstore.New(),
		state:      state.New(),
		basement:   basement.New(),
		tunnels:    make(map[types.PeerID]*tunnel.Tunnel),
		handles:    make(map[*handle.Handle]struct{}),
		requested:  make(map[types.Hash]struct{}),
		unresolved: expirable.NewLRU[types.MemberID, []pending](cfg.PendingMembers, nil, cfg.PendingTTL),
	}
	r.ops = operation.NewStore(deps.Clock, opHandler{r})

	if r.store != nil {
		r.mu.Lock()
		err := r.loadLocked()
		r.mu.Unlock()
		if err != nil {
			r.ops.Close()
			cancel()
			return nil, fmt.Errorf("load room %s: %w", key.ShortString(), err)
		}
	}

	r.metrics.RoomOpened()
	logger.Debug("创建房间", "room", key.ShortString(), "port", types.Hash(r.port).ShortString())
	return r, nil
}

// Key 返回房间密钥
func (r *Room) Key() types.RoomKey {
	return r.key
}

// Port 返回房间端口
func (r *Room) Port() types.Port {
	return r.port
}

// Open 绑定房间端口、发布 PEER 消息并以 h 加入房间
func (r *Room) Open(ctx context.Context, h *handle.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	if !r.opened {
		if err := r.channels.Open(r.port, r); err != nil {
			return fmt.Errorf("open room port: %w", err)
		}
		r.opened = true
		r.startIdleLocked()

		if _, err := r.sendPeerLocked(message.NewPeer(r.self)); err != nil {
			return err
		}
		logger.Info("房间已打开", "room", r.key.ShortString())
	}
	return r.joinLocked(h)
}

// Enter 经由 door 节点进入房间并以 h 加入
//
// door 为本节点或空时只在本地加入。
func (r *Room) Enter(ctx context.Context, h *handle.Handle, door types.PeerID) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.startIdleLocked()
	var t *tunnel.Tunnel
	if !door.IsEmpty() && door != r.self {
		t = r.tunnelLocked(door)
	}
	r.mu.Unlock()

	if t != nil {
		err := t.Connect(ctx)
		if err != nil && !errors.Is(err, tunnel.ErrAlreadyConnected) {
			return err
		}
		if err == nil {
			r.mu.Lock()
			if !r.closed {
				r.onConnectedLocked(t)
			}
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.joinLocked(h)
}

// Leave 发送 LEAVE 并移除 h，返回剩余的本地 Handle 数量
func (r *Room) Leave(h *handle.Handle) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	if _, ok := r.handles[h]; !ok {
		return len(r.handles), ErrNotMember
	}

	_, err := r.sendLocked(h, message.NewLeave())
	delete(r.handles, h)
	h.RemoveRoom(r.key)
	return len(r.handles), err
}

// Close 销毁房间
//
// 停止空闲定时器与全部操作，保存状态（如已配置），关闭端口与所有隧道。
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.idle != nil {
		r.idle.Stop()
	}

	var err error
	if r.store != nil {
		err = multierr.Append(err, r.saveLocked())
	}
	r.ops.Close()
	r.handling = nil
	r.unresolved.Purge()

	tunnels := make([]*tunnel.Tunnel, 0, len(r.tunnels))
	for _, t := range r.tunnels {
		tunnels = append(tunnels, t)
	}
	opened := r.opened
	r.handles = make(map[*handle.Handle]struct{})
	r.mu.Unlock()

	r.cancel()
	if opened {
		err = multierr.Append(err, r.channels.ClosePort(r.port))
	}
	for _, t := range tunnels {
		if t.Disconnect() {
			r.metrics.TunnelDisconnected()
		}
	}
	r.wg.Wait()

	r.mu.Lock()
	r.members.Close()
	r.mu.Unlock()

	r.metrics.RoomClosed()
	logger.Info("房间已销毁", "room", r.key.ShortString())
	return err
}

// ============================================================================
//                              查询
// ============================================================================

// IsOpen 端口是否已绑定
func (r *Room) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened && !r.closed
}

// Joined h 是否已加入
func (r *Room) Joined(h *handle.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[h]
	return ok
}

// HandleCount 返回已加入的本地 Handle 数量
func (r *Room) HandleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// ChainHash 返回当前链头
func (r *Room) ChainHash() types.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ChainHash()
}

// MergeHash 返回待合并的哈希
func (r *Room) MergeHash() (types.Hash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.MergeHash()
}

// Message 返回已存储的消息
func (r *Room) Message(hash types.Hash) *message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages.Get(hash)
}

// IsDeleted 消息是否已被删除
func (r *Room) IsDeleted(hash types.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages.IsDeleted(hash)
}

// BasementPeers 返回覆盖网节点
func (r *Room) BasementPeers() []types.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.basement.Peers()
}

// IsConnected 是否有到 peer 的可用隧道
func (r *Room) IsConnected(peer types.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tunnels[peer]
	return ok && t.IsConnected()
}

// ============================================================================
//                              内部
// ============================================================================

func (r *Room) relayingLocked() bool {
	return !r.peerMessage.IsEmpty()
}

// requiredLocked 按 Basement 规则本节点是否需要直连 peer
func (r *Room) requiredLocked(peer types.PeerID) bool {
	return basement.RequiredConnection(r.basement.Len(), r.basement.Index(r.self), r.basement.Index(peer))
}

func (r *Room) tunnelLocked(peer types.PeerID) *tunnel.Tunnel {
	if t, ok := r.tunnels[peer]; ok {
		return t
	}
	t := tunnel.New(r.channels, r.port, peer, r, tunnel.Config{
		Version:      r.cfg.Version,
		ReceiveRate:  r.cfg.ReceiveRate,
		ReceiveBurst: r.cfg.ReceiveBurst,
	})
	r.tunnels[peer] = t
	return t
}

// sessionOfLocked 返回 h 在房间中的当前会话
func (r *Room) sessionOfLocked(h *handle.Handle) *member.Session {
	id, ok := h.MemberID(r.key)
	if !ok {
		return nil
	}
	m := r.members.Get(id)
	if m == nil {
		return nil
	}
	return m.Session(h.PublicKey())
}

// localHandleLocked 返回持有 id 且公钥为 key 的本地 Handle
func (r *Room) localHandleLocked(id types.MemberID, key crypto.PublicKey) *handle.Handle {
	for h := range r.handles {
		if hid, ok := h.MemberID(r.key); ok && hid == id && h.PublicKey().Equals(key) {
			return h
		}
	}
	return nil
}

// nowAfterLocked 返回不早于 previous 时间戳的当前时间
func (r *Room) nowAfterLocked(previous types.Hash) types.Timestamp {
	now := types.Now(r.clock)
	if prev := r.messages.Get(previous); prev != nil && prev.Timestamp > now {
		return prev.Timestamp
	}
	return now
}

func (r *Room) startIdleLocked() {
	if r.idle != nil {
		return
	}
	r.idle = r.clock.AfterFunc(r.cfg.IdleDelay, r.onIdle)
}

// onIdle 存在未合并的分叉且没有挂起的合并时安排一次 MERGE
func (r *Room) onIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if mh, ok := r.state.MergeHash(); ok && r.ops.Kind(mh) == operation.KindUnknown {
		if err := r.ops.Use(mh, operation.KindMerge, r.cfg.MergeDelay); err == nil {
			logger.Debug("安排合并", "room", r.key.ShortString(), "hash", mh.ShortString())
		}
	}
	r.idle = r.clock.AfterFunc(r.cfg.IdleDelay, r.onIdle)
}
