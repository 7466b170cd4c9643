package messenger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/internal/core/metrics"
	imessenger "github.com/dep2p/go-messenger/internal/messenger"
	"github.com/dep2p/go-messenger/pkg/lib/log"
)

var logger = log.Logger("messenger/node")

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = "v0.1.0"

// BuildInfo 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "go-messenger " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期常量
// ════════════════════════════════════════════════════════════════════════════

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// shutdownTimeout 关闭超时（Fx App Stop）
	shutdownTimeout = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// Node 消息节点
//
// 由 Fx 组装身份、存储、指标、通道与房间服务，对外提供房间与 Handle 操作。
// 节点关闭后不可重新启动。
type Node struct {
	config *config.Config
	app    *fx.App

	// 由 Fx 注入
	identity *identity.Identity
	service  *imessenger.Service
	metrics  *metrics.Metrics

	mu    sync.Mutex
	state NodeState
}

// New 创建节点（不启动）
func New(_ context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	cfg := o.toInternalConfig()

	// 日志配置必须在最早期应用
	if o.logLevel != "" || o.config != nil {
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		log.Setup(os.Stderr, cfg.Log.Format, level)
	}

	node := &Node{
		config: cfg,
		state:  StateIdle,
	}

	var err error
	node.app, err = buildFxApp(cfg, o, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	if err := node.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return node, nil
}

// Start 快捷启动函数
//
// 创建节点并立即启动，等价于 New() + Start()。
//
//	node, err := messenger.Start(ctx, messenger.WithStoragePath("./data"))
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// Start 启动节点
//
// 启动 Fx App：打开存储引擎、指标端点与通道服务。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateClosed:
		return ErrNodeClosed
	case StateRunning:
		return ErrAlreadyStarted
	}

	n.state = StateInitializing
	logger.Info("正在初始化节点")

	initCtx, initCancel := context.WithTimeout(ctx, initializeTimeout)
	defer initCancel()

	if err := n.app.Start(initCtx); err != nil {
		n.state = StateIdle
		logger.Error("节点初始化失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}

	n.state = StateRunning
	logger.Info("节点启动成功", "peer", n.identity.PeerID().ShortString())
	return nil
}

// Close 关闭节点并释放所有资源
//
// 按启动的相反顺序执行：保存并销毁全部房间，关闭通道服务，关闭存储引擎。
// 重复调用返回 nil。
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed {
		return nil
	}
	wasRunning := n.state == StateRunning
	n.state = StateClosed
	if !wasRunning {
		return nil
	}

	logger.Info("正在关闭节点")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		logger.Error("关闭节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已关闭")
	return nil
}

// State 返回节点当前状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Config 返回节点使用的配置副本
func (n *Node) Config() config.Config {
	return *n.config
}

// ID 返回节点 ID
//
// 身份在 New 时已加载，启动前即可使用（例如写入其他节点的地址簿）。
func (n *Node) ID() PeerID {
	return n.identity.PeerID()
}

// Metrics 返回指标集合，未启用时为 nil
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// svc 返回运行中的房间服务
func (n *Node) svc() (*imessenger.Service, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateRunning:
		return n.service, nil
	case StateClosed:
		return nil, ErrNodeClosed
	default:
		return nil, ErrNotStarted
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Handle
// ════════════════════════════════════════════════════════════════════════════

// NewHandle 创建 Handle
//
// ego 为 nil 时使用匿名身份。启用持久化时恢复该身份此前的房间成员 ID。
func (n *Node) NewHandle(ego PrivateKey, name string) (*Handle, error) {
	s, err := n.svc()
	if err != nil {
		return nil, err
	}
	return s.NewHandle(ego, name)
}

// CloseHandle 离开 Handle 所在的全部房间并关闭其事件通道
func (n *Node) CloseHandle(h *Handle) error {
	s, err := n.svc()
	if err != nil {
		return err
	}
	return s.CloseHandle(h)
}

// SetName 更新 Handle 的显示名并通知其所在的房间
func (n *Node) SetName(h *Handle, name string) error {
	s, err := n.svc()
	if err != nil {
		return err
	}
	return s.SetName(h, name)
}

// RotateKey 为 Handle 换用新身份，成员身份保持不变
func (n *Node) RotateKey(h *Handle, ego PrivateKey) error {
	s, err := n.svc()
	if err != nil {
		return err
	}
	return s.RotateKey(h, ego)
}

// ════════════════════════════════════════════════════════════════════════════
//                              房间
// ════════════════════════════════════════════════════════════════════════════

// OpenRoom 托管房间并以 h 加入
func (n *Node) OpenRoom(ctx context.Context, h *Handle, key RoomKey) (*Room, error) {
	s, err := n.svc()
	if err != nil {
		return nil, err
	}
	return s.OpenRoom(ctx, h, key)
}

// EnterRoom 经由 door 节点进入房间并以 h 加入
func (n *Node) EnterRoom(ctx context.Context, h *Handle, door PeerID, key RoomKey) (*Room, error) {
	s, err := n.svc()
	if err != nil {
		return nil, err
	}
	return s.EnterRoom(ctx, h, door, key)
}

// CloseRoom h 离开房间，房间不再有本地 Handle 时销毁
func (n *Node) CloseRoom(h *Handle, key RoomKey) error {
	s, err := n.svc()
	if err != nil {
		return err
	}
	return s.CloseRoom(h, key)
}

// Room 返回房间，不存在或节点未运行时返回 nil
func (n *Node) Room(key RoomKey) *Room {
	s, err := n.svc()
	if err != nil {
		return nil
	}
	return s.Room(key)
}

// Rooms 返回已打开的房间密钥
func (n *Node) Rooms() []RoomKey {
	s, err := n.svc()
	if err != nil {
		return nil
	}
	return s.Rooms()
}

// ════════════════════════════════════════════════════════════════════════════
//                              消息
// ════════════════════════════════════════════════════════════════════════════

// Send 发送文本消息
func (n *Node) Send(h *Handle, key RoomKey, text string) (Hash, error) {
	s, err := n.svc()
	if err != nil {
		return Hash{}, err
	}
	return s.SendText(h, key, text)
}

// SendMessage 发送任意会话消息
func (n *Node) SendMessage(h *Handle, key RoomKey, msg *Message) (Hash, error) {
	s, err := n.svc()
	if err != nil {
		return Hash{}, err
	}
	return s.SendMessage(h, key, msg)
}

// Delete 安排在 delay 后删除 h 发出的消息
func (n *Node) Delete(h *Handle, key RoomKey, hash Hash, delay time.Duration) (Hash, error) {
	s, err := n.svc()
	if err != nil {
		return Hash{}, err
	}
	return s.DeleteMessage(h, key, hash, delay)
}
