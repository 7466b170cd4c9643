package messenger

import (
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置（WithConfig / WithConfigFile），为空使用默认值
	config *config.Config

	// 身份配置
	identityKeyFile string
	privateKey      PrivateKey

	// 存储目录
	storagePath *string

	// 通道配置
	hub        *Hub
	transport  string
	listenAddr string
	peers      map[types.PeerID]string

	// 房间协议
	idleDelay  *time.Duration
	mergeDelay *time.Duration

	// 日志配置
	logLevel string

	// 指标端点
	metricsAddr *string

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		peers: make(map[types.PeerID]string),
	}
}

// toInternalConfig 转换为内部配置
//
// 在基础配置上逐项覆盖显式设置的选项。
func (o *options) toInternalConfig() *config.Config {
	cfg := config.NewConfig()
	if o.config != nil {
		copied := *o.config
		cfg = &copied
	}

	// 覆盖: 身份配置
	if o.identityKeyFile != "" {
		cfg.Identity = cfg.Identity.WithKeyFile(o.identityKeyFile)
	}

	// 覆盖: 存储
	if o.storagePath != nil {
		cfg.Storage.Path = *o.storagePath
	}

	// 覆盖: 通道
	if o.transport != "" {
		cfg.Channel.Transport = o.transport
	}
	if o.listenAddr != "" {
		cfg.Channel.ListenAddr = o.listenAddr
	}
	if len(o.peers) > 0 {
		peers := make(map[types.PeerID]string, len(cfg.Channel.Peers)+len(o.peers))
		for id, addr := range cfg.Channel.Peers {
			peers[id] = addr
		}
		for id, addr := range o.peers {
			peers[id] = addr
		}
		cfg.Channel.Peers = peers
	}

	// 覆盖: 房间协议
	if o.idleDelay != nil {
		cfg.Messenger.IdleDelay = config.Duration(*o.idleDelay)
	}
	if o.mergeDelay != nil {
		cfg.Messenger.MergeDelay = config.Duration(*o.mergeDelay)
	}

	// 覆盖: 日志与指标
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.metricsAddr != nil {
		cfg.Metrics.ListenAddr = *o.metricsAddr
	}

	return cfg
}

// presetIdentity 返回直接注入的身份，未设置私钥时返回 nil
func (o *options) presetIdentity() (*identity.Identity, error) {
	if o.privateKey == nil {
		return nil, nil
	}
	return identity.New(o.privateKey)
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整配置作为基础
//
// 其余选项在此基础上覆盖对应字段。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config is nil", ErrInvalidOption)
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载基础配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ============================================================================
//                              身份选项
// ============================================================================

// WithIdentityFromFile 从 PEM 文件加载节点密钥，文件不存在时生成并保存
func WithIdentityFromFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("%w: empty key file path", ErrInvalidOption)
		}
		o.identityKeyFile = path
		return nil
	}
}

// WithIdentity 直接使用给定私钥作为节点密钥
//
// 优先级高于 WithIdentityFromFile。
func WithIdentity(key PrivateKey) Option {
	return func(o *options) error {
		if key == nil {
			return fmt.Errorf("%w: private key is nil", ErrInvalidOption)
		}
		o.privateKey = key
		return nil
	}
}

// ============================================================================
//                              存储选项
// ============================================================================

// WithStoragePath 设置数据目录，空字符串表示不持久化
func WithStoragePath(path string) Option {
	return func(o *options) error {
		o.storagePath = &path
		return nil
	}
}

// ============================================================================
//                              通道选项
// ============================================================================

// WithHub 使用进程内通道并接入给定 Hub
//
// 同一 Hub 上的节点可以互相连接，适合测试与单机演示。
func WithHub(hub *Hub) Option {
	return func(o *options) error {
		if hub == nil {
			return fmt.Errorf("%w: hub is nil", ErrInvalidOption)
		}
		o.hub = hub
		o.transport = config.TransportMemory
		return nil
	}
}

// WithQUIC 使用 QUIC 通道并监听 addr（UDP host:port）
func WithQUIC(addr string) Option {
	return func(o *options) error {
		o.transport = config.TransportQUIC
		if addr != "" {
			o.listenAddr = addr
		}
		return nil
	}
}

// WithPeer 向静态地址簿添加一个节点地址
func WithPeer(peer PeerID, addr string) Option {
	return func(o *options) error {
		if peer.IsEmpty() || addr == "" {
			return fmt.Errorf("%w: peer and address are required", ErrInvalidOption)
		}
		o.peers[peer] = addr
		return nil
	}
}

// ============================================================================
//                              房间协议选项
// ============================================================================

// WithMergeTiming 设置空闲合并周期与 MERGE 延迟
func WithMergeTiming(idle, merge time.Duration) Option {
	return func(o *options) error {
		if idle <= 0 || merge <= 0 {
			return fmt.Errorf("%w: merge timing must be positive", ErrInvalidOption)
		}
		o.idleDelay = &idle
		o.mergeDelay = &merge
		return nil
	}
}

// ============================================================================
//                              日志与指标选项
// ============================================================================

// WithLogLevel 设置日志级别（debug/info/warn/error）
//
// debug 级别同时打开 Fx 事件日志。
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.logLevel = level
		return nil
	}
}

// WithMetricsAddr 在 addr 暴露 /metrics 端点
func WithMetricsAddr(addr string) Option {
	return func(o *options) error {
		o.metricsAddr = &addr
		return nil
	}
}

// ============================================================================
//                              扩展选项
// ============================================================================

// WithFxOptions 追加自定义 Fx 选项
//
// 可用于注入替代组件（如 fx.Decorate 替换时钟）或读取内部服务。
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
