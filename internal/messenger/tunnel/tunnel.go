// Package tunnel 管理承载单个房间流量的对端通道
//
// Tunnel 记录对端的协议版本、对端发布的 PEER 消息以及最近一次收发的消息哈希。
// 通道可以由本端拨出（Connect），也可以由对端拨入后挂接（Attach）；
// 双方同时拨号时，两端都保留由 PeerID 较小一方发起的通道。
package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/tunnel")

var (
	// ErrChannelFailure 通道建立或发送失败
	ErrChannelFailure = errors.New("tunnel: channel failure")

	// ErrAlreadyConnected 隧道已连接或正在连接
	ErrAlreadyConnected = errors.New("tunnel: already connected")

	// ErrRateLimited 接收速率超限
	ErrRateLimited = errors.New("tunnel: receive rate exceeded")

	// ErrIncompatibleVersion 对端主版本不同
	ErrIncompatibleVersion = errors.New("tunnel: incompatible messenger version")
)

// Config 隧道配置
type Config struct {
	// Version 本端协议版本，对端 INFO 到达前也作为对端版本
	Version uint32

	// ReceiveRate 每秒允许接收的帧数
	ReceiveRate float64

	// ReceiveBurst 接收突发上限
	ReceiveBurst int
}

// Tunnel 到单个对端的房间隧道
type Tunnel struct {
	peer    types.PeerID
	self    types.PeerID
	port    types.Port
	svc     interfaces.ChannelService
	handler interfaces.ChannelHandler
	limiter *rate.Limiter

	mu          sync.Mutex
	ch          interfaces.Channel
	connecting  bool
	version     uint32
	infoSent    bool
	peerMessage types.Hash
	lastMessage types.Hash
}

// New 创建隧道（不建立连接）
func New(svc interfaces.ChannelService, port types.Port, peer types.PeerID,
	handler interfaces.ChannelHandler, cfg Config) *Tunnel {
	return &Tunnel{
		peer:    peer,
		self:    svc.Self(),
		port:    port,
		svc:     svc,
		handler: handler,
		limiter: rate.NewLimiter(rate.Limit(cfg.ReceiveRate), cfg.ReceiveBurst),
		version: cfg.Version,
	}
}

// Peer 返回对端节点 ID
func (t *Tunnel) Peer() types.PeerID {
	return t.peer
}

// IsConnected 是否持有可用通道
func (t *Tunnel) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch != nil
}

// Channel 返回当前通道
func (t *Tunnel) Channel() interfaces.Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch
}

// Connect 建立出站通道
//
// 已连接或已有连接在进行中时返回 ErrAlreadyConnected。
func (t *Tunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.ch != nil || t.connecting {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connecting = true
	t.mu.Unlock()

	ch, err := t.svc.Connect(ctx, t.peer, t.port, t.handler)

	t.mu.Lock()
	t.connecting = false
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: connect %s: %v", ErrChannelFailure, t.peer.ShortString(), err)
	}
	kept := t.adoptLocked(ch, true)
	t.mu.Unlock()

	if !kept {
		_ = ch.Close()
		return ErrAlreadyConnected
	}
	logger.Debug("隧道已连接", "peer", t.peer.ShortString())
	return nil
}

// Attach 挂接入站通道，返回 false 表示保留了已有通道
func (t *Tunnel) Attach(ch interfaces.Channel) bool {
	t.mu.Lock()
	kept := t.adoptLocked(ch, false)
	t.mu.Unlock()

	if kept {
		logger.Debug("挂接入站通道", "peer", t.peer.ShortString())
	}
	return kept
}

// adoptLocked 采用新通道，已有通道时按发起方 PeerID 取舍
func (t *Tunnel) adoptLocked(ch interfaces.Channel, outbound bool) bool {
	old := t.ch
	if old == nil {
		t.ch = ch
		t.infoSent = false
		return true
	}
	if old == ch {
		return true
	}

	selfLower := bytes.Compare(t.self[:], t.peer[:]) < 0
	if outbound != selfLower {
		return false
	}
	t.ch = ch
	t.infoSent = false
	go old.Close()
	return true
}

// Detach 当 ch 是当前通道时将其摘除，返回是否摘除
func (t *Tunnel) Detach(ch interfaces.Channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil || t.ch != ch {
		return false
	}
	t.ch = nil
	t.infoSent = false
	return true
}

// Disconnect 异步关闭通道，返回此前是否已连接
func (t *Tunnel) Disconnect() bool {
	t.mu.Lock()
	ch := t.ch
	t.ch = nil
	t.infoSent = false
	t.mu.Unlock()

	if ch == nil {
		return false
	}
	logger.Debug("断开隧道", "peer", t.peer.ShortString())
	go func() {
		if err := ch.Close(); err != nil {
			logger.Debug("关闭通道失败", "peer", t.peer.ShortString(), "error", err)
		}
	}()
	return true
}

// Check 校验入站帧并解码
//
// 超出接收速率或无法解码的帧被拒绝，通道保持不变。
func (t *Tunnel) Check(data []byte) (*message.Message, types.Hash, error) {
	if !t.limiter.Allow() {
		return nil, types.EmptyHash, ErrRateLimited
	}
	if len(data) < message.MinSize {
		return nil, types.EmptyHash, fmt.Errorf("%w: frame too short (%d bytes)", message.ErrInvalidMessage, len(data))
	}
	msg, err := message.Decode(data)
	if err != nil {
		return nil, types.EmptyHash, err
	}
	return msg, message.Hash(data), nil
}

// Send 发送已编码的消息，写出后更新 LastMessage
func (t *Tunnel) Send(data []byte, hash types.Hash) error {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("%w: %s not connected", ErrChannelFailure, t.peer.ShortString())
	}

	ch.Send(data, func(err error) {
		if err != nil {
			logger.Debug("隧道发送失败", "peer", t.peer.ShortString(), "error", err)
			return
		}
		t.SetLastMessage(hash)
	})
	return nil
}

// MarkInfoSent 标记已向当前通道发送 INFO，返回此前是否未发送
func (t *Tunnel) MarkInfoSent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil || t.infoSent {
		return false
	}
	t.infoSent = true
	return true
}

// Version 返回对端协议版本
func (t *Tunnel) Version() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// UpdateVersion 记录对端在 INFO 中声明的版本
//
// 主版本（高 16 位）不同时返回 ErrIncompatibleVersion，记录的版本不变。
func (t *Tunnel) UpdateVersion(version uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !Compatible(t.version, version) {
		return fmt.Errorf("%w: %#x vs %#x", ErrIncompatibleVersion, t.version, version)
	}
	if version < t.version {
		t.version = version
	}
	return nil
}

// Compatible 两个协议版本主版本相同
func Compatible(a, b uint32) bool {
	return a>>16 == b>>16
}

// PeerMessage 返回对端发布的 PEER 消息哈希
func (t *Tunnel) PeerMessage() (types.Hash, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerMessage, !t.peerMessage.IsEmpty()
}

// SetPeerMessage 记录对端的 PEER 消息哈希
func (t *Tunnel) SetPeerMessage(hash types.Hash) {
	t.mu.Lock()
	t.peerMessage = hash
	t.mu.Unlock()
}

// LastMessage 返回最近一次经此隧道收发的消息哈希
func (t *Tunnel) LastMessage() types.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastMessage
}

// SetLastMessage 更新最近消息哈希
func (t *Tunnel) SetLastMessage(hash types.Hash) {
	t.mu.Lock()
	t.lastMessage = hash
	t.mu.Unlock()
}
