package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("channel/memory")

// 错误定义
var (
	// ErrPeerUnreachable 目标节点未注册到 Hub
	ErrPeerUnreachable = errors.New("memory: peer unreachable")

	// ErrPortClosed 目标端口未打开
	ErrPortClosed = errors.New("memory: port not open")

	// ErrPortInUse 端口已被占用
	ErrPortInUse = errors.New("memory: port already open")

	// ErrRejected 对端拒绝通道
	ErrRejected = errors.New("memory: channel rejected")

	// ErrClosed 服务或通道已关闭
	ErrClosed = errors.New("memory: closed")

	// ErrSelfConnect 不允许连接自身
	ErrSelfConnect = errors.New("memory: cannot connect to self")
)

// Hub 进程内的节点注册表
type Hub struct {
	mu       sync.RWMutex
	services map[types.PeerID]*Service
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{services: make(map[types.PeerID]*Service)}
}

// NewService 在 Hub 上注册一个节点
func (h *Hub) NewService(self types.PeerID) *Service {
	s := &Service{
		hub:      h,
		self:     self,
		ports:    make(map[types.Port]interfaces.ChannelHandler),
		channels: make(map[*endpoint]struct{}),
	}

	h.mu.Lock()
	if old, ok := h.services[self]; ok {
		logger.Warn("节点重复注册，替换旧实例", "peer", self.ShortString())
		go old.Close() //nolint:errcheck
	}
	h.services[self] = s
	h.mu.Unlock()

	return s
}

func (h *Hub) lookup(peer types.PeerID) *Service {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.services[peer]
}

func (h *Hub) remove(s *Service) {
	h.mu.Lock()
	if h.services[s.self] == s {
		delete(h.services, s.self)
	}
	h.mu.Unlock()
}

// ============================================================================
//                              Service
// ============================================================================

// Service 单个节点的 ChannelService
type Service struct {
	hub  *Hub
	self types.PeerID

	mu       sync.Mutex
	ports    map[types.Port]interfaces.ChannelHandler
	channels map[*endpoint]struct{}
	closed   bool
}

// Self 返回本节点 ID
func (s *Service) Self() types.PeerID {
	return s.self
}

// Open 在 port 上接受入站通道
func (s *Service) Open(port types.Port, h interfaces.ChannelHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.ports[port]; ok {
		return ErrPortInUse
	}
	s.ports[port] = h
	return nil
}

// ClosePort 停止在 port 上接受入站通道
func (s *Service) ClosePort(port types.Port) error {
	s.mu.Lock()
	delete(s.ports, port)
	s.mu.Unlock()
	return nil
}

func (s *Service) handler(port types.Port) interfaces.ChannelHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.ports[port]
}

// Connect 建立到 peer 的通道
func (s *Service) Connect(ctx context.Context, peer types.PeerID, port types.Port, h interfaces.ChannelHandler) (interfaces.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if peer == s.self {
		return nil, ErrSelfConnect
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	remote := s.hub.lookup(peer)
	if remote == nil {
		return nil, ErrPeerUnreachable
	}
	remoteHandler := remote.handler(port)
	if remoteHandler == nil {
		return nil, ErrPortClosed
	}

	local, far := newPair(s, s.self, h, remote, peer, remoteHandler)
	s.track(local)
	remote.track(far)

	// 对端的接受回调异步执行，与网络实现的语义一致：
	// 被拒绝时本端收到断开通知
	go func() {
		if !remoteHandler.HandleChannel(far) {
			logger.Debug("对端拒绝通道", "peer", peer.ShortString())
			_ = far.Close()
		}
		far.accept()
	}()

	return local, nil
}

func (s *Service) track(ep *endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		go ep.Close() //nolint:errcheck
		return
	}
	s.channels[ep] = struct{}{}
}

func (s *Service) untrack(ep *endpoint) {
	s.mu.Lock()
	delete(s.channels, ep)
	s.mu.Unlock()
}

// Close 关闭服务及所有通道
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	channels := make([]*endpoint, 0, len(s.channels))
	for ep := range s.channels {
		channels = append(channels, ep)
	}
	s.channels = make(map[*endpoint]struct{})
	s.ports = make(map[types.Port]interfaces.ChannelHandler)
	s.mu.Unlock()

	s.hub.remove(s)
	for _, ep := range channels {
		_ = ep.Close()
	}
	return nil
}

var _ interfaces.ChannelService = (*Service)(nil)
