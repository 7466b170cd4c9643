package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("channel/quic")

// 应用层关闭码
const (
	codeNormal     quic.ApplicationErrorCode = 0
	codePortClosed quic.ApplicationErrorCode = 1
	codeRejected   quic.ApplicationErrorCode = 2
	codeProtocol   quic.ApplicationErrorCode = 3
)

// 确保实现接口
var _ interfaces.ChannelService = (*Service)(nil)

// Service QUIC 通道服务
//
// 监听与拨号共享同一个 UDP socket。
type Service struct {
	self     types.PeerID
	cert     tls.Certificate
	config   *quic.Config
	maxFrame int
	timeout  time.Duration

	udpConn   *net.UDPConn
	transport *quic.Transport
	listener  *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	addrs    map[types.PeerID]string
	ports    map[types.Port]interfaces.ChannelHandler
	channels map[*channel]struct{}
	closed   bool
}

// New 创建 QUIC 通道服务并开始监听
func New(id *identity.Identity, cfg config.ChannelConfig) (*Service, error) {
	cert, err := newCertificate(id)
	if err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("parse listen address: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	s := &Service{
		self: id.PeerID(),
		cert: cert,
		config: &quic.Config{
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
			// 每条连接只承载一条流
			MaxIncomingStreams:    1,
			MaxIncomingUniStreams: -1,
		},
		maxFrame:  cfg.MaxFrameSize,
		timeout:   cfg.DialTimeout.Duration(),
		udpConn:   udpConn,
		transport: &quic.Transport{Conn: udpConn},
		addrs:     make(map[types.PeerID]string, len(cfg.Peers)),
		ports:     make(map[types.Port]interfaces.ChannelHandler),
		channels:  make(map[*channel]struct{}),
	}
	for peer, addr := range cfg.Peers {
		s.addrs[peer] = addr
	}

	ln, err := s.transport.Listen(serverTLSConfig(cert), s.config)
	if err != nil {
		_ = udpConn.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("QUIC 通道服务已启动", "peer", s.self.ShortString(), "addr", udpConn.LocalAddr().String())
	return s, nil
}

// Self 返回本节点 ID
func (s *Service) Self() types.PeerID {
	return s.self
}

// Addr 返回实际监听地址
func (s *Service) Addr() net.Addr {
	return s.udpConn.LocalAddr()
}

// AddPeer 向地址簿添加或更新节点地址
func (s *Service) AddPeer(peer types.PeerID, addr string) {
	s.mu.Lock()
	s.addrs[peer] = addr
	s.mu.Unlock()
}

// Open 打开端口
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

// ClosePort 关闭端口，已建立的通道不受影响
func (s *Service) ClosePort(port types.Port) error {
	s.mu.Lock()
	delete(s.ports, port)
	s.mu.Unlock()
	return nil
}

// Connect 建立到 peer 的通道
//
// 阻塞直到握手完成、ctx 取消或拨号超时。
func (s *Service) Connect(ctx context.Context, peer types.PeerID, port types.Port, h interfaces.ChannelHandler) (interfaces.Channel, error) {
	if peer == s.self {
		return nil, ErrSelfConnect
	}

	s.mu.RLock()
	closed := s.closed
	addr, ok := s.addrs[peer]
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peer.ShortString())
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	conn, err := s.transport.Dial(ctx, raddr, clientTLSConfig(s.cert, peer), s.config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", peer.ShortString(), err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeProtocol, "open stream")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := writeFrame(stream, port[:]); err != nil {
		_ = conn.CloseWithError(codeProtocol, "write port")
		return nil, fmt.Errorf("write port: %w", err)
	}

	ch := newChannel(s, peer, conn, stream, h)
	if !s.track(ch) {
		_ = conn.CloseWithError(codeNormal, "service closed")
		return nil, ErrClosed
	}
	ch.start()

	logger.Debug("出站通道已建立", "peer", peer.ShortString())
	return ch, nil
}

// acceptLoop 接受入站连接
func (s *Service) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				logger.Warn("接受连接失败", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn 读取端口帧并交给端口处理器
func (s *Service) handleConn(conn quic.Connection) {
	defer s.wg.Done()

	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		_ = conn.CloseWithError(codeProtocol, "no certificate")
		return
	}
	peer, err := peerFromCertificate(state.PeerCertificates[0])
	if err != nil {
		_ = conn.CloseWithError(codeProtocol, "bad certificate")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeProtocol, "no stream")
		return
	}

	frame, err := readFrame(stream, s.maxFrame)
	if err != nil || len(frame) != len(types.Port{}) {
		logger.Debug("无效的端口帧", "peer", peer.ShortString(), "error", err)
		_ = conn.CloseWithError(codeProtocol, ErrBadPortFrame.Error())
		return
	}
	port, _ := types.PortFromBytes(frame)

	s.mu.RLock()
	h, ok := s.ports[port]
	s.mu.RUnlock()
	if !ok {
		_ = conn.CloseWithError(codePortClosed, "port closed")
		return
	}

	ch := newChannel(s, peer, conn, stream, h)
	if !s.track(ch) {
		_ = conn.CloseWithError(codeNormal, "service closed")
		return
	}
	if !h.HandleChannel(ch) {
		ch.closeWith(codeRejected, "rejected")
		return
	}
	ch.start()

	logger.Debug("入站通道已建立", "peer", peer.ShortString())
}

func (s *Service) track(ch *channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.channels[ch] = struct{}{}
	return true
}

func (s *Service) untrack(ch *channel) {
	s.mu.Lock()
	delete(s.channels, ch)
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
	channels := make([]*channel, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.ports = make(map[types.Port]interfaces.ChannelHandler)
	s.mu.Unlock()

	for _, ch := range channels {
		ch.closeWith(codeNormal, "shutdown")
	}

	s.cancel()
	err := s.listener.Close()
	if terr := s.transport.Close(); terr != nil && err == nil {
		err = terr
	}
	// transport 不拥有外部传入的 socket
	if cerr := s.udpConn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.wg.Wait()

	logger.Info("QUIC 通道服务已关闭", "peer", s.self.ShortString())
	return err
}
