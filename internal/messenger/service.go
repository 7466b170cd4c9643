// Package messenger 房间与 Handle 的注册中心
//
// Service 按房间密钥维护 Room 实例，为本地客户端创建 Handle，
// 并在最后一个 Handle 离开时销毁房间。启用持久化时，每个房间使用
// 根存储下 r/<room>/ 前缀的子存储，Handle 的房间映射保存在 i/ 前缀下。
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/internal/core/metrics"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/internal/messenger/handle"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/room"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger")

var (
	// ErrClosed 服务已关闭
	ErrClosed = errors.New("messenger: service closed")

	// ErrUnknownHandle Handle 不属于本服务
	ErrUnknownHandle = errors.New("messenger: unknown handle")

	// ErrRoomNotFound Handle 不在该房间中
	ErrRoomNotFound = errors.New("messenger: room not found")
)

// Deps 服务依赖
type Deps struct {
	Identity  *identity.Identity
	Anonymous *crypto.Anonymous
	Channels  interfaces.ChannelService

	// Store 根存储，nil 表示不持久化
	Store   *kv.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Service 房间与 Handle 的注册中心
type Service struct {
	cfg      room.Config
	buffer   int
	deps     Deps
	contacts *contact.Store

	mu      sync.Mutex
	rooms   map[types.RoomKey]*room.Room
	handles map[*handle.Handle]struct{}
	closed  bool
}

// New 创建服务
func New(cfg config.MessengerConfig, channelCfg config.ChannelConfig, deps Deps) (*Service, error) {
	if deps.Identity == nil || deps.Channels == nil {
		return nil, errors.New("messenger: identity and channel service are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Anonymous == nil {
		deps.Anonymous = crypto.NewAnonymous()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &Service{
		cfg:      room.ConfigFrom(cfg, channelCfg),
		buffer:   cfg.EventBuffer,
		deps:     deps,
		contacts: contact.NewStore(deps.Anonymous),
		rooms:    make(map[types.RoomKey]*room.Room),
		handles:  make(map[*handle.Handle]struct{}),
	}, nil
}

// Self 返回本节点 ID
func (s *Service) Self() types.PeerID {
	return s.deps.Identity.PeerID()
}

// ============================================================================
//                              Handle
// ============================================================================

// NewHandle 创建 Handle，ego 为 nil 时使用匿名身份
//
// 启用持久化时恢复该身份此前在各房间中的成员 ID。
func (s *Service) NewHandle(ego crypto.PrivateKey, name string) (*handle.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	h := handle.New(ego, s.deps.Anonymous, name, s.buffer)
	if err := h.Load(s.deps.Store); err != nil {
		return nil, fmt.Errorf("load handle: %w", err)
	}
	s.handles[h] = struct{}{}

	logger.Debug("创建 Handle", "anonymous", h.IsAnonymous(), "rooms", len(h.Rooms()))
	return h, nil
}

// CloseHandle 保存 Handle 的房间映射，离开它所在的全部房间并关闭事件通道
func (s *Service) CloseHandle(h *handle.Handle) error {
	s.mu.Lock()
	if _, ok := s.handles[h]; !ok {
		s.mu.Unlock()
		return ErrUnknownHandle
	}
	delete(s.handles, h)
	s.mu.Unlock()

	err := h.Save(s.deps.Store)
	for _, key := range h.Rooms() {
		if r := s.Room(key); r != nil && r.Joined(h) {
			err = multierr.Append(err, s.CloseRoom(h, key))
		}
	}
	h.Close()
	return err
}

// ============================================================================
//                              房间
// ============================================================================

// OpenRoom 打开（托管）房间并以 h 加入
func (s *Service) OpenRoom(ctx context.Context, h *handle.Handle, key types.RoomKey) (*room.Room, error) {
	r, err := s.acquire(h, key)
	if err != nil {
		return nil, err
	}
	if err := r.Open(ctx, h); err != nil {
		s.releaseIfIdle(key, r)
		return nil, err
	}
	return r, nil
}

// EnterRoom 经由 door 进入房间并以 h 加入
func (s *Service) EnterRoom(ctx context.Context, h *handle.Handle, door types.PeerID, key types.RoomKey) (*room.Room, error) {
	r, err := s.acquire(h, key)
	if err != nil {
		return nil, err
	}
	if err := r.Enter(ctx, h, door); err != nil {
		s.releaseIfIdle(key, r)
		return nil, err
	}
	return r, nil
}

// CloseRoom h 发送 LEAVE 离开房间，房间不再有本地 Handle 时销毁
func (s *Service) CloseRoom(h *handle.Handle, key types.RoomKey) error {
	r := s.Room(key)
	if r == nil {
		return ErrRoomNotFound
	}

	remaining, err := r.Leave(h)
	if errors.Is(err, room.ErrNotMember) {
		return ErrRoomNotFound
	}
	if remaining == 0 {
		err = multierr.Append(err, s.destroy(key, r))
	}
	return err
}

// Room 返回房间，不存在返回 nil
func (s *Service) Room(key types.RoomKey) *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[key]
}

// Rooms 返回已创建的房间密钥
func (s *Service) Rooms() []types.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.RoomKey, 0, len(s.rooms))
	for key := range s.rooms {
		out = append(out, key)
	}
	return out
}

// acquire 返回房间，不存在时创建（并加载已保存的状态）
func (s *Service) acquire(h *handle.Handle, key types.RoomKey) (*room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.handles[h]; !ok {
		return nil, ErrUnknownHandle
	}
	if r, ok := s.rooms[key]; ok {
		return r, nil
	}

	var store *kv.Store
	if s.deps.Store != nil {
		store = s.deps.Store.SubStore(roomPrefix(key))
	}
	r, err := room.New(key, s.cfg, room.Deps{
		Identity:  s.deps.Identity,
		Channels:  s.deps.Channels,
		Contacts:  s.contacts,
		Anonymous: s.deps.Anonymous,
		Store:     store,
		Clock:     s.deps.Clock,
		Metrics:   s.deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s.rooms[key] = r
	return r, nil
}

func (s *Service) releaseIfIdle(key types.RoomKey, r *room.Room) {
	if r.HandleCount() > 0 {
		return
	}
	if err := s.destroy(key, r); err != nil {
		logger.Warn("销毁房间失败", "room", key.ShortString(), "error", err)
	}
}

func (s *Service) destroy(key types.RoomKey, r *room.Room) error {
	s.mu.Lock()
	if s.rooms[key] == r {
		delete(s.rooms, key)
	}
	s.mu.Unlock()
	return r.Close()
}

func roomPrefix(key types.RoomKey) []byte {
	return []byte("r/" + key.String() + "/")
}

// ============================================================================
//                              消息
// ============================================================================

// SendMessage 以 h 的身份向房间发送消息
func (s *Service) SendMessage(h *handle.Handle, key types.RoomKey, msg *message.Message) (types.Hash, error) {
	r := s.Room(key)
	if r == nil {
		return types.EmptyHash, ErrRoomNotFound
	}
	return r.Send(h, msg)
}

// SendText 发送文本消息
func (s *Service) SendText(h *handle.Handle, key types.RoomKey, text string) (types.Hash, error) {
	return s.SendMessage(h, key, message.NewText(text))
}

// DeleteMessage 安排在 delay 后删除 h 签发的消息
func (s *Service) DeleteMessage(h *handle.Handle, key types.RoomKey, hash types.Hash, delay time.Duration) (types.Hash, error) {
	r := s.Room(key)
	if r == nil {
		return types.EmptyHash, ErrRoomNotFound
	}
	return r.Delete(h, hash, delay)
}

// SetName 更新显示名并在 h 所在的每个房间发送 NAME
func (s *Service) SetName(h *handle.Handle, name string) error {
	h.SetName(name)
	var err error
	for _, key := range h.Rooms() {
		if r := s.Room(key); r != nil && r.Joined(h) {
			_, sendErr := r.Send(h, message.NewName(name))
			err = multierr.Append(err, sendErr)
		}
	}
	return err
}

// RotateKey 在 h 所在的每个房间发送 KEY，随后换用新身份
func (s *Service) RotateKey(h *handle.Handle, ego crypto.PrivateKey) error {
	if ego == nil {
		return errors.New("messenger: new ego is required")
	}
	pub := ego.GetPublic()

	var err error
	for _, key := range h.Rooms() {
		if r := s.Room(key); r != nil && r.Joined(h) {
			_, sendErr := r.Send(h, message.NewKey(pub))
			err = multierr.Append(err, sendErr)
		}
	}
	if err != nil {
		return err
	}
	h.SetEgo(ego)
	logger.Info("身份已轮换", "key", crypto.KeyHash(pub).ShortString())
	return nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Close 保存所有 Handle 的映射并销毁全部房间
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := make([]*handle.Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	rooms := s.rooms
	s.rooms = make(map[types.RoomKey]*room.Room)
	s.handles = make(map[*handle.Handle]struct{})
	s.mu.Unlock()

	var err error
	for _, h := range handles {
		err = multierr.Append(err, h.Save(s.deps.Store))
	}
	for _, r := range rooms {
		err = multierr.Append(err, r.Close())
	}
	for _, h := range handles {
		h.Close()
	}

	logger.Info("messenger 服务已关闭", "rooms", len(rooms), "handles", len(handles))
	return err
}
