// Package operation 管理房间内按消息哈希登记的延迟操作
//
// 每个哈希同一时刻至多一个活动操作（REQUEST、MERGE 或 DELETE），
// 每个操作对应一个 clock 定时器。到期时先移除条目，再恰好一次地回调 Handler。
package operation

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/operation")

var (
	// ErrOperationConflict 该哈希已有活动操作
	ErrOperationConflict = errors.New("operation: conflict")

	// ErrOperationDenied 无限延迟或无效类型
	ErrOperationDenied = errors.New("operation: denied")

	// ErrClosed 存储已关闭
	ErrClosed = errors.New("operation: store closed")
)

// Kind 操作类型
type Kind uint8

// 操作类型常量
const (
	KindUnknown Kind = iota
	KindRequest
	KindMerge
	KindDelete
)

// String 返回类型名
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindMerge:
		return "MERGE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Handler 操作到期回调
//
// 回调在定时器 goroutine 中执行，调用时不持有 Store 的锁。
type Handler interface {
	OnRequestExpired(hash types.Hash)
	OnMerge(hash types.Hash)
	OnDelete(hash types.Hash)
}

// Operation 一个登记中的延迟操作
type Operation struct {
	Hash     types.Hash
	Kind     Kind
	Deadline types.Timestamp

	timer *clock.Timer
}

// Store 操作存储
type Store struct {
	clock   clock.Clock
	handler Handler

	mu     sync.Mutex
	ops    map[types.Hash]*Operation
	closed bool
}

// NewStore 创建操作存储，clk 为 nil 时使用系统时钟
func NewStore(clk clock.Clock, h Handler) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:   clk,
		handler: h,
		ops:     make(map[types.Hash]*Operation),
	}
}

// Use 登记一个 delay 后到期的操作
func (s *Store) Use(hash types.Hash, kind Kind, delay time.Duration) error {
	if delay < 0 {
		return ErrOperationDenied
	}
	return s.UseAt(hash, kind, types.Now(s.clock).Add(delay))
}

// UseAt 登记一个在 deadline 到期的操作，已过期的立即触发
func (s *Store) UseAt(hash types.Hash, kind Kind, deadline types.Timestamp) error {
	if kind == KindUnknown || deadline == types.Forever {
		return ErrOperationDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.ops[hash]; ok {
		return ErrOperationConflict
	}

	op := &Operation{Hash: hash, Kind: kind, Deadline: deadline}
	delay := types.Remaining(types.Now(s.clock), deadline)
	op.timer = s.clock.AfterFunc(delay, func() { s.expire(op) })
	s.ops[hash] = op

	logger.Debug("登记延迟操作", "kind", kind, "hash", hash.ShortString(), "delay", delay)
	return nil
}

func (s *Store) expire(op *Operation) {
	s.mu.Lock()
	if s.closed || s.ops[op.Hash] != op {
		s.mu.Unlock()
		return
	}
	delete(s.ops, op.Hash)
	s.mu.Unlock()

	if s.handler == nil {
		return
	}
	switch op.Kind {
	case KindRequest:
		s.handler.OnRequestExpired(op.Hash)
	case KindMerge:
		s.handler.OnMerge(op.Hash)
	case KindDelete:
		s.handler.OnDelete(op.Hash)
	}
}

// Cancel 取消操作，返回是否存在
func (s *Store) Cancel(hash types.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[hash]
	if !ok {
		return false
	}
	op.timer.Stop()
	delete(s.ops, hash)
	return true
}

// Kind 返回哈希上的活动操作类型，没有时返回 KindUnknown
func (s *Store) Kind(hash types.Hash) Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.ops[hash]; ok {
		return op.Kind
	}
	return KindUnknown
}

// Len 返回活动操作数量
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Close 停止所有定时器，之后不会再有回调
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for hash, op := range s.ops {
		op.timer.Stop()
		delete(s.ops, hash)
	}
}

// ============================================================================
//                              持久化
// ============================================================================

var opsKey = []byte("ops")

type record struct {
	Hash     string          `json:"hash"`
	Kind     Kind            `json:"kind"`
	Deadline types.Timestamp `json:"deadline"`
}

// Save 保存所有活动操作
func (s *Store) Save(store *kv.Store) error {
	s.mu.Lock()
	records := make([]record, 0, len(s.ops))
	for _, op := range s.ops {
		records = append(records, record{Hash: op.Hash.String(), Kind: op.Kind, Deadline: op.Deadline})
	}
	s.mu.Unlock()

	return store.PutJSON(opsKey, records)
}

// Load 恢复操作并按剩余时间重启定时器
func (s *Store) Load(store *kv.Store) error {
	var records []record
	if err := store.GetJSON(opsKey, &records); err != nil {
		if engine.IsNotFound(err) {
			return nil
		}
		return err
	}

	for _, r := range records {
		hash, err := types.ParseHash(r.Hash)
		if err != nil {
			logger.Warn("跳过无效的操作记录", "hash", r.Hash, "error", err)
			continue
		}
		if err := s.UseAt(hash, r.Kind, r.Deadline); err != nil && !errors.Is(err, ErrOperationConflict) {
			return err
		}
	}
	return nil
}
