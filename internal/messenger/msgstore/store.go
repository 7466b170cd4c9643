// Package msgstore 按哈希存储房间消息，并记录每条消息的后继链接
//
// 链接记录至多两个后继：第一个引用该哈希为 previous 的消息，
// 以及第一个不同的分叉后继；更多后继只置 Multiple 标记。
// 删除的消息留下墓碑，重复投递仍被识别为重复。
//
// Store 不是并发安全的，由所属 Room 串行访问。
package msgstore

import (
	"fmt"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/msgstore")

// Link 一个哈希的后继链接
type Link struct {
	First    types.Hash `json:"first"`
	Second   types.Hash `json:"second,omitempty"`
	Multiple bool       `json:"multiple,omitempty"`
}

// IsFork 是否存在两个不同的后继
func (l Link) IsFork() bool {
	return !l.Second.IsEmpty()
}

type entry struct {
	msg  *message.Message
	data []byte
}

// Store 消息存储
type Store struct {
	messages map[types.Hash]*entry
	links    map[types.Hash]*Link
	deleted  map[types.Hash]struct{}
}

// New 创建空的消息存储
func New() *Store {
	return &Store{
		messages: make(map[types.Hash]*entry),
		links:    make(map[types.Hash]*Link),
		deleted:  make(map[types.Hash]struct{}),
	}
}

// Put 存入消息，重复（已存在或已删除）时返回 false
func (s *Store) Put(hash types.Hash, msg *message.Message) (bool, error) {
	if s.isKnown(hash) {
		return false, nil
	}
	data, err := message.Encode(msg)
	if err != nil {
		return false, err
	}
	s.put(hash, msg, data)
	return true, nil
}

// PutEncoded 存入已编码的消息，省去重新编码
func (s *Store) PutEncoded(hash types.Hash, msg *message.Message, data []byte) bool {
	if s.isKnown(hash) {
		return false
	}
	s.put(hash, msg, append([]byte(nil), data...))
	return true
}

func (s *Store) put(hash types.Hash, msg *message.Message, data []byte) {
	s.messages[hash] = &entry{msg: msg, data: data}
	for _, prev := range msg.Predecessors() {
		s.link(prev, hash)
	}
}

func (s *Store) isKnown(hash types.Hash) bool {
	if _, ok := s.messages[hash]; ok {
		return true
	}
	_, ok := s.deleted[hash]
	return ok
}

func (s *Store) link(prev, next types.Hash) {
	l, ok := s.links[prev]
	if !ok {
		s.links[prev] = &Link{First: next}
		return
	}
	switch {
	case l.First == next || l.Second == next:
	case l.Second.IsEmpty():
		l.Second = next
	default:
		l.Multiple = true
	}
}

// Get 返回消息，不存在返回 nil
func (s *Store) Get(hash types.Hash) *message.Message {
	if e, ok := s.messages[hash]; ok {
		return e.msg
	}
	return nil
}

// Encoded 返回消息编码（用于转发与应答 REQUEST）
func (s *Store) Encoded(hash types.Hash) ([]byte, bool) {
	if e, ok := s.messages[hash]; ok {
		return e.data, true
	}
	return nil, false
}

// Has 消息是否在存储中（墓碑不算）
func (s *Store) Has(hash types.Hash) bool {
	_, ok := s.messages[hash]
	return ok
}

// IsDeleted 是否为已删除消息
func (s *Store) IsDeleted(hash types.Hash) bool {
	_, ok := s.deleted[hash]
	return ok
}

// Link 返回哈希的后继链接
func (s *Store) Link(hash types.Hash) (Link, bool) {
	l, ok := s.links[hash]
	if !ok {
		return Link{}, false
	}
	return *l, true
}

// Delete 删除消息并留下墓碑，链接保持不变
func (s *Store) Delete(hash types.Hash) bool {
	if _, ok := s.messages[hash]; !ok {
		return false
	}
	delete(s.messages, hash)
	s.deleted[hash] = struct{}{}
	return true
}

// Iterate 遍历所有消息，fn 返回 false 停止
func (s *Store) Iterate(fn func(hash types.Hash, msg *message.Message) bool) {
	for hash, e := range s.messages {
		if !fn(hash, e.msg) {
			return
		}
	}
}

// Len 返回消息数量（不含墓碑）
func (s *Store) Len() int {
	return len(s.messages)
}

// ============================================================================
//                              持久化
// ============================================================================

var (
	indexKey  = []byte("msgidx")
	msgPrefix = []byte("msg/")
)

type index struct {
	Links   map[string]Link `json:"links"`
	Deleted []string        `json:"deleted"`
}

// Save 保存消息、链接与墓碑
func (s *Store) Save(store *kv.Store) error {
	if err := store.DeletePrefix(msgPrefix); err != nil {
		return err
	}

	batch := store.NewBatch()
	for hash, e := range s.messages {
		batch.Put(msgKey(hash), e.data)
	}

	idx := index{Links: make(map[string]Link, len(s.links))}
	for hash, l := range s.links {
		idx.Links[hash.String()] = *l
	}
	for hash := range s.deleted {
		idx.Deleted = append(idx.Deleted, hash.String())
	}
	if err := batch.PutJSON(indexKey, idx); err != nil {
		return err
	}
	return batch.Write()
}

// Load 加载消息；编码与键不一致的条目被丢弃
func (s *Store) Load(store *kv.Store) error {
	var idx index
	if err := store.GetJSON(indexKey, &idx); err != nil && !engine.IsNotFound(err) {
		return fmt.Errorf("load message index: %w", err)
	}
	for key, l := range idx.Links {
		hash, err := types.ParseHash(key)
		if err != nil {
			continue
		}
		link := l
		s.links[hash] = &link
	}
	for _, key := range idx.Deleted {
		if hash, err := types.ParseHash(key); err == nil {
			s.deleted[hash] = struct{}{}
		}
	}

	var dropped int
	err := store.PrefixScan(msgPrefix, func(key, value []byte) bool {
		hash, err := types.ParseHash(string(key[len(msgPrefix):]))
		if err != nil || message.Hash(value) != hash {
			dropped++
			return true
		}
		msg, err := message.Decode(value)
		if err != nil {
			dropped++
			return true
		}
		s.messages[hash] = &entry{msg: msg, data: value}
		return true
	})
	if dropped > 0 {
		logger.Warn("丢弃损坏的消息记录", "count", dropped)
	}
	return err
}

func msgKey(hash types.Hash) []byte {
	return append(append([]byte(nil), msgPrefix...), hash.String()...)
}
