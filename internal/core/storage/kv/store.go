// Package kv 提供带前缀隔离的 KV 存储抽象层
//
// Store 在底层存储引擎之上提供命名空间隔离。房间、成员、会话
// 分别通过 SubStore 叠加前缀，得到与目录层级一致的键空间：
//
//	root := kv.New(engine, nil)
//	room := root.SubStore([]byte("r/" + key.String() + "/"))
//	member := room.SubStore([]byte("m/" + id.String() + "/"))
//
//	// 写入数据（自动添加前缀）
//	member.Put([]byte("id"), id.Bytes())   // 实际键: r/<room>/m/<member>/id
//
//	// 删除整个会话目录
//	member.DeletePrefix([]byte("s/" + session + "/"))
package kv

import (
	"encoding/json"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
)

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine engine.Engine
	prefix []byte
}

// New 创建新的 KVStore
//
// 参数:
//   - eng: 底层存储引擎
//   - prefix: 键前缀（所有操作会自动添加此前缀）
func New(eng engine.Engine, prefix []byte) *Store {
	return &Store{
		engine: eng,
		prefix: prefix,
	}
}

// prefixKey 为键添加前缀
func (s *Store) prefixKey(key []byte) []byte {
	if len(s.prefix) == 0 {
		return key
	}
	prefixed := make([]byte, len(s.prefix)+len(key))
	copy(prefixed, s.prefix)
	copy(prefixed[len(s.prefix):], key)
	return prefixed
}

// stripPrefix 从键中移除前缀
func (s *Store) stripPrefix(key []byte) []byte {
	if len(s.prefix) == 0 || len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// ============= 基础操作 =============

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.prefixKey(key))
}

// GetJSON 获取并反序列化 JSON 值
func (s *Store) GetJSON(key []byte, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化并存储 JSON 值
func (s *Store) PutJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// ============= 前缀迭代 =============

// PrefixScan 扫描指定前缀的所有键值对
//
// 回调函数返回 false 时停止扫描。
// 注意：返回的 key 已去除 Store 的前缀，但保留 subPrefix。
func (s *Store) PrefixScan(subPrefix []byte, fn func(key, value []byte) bool) error {
	iter := s.engine.NewPrefixIterator(s.prefixKey(subPrefix))
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(s.stripPrefix(iter.Key()), iter.Value()) {
			break
		}
	}

	return iter.Error()
}

// Keys 返回指定前缀的所有键
func (s *Store) Keys(subPrefix []byte) ([][]byte, error) {
	var keys [][]byte

	err := s.PrefixScan(subPrefix, func(key, _ []byte) bool {
		keyCopy := make([]byte, len(key))
		copy(keyCopy, key)
		keys = append(keys, keyCopy)
		return true
	})

	return keys, err
}

// Count 统计指定前缀的键数量
func (s *Store) Count(subPrefix []byte) (int64, error) {
	var count int64

	err := s.PrefixScan(subPrefix, func(_, _ []byte) bool {
		count++
		return true
	})

	return count, err
}

// DeletePrefix 删除指定前缀的所有键
func (s *Store) DeletePrefix(subPrefix []byte) error {
	keys, err := s.Keys(subPrefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	batch := s.engine.NewBatch()
	for _, key := range keys {
		batch.Delete(s.prefixKey(key))
	}

	return s.engine.Write(batch)
}

// ============= 批量操作 =============

// Batch 带前缀的批量操作
type Batch struct {
	store *Store
	batch engine.Batch
}

// NewBatch 创建新的批量操作
func (s *Store) NewBatch() *Batch {
	return &Batch{
		store: s,
		batch: s.engine.NewBatch(),
	}
}

// Put 添加写入操作
func (b *Batch) Put(key, value []byte) {
	b.batch.Put(b.store.prefixKey(key), value)
}

// Delete 添加删除操作
func (b *Batch) Delete(key []byte) {
	b.batch.Delete(b.store.prefixKey(key))
}

// PutJSON 添加 JSON 写入操作
func (b *Batch) PutJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Put(key, data)
	return nil
}

// Write 执行批量操作
func (b *Batch) Write() error {
	return b.batch.Write()
}

// Size 返回操作数量
func (b *Batch) Size() int {
	return b.batch.Size()
}

// ============= 辅助方法 =============

// Prefix 返回当前 Store 的前缀
func (s *Store) Prefix() []byte {
	return s.prefix
}

// SubStore 创建子存储（在当前前缀基础上添加子前缀）
func (s *Store) SubStore(subPrefix []byte) *Store {
	newPrefix := make([]byte, len(s.prefix)+len(subPrefix))
	copy(newPrefix, s.prefix)
	copy(newPrefix[len(s.prefix):], subPrefix)

	return &Store{
		engine: s.engine,
		prefix: newPrefix,
	}
}
