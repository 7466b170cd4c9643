// Package contact 管理公钥到联系人的引用计数映射
//
// 普通公钥按 hash(公钥编码) 索引；匿名公钥被所有匿名成员共享，
// 因此改用每个成员的上下文哈希 hash(roomKey || memberID) 索引，
// 不同房间、不同成员的匿名身份各自对应独立的联系人。
package contact

import (
	"sync"

	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/contact")

// Contact 联系人
type Contact struct {
	id    uint32
	index types.Hash
	key   crypto.PublicKey

	mu   sync.RWMutex
	name string
	refs int
}

// ID 本地单调递增的联系人编号
func (c *Contact) ID() uint32 {
	return c.id
}

// Key 联系人公钥
func (c *Contact) Key() crypto.PublicKey {
	return c.key
}

// Name 显示名
func (c *Contact) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName 设置显示名
func (c *Contact) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// ContextHash 计算成员上下文哈希
func ContextHash(room types.RoomKey, id types.MemberID) types.Hash {
	return types.HashBytes(room[:], id[:])
}

// Store 联系人存储，所有房间共享
type Store struct {
	anonymous *crypto.Anonymous

	mu       sync.Mutex
	contacts map[types.Hash]*Contact
	nextID   uint32
}

// NewStore 创建联系人存储
func NewStore(anonymous *crypto.Anonymous) *Store {
	return &Store{
		anonymous: anonymous,
		contacts:  make(map[types.Hash]*Contact),
	}
}

func (s *Store) indexOf(context types.Hash, key crypto.PublicKey) types.Hash {
	if s.anonymous != nil && s.anonymous.IsAnonymous(key) {
		return context
	}
	return crypto.KeyHash(key)
}

// Get 查找联系人，不存在返回 nil
func (s *Store) Get(context types.Hash, key crypto.PublicKey) *Contact {
	if key == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[s.indexOf(context, key)]
}

// Acquire 获取联系人并增加引用计数，不存在时创建
func (s *Store) Acquire(context types.Hash, key crypto.PublicKey) *Contact {
	if key == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireLocked(s.indexOf(context, key), key)
}

func (s *Store) acquireLocked(index types.Hash, key crypto.PublicKey) *Contact {
	c, ok := s.contacts[index]
	if !ok {
		s.nextID++
		c = &Contact{id: s.nextID, index: index, key: key}
		s.contacts[index] = c
		logger.Debug("创建联系人", "contact", c.id, "index", index.ShortString())
	}
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
	return c
}

// Retain 增加已有联系人的引用计数
func (s *Store) Retain(c *Contact) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Release 减少引用计数，归零时移除
func (s *Store) Release(c *Contact) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c.mu.Lock()
	c.refs--
	refs := c.refs
	c.mu.Unlock()

	if refs <= 0 && s.contacts[c.index] == c {
		delete(s.contacts, c.index)
		logger.Debug("移除联系人", "contact", c.id)
	}
}

// Update 将一个引用从 c 迁移到 newKey 对应的联系人（密钥轮换）
//
// 新联系人没有名字时继承旧名字。
func (s *Store) Update(c *Contact, context types.Hash, newKey crypto.PublicKey) *Contact {
	if newKey == nil {
		return c
	}
	next := s.Acquire(context, newKey)
	if c != nil && c != next {
		if next.Name() == "" {
			next.SetName(c.Name())
		}
	}
	s.Release(c)
	return next
}

// Len 返回联系人数量
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}
