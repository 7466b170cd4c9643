package member

import (
	"fmt"

	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// Session 成员会话
type Session struct {
	member  *Member
	key     crypto.PublicKey
	keyHash types.Hash
	contact *contact.Contact

	// history 会话可见的消息，true 表示由本会话签发
	history  map[types.Hash]bool
	authored []types.Hash

	prev *Session
	next *Session

	start     types.Timestamp
	closed    bool
	completed bool
}

// Member 返回所属成员
func (s *Session) Member() *Member {
	return s.member
}

// Key 返回会话公钥
func (s *Session) Key() crypto.PublicKey {
	return s.key
}

// KeyHash 返回会话公钥哈希（会话在成员内的键）
func (s *Session) KeyHash() types.Hash {
	return s.keyHash
}

// Context 返回所属成员的上下文哈希
func (s *Session) Context() types.Hash {
	return s.member.Context()
}

// Contact 返回关联联系人
func (s *Session) Contact() *contact.Contact {
	return s.contact
}

// Prev 返回轮换链上的前一个会话
func (s *Session) Prev() *Session {
	return s.prev
}

// Next 返回轮换链上的后一个会话
func (s *Session) Next() *Session {
	return s.next
}

// Start 返回会话开始时间（最近一次 JOIN 的时间戳）
func (s *Session) Start() types.Timestamp {
	return s.start
}

// IsClosed 会话是否已关闭
func (s *Session) IsClosed() bool {
	return s.closed
}

// Completed 会话已关闭且已被后继取代
func (s *Session) Completed() bool {
	return s.completed
}

// Authored 返回本会话签发的消息，按签发顺序
func (s *Session) Authored() []types.Hash {
	return append([]types.Hash(nil), s.authored...)
}

// Switch 按 KEY 或 ID 消息创建后继会话
//
// KEY 在同一成员下换用新公钥，ID 把同一公钥迁到新成员。
// 后继复制本会话的历史但不继承所有权，随后本会话关闭并完成。
func (s *Session) Switch(msg *message.Message, hash types.Hash) (*Session, error) {
	if s.completed {
		return nil, ErrSessionCompleted
	}

	var target *Member
	var key crypto.PublicKey
	switch msg.Kind {
	case message.KindKey:
		target, key = s.member, msg.Key
	case message.KindID:
		target, key = s.member.store.Add(msg.ID), s.key
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSwitch, msg.Kind)
	}
	if key == nil {
		return nil, ErrInvalidSwitch
	}

	next := target.TrySession(key)
	if next == s {
		return nil, ErrInvalidSwitch
	}

	for h := range s.history {
		if _, ok := next.history[h]; !ok {
			next.history[h] = false
		}
	}
	if next.start < msg.Timestamp {
		next.start = msg.Timestamp
	}
	next.closed = false
	next.prev = s
	s.next = next

	next.SyncContacts()
	s.Close()

	logger.Debug("会话切换",
		"kind", msg.Kind,
		"from", s.member.id.ShortString(),
		"to", target.id.ShortString(),
		"hash", hash.ShortString())
	return next, nil
}

// SyncContacts 把链尾会话的联系人向前传播到整条轮换链
func (s *Session) SyncContacts() {
	tail := s
	for tail.next != nil {
		tail = tail.next
	}

	contacts := s.member.store.contacts
	c := tail.contact
	for p := tail.prev; p != nil; p = p.prev {
		if p.contact == c || p.completed {
			continue
		}
		if c != nil && c.Name() == "" && p.contact != nil {
			c.SetName(p.contact.Name())
		}
		contacts.Release(p.contact)
		contacts.Retain(c)
		p.contact = c
	}
}

// Close 关闭会话，已有后继的会话随即完成
func (s *Session) Close() {
	s.closed = true
	if s.next != nil && !s.completed {
		s.complete()
	}
}

func (s *Session) complete() {
	s.completed = true
	if s.member.sessions[s.keyHash] == s {
		delete(s.member.sessions, s.keyHash)
	}
	s.member.store.contacts.Release(s.contact)

	logger.Debug("会话已完成", "member", s.member.id.ShortString(), "session", s.keyHash.ShortString())
}

// Reset 以 JOIN 开始新纪元：清空历史并重新开启
func (s *Session) Reset(timestamp types.Timestamp) {
	s.history = make(map[types.Hash]bool)
	s.authored = nil
	s.closed = false
	s.start = timestamp
}

// UpdateHistory 记录本会话签发的消息，并以无所有权的形式传给所有后继
func (s *Session) UpdateHistory(msg *message.Message, hash types.Hash) {
	if msg.Kind.IsLocal() {
		return
	}
	if owned := s.history[hash]; !owned {
		s.history[hash] = true
		s.authored = append(s.authored, hash)
	}
	for n := s.next; n != nil; n = n.next {
		if _, ok := n.history[hash]; !ok {
			n.history[hash] = false
		}
	}
}

// CheckHistory 会话是否可见 hash；ownership 为 true 时还要求由本会话签发
func (s *Session) CheckHistory(hash types.Hash, ownership bool) bool {
	owned, ok := s.history[hash]
	if !ok {
		return false
	}
	return owned || !ownership
}

// Oldest 返回轮换链最早的会话
func (s *Session) Oldest() *Session {
	first := s
	for first.prev != nil {
		first = first.prev
	}
	return first
}
