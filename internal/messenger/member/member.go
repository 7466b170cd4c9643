package member

import (
	"sort"

	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// Member 房间成员
type Member struct {
	store    *Store
	id       types.MemberID
	sessions map[types.Hash]*Session
}

// ID 返回成员 ID
func (m *Member) ID() types.MemberID {
	return m.id
}

// Context 返回成员上下文哈希
func (m *Member) Context() types.Hash {
	return contact.ContextHash(m.store.room, m.id)
}

// Session 返回公钥对应的会话，不存在返回 nil
func (m *Member) Session(key crypto.PublicKey) *Session {
	if key == nil {
		return nil
	}
	return m.sessions[crypto.KeyHash(key)]
}

// TrySession 返回公钥对应的会话，不存在时创建
func (m *Member) TrySession(key crypto.PublicKey) *Session {
	if key == nil {
		return nil
	}
	hash := crypto.KeyHash(key)
	if s, ok := m.sessions[hash]; ok {
		return s
	}

	s := &Session{
		member:  m,
		key:     key,
		keyHash: hash,
		history: make(map[types.Hash]bool),
	}
	s.contact = m.store.contacts.Acquire(m.Context(), key)
	m.sessions[hash] = s

	logger.Debug("创建成员会话", "member", m.id.ShortString(), "session", hash.ShortString())
	return s
}

// SessionFor 找出应为消息负责的会话
//
// JOIN 按消息内公钥取得（或创建）会话，签名必须由该公钥产生。
// 其他类型在未完成的会话中查找：历史中已有该哈希，或者会话开启且签名可由其公钥验证。
func (m *Member) SessionFor(msg *message.Message, hash types.Hash) *Session {
	if msg.Kind == message.KindJoin {
		if msg.Key == nil {
			return nil
		}
		if s := m.Session(msg.Key); s != nil {
			if _, ok := s.history[hash]; ok {
				return s
			}
		}
		if !message.Verify(msg, msg.Key) {
			return nil
		}
		return m.TrySession(msg.Key)
	}

	sessions := m.Sessions()
	for _, s := range sessions {
		if _, ok := s.history[hash]; ok {
			return s
		}
	}
	for _, s := range sessions {
		if !s.closed && message.Verify(msg, s.key) {
			return s
		}
	}
	return nil
}

// Sessions 返回未完成的会话，按开始时间排序
func (m *Member) Sessions() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.completed {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out
}

func sortSessions(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].start != sessions[j].start {
			return sessions[i].start < sessions[j].start
		}
		return sessions[i].keyHash.Compare(sessions[j].keyHash) < 0
	})
}
