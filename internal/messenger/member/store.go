// Package member 管理房间内的成员与成员会话
//
// Member 是房间内以短 ID 标识的匿名槽位，持有若干 Session；
// Session 是一个公钥在该槽位中的连续任期。KEY 消息在同一成员下切换到新公钥，
// ID 消息把同一公钥迁到新成员 ID，两者都通过 prev/next 把会话串成轮换链。
//
// 会话按 hash(公钥编码) 存放在所属成员的 map 中，prev/next 是同一 Store
// 内的指针，完成的会话从 map 中移除后仍可沿链访问。
//
// Store 不是并发安全的，由所属 Room 串行访问。
package member

import (
	"errors"
	"sort"

	"github.com/dep2p/go-messenger/internal/messenger/contact"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/member")

var (
	// ErrInvalidSwitch KEY/ID 消息没有产生新会话
	ErrInvalidSwitch = errors.New("member: invalid session switch")

	// ErrSessionCompleted 已完成的会话不能再切换
	ErrSessionCompleted = errors.New("member: session completed")
)

// Store 房间的成员存储
type Store struct {
	room     types.RoomKey
	contacts *contact.Store
	members  map[types.MemberID]*Member
}

// NewStore 创建成员存储
func NewStore(room types.RoomKey, contacts *contact.Store) *Store {
	return &Store{
		room:     room,
		contacts: contacts,
		members:  make(map[types.MemberID]*Member),
	}
}

// Get 返回成员，不存在返回 nil
func (s *Store) Get(id types.MemberID) *Member {
	return s.members[id]
}

// Add 返回成员，不存在时创建
func (s *Store) Add(id types.MemberID) *Member {
	if m, ok := s.members[id]; ok {
		return m
	}
	m := &Member{
		store:    s,
		id:       id,
		sessions: make(map[types.Hash]*Session),
	}
	s.members[id] = m
	logger.Debug("添加成员", "room", s.room.ShortString(), "member", id.ShortString())
	return m
}

// Generate 生成一个未被占用的成员 ID
func (s *Store) Generate() types.MemberID {
	for {
		id := types.GenerateMemberID()
		if _, ok := s.members[id]; !ok && !id.IsEmpty() {
			return id
		}
	}
}

// Iterate 按 ID 顺序遍历成员，fn 返回 false 停止
func (s *Store) Iterate(fn func(*Member) bool) {
	for _, m := range s.sorted() {
		if !fn(m) {
			return
		}
	}
}

func (s *Store) sorted() []*Member {
	out := make([]*Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].id[:]) < string(out[j].id[:])
	})
	return out
}

// Len 返回成员数量
func (s *Store) Len() int {
	return len(s.members)
}

// Sessions 返回所有未完成的会话，按开始时间排序
func (s *Store) Sessions() []*Session {
	var out []*Session
	for _, m := range s.sorted() {
		out = append(out, m.Sessions()...)
	}
	sortSessions(out)
	return out
}

// Close 释放所有会话持有的联系人引用
func (s *Store) Close() {
	for _, m := range s.members {
		for _, session := range m.sessions {
			s.contacts.Release(session.contact)
			session.contact = nil
		}
	}
}
