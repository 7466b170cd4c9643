package room

import (
	"github.com/dep2p/go-messenger/internal/messenger/handle"
	"github.com/dep2p/go-messenger/internal/messenger/member"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/operation"
	"github.com/dep2p/go-messenger/pkg/types"
)

// enqueueLocked 追加到处理队列；只有使队列由空变为非空的调用负责排空
func (r *Room) enqueueLocked(p pending) {
	r.handling = append(r.handling, p)
	if len(r.handling) > 1 {
		return
	}
	for len(r.handling) > 0 {
		r.handleLocked(r.handling[0])
		if len(r.handling) == 0 {
			return
		}
		r.handling = r.handling[1:]
	}
}

// handleLocked 按类型分派一条已存储的消息
func (r *Room) handleLocked(p pending) {
	msg := p.msg
	if msg.Kind.IsPeer() {
		r.handlePeerLocked(p)
		return
	}

	s := r.sessionForLocked(p)
	if s == nil {
		r.parkLocked(p)
		return
	}
	m := s.Member()

	switch msg.Kind {
	case message.KindJoin:
		s.Reset(msg.Timestamp)
		s.UpdateHistory(msg, p.hash)
		r.solveCollisionsLocked(s.Key(), m.ID(), msg.Timestamp)
		r.notifyLocked(p, s)
		r.retryLocked(m.ID())
		return

	case message.KindLeave:
		s.UpdateHistory(msg, p.hash)
		s.Close()

	case message.KindName:
		s.UpdateHistory(msg, p.hash)
		if c := s.Contact(); c != nil {
			c.SetName(msg.Text)
		}

	case message.KindKey, message.KindID:
		s.UpdateHistory(msg, p.hash)
		next, err := s.Switch(msg, p.hash)
		if err != nil {
			logger.Warn("会话切换失败", "room", r.key.ShortString(), "kind", msg.Kind, "error", err)
			break
		}
		r.notifyLocked(p, s)
		if msg.Kind == message.KindID {
			r.solveCollisionsLocked(next.Key(), msg.ID, msg.Timestamp)
			r.retryLocked(msg.ID)
		}
		r.retryLocked(m.ID())
		return

	case message.KindDelete:
		s.UpdateHistory(msg, p.hash)
		if !s.CheckHistory(msg.Target, true) {
			r.metrics.MessageDropped("permission")
			logger.Warn("DELETE 目标不属于该会话",
				"room", r.key.ShortString(),
				"member", m.ID().ShortString(),
				"target", msg.Target.ShortString())
			break
		}
		err := r.ops.UseAt(msg.Target, operation.KindDelete, msg.DeleteDeadline())
		r.metrics.Operation(operation.KindDelete.String(), resultOf(err))
		if err != nil {
			logger.Debug("DELETE 未登记", "target", msg.Target.ShortString(), "error", err)
		}

	default:
		s.UpdateHistory(msg, p.hash)
	}
	r.notifyLocked(p, s)
}

// handlePeerLocked 处理 PEER/MISS/MERGE
func (r *Room) handlePeerLocked(p pending) {
	msg := p.msg
	switch msg.Kind {
	case message.KindPeer:
		if msg.Peer == r.self {
			r.peerMessage = p.hash
		}
		added := r.basement.Add(msg.Peer, p.hash)
		if added && r.relayingLocked() {
			r.rebuildLocked()
		}

	case message.KindMiss:
		if !r.basement.Remove(msg.Missing) {
			return
		}
		if msg.Missing == r.self && r.relayingLocked() {
			// 被误报缺失：重新加入并再次公布自己
			if _, err := r.sendPeerLocked(message.NewPeer(r.self)); err != nil {
				logger.Warn("重新公布 PEER 失败", "error", err)
			}
			return
		}
		if r.relayingLocked() {
			r.rebuildLocked()
		}

	case message.KindMerge:
		for _, prev := range msg.Predecessors() {
			if r.ops.Kind(prev) == operation.KindMerge {
				r.ops.Cancel(prev)
			}
		}
	}
}

// parkLocked 暂存暂无可归属会话的消息，作者的 JOIN/KEY/ID 到达后重试
//
// 成员 ID 数与每个 ID 下的消息数都有上限，超出或到期的消息被丢弃。
func (r *Room) parkLocked(p pending) {
	id := p.msg.SenderID
	queued, _ := r.unresolved.Peek(id)
	if len(queued) >= r.cfg.PendingPerMember {
		r.metrics.MessageDropped("unattributed")
		logger.Debug("丢弃无法归属的消息",
			"room", r.key.ShortString(),
			"member", id.ShortString(),
			"hash", p.hash.ShortString())
		return
	}

	next := make([]pending, len(queued), len(queued)+1)
	copy(next, queued)
	if r.unresolved.Add(id, append(next, p)) {
		r.metrics.MessageDropped("unattributed")
	}
	logger.Debug("消息暂无可归属的会话",
		"room", r.key.ShortString(),
		"member", id.ShortString(),
		"kind", p.msg.Kind,
		"hash", p.hash.ShortString())
}

// retryLocked 重新排队等待 id 下会话出现的消息
func (r *Room) retryLocked(id types.MemberID) {
	queued, ok := r.unresolved.Peek(id)
	if !ok {
		return
	}
	r.unresolved.Remove(id)
	r.handling = append(r.handling, queued...)
}

// notifyLocked 通知每个在房间中有成员 ID 的本地 Handle
func (r *Room) notifyLocked(p pending, s *member.Session) {
	for h := range r.handles {
		if _, ok := h.MemberID(r.key); !ok {
			continue
		}
		var flags handle.Flags
		if p.recent {
			flags |= handle.FlagRecent
		}
		if p.origin == h {
			flags |= handle.FlagSent
		}
		h.Notify(handle.Event{
			Kind:    handle.EventMessage,
			Room:    r.key,
			Hash:    p.hash,
			Message: p.msg,
			Sender:  s.Contact(),
			Member:  s.Member().ID(),
			Flags:   flags,
		})
	}
}

func resultOf(err error) string {
	if err != nil {
		return "rejected"
	}
	return "scheduled"
}

// ============================================================================
//                              操作回调
// ============================================================================

// opHandler 把 OperationStore 的到期回调接入房间
type opHandler struct {
	r *Room
}

func (o opHandler) OnRequestExpired(hash types.Hash) {
	r := o.r
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requested, hash)
	r.metrics.Operation(operation.KindRequest.String(), "expired")
	logger.Debug("REQUEST 超时", "room", r.key.ShortString(), "hash", hash.ShortString())
}

func (o opHandler) OnMerge(hash types.Hash) {
	r := o.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.metrics.Operation(operation.KindMerge.String(), "expired")

	mh, ok := r.state.MergeHash()
	if !ok {
		return
	}
	if _, err := r.sendPeerLocked(message.NewMerge(r.self, mh)); err != nil {
		logger.Warn("发送 MERGE 失败", "room", r.key.ShortString(), "error", err)
	}
}

func (o opHandler) OnDelete(hash types.Hash) {
	r := o.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.metrics.Operation(operation.KindDelete.String(), "expired")
	if !r.messages.Delete(hash) {
		return
	}
	logger.Debug("消息已删除", "room", r.key.ShortString(), "hash", hash.ShortString())

	for h := range r.handles {
		h.Notify(handle.Event{Kind: handle.EventDeleted, Room: r.key, Hash: hash})
	}
}
