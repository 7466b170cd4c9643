package room

import (
	"fmt"
	"time"

	"github.com/dep2p/go-messenger/internal/messenger/handle"
	"github.com/dep2p/go-messenger/internal/messenger/member"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/operation"
	"github.com/dep2p/go-messenger/internal/messenger/tunnel"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// Send 以 h 的会话发送一条消息，返回消息哈希
//
// JOIN 与 LEAVE 由 Open/Enter/Leave 发出，这里拒绝。
func (r *Room) Send(h *handle.Handle, msg *message.Message) (types.Hash, error) {
	if msg.Kind == message.KindJoin || msg.Kind == message.KindLeave {
		return types.EmptyHash, fmt.Errorf("%w: %s", ErrReservedKind, msg.Kind)
	}
	if !msg.Kind.IsSessionBound() {
		return types.EmptyHash, fmt.Errorf("%w: %s", message.ErrUnknownKind, msg.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return types.EmptyHash, ErrClosed
	}
	if _, ok := r.handles[h]; !ok {
		return types.EmptyHash, ErrNotMember
	}
	return r.sendLocked(h, msg)
}

// Delete 安排在 delay 之后删除 h 签发的消息
//
// 会话不拥有 hash 时返回 ErrPermissionDenied；delay 为负（无限）时返回
// operation.ErrOperationDenied；hash 上已有挂起操作时返回 operation.ErrOperationConflict。
func (r *Room) Delete(h *handle.Handle, hash types.Hash, delay time.Duration) (types.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return types.EmptyHash, ErrClosed
	}

	s := r.sessionOfLocked(h)
	if s == nil {
		return types.EmptyHash, ErrNotMember
	}
	if !s.CheckHistory(hash, true) {
		logger.Warn("拒绝删除非本会话签发的消息", "room", r.key.ShortString(), "hash", hash.ShortString())
		return types.EmptyHash, ErrPermissionDenied
	}
	if delay < 0 {
		return types.EmptyHash, operation.ErrOperationDenied
	}
	if r.ops.Kind(hash) != operation.KindUnknown {
		return types.EmptyHash, operation.ErrOperationConflict
	}
	return r.sendLocked(h, message.NewDelete(hash, delay))
}

// sendLocked 盖戳、签名、存储、广播并排队处理一条会话消息
func (r *Room) sendLocked(h *handle.Handle, msg *message.Message) (types.Hash, error) {
	id, ok := h.MemberID(r.key)
	if !ok {
		return types.EmptyHash, ErrNotMember
	}
	if msg.Kind != message.KindJoin {
		if s := r.sessionOfLocked(h); s == nil || s.IsClosed() {
			return types.EmptyHash, ErrNotMember
		}
	}

	if err := r.flushMergesLocked(); err != nil {
		return types.EmptyHash, err
	}

	msg.SenderID = id
	msg.Previous = r.state.ChainHash()
	msg.Timestamp = r.nowAfterLocked(msg.Previous)

	data, err := message.Sign(msg, h.SigningKey())
	if err != nil {
		return types.EmptyHash, err
	}
	hash := message.Hash(data)
	r.acceptLocalLocked(msg, hash, data, h)
	return hash, nil
}

// sendPeerLocked 以节点密钥签发一条节点消息
//
// INFO 与 REQUEST 只属于单条隧道，由调用方自行发送，不经过这里。
func (r *Room) sendPeerLocked(msg *message.Message) (types.Hash, error) {
	msg.Previous = r.state.ChainHash()
	msg.Timestamp = r.nowAfterLocked(msg.Previous)
	if msg.Kind == message.KindMerge {
		if prev := r.messages.Get(msg.Target); prev != nil && prev.Timestamp > msg.Timestamp {
			msg.Timestamp = prev.Timestamp
		}
	}

	data, err := message.Sign(msg, r.id.PrivateKey())
	if err != nil {
		return types.EmptyHash, err
	}
	hash := message.Hash(data)
	r.acceptLocalLocked(msg, hash, data, nil)
	return hash, nil
}

// signLocalLocked 签发只在隧道内有效的 INFO/REQUEST
func (r *Room) signLocalLocked(msg *message.Message) ([]byte, error) {
	msg.Timestamp = types.Now(r.clock)
	return message.Sign(msg, r.id.PrivateKey())
}

func (r *Room) acceptLocalLocked(msg *message.Message, hash types.Hash, data []byte, origin *handle.Handle) {
	r.messages.PutEncoded(hash, msg, data)
	r.state.Update(false, msg, hash)
	r.broadcastLocked(data, hash, nil)
	r.metrics.MessageSent(msg.Kind.String())
	r.enqueueLocked(pending{msg: msg, hash: hash, origin: origin, recent: true})
}

// flushMergesLocked 发出 MERGE 直到前沿只剩一项
func (r *Room) flushMergesLocked() error {
	for {
		mh, ok := r.state.MergeHash()
		if !ok {
			return nil
		}
		r.ops.Cancel(mh)
		if _, err := r.sendPeerLocked(message.NewMerge(r.self, mh)); err != nil {
			return err
		}
	}
}

// broadcastLocked 发往所有版本兼容的已连接隧道，except 除外
func (r *Room) broadcastLocked(data []byte, hash types.Hash, except *tunnel.Tunnel) {
	for _, t := range r.tunnels {
		if t == except || !t.IsConnected() {
			continue
		}
		if !tunnel.Compatible(t.Version(), r.cfg.Version) {
			continue
		}
		if err := t.Send(data, hash); err != nil {
			logger.Debug("转发失败", "peer", t.Peer().ShortString(), "error", err)
		}
	}
}

// Forward 把已存储的消息转发到除 origin 外的所有隧道
func (r *Room) Forward(origin types.PeerID, hash types.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.messages.Encoded(hash)
	if !ok {
		return false
	}
	r.broadcastLocked(data, hash, r.tunnels[origin])
	return true
}

// ============================================================================
//                              加入与回放
// ============================================================================

// joinLocked 为 h 准备成员 ID、发送 JOIN，并回放其他会话可见的消息
func (r *Room) joinLocked(h *handle.Handle) error {
	if _, ok := r.handles[h]; ok {
		return nil
	}
	if _, ok := h.MemberID(r.key); !ok {
		h.SetMemberID(r.key, r.members.Generate())
	}
	r.handles[h] = struct{}{}

	if _, err := r.sendLocked(h, message.NewJoin(h.PublicKey())); err != nil {
		delete(r.handles, h)
		return err
	}
	r.replayLocked(h)

	if name := h.Name(); name != "" {
		if _, err := r.sendLocked(h, message.NewName(name)); err != nil {
			return err
		}
	}

	id, _ := h.MemberID(r.key)
	logger.Info("加入房间", "room", r.key.ShortString(), "member", id.ShortString())
	return nil
}

// replayLocked 向 h 回放其他未完成会话签发的消息
//
// 每条轮换链从最早的会话开始，按签发顺序；已删除或 h 自身会话已见过的消息跳过。
func (r *Room) replayLocked(h *handle.Handle) {
	own := r.sessionOfLocked(h)
	seen := make(map[types.Hash]struct{})

	for _, s := range r.members.Sessions() {
		if s == own {
			continue
		}
		for cur := s.Oldest(); cur != nil; cur = cur.Next() {
			for _, hash := range cur.Authored() {
				if _, ok := seen[hash]; ok {
					continue
				}
				seen[hash] = struct{}{}
				if own != nil && own.CheckHistory(hash, false) {
					continue
				}
				msg := r.messages.Get(hash)
				if msg == nil {
					continue
				}
				h.Notify(handle.Event{
					Kind:    handle.EventMessage,
					Room:    r.key,
					Hash:    hash,
					Message: msg,
					Sender:  s.Contact(),
					Member:  s.Member().ID(),
				})
			}
			if cur == s {
				break
			}
		}
	}
}

// ============================================================================
//                              成员 ID 冲突
// ============================================================================

// solveCollisionsLocked 处理同一成员 ID 下不同公钥的开放会话
//
// 开始时间较晚的一方让出成员 ID，同一时间以公钥哈希较大的一方让出。
// 只有本地 Handle 会被重新分配，远端节点以同样的规则处理自己的 Handle。
func (r *Room) solveCollisionsLocked(key crypto.PublicKey, id types.MemberID, ts types.Timestamp) {
	m := r.members.Get(id)
	if m == nil {
		return
	}
	keyHash := crypto.KeyHash(key)

	for _, other := range m.Sessions() {
		if other.IsClosed() || other.KeyHash() == keyHash {
			continue
		}

		loserKey := key
		switch {
		case other.Start() > ts:
			loserKey = other.Key()
		case other.Start() == ts && other.KeyHash().Compare(keyHash) > 0:
			loserKey = other.Key()
		}

		if h := r.localHandleLocked(id, loserKey); h != nil {
			r.reassignLocked(h, id)
		}
	}
}

// reassignLocked 为 h 生成新的成员 ID 并以 ID 消息公布
func (r *Room) reassignLocked(h *handle.Handle, old types.MemberID) {
	next := r.members.Generate()
	if _, err := r.sendLocked(h, message.NewID(next)); err != nil {
		logger.Warn("重新分配成员 ID 失败", "room", r.key.ShortString(), "member", old.ShortString(), "error", err)
		return
	}
	h.SetMemberID(r.key, next)

	logger.Info("成员 ID 冲突，重新分配",
		"room", r.key.ShortString(),
		"from", old.ShortString(),
		"to", next.ShortString())
	h.Notify(handle.Event{Kind: handle.EventMemberID, Room: r.key, Member: next})
}

// sessionForLocked 为 pending 消息找出负责的会话
//
// 只有签名可由消息内公钥验证的 JOIN 会创建新成员，其他类型只在已知成员中查找。
func (r *Room) sessionForLocked(p pending) *member.Session {
	m := r.members.Get(p.msg.SenderID)
	if m == nil {
		if p.msg.Kind != message.KindJoin || p.msg.Key == nil || !message.Verify(p.msg, p.msg.Key) {
			return nil
		}
		m = r.members.Add(p.msg.SenderID)
	}
	return m.SessionFor(p.msg, p.hash)
}
