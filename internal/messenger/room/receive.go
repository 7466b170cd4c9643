package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/internal/messenger/operation"
	"github.com/dep2p/go-messenger/internal/messenger/tunnel"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/types"
)

var _ interfaces.ChannelHandler = (*Room)(nil)

// ============================================================================
//                              ChannelHandler
// ============================================================================

// HandleChannel 接受入站通道
func (r *Room) HandleChannel(ch interfaces.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.opened {
		return false
	}

	t := r.tunnelLocked(ch.Peer())
	if !t.Attach(ch) {
		logger.Debug("保留已有通道，拒绝入站", "room", r.key.ShortString(), "peer", ch.Peer().ShortString())
		return false
	}
	r.onConnectedLocked(t)
	return true
}

// HandleReceive 处理一帧入站数据
func (r *Room) HandleReceive(ch interfaces.Channel, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	t, ok := r.tunnels[ch.Peer()]
	if !ok {
		return
	}
	if cur := t.Channel(); cur != ch {
		// 出站通道的首帧可能先于 Connect 返回到达
		if cur != nil || !t.Attach(ch) {
			return
		}
	}

	msg, hash, err := t.Check(data)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, tunnel.ErrRateLimited) {
			reason = "rate"
		}
		r.metrics.MessageDropped(reason)
		logger.Debug("丢弃入站帧", "room", r.key.ShortString(), "peer", t.Peer().ShortString(), "error", err)
		return
	}
	r.metrics.MessageReceived(msg.Kind.String())

	switch msg.Kind {
	case message.KindInfo:
		r.handleInfoLocked(t, msg)
	case message.KindRequest:
		r.handleRequestLocked(t, msg)
	default:
		if err := r.receiveLocked(t, msg, hash, data); err != nil {
			logger.Debug("拒绝入站消息",
				"room", r.key.ShortString(),
				"peer", t.Peer().ShortString(),
				"kind", msg.Kind,
				"hash", hash.ShortString(),
				"error", err)
		}
	}
}

// HandleDisconnect 处理通道断开
func (r *Room) HandleDisconnect(ch interfaces.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tunnels[ch.Peer()]
	if !ok || !t.Detach(ch) {
		return
	}
	r.metrics.TunnelDisconnected()
	logger.Debug("隧道断开", "room", r.key.ShortString(), "peer", t.Peer().ShortString())

	if r.closed {
		return
	}
	// 只重连覆盖网规则要求直连的节点，其余隧道保持断开
	if r.relayingLocked() && r.requiredLocked(t.Peer()) {
		r.connectAsyncLocked(t.Peer())
	}
}

// onConnectedLocked 隧道可用后首先发送 INFO
func (r *Room) onConnectedLocked(t *tunnel.Tunnel) {
	r.metrics.TunnelConnected()
	if t.MarkInfoSent() {
		r.sendInfoLocked(t)
	}
}

func (r *Room) sendInfoLocked(t *tunnel.Tunnel) {
	data, err := r.signLocalLocked(message.NewInfo(r.self, r.cfg.Version))
	if err != nil {
		logger.Warn("签发 INFO 失败", "room", r.key.ShortString(), "error", err)
		return
	}
	if err := t.Send(data, message.Hash(data)); err != nil {
		logger.Debug("发送 INFO 失败", "peer", t.Peer().ShortString(), "error", err)
	}
}

// handleInfoLocked 握手：核对版本，回应 INFO，并把覆盖网与前沿消息同步给对端
func (r *Room) handleInfoLocked(t *tunnel.Tunnel, msg *message.Message) {
	if err := message.VerifyPeer(msg); err != nil || msg.Peer != t.Peer() {
		r.metrics.MessageDropped("signature")
		logger.Debug("INFO 验证失败", "room", r.key.ShortString(), "peer", t.Peer().ShortString())
		return
	}
	if err := t.UpdateVersion(msg.Version); err != nil {
		logger.Warn("对端协议版本不兼容，断开", "room", r.key.ShortString(), "peer", t.Peer().ShortString(), "error", err)
		if t.Disconnect() {
			r.metrics.TunnelDisconnected()
		}
		return
	}
	if t.MarkInfoSent() {
		r.sendInfoLocked(t)
	}

	for _, peer := range r.basement.Peers() {
		if hash, ok := r.basement.Message(peer); ok {
			r.sendStoredLocked(t, hash)
		}
	}
	for _, hash := range r.state.Frontier() {
		r.sendStoredLocked(t, hash)
	}
}

func (r *Room) sendStoredLocked(t *tunnel.Tunnel, hash types.Hash) {
	data, ok := r.messages.Encoded(hash)
	if !ok {
		return
	}
	if err := t.Send(data, hash); err != nil {
		logger.Debug("发送消息失败", "peer", t.Peer().ShortString(), "error", err)
	}
}

// handleRequestLocked 应答对端的 REQUEST
//
// 同一 (peer, hash) 在节流窗口内只应答一次。
func (r *Room) handleRequestLocked(t *tunnel.Tunnel, msg *message.Message) {
	if err := message.VerifyPeer(msg); err != nil {
		r.metrics.MessageDropped("signature")
		return
	}
	if r.ops.Kind(msg.Target) == operation.KindRequest {
		r.ops.Cancel(msg.Target)
	}

	data, ok := r.messages.Encoded(msg.Target)
	if !ok {
		return
	}
	key := answerKey{peer: t.Peer(), hash: msg.Target}
	if r.answered.Contains(key) {
		return
	}
	r.answered.Add(key, struct{}{})
	if err := t.Send(data, msg.Target); err != nil {
		logger.Debug("应答 REQUEST 失败", "peer", t.Peer().ShortString(), "error", err)
	}
}

// ============================================================================
//                              入站消息
// ============================================================================

// VerifyInbound 校验入站消息的类型与时间戳因果
func (r *Room) VerifyInbound(msg *message.Message, hash types.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verifyInboundLocked(msg, hash)
}

// verifyInboundLocked 消息时间戳不得早于存储中的任一前驱
func (r *Room) verifyInboundLocked(msg *message.Message, hash types.Hash) error {
	if !msg.Kind.IsValid() {
		return fmt.Errorf("%w: %d", message.ErrUnknownKind, msg.Kind)
	}
	for _, prev := range msg.Predecessors() {
		p := r.messages.Get(prev)
		if p == nil {
			continue
		}
		if types.TimestampDifference(msg.Timestamp, p.Timestamp) != 0 {
			return fmt.Errorf("%w: %s precedes %s", ErrTimestampMismatch, hash.ShortString(), prev.ShortString())
		}
	}
	return nil
}

// receiveLocked 校验、存储、请求缺失前驱、转发并排队一条入站消息
func (r *Room) receiveLocked(t *tunnel.Tunnel, msg *message.Message, hash types.Hash, data []byte) error {
	if r.messages.Has(hash) || r.messages.IsDeleted(hash) {
		r.metrics.MessageDropped("duplicate")
		return nil
	}
	if msg.Kind.IsPeer() {
		if err := message.VerifyPeer(msg); err != nil {
			r.metrics.MessageDropped("signature")
			return err
		}
	}
	if err := r.verifyInboundLocked(msg, hash); err != nil {
		r.metrics.MessageDropped("causality")
		return err
	}

	_, requested := r.requested[hash]
	if requested {
		delete(r.requested, hash)
		r.ops.Cancel(hash)
	}

	r.messages.PutEncoded(hash, msg, data)
	t.SetLastMessage(hash)

	for _, prev := range msg.Predecessors() {
		if !r.messages.Has(prev) && !r.messages.IsDeleted(prev) {
			r.requestLocked(prev, t)
		}
	}

	r.state.Update(requested, msg, hash)
	if !requested {
		r.broadcastLocked(data, hash, t)
	}
	if msg.Kind == message.KindPeer && msg.Peer == t.Peer() {
		t.SetPeerMessage(hash)
	}

	r.enqueueLocked(pending{msg: msg, hash: hash, recent: !requested})
	return nil
}

// RequestMessage 向所有隧道请求一条缺失的消息
func (r *Room) RequestMessage(hash types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.requestLocked(hash, nil)
}

// requestLocked 登记 REQUEST 操作并发出请求，via 为 nil 时广播
func (r *Room) requestLocked(hash types.Hash, via *tunnel.Tunnel) {
	if r.messages.Has(hash) || r.messages.IsDeleted(hash) {
		return
	}
	if _, ok := r.requested[hash]; ok {
		return
	}
	if err := r.ops.Use(hash, operation.KindRequest, r.cfg.RequestDelay); err != nil {
		logger.Debug("REQUEST 未登记", "hash", hash.ShortString(), "error", err)
		return
	}
	r.requested[hash] = struct{}{}
	r.metrics.Operation(operation.KindRequest.String(), "scheduled")

	data, err := r.signLocalLocked(message.NewRequest(r.self, hash))
	if err != nil {
		logger.Warn("签发 REQUEST 失败", "error", err)
		return
	}
	if via != nil && via.IsConnected() {
		if err := via.Send(data, message.Hash(data)); err == nil {
			return
		}
	}
	r.broadcastLocked(data, message.Hash(data), nil)
}

// ============================================================================
//                              覆盖网
// ============================================================================

// rebuildLocked 按 Basement 重新计算需要的直连
func (r *Room) rebuildLocked() {
	connect, disconnect, ok := r.basement.Plan(r.self)
	if !ok {
		return
	}
	for _, peer := range connect {
		if t, ok := r.tunnels[peer]; ok && t.IsConnected() {
			continue
		}
		r.connectAsyncLocked(peer)
	}
	for _, peer := range disconnect {
		if t, ok := r.tunnels[peer]; ok && t.Disconnect() {
			r.metrics.TunnelDisconnected()
		}
	}
	logger.Debug("重建覆盖网", "room", r.key.ShortString(), "peers", r.basement.Len(), "connect", len(connect))
}

// connectAsyncLocked 在后台连接 peer，失败且仍需直连时发出 MISS
func (r *Room) connectAsyncLocked(peer types.PeerID) {
	t := r.tunnelLocked(peer)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.DialTimeout)
		err := t.Connect(ctx)
		cancel()

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			if err == nil {
				t.Disconnect()
			}
			return
		}
		switch {
		case err == nil && r.relayingLocked() && !r.requiredLocked(peer):
			// 拨号期间覆盖网已变化
			t.Disconnect()
		case err == nil:
			r.onConnectedLocked(t)
		case errors.Is(err, tunnel.ErrAlreadyConnected):
		default:
			logger.Debug("连接覆盖网节点失败", "room", r.key.ShortString(), "peer", peer.ShortString(), "error", err)
			if r.relayingLocked() && r.requiredLocked(peer) {
				if _, err := r.sendPeerLocked(message.NewMiss(r.self, peer)); err != nil {
					logger.Warn("发送 MISS 失败", "error", err)
				}
			}
		}
	}()
}
