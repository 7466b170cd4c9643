package memory

import (
	"sync"

	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/types"
)

// frame 待投递的一帧
type frame struct {
	data []byte
	done func(error)
}

// endpoint 通道的一端
//
// 发往本端的帧进入 inbox，由本端的投递协程依次交给 handler。
type endpoint struct {
	owner   *Service
	peer    types.PeerID
	handler interfaces.ChannelHandler
	other   *endpoint

	mu      sync.Mutex
	inbox   []frame
	signal  chan struct{}
	closed  bool
	notify  bool // 对端关闭时通知 handler
	ready   chan struct{}
	once    sync.Once
}

// newPair 创建一对相连的端点
//
// a 属于 owner（对端为 peerB），b 属于 remote（对端为 peerA）。
func newPair(owner *Service, peerA types.PeerID, ha interfaces.ChannelHandler,
	remote *Service, peerB types.PeerID, hb interfaces.ChannelHandler) (*endpoint, *endpoint) {
	a := newEndpoint(owner, peerB, ha)
	b := newEndpoint(remote, peerA, hb)
	a.other, b.other = b, a
	a.accept()

	go a.pump()
	go b.pump()
	return a, b
}

func newEndpoint(owner *Service, peer types.PeerID, h interfaces.ChannelHandler) *endpoint {
	return &endpoint{
		owner:   owner,
		peer:    peer,
		handler: h,
		signal:  make(chan struct{}, 1),
		ready:   make(chan struct{}),
	}
}

// accept 放行投递协程（入站端在 HandleChannel 返回后放行）
func (e *endpoint) accept() {
	e.once.Do(func() { close(e.ready) })
}

// Peer 返回对端节点 ID
func (e *endpoint) Peer() types.PeerID {
	return e.peer
}

// Send 异步发送一帧
func (e *endpoint) Send(data []byte, done func(error)) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		if done != nil {
			go done(ErrClosed)
		}
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	if !e.other.enqueue(frame{data: buf, done: done}) && done != nil {
		go done(ErrClosed)
	}
}

func (e *endpoint) enqueue(f frame) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.inbox = append(e.inbox, f)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
	return true
}

// pump 投递协程
func (e *endpoint) pump() {
	<-e.ready

	for range e.signal {
		for {
			e.mu.Lock()
			if len(e.inbox) == 0 {
				closed, notify := e.closed, e.notify
				e.mu.Unlock()
				if closed {
					if notify {
						e.handler.HandleDisconnect(e)
					}
					return
				}
				break
			}
			f := e.inbox[0]
			e.inbox = e.inbox[1:]
			e.mu.Unlock()

			e.handler.HandleReceive(e, f.data)
			if f.done != nil {
				f.done(nil)
			}
		}
	}
}

// shutdown 关闭本端；notify 表示是否通知本端 handler
func (e *endpoint) shutdown(notify bool) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.closed = true
	e.notify = notify
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
	return true
}

// Close 关闭通道，对端在投递完已排队的帧后收到断开通知
func (e *endpoint) Close() error {
	if !e.shutdown(false) {
		return nil
	}
	e.owner.untrack(e)

	// 丢弃发往本端的未投递帧
	e.mu.Lock()
	pending := e.inbox
	e.inbox = nil
	e.mu.Unlock()
	for _, f := range pending {
		if f.done != nil {
			go f.done(ErrClosed)
		}
	}

	if e.other.shutdown(true) {
		e.other.owner.untrack(e.other)
	}
	return nil
}

var _ interfaces.Channel = (*endpoint)(nil)
