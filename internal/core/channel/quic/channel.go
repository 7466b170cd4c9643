package quic

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/types"
)

// frameHeaderSize 帧长度前缀
const frameHeaderSize = 4

// 确保实现接口
var _ interfaces.Channel = (*channel)(nil)

type outbound struct {
	data []byte
	done func(error)
}

// channel 一条 QUIC 连接上的双向帧通道
type channel struct {
	svc     *Service
	peer    types.PeerID
	conn    quic.Connection
	stream  quic.Stream
	handler interfaces.ChannelHandler

	mu      sync.Mutex
	queue   []outbound
	signal  chan struct{}
	closing chan struct{}
	closed  bool
	local   bool

	once sync.Once
}

func newChannel(s *Service, peer types.PeerID, conn quic.Connection, stream quic.Stream, h interfaces.ChannelHandler) *channel {
	return &channel{
		svc:     s,
		peer:    peer,
		conn:    conn,
		stream:  stream,
		handler: h,
		signal:  make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
}

// start 启动读写循环
func (c *channel) start() {
	c.once.Do(func() {
		c.svc.wg.Add(2)
		go c.writeLoop()
		go c.readLoop()
	})
}

// Peer 返回对端节点
func (c *channel) Peer() types.PeerID {
	return c.peer
}

// Send 异步发送一帧，写入流后回调 done
func (c *channel) Send(data []byte, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if len(data) > c.svc.maxFrame {
		go done(fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data)))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go done(ErrClosed)
		return
	}
	c.queue = append(c.queue, outbound{data: append([]byte(nil), data...), done: done})
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Close 主动关闭通道，本端 handler 不会收到 HandleDisconnect
func (c *channel) Close() error {
	c.closeWith(codeNormal, "closed")
	return nil
}

func (c *channel) closeWith(code quic.ApplicationErrorCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.local = true
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	close(c.closing)
	_ = c.conn.CloseWithError(code, reason)
	c.svc.untrack(c)

	for _, out := range pending {
		out.done(ErrClosed)
	}
}

// fail 因 I/O 错误关闭通道，返回是否由本次调用完成关闭
func (c *channel) fail(err error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	close(c.closing)
	_ = c.conn.CloseWithError(codeNormal, "")
	c.svc.untrack(c)

	for _, out := range pending {
		out.done(err)
	}
	return true
}

func (c *channel) writeLoop() {
	defer c.svc.wg.Done()
	for {
		select {
		case <-c.closing:
			return
		case <-c.signal:
		}

		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			out := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			err := writeFrame(c.stream, out.data)
			out.done(err)
			if err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *channel) readLoop() {
	defer c.svc.wg.Done()
	for {
		data, err := readFrame(c.stream, c.svc.maxFrame)
		if err != nil {
			c.fail(err)

			c.mu.Lock()
			local := c.local
			c.mu.Unlock()
			if !local {
				logger.Debug("通道断开", "peer", c.peer.ShortString(), "error", err)
				c.handler.HandleDisconnect(c)
			}
			return
		}
		c.handler.HandleReceive(c, data)
	}
}

// writeFrame 写入 u32 长度前缀帧
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[frameHeaderSize:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取一帧
func readFrame(r io.Reader, max int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if int64(size) > int64(max) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
