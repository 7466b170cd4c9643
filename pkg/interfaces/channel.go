// Package interfaces - Channel 通道协作者接口
//
// 房间核心只通过这里的接口使用底层传输：按 (peer, port) 建立通道、
// 发送帧、接收帧与断开通知。默认实现见 internal/core/channel。
package interfaces

import (
	"context"

	"github.com/dep2p/go-messenger/pkg/types"
)

//go:generate mockgen -destination=mocks/channel_mock.go -package=mocks . Channel,ChannelHandler,ChannelService

// Channel 到单个对端、承载单个房间流量的通道
type Channel interface {
	// Peer 返回对端节点 ID
	Peer() types.PeerID

	// Send 异步发送一帧数据
	//
	// 立即返回；done 在数据写出（或失败）后被调用，可以为 nil。
	Send(data []byte, done func(error))

	// Close 关闭通道
	Close() error
}

// ChannelHandler 通道事件回调
//
// 同一通道上的回调按到达顺序串行调用。
type ChannelHandler interface {
	// HandleChannel 处理入站通道，返回 false 表示拒绝
	HandleChannel(ch Channel) bool

	// HandleReceive 处理收到的一帧数据
	HandleReceive(ch Channel, data []byte)

	// HandleDisconnect 处理通道断开
	HandleDisconnect(ch Channel)
}

// ChannelService 通道服务
//
// 房间以派生的 Port 作为汇合点：Open 后接受入站通道，Connect 主动建立出站通道。
type ChannelService interface {
	// Self 返回本节点 ID
	Self() types.PeerID

	// Open 在 port 上接受入站通道
	Open(port types.Port, h ChannelHandler) error

	// ClosePort 停止在 port 上接受入站通道
	ClosePort(port types.Port) error

	// Connect 建立到 peer 的出站通道
	Connect(ctx context.Context, peer types.PeerID, port types.Port, h ChannelHandler) (Channel, error)

	// Close 关闭服务及所有通道
	Close() error
}
