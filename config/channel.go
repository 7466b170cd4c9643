package config

import (
	"fmt"
	"net"

	"github.com/dep2p/go-messenger/pkg/types"
)

// 通道层实现
const (
	// TransportMemory 进程内通道（测试、单机演示）
	TransportMemory = "memory"

	// TransportQUIC 基于 QUIC 的通道
	TransportQUIC = "quic"
)

// ChannelConfig 通道配置
type ChannelConfig struct {
	// Transport 通道实现："memory" 或 "quic"
	Transport string `json:"transport"`

	// ListenAddr QUIC 监听地址（UDP host:port）
	ListenAddr string `json:"listen_addr"`

	// Peers 静态地址簿：PeerID → UDP host:port
	Peers map[types.PeerID]string `json:"peers,omitempty"`

	// DialTimeout 建立通道超时
	DialTimeout Duration `json:"dial_timeout"`

	// MaxFrameSize 单帧最大字节数
	MaxFrameSize int `json:"max_frame_size"`
}

// DefaultChannelConfig 返回默认通道配置
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Transport:    TransportMemory,
		ListenAddr:   "0.0.0.0:4242",
		DialTimeout:  Duration(10e9),
		MaxFrameSize: 1 << 20,
	}
}

// Validate 验证通道配置
func (c *ChannelConfig) Validate() error {
	switch c.Transport {
	case TransportMemory:
	case TransportQUIC:
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("channel: invalid listen_addr %q: %w", c.ListenAddr, err)
		}
		for id, addr := range c.Peers {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("channel: invalid address for peer %s: %w", id.ShortString(), err)
			}
		}
	default:
		return fmt.Errorf("channel: unknown transport %q", c.Transport)
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("channel: dial_timeout must be positive")
	}
	if c.MaxFrameSize < 1024 {
		return fmt.Errorf("channel: max_frame_size must be at least 1024")
	}
	return nil
}
