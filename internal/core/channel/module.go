package channel

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/channel/memory"
	"github.com/dep2p/go-messenger/internal/core/channel/quic"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/log"
)

var logger = log.Logger("core/channel")

// Params Channel 模块依赖参数
type Params struct {
	fx.In

	Config   *config.Config `optional:"true"`
	Identity *identity.Identity

	// Hub 进程内 Hub；多个节点共享同一个 Hub 才能互相连接
	Hub *memory.Hub `optional:"true"`
}

// Result Channel 模块提供的结果
type Result struct {
	fx.Out

	Service interfaces.ChannelService
}

// Module 返回 Channel Fx 模块
//
// 提供:
//   - interfaces.ChannelService: 按 channel.transport 选择 memory 或 quic
//
// 生命周期:
//   - OnStop: 关闭通道服务
func Module() fx.Option {
	return fx.Module("channel",
		fx.Provide(ProvideService),
	)
}

// ProvideService 按配置创建通道服务
func ProvideService(lc fx.Lifecycle, p Params) (Result, error) {
	cfg := config.DefaultChannelConfig()
	if p.Config != nil {
		cfg = p.Config.Channel
	}

	svc, err := New(cfg, p.Identity, p.Hub)
	if err != nil {
		return Result{}, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭通道服务")
			return svc.Close()
		},
	})
	return Result{Service: svc}, nil
}

// New 创建通道服务
//
// memory 模式下 hub 为 nil 时新建一个独立 Hub。
func New(cfg config.ChannelConfig, id *identity.Identity, hub *memory.Hub) (interfaces.ChannelService, error) {
	switch cfg.Transport {
	case config.TransportMemory, "":
		if hub == nil {
			hub = memory.NewHub()
		}
		logger.Debug("使用进程内通道", "peer", id.PeerID().ShortString())
		return hub.NewService(id.PeerID()), nil
	case config.TransportQUIC:
		return quic.New(id, cfg)
	default:
		return nil, fmt.Errorf("channel: unknown transport %q", cfg.Transport)
	}
}
