package messenger

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/internal/core/metrics"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/pkg/interfaces"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
)

// Params Messenger 模块依赖参数
type Params struct {
	fx.In

	Config    *config.Config `optional:"true"`
	Identity  *identity.Identity
	Anonymous *crypto.Anonymous
	Channels  interfaces.ChannelService

	Store   *kv.Store        `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
	Clock   clock.Clock      `optional:"true"`
}

// Module 返回 Messenger Fx 模块
//
// 提供:
//   - *Service: 房间与 Handle 注册中心
//
// 生命周期:
//   - OnStop: 保存 Handle 映射并销毁全部房间（先于通道与存储关闭）
func Module() fx.Option {
	return fx.Module("messenger",
		fx.Provide(ProvideService),
	)
}

// ProvideService 创建服务并注册关闭钩子
func ProvideService(lc fx.Lifecycle, p Params) (*Service, error) {
	cfg := config.NewConfig()
	if p.Config != nil {
		cfg = p.Config
	}

	svc, err := New(cfg.Messenger, cfg.Channel, Deps{
		Identity:  p.Identity,
		Anonymous: p.Anonymous,
		Channels:  p.Channels,
		Store:     p.Store,
		Clock:     p.Clock,
		Metrics:   p.Metrics,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭 messenger 服务")
			return svc.Close()
		},
	})
	return svc, nil
}
