package messenger

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/pkg/lib/log"

	"github.com/dep2p/go-messenger/internal/core/channel"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/internal/core/metrics"
	"github.com/dep2p/go-messenger/internal/core/storage"
	imessenger "github.com/dep2p/go-messenger/internal/messenger"
)

var fxLogger = log.Logger("messenger/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//
//	Identity → Storage → Metrics → Channel → Messenger Service
//
// 停止时按相反顺序执行 OnStop：先销毁房间（保存状态、关闭端口），
// 再关闭通道服务，最后关闭存储引擎。
func buildFxApp(cfg *config.Config, opts *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 预设组件
	// ════════════════════════════════════════════════════════════════════════
	id, err := opts.presetIdentity()
	if err != nil {
		return nil, fmt.Errorf("preset identity: %w", err)
	}
	if id != nil {
		modules = append(modules, fx.Supply(fx.Annotated{Name: "preset_identity", Target: id}))
	}
	if opts.hub != nil {
		modules = append(modules, fx.Supply(opts.hub))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		identity.Module(), // 节点身份
		storage.Module(),  // BadgerDB 持久化（未配置路径时为 nil）
		metrics.Module(),  // Prometheus 指标
		channel.Module(),  // memory / quic 通道
		imessenger.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展
	// ════════════════════════════════════════════════════════════════════════
	if len(opts.userFxOptions) > 0 {
		modules = append(modules, opts.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.WithLogger(fxEventLogger(cfg.Log.Level)))

	return fx.New(modules...), nil
}

// fxEventLogger debug 级别输出 Fx 事件，否则静默（避免干扰用户日志）
func fxEventLogger(level string) func() fxevent.Logger {
	return func() fxevent.Logger {
		if level == "debug" {
			if z, err := zap.NewDevelopment(); err == nil {
				return &fxevent.ZapLogger{Logger: z}
			}
			fxLogger.Warn("创建 Fx 事件日志失败，使用静默日志")
		}
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}
}

// nodeInjectParams Node 需要的内部组件
type nodeInjectParams struct {
	fx.In

	Identity *identity.Identity
	Service  *imessenger.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

// injectNodeComponents 将内部组件注入 Node
func injectNodeComponents(node *Node) interface{} {
	return func(p nodeInjectParams) {
		node.identity = p.Identity
		node.service = p.Service
		node.metrics = p.Metrics
	}
}
