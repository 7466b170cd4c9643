package storage

import (
	"context"
	"fmt"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/internal/core/storage/engine/badger"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"go.uber.org/fx"
)

var logger = log.Logger("core/storage")

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result Storage 模块提供的结果
type Result struct {
	fx.Out

	// Store 根 KV 存储；未启用持久化时为 nil
	Store *kv.Store
}

// Module 返回 Storage Fx 模块
//
// 提供:
//   - *kv.Store: 根 KV 存储（未配置存储路径时为 nil）
//
// 生命周期:
//   - OnStart: 启动引擎（GC 等后台任务）
//   - OnStop: 关闭引擎
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStorage),
	)
}

// ProvideStorage 按配置打开存储引擎
func ProvideStorage(lc fx.Lifecycle, p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled() {
		logger.Info("未配置存储路径，持久化已禁用")
		return Result{}, nil
	}

	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	eng, err := NewEngine(cfg)
	if err != nil {
		return Result{}, err
	}

	registerLifecycle(lc, eng)
	return Result{Store: kv.New(eng, nil)}, nil
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, eng engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动存储引擎")
			if err := eng.Start(); err != nil {
				logger.Error("存储引擎启动失败", "error", err)
				return err
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储引擎")
			if err := eng.Close(); err != nil {
				logger.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// NewEngine 根据配置创建存储引擎
func NewEngine(cfg Config) (engine.Engine, error) {
	logger.Debug("创建存储引擎", "path", cfg.Path)
	eng, err := badger.New(cfg.ToEngineConfig())
	if err != nil {
		logger.Error("创建存储引擎失败", "error", err)
		return nil, fmt.Errorf("open storage %s: %w", cfg.Path, err)
	}
	return eng, nil
}

// Open 打开 path 处的存储并返回根 KV 存储
//
// 调用者负责关闭返回的引擎。
func Open(path string) (engine.Engine, *kv.Store, error) {
	cfg := DefaultConfig().WithPath(path)
	eng, err := NewEngine(cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, kv.New(eng, nil), nil
}
