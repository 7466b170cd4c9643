package storage

import (
	"fmt"
	"time"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/pkg/lib/log"
)

// Config Storage 模块配置
type Config struct {
	// Path BadgerDB 数据库目录，为空表示不持久化
	Path string

	// SyncWrites 是否同步写入
	SyncWrites bool

	// GCInterval 垃圾回收间隔
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// ConfigFromUnified 从统一配置创建 Storage 配置
func ConfigFromUnified(cfg *config.Config) Config {
	storageCfg := DefaultConfig()
	if cfg == nil {
		return storageCfg
	}

	if cfg.Storage.Enabled() {
		storageCfg.Path = cfg.Storage.DBPath()
	}
	storageCfg.SyncWrites = cfg.Storage.SyncWrites
	return storageCfg
}

// Enabled 是否启用持久化
func (c Config) Enabled() bool {
	return c.Path != ""
}

// ToEngineConfig 转换为引擎配置
func (c Config) ToEngineConfig() *engine.Config {
	engineCfg := engine.DefaultConfig(c.Path)

	engineCfg.SyncWrites = c.SyncWrites
	engineCfg.Logger = badgerLog{}
	engineCfg.Badger.GCInterval = c.GCInterval
	engineCfg.Badger.GCDiscardRatio = c.GCDiscardRatio

	return engineCfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Path == "" {
		return engine.ErrInvalidConfig
	}

	if c.GCInterval < time.Minute {
		c.GCInterval = time.Minute
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio > 1 {
		c.GCDiscardRatio = 0.5
	}
	return nil
}

// WithPath 设置存储路径
func (c Config) WithPath(path string) Config {
	c.Path = path
	return c
}

// WithSyncWrites 设置同步写入
func (c Config) WithSyncWrites(sync bool) Config {
	c.SyncWrites = sync
	return c
}

// badgerLog 将 badger 内部日志转发到组件 logger（info 以下降级为 debug）
type badgerLog struct{}

var badgerLogger = log.Logger("storage/badger")

func (badgerLog) Errorf(format string, args ...interface{}) {
	badgerLogger.Error(fmt.Sprintf(format, args...))
}

func (badgerLog) Warningf(format string, args ...interface{}) {
	badgerLogger.Warn(fmt.Sprintf(format, args...))
}

func (badgerLog) Infof(format string, args ...interface{}) {
	badgerLogger.Debug(fmt.Sprintf(format, args...))
}

func (badgerLog) Debugf(format string, args ...interface{}) {
	badgerLogger.Debug(fmt.Sprintf(format, args...))
}
