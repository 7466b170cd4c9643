package config

import (
	"path/filepath"
)

// StorageConfig 存储配置
//
// 所有房间、成员、会话与 Handle 映射统一存放在一个 BadgerDB 中，
// 通过键前缀保留 房间/成员/会话 的层级结构。
//
//	${Path}/
//	└── messenger.db/       # BadgerDB 主数据库
type StorageConfig struct {
	// Path 数据目录路径
	// 为空时不启用持久化
	Path string `json:"path"`

	// SyncWrites 每次写入是否同步落盘
	SyncWrites bool `json:"sync_writes"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Validate 验证存储配置的有效性
func (c *StorageConfig) Validate() error {
	return nil
}

// Enabled 是否启用持久化
func (c *StorageConfig) Enabled() bool {
	return c.Path != ""
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.Path, "messenger.db")
}
