package config

import (
	"fmt"
	"net"
)

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否采集 Prometheus 指标
	Enabled bool `json:"enabled"`

	// ListenAddr /metrics HTTP 监听地址，为空表示不对外暴露
	ListenAddr string `json:"listen_addr"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("metrics: invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	return nil
}
