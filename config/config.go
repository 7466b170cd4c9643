// Package config 提供 messenger 的统一配置
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 文件加载。
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Channel.Transport = config.TransportQUIC
//
//	// 从文件加载
//	cfg, err := config.LoadFile("messenger.json")
package config

// Config 是 messenger 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 节点密钥
//   - Storage: 持久化目录（为空表示不持久化）
//   - Channel: 通道层实现与静态地址簿
//   - Messenger: 房间协议参数
//   - Log: 日志输出
//   - Metrics: Prometheus 指标
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Channel 通道配置
	Channel ChannelConfig `json:"channel"`

	// Messenger 房间协议配置
	Messenger MessengerConfig `json:"messenger"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值：内存通道、不持久化、临时密钥。
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Storage:   DefaultStorageConfig(),
		Channel:   DefaultChannelConfig(),
		Messenger: DefaultMessengerConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 建议在使用配置前调用此方法。
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if err := c.Messenger.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}
