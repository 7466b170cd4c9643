package config

// IdentityConfig 身份配置
//
// 节点密钥固定为 Ed25519，PeerID 即其公钥。
type IdentityConfig struct {
	// KeyFile 密钥文件路径（PEM）
	// 如果为空，将在内存中生成临时密钥
	KeyFile string `json:"key_file"`

	// AutoGenerate 当密钥文件不存在时是否自动生成
	AutoGenerate bool `json:"auto_generate"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyFile:      "",
		AutoGenerate: true,
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	return nil
}

// WithKeyFile 设置密钥文件路径
func (c IdentityConfig) WithKeyFile(path string) IdentityConfig {
	c.KeyFile = path
	return c
}
