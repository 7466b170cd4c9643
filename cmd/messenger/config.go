package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// 环境变量（MESSENGER_ 前缀）
const (
	envPrefix      = "MESSENGER_"
	envStoragePath = "STORAGE_PATH"
	envKeyFile     = "IDENTITY_KEY_FILE"
	envListenAddr  = "LISTEN_ADDR"
	envLogLevel    = "LOG_LEVEL"
)

// loadConfig 加载配置文件，path 为空时返回默认配置
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewConfig(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("加载配置文件失败: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envPrefix + envStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(envPrefix + envKeyFile); v != "" {
		cfg.Identity.KeyFile = v
	}
	if v := os.Getenv(envPrefix + envListenAddr); v != "" {
		cfg.Channel.Transport = config.TransportQUIC
		cfg.Channel.ListenAddr = v
	}
	if v := os.Getenv(envPrefix + envLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// loadEgo 加载用户身份，文件不存在时生成并保存，path 为空返回 nil（匿名）
func loadEgo(path string) (crypto.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	priv, err := identity.LoadPrivateKeyPEM(path)
	if err == nil {
		return priv, nil
	}
	if !errors.Is(err, identity.ErrKeyNotFound) {
		return nil, fmt.Errorf("加载用户身份失败: %w", err)
	}

	priv, _, err = crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := identity.SavePrivateKeyPEM(priv, path); err != nil {
		return nil, fmt.Errorf("保存用户身份失败: %w", err)
	}
	logger.Info("已生成用户身份", "path", path)
	return priv, nil
}

// peerList 可重复的 -peer <peer-id>=<host:port> 参数
type peerList map[types.PeerID]string

func (p *peerList) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(*p))
	for id, addr := range *p {
		parts = append(parts, id.String()+"="+addr)
	}
	return strings.Join(parts, ",")
}

func (p *peerList) Set(value string) error {
	id, addr, ok := strings.Cut(value, "=")
	if !ok || addr == "" {
		return fmt.Errorf("期望 <peer-id>=<host:port>，得到 %q", value)
	}
	peer, err := types.ParsePeerID(id)
	if err != nil {
		return err
	}
	if *p == nil {
		*p = make(peerList)
	}
	(*p)[peer] = addr
	return nil
}
