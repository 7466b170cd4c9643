package identity

import (
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dep2p/go-messenger/pkg/lib/crypto"
)

// PEM 类型常量
const pemTypeEd25519Private = "ED25519 PRIVATE KEY"

// ============================================================================
//                              私钥持久化
// ============================================================================

// SavePrivateKeyPEM 保存私钥到 PEM 文件
//
// 使用原子写操作（临时文件 + rename）防止部分写入导致的文件损坏。
// 文件权限设置为 0600，仅所有者可读写。
func SavePrivateKeyPEM(key crypto.PrivateKey, path string) error {
	if key == nil {
		return ErrNilPrivateKey
	}
	if key.Type() != crypto.KeyTypeEd25519 {
		return ErrUnsupportedKeyType
	}

	raw, err := key.Raw()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("创建密钥目录失败: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeEd25519Private,
		Bytes: raw,
	})
	return atomicWriteFile(path, data, 0o600)
}

// LoadPrivateKeyPEM 从 PEM 文件加载私钥
func LoadPrivateKeyPEM(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	if block.Type != pemTypeEd25519Private {
		return nil, ErrUnsupportedKeyType
	}

	return crypto.UnmarshalEd25519PrivateKey(block.Bytes)
}

// LoadOrCreate 加载 path 处的密钥，不存在且 autoGenerate 时生成并保存
//
// path 为空时直接生成临时身份。
func LoadOrCreate(path string, autoGenerate bool) (*Identity, error) {
	if path == "" {
		logger.Info("未配置密钥文件，使用临时身份")
		return Generate()
	}

	priv, err := LoadPrivateKeyPEM(path)
	switch {
	case err == nil:
		return New(priv)
	case err == ErrKeyNotFound && autoGenerate:
		id, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := SavePrivateKeyPEM(id.PrivateKey(), path); err != nil {
			return nil, fmt.Errorf("保存身份失败: %w", err)
		}
		logger.Info("已生成新身份", "peer", id.PeerID().ShortString(), "path", path)
		return id, nil
	default:
		return nil, fmt.Errorf("加载身份失败: %w", err)
	}
}

// atomicWriteFile 原子写入文件
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	// 确保失败时清理临时文件
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}

	success = true
	return nil
}
