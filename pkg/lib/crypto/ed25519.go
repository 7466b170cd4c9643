package crypto

import (
	"crypto/ed25519"
	"crypto/subtle"
	"fmt"
	"io"
)

// Ed25519 密钥常量
const (
	// Ed25519PrivateKeySize Ed25519 私钥大小（64 字节）
	Ed25519PrivateKeySize = ed25519.PrivateKeySize
	// Ed25519PublicKeySize Ed25519 公钥大小（32 字节）
	Ed25519PublicKeySize = ed25519.PublicKeySize
	// Ed25519SignatureSize Ed25519 签名大小（64 字节）
	Ed25519SignatureSize = ed25519.SignatureSize
	// Ed25519SeedSize Ed25519 种子大小（32 字节）
	Ed25519SeedSize = ed25519.SeedSize
)

// ============================================================================
//                              Ed25519PublicKey
// ============================================================================

// Ed25519PublicKey Ed25519 公钥实现
type Ed25519PublicKey struct {
	k ed25519.PublicKey
}

// Raw 返回原始公钥字节
func (k *Ed25519PublicKey) Raw() ([]byte, error) {
	buf := make([]byte, len(k.k))
	copy(buf, k.k)
	return buf, nil
}

// Type 返回密钥类型
func (k *Ed25519PublicKey) Type() KeyType {
	return KeyTypeEd25519
}

// Equals 使用常量时间比较两个公钥
func (k *Ed25519PublicKey) Equals(other Key) bool {
	ek, ok := other.(*Ed25519PublicKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return subtle.ConstantTimeCompare(k.k, ek.k) == 1
}

// Verify 使用此公钥验证签名
func (k *Ed25519PublicKey) Verify(data, sig []byte) (bool, error) {
	if len(sig) != Ed25519SignatureSize {
		return false, nil
	}
	return ed25519.Verify(k.k, data, sig), nil
}

// StdKey 返回标准库公钥（供 TLS 证书使用）
func (k *Ed25519PublicKey) StdKey() ed25519.PublicKey {
	return k.k
}

// ============================================================================
//                              Ed25519PrivateKey
// ============================================================================

// Ed25519PrivateKey Ed25519 私钥实现
type Ed25519PrivateKey struct {
	k ed25519.PrivateKey
}

// Raw 返回原始私钥字节（64 字节：种子 + 公钥）
func (k *Ed25519PrivateKey) Raw() ([]byte, error) {
	buf := make([]byte, len(k.k))
	copy(buf, k.k)
	return buf, nil
}

// Seed 返回私钥种子（32 字节）
func (k *Ed25519PrivateKey) Seed() []byte {
	return k.k.Seed()
}

// Type 返回密钥类型
func (k *Ed25519PrivateKey) Type() KeyType {
	return KeyTypeEd25519
}

// Equals 使用常量时间比较两个私钥
func (k *Ed25519PrivateKey) Equals(other Key) bool {
	ek, ok := other.(*Ed25519PrivateKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return subtle.ConstantTimeCompare(k.k, ek.k) == 1
}

// GetPublic 返回对应的公钥
func (k *Ed25519PrivateKey) GetPublic() PublicKey {
	pub := k.k.Public().(ed25519.PublicKey) //nolint:errcheck // 类型断言安全
	return &Ed25519PublicKey{k: pub}
}

// Sign 使用此私钥签名数据
func (k *Ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.k, data), nil
}

// StdKey 返回标准库私钥（供 TLS 证书使用）
func (k *Ed25519PrivateKey) StdKey() ed25519.PrivateKey {
	return k.k
}

// ============================================================================
//                              工厂函数
// ============================================================================

// GenerateEd25519Key 生成新的 Ed25519 密钥对
func GenerateEd25519Key(src io.Reader) (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(src)
	if err != nil {
		return nil, nil, err
	}
	return &Ed25519PrivateKey{k: priv}, &Ed25519PublicKey{k: pub}, nil
}

// NewEd25519KeyFromSeed 从 32 字节种子确定性派生私钥
func NewEd25519KeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, Ed25519SeedSize, len(seed))
	}
	return &Ed25519PrivateKey{k: ed25519.NewKeyFromSeed(seed)}, nil
}

// UnmarshalEd25519PublicKey 从字节反序列化 Ed25519 公钥
func UnmarshalEd25519PublicKey(data []byte) (PublicKey, error) {
	if len(data) != Ed25519PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, Ed25519PublicKeySize, len(data))
	}

	k := make([]byte, Ed25519PublicKeySize)
	copy(k, data)
	return &Ed25519PublicKey{k: k}, nil
}

// UnmarshalEd25519PrivateKey 从字节反序列化 Ed25519 私钥
//
// 支持 64 字节完整私钥与 32 字节种子两种格式。
func UnmarshalEd25519PrivateKey(data []byte) (PrivateKey, error) {
	switch len(data) {
	case Ed25519PrivateKeySize:
		k := make([]byte, Ed25519PrivateKeySize)
		copy(k, data)
		return &Ed25519PrivateKey{k: k}, nil
	case Ed25519SeedSize:
		return &Ed25519PrivateKey{k: ed25519.NewKeyFromSeed(data)}, nil
	default:
		return nil, fmt.Errorf("%w: expected %d or %d bytes, got %d",
			ErrInvalidKeySize, Ed25519SeedSize, Ed25519PrivateKeySize, len(data))
	}
}
