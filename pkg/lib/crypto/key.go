package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/dep2p/go-messenger/pkg/types"
)

// ============================================================================
//                              密钥类型定义
// ============================================================================

// KeyType 密钥类型
type KeyType uint8

const (
	// KeyTypeUnspecified 未指定密钥类型
	KeyTypeUnspecified KeyType = 0
	// KeyTypeEd25519 Ed25519 密钥
	KeyTypeEd25519 KeyType = 2
)

// String 返回密钥类型名称
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeUnspecified:
		return "Unspecified"
	case KeyTypeEd25519:
		return "Ed25519"
	default:
		return "Unknown"
	}
}

// ============================================================================
//                              密钥接口定义
// ============================================================================

// Key 基础密钥接口
type Key interface {
	// Raw 返回原始密钥字节
	Raw() ([]byte, error)

	// Type 返回密钥类型
	Type() KeyType

	// Equals 比较两个密钥是否相等
	Equals(Key) bool
}

// PublicKey 公钥接口
type PublicKey interface {
	Key

	// Verify 使用此公钥验证签名
	Verify(data, sig []byte) (bool, error)
}

// PrivateKey 私钥接口
type PrivateKey interface {
	Key

	// Sign 使用此私钥签名数据
	Sign(data []byte) ([]byte, error)

	// GetPublic 返回对应的公钥
	GetPublic() PublicKey
}

// ============================================================================
//                              密钥工厂函数
// ============================================================================

// GenerateKeyPair 生成 Ed25519 密钥对
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	return GenerateKeyPairWithReader(rand.Reader)
}

// GenerateKeyPairWithReader 使用指定的随机源生成密钥对（测试时可确定性生成）
func GenerateKeyPairWithReader(reader io.Reader) (PrivateKey, PublicKey, error) {
	return GenerateEd25519Key(reader)
}

// UnmarshalPublicKey 按类型从原始字节反序列化公钥
func UnmarshalPublicKey(keyType KeyType, data []byte) (PublicKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PublicKey(data)
	default:
		return nil, ErrBadKeyType
	}
}

// UnmarshalPrivateKey 按类型从原始字节反序列化私钥
func UnmarshalPrivateKey(keyType KeyType, data []byte) (PrivateKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PrivateKey(data)
	default:
		return nil, ErrBadKeyType
	}
}

// ============================================================================
//                              辅助函数
// ============================================================================

// KeyEqual 使用常量时间比较两个密钥是否相等
func KeyEqual(k1, k2 Key) bool {
	if k1 == nil || k2 == nil {
		return k1 == nil && k2 == nil
	}
	if k1.Type() != k2.Type() {
		return false
	}

	b1, err1 := k1.Raw()
	b2, err2 := k2.Raw()
	if err1 != nil || err2 != nil {
		return false
	}

	return subtle.ConstantTimeCompare(b1, b2) == 1
}

// KeyHash 返回公钥编码的摘要
//
// 用作成员会话与联系人的索引键。
func KeyHash(key PublicKey) types.Hash {
	data, err := MarshalPublicKey(key)
	if err != nil {
		return types.EmptyHash
	}
	return types.HashBytes(data)
}

// PeerIDFromPublicKey 从 Ed25519 公钥得到 PeerID
func PeerIDFromPublicKey(key PublicKey) (types.PeerID, error) {
	if key == nil {
		return types.EmptyPeerID, ErrNilPublicKey
	}
	if key.Type() != KeyTypeEd25519 {
		return types.EmptyPeerID, ErrBadKeyType
	}
	raw, err := key.Raw()
	if err != nil {
		return types.EmptyPeerID, err
	}
	return types.PeerIDFromBytes(raw)
}

// PublicKeyFromPeerID 将 PeerID 还原为可验签的公钥
func PublicKeyFromPeerID(id types.PeerID) (PublicKey, error) {
	return UnmarshalEd25519PublicKey(id[:])
}
