package crypto

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
//                              序列化格式
// ============================================================================

// 序列化格式：
//
//   ┌─────────────────────────────────────────────────────────────┐
//   │                    公钥/私钥序列化格式                         │
//   ├─────────────────────────────────────────────────────────────┤
//   │  Type:   uint8 (KeyType)                                    │
//   │  Length: uint32 (大端序)                                     │
//   │  Data:   密钥数据                                            │
//   └─────────────────────────────────────────────────────────────┘
//
// 签名在消息头中使用更紧凑的 [Type u8][Length u16][Data]，见 signature.go。

const (
	// 序列化头大小：1 字节类型 + 4 字节长度
	marshalHeaderSize = 5

	// 单个密钥负载上限，防止恶意长度字段
	maxKeyPayload = 1024
)

// ============================================================================
//                              公钥序列化
// ============================================================================

// MarshalPublicKey 序列化公钥
//
// 返回格式：[Type(1)] [Length(4)] [Data(n)]
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}

	raw, err := key.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	return marshalKey(key.Type(), raw), nil
}

// UnmarshalPublicKeyBytes 从字节反序列化公钥
//
// data 必须恰好是一个完整编码，多余字节视为错误。
func UnmarshalPublicKeyBytes(data []byte) (PublicKey, error) {
	key, n, err := ReadPublicKey(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrUnmarshalFailed)
	}
	return key, nil
}

// ReadPublicKey 从 data 开头读取一个公钥编码，返回消耗的字节数
func ReadPublicKey(data []byte) (PublicKey, int, error) {
	keyType, payload, n, err := readKey(data)
	if err != nil {
		return nil, 0, err
	}
	key, err := UnmarshalPublicKey(keyType, payload)
	if err != nil {
		return nil, 0, err
	}
	return key, n, nil
}

// ============================================================================
//                              私钥序列化
// ============================================================================

// MarshalPrivateKey 序列化私钥
//
// 返回格式：[Type(1)] [Length(4)] [Data(n)]
func MarshalPrivateKey(key PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}

	raw, err := key.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	return marshalKey(key.Type(), raw), nil
}

// UnmarshalPrivateKeyBytes 从字节反序列化私钥
func UnmarshalPrivateKeyBytes(data []byte) (PrivateKey, error) {
	keyType, payload, n, err := readKey(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrUnmarshalFailed)
	}
	return UnmarshalPrivateKey(keyType, payload)
}

// ============================================================================
//                              内部辅助
// ============================================================================

func marshalKey(keyType KeyType, raw []byte) []byte {
	buf := make([]byte, marshalHeaderSize+len(raw))
	buf[0] = byte(keyType)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(raw)))
	copy(buf[5:], raw)
	return buf
}

func readKey(data []byte) (KeyType, []byte, int, error) {
	if len(data) < marshalHeaderSize {
		return KeyTypeUnspecified, nil, 0, fmt.Errorf("%w: data too short", ErrUnmarshalFailed)
	}

	keyType := KeyType(data[0])
	length := binary.BigEndian.Uint32(data[1:5])
	if length > maxKeyPayload || len(data)-marshalHeaderSize < int(length) {
		return KeyTypeUnspecified, nil, 0, fmt.Errorf("%w: data length mismatch", ErrUnmarshalFailed)
	}

	end := marshalHeaderSize + int(length)
	return keyType, data[marshalHeaderSize:end], end, nil
}
