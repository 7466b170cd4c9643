package crypto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SignatureHeaderSize 签名编码头大小：1 字节类型 + 2 字节长度
const SignatureHeaderSize = 3

// Signature 签名结构
//
// 线上格式：[Type u8][Length u16 大端序][Data]
type Signature struct {
	// Type 签名使用的密钥类型
	Type KeyType

	// Data 签名数据
	Data []byte
}

// Sign 使用私钥签名数据
func Sign(key PrivateKey, data []byte) (Signature, error) {
	if key == nil {
		return Signature{}, ErrNilPrivateKey
	}

	sig, err := key.Sign(data)
	if err != nil {
		return Signature{}, err
	}

	return Signature{
		Type: key.Type(),
		Data: sig,
	}, nil
}

// Verify 使用公钥验证签名
func Verify(key PublicKey, data []byte, sig Signature) (bool, error) {
	if key == nil {
		return false, ErrNilPublicKey
	}
	if len(sig.Data) == 0 {
		return false, ErrNilSignature
	}
	if key.Type() != sig.Type {
		return false, ErrSignatureTypeMismatch
	}

	return key.Verify(data, sig.Data)
}

// IsEmpty 检查签名是否为空
func (s Signature) IsEmpty() bool {
	return s.Type == KeyTypeUnspecified && len(s.Data) == 0
}

// Size 返回编码后的字节数
func (s Signature) Size() int {
	return SignatureHeaderSize + len(s.Data)
}

// Equal 比较两个签名
func (s Signature) Equal(other Signature) bool {
	return s.Type == other.Type && bytes.Equal(s.Data, other.Data)
}

// AppendTo 将签名编码追加到 buf
func (s Signature) AppendTo(buf []byte) []byte {
	buf = append(buf, byte(s.Type))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s.Data)))
	return append(buf, s.Data...)
}

// ReadSignature 从 data 开头读取签名，返回消耗的字节数
//
// 空签名编码为 [0][0 0]。
func ReadSignature(data []byte) (Signature, int, error) {
	if len(data) < SignatureHeaderSize {
		return Signature{}, 0, fmt.Errorf("%w: signature too short", ErrUnmarshalFailed)
	}

	keyType := KeyType(data[0])
	length := int(binary.BigEndian.Uint16(data[1:3]))
	if len(data)-SignatureHeaderSize < length {
		return Signature{}, 0, fmt.Errorf("%w: signature truncated", ErrUnmarshalFailed)
	}

	var sigData []byte
	if length > 0 {
		sigData = make([]byte, length)
		copy(sigData, data[SignatureHeaderSize:SignatureHeaderSize+length])
	}
	return Signature{Type: keyType, Data: sigData}, SignatureHeaderSize + length, nil
}
