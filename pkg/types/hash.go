package types

import (
	"bytes"

	"lukechampine.com/blake3"
)

// HashSize 哈希长度（BLAKE3-256）
const HashSize = 32

// Hash 消息与上下文摘要
//
// 零值表示"无"（例如房间中第一条消息的 previous）。
type Hash [HashSize]byte

// EmptyHash 空哈希
var EmptyHash Hash

// HashBytes 计算字节切片的 BLAKE3-256 摘要
func HashBytes(data ...[]byte) Hash {
	h := blake3.New(HashSize, nil)
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// String 返回 Base58 表示
func (h Hash) String() string {
	if h.IsEmpty() {
		return ""
	}
	return Base58Encode(h[:])
}

// ShortString 返回日志用的短表示
func (h Hash) ShortString() string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回字节切片
func (h Hash) Bytes() []byte {
	return h[:]
}

// IsEmpty 检查是否为空
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// Compare 按字节序比较
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// HashFromBytes 从字节切片创建 Hash
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != HashSize {
		return EmptyHash, ErrInvalidHash
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// ParseHash 从 Base58 字符串解析 Hash
func ParseHash(s string) (Hash, error) {
	b, err := Base58Decode(s)
	if err != nil {
		return EmptyHash, ErrInvalidHash
	}
	return HashFromBytes(b)
}

// MarshalText 实现 encoding.TextMarshaler（空哈希编码为空串）
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = EmptyHash
		return nil
	}
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
