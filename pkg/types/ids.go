// Package types 定义 messenger 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 即节点 Ed25519 公钥的原始 32 字节，因此 peer 消息可直接用它验签。
//
// 外部表示格式：
//   - String(): Base58 编码
//   - ShortString(): Base58 前缀（日志简短标识）
type PeerID [32]byte

// EmptyPeerID 空节点ID
var EmptyPeerID PeerID

// String 返回 PeerID 的 Base58 字符串表示
func (id PeerID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return Base58Encode(id[:])
}

// ShortString 返回 PeerID 的短字符串表示
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回 PeerID 的字节切片
func (id PeerID) Bytes() []byte {
	return id[:]
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 32 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

// ParsePeerID 从 Base58 字符串解析 PeerID
func ParsePeerID(s string) (PeerID, error) {
	b, err := Base58Decode(s)
	if err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerIDFromBytes(b)
}

// MarshalText 实现 encoding.TextMarshaler（用于 JSON 配置中的 map key）
func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *PeerID) UnmarshalText(text []byte) error {
	parsed, err := ParsePeerID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ============================================================================
//                              MemberID - 成员标识
// ============================================================================

// MemberID 房间内的成员短标识（16 字节）
//
// 随机生成，仅在单个房间的 MemberStore 内唯一。
type MemberID [16]byte

// EmptyMemberID 空成员ID（peer 消息的 sender_id）
var EmptyMemberID MemberID

// GenerateMemberID 随机生成成员ID
func GenerateMemberID() MemberID {
	return MemberID(uuid.New())
}

// String 返回十六进制表示
func (id MemberID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return hex.EncodeToString(id[:])
}

// ShortString 返回日志用的短表示
func (id MemberID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回字节切片
func (id MemberID) Bytes() []byte {
	return id[:]
}

// IsEmpty 检查 MemberID 是否为空
func (id MemberID) IsEmpty() bool {
	return id == EmptyMemberID
}

// MemberIDFromBytes 从字节切片创建 MemberID
func MemberIDFromBytes(b []byte) (MemberID, error) {
	if len(b) != 16 {
		return EmptyMemberID, ErrInvalidMemberID
	}
	var id MemberID
	copy(id[:], b)
	return id, nil
}

// ParseMemberID 从十六进制字符串解析 MemberID
func ParseMemberID(s string) (MemberID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return EmptyMemberID, ErrInvalidMemberID
	}
	return MemberIDFromBytes(b)
}

// ============================================================================
//                              RoomKey - 房间密钥
// ============================================================================

// RoomKey 房间共享密钥（32 字节）
//
// 持有密钥即可寻址房间；房间生命周期内不可变。
type RoomKey [32]byte

// EmptyRoomKey 空 RoomKey
var EmptyRoomKey RoomKey

// GenerateRoomKey 生成高熵房间密钥
func GenerateRoomKey() RoomKey {
	var key RoomKey
	if _, err := rand.Read(key[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return key
}

// IsEmpty 检查 RoomKey 是否为空
func (k RoomKey) IsEmpty() bool {
	return k == EmptyRoomKey
}

// Bytes 返回 RoomKey 的字节切片
func (k RoomKey) Bytes() []byte {
	return k[:]
}

// String 返回 Base58 表示（仅用于调试与持久化键）
func (k RoomKey) String() string {
	if k.IsEmpty() {
		return ""
	}
	return Base58Encode(k[:])
}

// ShortString 返回日志用的短表示
func (k RoomKey) ShortString() string {
	s := k.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// RoomKeyFromBytes 从字节切片创建 RoomKey
func RoomKeyFromBytes(b []byte) (RoomKey, error) {
	if len(b) != 32 {
		return EmptyRoomKey, ErrInvalidRoomKey
	}
	var key RoomKey
	copy(key[:], b)
	return key, nil
}

// ParseRoomKey 从 Base58 字符串解析 RoomKey
func ParseRoomKey(s string) (RoomKey, error) {
	b, err := Base58Decode(s)
	if err != nil {
		return EmptyRoomKey, ErrInvalidRoomKey
	}
	return RoomKeyFromBytes(b)
}

// DeriveRoomKeyFromName 从名称派生 RoomKey（仅用于演示/测试）
//
// 公式: RoomKey = SHA256("messenger-demo-room-key-v1" || name)
func DeriveRoomKeyFromName(name string) RoomKey {
	h := sha256.New()
	h.Write([]byte("messenger-demo-room-key-v1"))
	h.Write([]byte(name))
	var key RoomKey
	copy(key[:], h.Sum(nil))
	return key
}

// ============================================================================
//                              Port - 汇合端口
// ============================================================================

// PortSalt 端口派生盐值
const PortSalt = "messenger-room-port"

// Port 房间在通道层上的汇合端口
//
// 由房间密钥与协议版本号确定性派生，不同版本的节点不会在同一端口汇合。
type Port [32]byte

// DerivePort 派生房间端口
//
//	port = HKDF-SHA256(ikm = roomKey, salt = "messenger-room-port", info = "v" || version)
func DerivePort(key RoomKey, version uint32) Port {
	info := make([]byte, 5)
	info[0] = 'v'
	binary.BigEndian.PutUint32(info[1:], version)

	reader := hkdf.New(sha256.New, key[:], []byte(PortSalt), info)
	var port Port
	if _, err := io.ReadFull(reader, port[:]); err != nil {
		// HKDF 在 32 字节输出下不会失败
		panic("hkdf read failed: " + err.Error())
	}
	return port
}

// String 返回 Base58 表示
func (p Port) String() string {
	return Base58Encode(p[:])
}

// PortFromBytes 从字节切片创建 Port
func PortFromBytes(b []byte) (Port, error) {
	if len(b) != 32 {
		return Port{}, fmt.Errorf("invalid port length %d", len(b))
	}
	var p Port
	copy(p[:], b)
	return p, nil
}
