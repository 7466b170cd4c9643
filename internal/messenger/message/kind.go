package message

import "fmt"

// Kind 消息类型
type Kind uint16

// 消息类型常量
const (
	KindUnknown Kind = 0
	KindInfo    Kind = 1
	KindJoin    Kind = 2
	KindLeave   Kind = 3
	KindName    Kind = 4
	KindKey     Kind = 5
	KindPeer    Kind = 6
	KindID      Kind = 7
	KindMiss    Kind = 8
	KindMerge   Kind = 9
	KindRequest Kind = 10
	KindText    Kind = 12
	KindDelete  Kind = 15
)

var kindNames = map[Kind]string{
	KindInfo:    "INFO",
	KindJoin:    "JOIN",
	KindLeave:   "LEAVE",
	KindName:    "NAME",
	KindKey:     "KEY",
	KindPeer:    "PEER",
	KindID:      "ID",
	KindMiss:    "MISS",
	KindMerge:   "MERGE",
	KindRequest: "REQUEST",
	KindText:    "TEXT",
	KindDelete:  "DELETE",
}

// String 返回类型名
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(k))
}

// IsValid 是否为已知类型
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsPeer 是否为节点消息（由节点密钥签名）
func (k Kind) IsPeer() bool {
	switch k {
	case KindInfo, KindPeer, KindMiss, KindMerge, KindRequest:
		return true
	}
	return false
}

// IsLocal 是否只在单条隧道内有效（不存储、不进入哈希链、不转发）
func (k Kind) IsLocal() bool {
	return k == KindInfo || k == KindRequest
}

// IsSessionBound 是否由成员会话签发并挂在房间哈希链上
func (k Kind) IsSessionBound() bool {
	return k.IsValid() && !k.IsPeer()
}
