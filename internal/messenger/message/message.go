package message

import (
	"time"

	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// Header 消息头
type Header struct {
	Kind      Kind
	SenderID  types.MemberID
	Previous  types.Hash
	Timestamp types.Timestamp
	Signature crypto.Signature
}

// Message 一条房间消息
//
// 各类型只使用与其相关的字段：
//
//	INFO     Peer, Version
//	JOIN     Key
//	NAME     Text
//	KEY      Key
//	PEER     Peer
//	ID       ID
//	MISS     Peer, Missing
//	MERGE    Peer, Target（第二个 previous）
//	REQUEST  Peer, Target（被请求的哈希）
//	TEXT     Text
//	DELETE   Target, Delay
//
// 消息在签名后视为不可变。
type Message struct {
	Header

	Peer    types.PeerID
	Version uint32
	Key     crypto.PublicKey
	Text    string
	ID      types.MemberID
	Missing types.PeerID
	Target  types.Hash

	// Delay DELETE 的相对延迟，负值表示无限
	Delay time.Duration
}

// NewInfo 创建 INFO 消息
func NewInfo(peer types.PeerID, version uint32) *Message {
	return &Message{Header: Header{Kind: KindInfo}, Peer: peer, Version: version}
}

// NewJoin 创建 JOIN 消息
func NewJoin(key crypto.PublicKey) *Message {
	return &Message{Header: Header{Kind: KindJoin}, Key: key}
}

// NewLeave 创建 LEAVE 消息
func NewLeave() *Message {
	return &Message{Header: Header{Kind: KindLeave}}
}

// NewName 创建 NAME 消息
func NewName(name string) *Message {
	return &Message{Header: Header{Kind: KindName}, Text: name}
}

// NewKey 创建 KEY 消息
func NewKey(key crypto.PublicKey) *Message {
	return &Message{Header: Header{Kind: KindKey}, Key: key}
}

// NewPeer 创建 PEER 消息
func NewPeer(peer types.PeerID) *Message {
	return &Message{Header: Header{Kind: KindPeer}, Peer: peer}
}

// NewID 创建 ID 消息
func NewID(id types.MemberID) *Message {
	return &Message{Header: Header{Kind: KindID}, ID: id}
}

// NewMiss 创建 MISS 消息
func NewMiss(peer, missing types.PeerID) *Message {
	return &Message{Header: Header{Kind: KindMiss}, Peer: peer, Missing: missing}
}

// NewMerge 创建 MERGE 消息，second 为第二个 previous
func NewMerge(peer types.PeerID, second types.Hash) *Message {
	return &Message{Header: Header{Kind: KindMerge}, Peer: peer, Target: second}
}

// NewRequest 创建 REQUEST 消息
func NewRequest(peer types.PeerID, hash types.Hash) *Message {
	return &Message{Header: Header{Kind: KindRequest}, Peer: peer, Target: hash}
}

// NewText 创建 TEXT 消息
func NewText(text string) *Message {
	return &Message{Header: Header{Kind: KindText}, Text: text}
}

// NewDelete 创建 DELETE 消息
func NewDelete(target types.Hash, delay time.Duration) *Message {
	return &Message{Header: Header{Kind: KindDelete}, Target: target, Delay: delay}
}

// Clone 返回浅拷贝（公钥共享，签名数据复制）
func (m *Message) Clone() *Message {
	c := *m
	if m.Signature.Data != nil {
		c.Signature.Data = append([]byte(nil), m.Signature.Data...)
	}
	return &c
}

// Predecessors 返回该消息引用的前驱哈希（previous 与 MERGE 的第二个 previous）
func (m *Message) Predecessors() []types.Hash {
	var out []types.Hash
	if !m.Previous.IsEmpty() {
		out = append(out, m.Previous)
	}
	if m.Kind == KindMerge && !m.Target.IsEmpty() && m.Target != m.Previous {
		out = append(out, m.Target)
	}
	return out
}

// DeleteDeadline 返回 DELETE 的绝对截止时间（无限延迟返回 Forever）
func (m *Message) DeleteDeadline() types.Timestamp {
	return m.Timestamp.Add(m.Delay)
}
