// Package basement 维护房间的中继覆盖网
//
// Basement 是房间内负责中继的节点列表，每个节点附带其发布的 PEER 消息哈希。
// 列表随 PEER/MISS 消息增减；本节点在列表中时，按固定的组合规则
// RequiredConnection 决定哪些节点需要直连，得到确定性的低直径覆盖网。
//
// Basement 不是并发安全的，由所属 Room 串行访问。
package basement

import (
	"bytes"
	"sort"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/basement")

// Entry 覆盖网中的一个中继节点
type Entry struct {
	Peer    types.PeerID `json:"peer"`
	Message types.Hash   `json:"message"`
}

// Basement 按 PeerID 排序的中继节点列表
type Basement struct {
	entries []Entry
}

// New 创建空的 Basement
func New() *Basement {
	return &Basement{}
}

// Add 按 PeerID 顺序插入节点，已存在时只更新其 PEER 消息，返回是否新增
//
// 列表按 PeerID 排序，成员相同的节点得到相同的列表与重建计划。
func (b *Basement) Add(peer types.PeerID, hash types.Hash) bool {
	if i := b.Index(peer); i >= 0 {
		if !hash.IsEmpty() {
			b.entries[i].Message = hash
		}
		return false
	}
	i := sort.Search(len(b.entries), func(i int) bool {
		return bytes.Compare(b.entries[i].Peer[:], peer[:]) > 0
	})
	b.entries = append(b.entries, Entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = Entry{Peer: peer, Message: hash}
	logger.Debug("加入中继节点", "peer", peer.ShortString(), "size", len(b.entries))
	return true
}

// Remove 移除节点，返回是否存在
func (b *Basement) Remove(peer types.PeerID) bool {
	i := b.Index(peer)
	if i < 0 {
		return false
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	logger.Debug("移除中继节点", "peer", peer.ShortString(), "size", len(b.entries))
	return true
}

// Contains 节点是否在列表中
func (b *Basement) Contains(peer types.PeerID) bool {
	return b.Index(peer) >= 0
}

// Index 返回节点位置，不存在返回 -1
func (b *Basement) Index(peer types.PeerID) int {
	for i := range b.entries {
		if b.entries[i].Peer == peer {
			return i
		}
	}
	return -1
}

// Message 返回节点发布的 PEER 消息哈希
func (b *Basement) Message(peer types.PeerID) (types.Hash, bool) {
	i := b.Index(peer)
	if i < 0 || b.entries[i].Message.IsEmpty() {
		return types.EmptyHash, false
	}
	return b.entries[i].Message, true
}

// Peers 按列表顺序返回节点
func (b *Basement) Peers() []types.PeerID {
	out := make([]types.PeerID, len(b.entries))
	for i := range b.entries {
		out[i] = b.entries[i].Peer
	}
	return out
}

// Entries 返回列表副本
func (b *Basement) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Len 返回节点数
func (b *Basement) Len() int {
	return len(b.entries)
}

// RequiredConnection 在 n 个节点的覆盖网中，位置 src 与 dst 之间是否需要直连
//
// 环上相邻，或者在以列表顺序构成的完全二叉树中互为父子时需要直连。
// 规则对 src/dst 对称，覆盖网直径为 O(log n)。
func RequiredConnection(n, src, dst int) bool {
	if n < 2 || src == dst || src < 0 || dst < 0 || src >= n || dst >= n {
		return false
	}
	if (src+1)%n == dst || (dst+1)%n == src {
		return true
	}
	return dst == 2*src+1 || dst == 2*src+2 || src == 2*dst+1 || src == 2*dst+2
}

// Plan 计算以 self 为中心的重建计划
//
// self 不在列表中时 ok 为 false。
func (b *Basement) Plan(self types.PeerID) (connect, disconnect []types.PeerID, ok bool) {
	src := b.Index(self)
	if src < 0 {
		return nil, nil, false
	}
	n := len(b.entries)
	for dst := range b.entries {
		if dst == src {
			continue
		}
		if RequiredConnection(n, src, dst) {
			connect = append(connect, b.entries[dst].Peer)
		} else {
			disconnect = append(disconnect, b.entries[dst].Peer)
		}
	}
	return connect, disconnect, true
}

// ============================================================================
//                              持久化
// ============================================================================

var basementKey = []byte("basement")

// Save 保存节点列表
func (b *Basement) Save(store *kv.Store) error {
	return store.PutJSON(basementKey, b.entries)
}

// Load 加载节点列表，不存在时保持为空
func (b *Basement) Load(store *kv.Store) error {
	var entries []Entry
	if err := store.GetJSON(basementKey, &entries); err != nil {
		if engine.IsNotFound(err) {
			return nil
		}
		return err
	}
	b.entries = entries
	return nil
}
