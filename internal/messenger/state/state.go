// Package state 跟踪房间哈希链的前沿
//
// 前沿是尚未被任何后继引用的消息哈希列表，按加入顺序排列。
// 最新一项是下一条本地消息的 previous（chain hash）；
// 前沿多于一项说明链已分叉，倒数第二项即待合并的 merge hash。
package state

import (
	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/internal/messenger/message"
	"github.com/dep2p/go-messenger/pkg/types"
)

// State 消息状态
type State struct {
	frontier []types.Hash
}

// New 创建空状态
func New() *State {
	return &State{}
}

// Update 用一条已接受的消息推进前沿
//
// 作为 REQUEST 应答取回的消息以及隧道内消息（INFO、REQUEST）不改变前沿。
func (s *State) Update(requested bool, msg *message.Message, hash types.Hash) {
	if requested || msg.Kind.IsLocal() {
		return
	}
	for _, prev := range msg.Predecessors() {
		s.remove(prev)
	}
	s.remove(hash)
	s.frontier = append(s.frontier, hash)
}

func (s *State) remove(hash types.Hash) {
	for i, h := range s.frontier {
		if h == hash {
			s.frontier = append(s.frontier[:i], s.frontier[i+1:]...)
			return
		}
	}
}

// ChainHash 返回下一条消息应引用的 previous，前沿为空时返回零值
func (s *State) ChainHash() types.Hash {
	if len(s.frontier) == 0 {
		return types.EmptyHash
	}
	return s.frontier[len(s.frontier)-1]
}

// MergeHash 返回待合并的哈希，仅在分叉时存在
func (s *State) MergeHash() (types.Hash, bool) {
	if len(s.frontier) < 2 {
		return types.EmptyHash, false
	}
	return s.frontier[len(s.frontier)-2], true
}

// Frontier 返回前沿副本
func (s *State) Frontier() []types.Hash {
	return append([]types.Hash(nil), s.frontier...)
}

var stateKey = []byte("state")

// Save 保存前沿
func (s *State) Save(store *kv.Store) error {
	return store.PutJSON(stateKey, s.frontier)
}

// Load 加载前沿
func (s *State) Load(store *kv.Store) error {
	var frontier []types.Hash
	if err := store.GetJSON(stateKey, &frontier); err != nil {
		if engine.IsNotFound(err) {
			return nil
		}
		return err
	}
	s.frontier = frontier
	return nil
}
