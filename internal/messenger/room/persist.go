package room

import (
	"fmt"

	"go.uber.org/multierr"
)

// 房间子存储下的布局由各组件自行维护：
//
//	state     前沿
//	basement  覆盖网节点
//	msg/...   消息与链接索引
//	m/...     成员与会话
//	ops       延迟操作

// loadLocked 依次恢复消息、前沿、覆盖网、成员与操作
//
// 操作最后加载，到期回调需要的消息此时已经就绪。
func (r *Room) loadLocked() error {
	if err := r.messages.Load(r.store); err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	if err := r.state.Load(r.store); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := r.basement.Load(r.store); err != nil {
		return fmt.Errorf("basement: %w", err)
	}
	if err := r.members.Load(r.store); err != nil {
		return fmt.Errorf("members: %w", err)
	}
	if err := r.ops.Load(r.store); err != nil {
		return fmt.Errorf("operations: %w", err)
	}

	logger.Debug("已加载房间状态",
		"room", r.key.ShortString(),
		"messages", r.messages.Len(),
		"members", r.members.Len(),
		"basement", r.basement.Len())
	return nil
}

// saveLocked 保存全部组件，单个组件失败不影响其余组件
func (r *Room) saveLocked() error {
	var err error
	err = multierr.Append(err, r.messages.Save(r.store))
	err = multierr.Append(err, r.state.Save(r.store))
	err = multierr.Append(err, r.basement.Save(r.store))
	err = multierr.Append(err, r.members.Save(r.store))
	err = multierr.Append(err, r.ops.Save(r.store))
	if err != nil {
		logger.Warn("保存房间状态失败", "room", r.key.ShortString(), "error", err)
	}
	return err
}

// Save 立即保存房间状态，未配置持久化时什么也不做
func (r *Room) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil || r.closed {
		return nil
	}
	return r.saveLocked()
}
