package config

import (
	"errors"
	"time"
)

// MessengerConfig 房间协议配置
type MessengerConfig struct {
	// Version 协议版本（高 16 位为主版本号，主版本相同即兼容）
	// 同时参与房间端口派生，不同版本的节点不会在同一端口汇合
	Version uint32 `json:"version"`

	// IdleDelay 空闲定时器周期
	// 到期时若存在未合并的分叉且没有挂起的 MERGE，则安排一次合并
	IdleDelay Duration `json:"idle_delay"`

	// MergeDelay MERGE 操作延迟
	MergeDelay Duration `json:"merge_delay"`

	// RequestDelay REQUEST 操作超时
	RequestDelay Duration `json:"request_delay"`

	// ReceiveRate 每条隧道每秒允许接收的帧数
	ReceiveRate float64 `json:"receive_rate"`

	// ReceiveBurst 每条隧道的接收突发上限
	ReceiveBurst int `json:"receive_burst"`

	// EventBuffer 每个 Handle 的事件缓冲区大小
	EventBuffer int `json:"event_buffer"`

	// AnswerCacheSize 已应答 REQUEST 的节流缓存容量
	AnswerCacheSize int `json:"answer_cache_size"`

	// AnswerCacheTTL 同一 (peer, hash) 请求的应答间隔
	AnswerCacheTTL Duration `json:"answer_cache_ttl"`

	// PendingMembers 暂存未归属消息的成员 ID 上限
	PendingMembers int `json:"pending_members"`

	// PendingPerMember 每个成员 ID 暂存的消息上限
	PendingPerMember int `json:"pending_per_member"`

	// PendingTTL 未归属消息的暂存时长，到期丢弃
	PendingTTL Duration `json:"pending_ttl"`
}

// DefaultVersion 默认协议版本 1.0
const DefaultVersion uint32 = 1 << 16

// DefaultMessengerConfig 返回默认房间协议配置
func DefaultMessengerConfig() MessengerConfig {
	return MessengerConfig{
		Version:         DefaultVersion,
		IdleDelay:       Duration(5 * time.Second),
		MergeDelay:      Duration(1 * time.Second),
		RequestDelay:    Duration(10 * time.Second),
		ReceiveRate:     200,
		ReceiveBurst:    400,
		EventBuffer:     256,
		AnswerCacheSize: 1024,
		AnswerCacheTTL:  Duration(10 * time.Second),

		PendingMembers:   256,
		PendingPerMember: 32,
		PendingTTL:       Duration(2 * time.Minute),
	}
}

// Validate 验证房间协议配置
func (c *MessengerConfig) Validate() error {
	if c.Version == 0 {
		return errors.New("messenger: version cannot be zero")
	}
	if c.IdleDelay <= 0 || c.MergeDelay <= 0 || c.RequestDelay <= 0 {
		return errors.New("messenger: delays must be positive")
	}
	if c.ReceiveRate <= 0 || c.ReceiveBurst <= 0 {
		return errors.New("messenger: receive rate and burst must be positive")
	}
	if c.EventBuffer <= 0 {
		return errors.New("messenger: event_buffer must be positive")
	}
	if c.AnswerCacheSize <= 0 || c.AnswerCacheTTL <= 0 {
		return errors.New("messenger: answer cache size and ttl must be positive")
	}
	if c.PendingMembers <= 0 || c.PendingPerMember <= 0 || c.PendingTTL <= 0 {
		return errors.New("messenger: pending limits and ttl must be positive")
	}
	return nil
}
