// Package message 定义房间消息的线上格式
//
// 消息由固定头部和按类型区分的消息体组成，所有整数均为网络字节序：
//
//	kind u16 | sender_id [16] | previous [32] | timestamp u64 | signature | body
//
// 签名覆盖 "messenger-message-v1" 前缀加上签名为空时的完整编码；
// 消息哈希是含签名的完整编码的 BLAKE3-256 摘要。
//
// 节点消息（INFO、PEER、MISS、MERGE、REQUEST）在消息体开头携带作者 PeerID，
// 用节点公钥签名；其余类型由成员会话的密钥签名。
//
// Decode 对任意输入都不会 panic，格式错误统一返回 ErrInvalidMessage 或 ErrUnknownKind。
package message
