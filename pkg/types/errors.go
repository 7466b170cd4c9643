// Package types 定义 messenger 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrInvalidMemberID 无效的成员 ID
	ErrInvalidMemberID = errors.New("invalid member ID")

	// ErrInvalidHash 无效的哈希
	ErrInvalidHash = errors.New("invalid hash")

	// ErrInvalidBase58 无效的 Base58 字符串
	ErrInvalidBase58 = errors.New("invalid base58 string")
)

// ============================================================================
//                              房间相关错误
// ============================================================================

var (
	// ErrEmptyRoomKey 空房间密钥
	ErrEmptyRoomKey = errors.New("empty room key")

	// ErrInvalidRoomKey 无效的房间密钥
	ErrInvalidRoomKey = errors.New("invalid room key")
)
