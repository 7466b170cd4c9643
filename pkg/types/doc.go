// Package types 定义 messenger 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - ids.go       - PeerID, MemberID, RoomKey, Port
//   - hash.go      - Hash（BLAKE3-256 摘要）
//   - time.go      - Timestamp（微秒绝对时间）
//   - base58.go    - Base58 编解码
//   - errors.go    - 公共错误定义
//
// # 外部表示
//
// Hash 与 PeerID 的规范外部表示为 Base58，用于日志、配置文件以及持久化键。
package types
