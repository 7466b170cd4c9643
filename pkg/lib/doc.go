// Package lib 包含基础设施工具库
//
// 本目录包含与房间协议无关的通用工具库：
//
//   - crypto: 密码学原语（Ed25519 密钥、签名、匿名身份）
//   - log: 日志封装
//
// # 与 pkg/ 其他目录的关系
//
//   - interfaces/: 协作者接口（通道层）
//   - types/: 公共类型定义
//   - lib/: 基础设施工具库（本目录）
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-messenger/pkg/lib/crypto"
//	    "github.com/dep2p/go-messenger/pkg/lib/log"
//	)
package lib
