// Package crypto 提供 messenger 的身份协作者
//
// # 密钥
//
// 只支持 Ed25519。节点的 PeerID 即其公钥原始字节，
// peer 消息可直接从 PeerID 还原公钥验签。
//
// # 编码
//
//   - 公钥/私钥：[Type u8][Length u32][Data]
//   - 签名：[Type u8][Length u16][Data]
//
// 所有解码路径对任意输入只返回错误，不会 panic。
//
// # 匿名身份
//
// Anonymous 由固定种子派生，所有节点一致。
package crypto
