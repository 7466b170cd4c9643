// Package quic 基于 QUIC 的通道实现
//
// 每个通道对应一条独立的 QUIC 连接和一条双向流：
//
//	拨号方 → 首帧: 32 字节房间端口
//	之后双向: u32 长度（网络字节序） || 负载
//
// 节点身份来自自签名 TLS 证书中的 Ed25519 公钥，双方在握手时校验；
// 拨号方额外要求证书公钥等于期望的 PeerID。对端地址来自配置中的静态地址簿。
package quic
