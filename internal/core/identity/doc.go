// Package identity 管理本节点的身份
//
// 节点身份是一把 Ed25519 密钥：PeerID 即其公钥，
// peer 消息（INFO/PEER/MISS/MERGE/REQUEST）用它签名，
// QUIC 通道用它签发自签名 TLS 证书。
//
// 密钥可以持久化为 PEM 文件；文件不存在且允许自动生成时，
// 首次启动生成新密钥并原子写入。
package identity
