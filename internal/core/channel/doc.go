// Package channel 汇集 ChannelService 的实现并按配置选择
//
//   - memory: 进程内 Hub，多个节点共享同一个 Hub 即可互相连接
//   - quic:   每个 (peer, port) 通道一条 QUIC 连接，帧格式为 u32 长度 + 负载
package channel
