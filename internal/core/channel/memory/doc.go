// Package memory 提供进程内的 ChannelService 实现
//
// 所有节点注册到同一个 Hub；通道两端各有一个投递协程，
// 保证同一通道上的帧按发送顺序异步到达，Send 从不阻塞调用方。
//
//	hub := memory.NewHub()
//	a := hub.NewService(peerA)
//	b := hub.NewService(peerB)
//	_ = b.Open(port, handlerB)
//	ch, err := a.Connect(ctx, peerB, port, handlerA)
package memory
