// Package messenger 提供去中心化的群组消息节点
//
// 每个房间是一个由消息哈希链接成的有向无环图：成员以 Ed25519 身份签名消息，
// 节点之间通过按房间派生的端口建立通道，以覆盖网（basement）互相转发，
// 缺失的前驱按需请求，分叉由 MERGE 合并。
//
// # 核心概念
//
//   - Node: 消息节点，用户交互的主入口
//   - Handle: 本地客户端，持有身份并接收房间事件
//   - Room: 房间，由 Open（托管）或 Enter（经由 door 节点进入）加入
//
// # 快速开始
//
//	import messenger "github.com/dep2p/go-messenger"
//
//	// 1. 创建并启动节点
//	node, err := messenger.Start(ctx,
//	    messenger.WithQUIC("0.0.0.0:4242"),
//	    messenger.WithStoragePath("./data"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// 2. 创建 Handle 并加入房间
//	h, _ := node.NewHandle(ego, "alice")
//	key := messenger.RoomKeyFromName("lobby")
//	_, err = node.OpenRoom(ctx, h, key)
//
//	// 3. 收发消息
//	node.Send(h, key, "hello")
//	for ev := range h.Events() {
//	    ...
//	}
//
// # 文件组织
//
//	go-messenger/
//	├── doc.go          # 包文档
//	├── messenger.go    # Node：New、Start、Close、房间与消息操作、版本信息
//	├── fx.go           # Fx 应用组装
//	├── options.go      # WithXxx 配置选项
//	├── types.go        # 公共类型与别名（NodeState、Handle、Room 等）
//	└── errors.go       # 错误定义
//
// # 分层
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  1. API Layer                                               │
//	│     messenger.New(), messenger.Start()                      │
//	├─────────────────────────────────────────────────────────────┤
//	│  2. Messenger Layer                                         │
//	│     Service, Room, Handle, Member, Basement, Tunnel         │
//	├─────────────────────────────────────────────────────────────┤
//	│  3. Core Layer                                              │
//	│     Identity, Storage, Channel (memory/quic), Metrics       │
//	└─────────────────────────────────────────────────────────────┘
package messenger
