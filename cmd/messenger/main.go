// Package main 提供 messenger 命令行入口
//
// 启动一个节点，以一个 Handle 托管或进入房间，从标准输入读取文本并发送，
// 收到的消息打印到标准输出。
//
//	# 托管房间
//	messenger -listen 0.0.0.0:4242 -room lobby -name alice
//
//	# 经由 door 节点进入
//	messenger -listen 0.0.0.0:4243 -room lobby -name bob \
//	    -door <peer-id> -peer <peer-id>=10.0.0.1:4242
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	messenger "github.com/dep2p/go-messenger"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dep2p/go-messenger/pkg/types"
)

var logger = log.Logger("messenger/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile   = flag.String("config", "", "配置文件路径（JSON）")
	listenAddr   = flag.String("listen", "", "QUIC 监听地址（为空使用进程内通道）")
	identityFile = flag.String("identity", "", "节点密钥文件路径")
	egoFile      = flag.String("ego", "", "用户身份密钥文件路径（为空使用匿名身份）")
	dataDir      = flag.String("data-dir", "", "数据目录（为空不持久化）")
	metricsAddr  = flag.String("metrics", "", "/metrics 监听地址")
	logLevel     = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")

	roomName = flag.String("room", "lobby", "房间名")
	roomKey  = flag.String("room-key", "", "房间密钥（base58，优先于 -room）")
	userName = flag.String("name", "", "显示名")
	door     = flag.String("door", "", "door 节点 ID（为空则托管房间）")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	var peers peerList
	flag.Var(&peers, "peer", "静态地址簿条目 <peer-id>=<host:port>，可重复")
	flag.Parse()

	if *showVersion {
		fmt.Println(messenger.VersionInfo())
		return
	}

	if err := run(peers); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(peers peerList) error {
	opts, err := buildOptions(peers)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("启动 messenger 节点", "version", messenger.Version, "commit", messenger.GitCommit)
	node, err := messenger.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	ego, err := loadEgo(*egoFile)
	if err != nil {
		return err
	}
	h, err := node.NewHandle(ego, *userName)
	if err != nil {
		return err
	}

	key, err := resolveRoomKey()
	if err != nil {
		return err
	}

	if *door == "" {
		_, err = node.OpenRoom(ctx, h, key)
	} else {
		var doorID types.PeerID
		doorID, err = types.ParsePeerID(*door)
		if err != nil {
			return fmt.Errorf("无效的 door: %w", err)
		}
		_, err = node.EnterRoom(ctx, h, doorID, key)
	}
	if err != nil {
		return fmt.Errorf("加入房间失败: %w", err)
	}

	printNodeInfo(node, key)

	go printEvents(h)
	go readInput(ctx, node, h, key, cancel)

	<-ctx.Done()
	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值。
func buildOptions(peers peerList) ([]messenger.Option, error) {
	var opts []messenger.Option

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	opts = append(opts, messenger.WithConfig(cfg))

	if *listenAddr != "" {
		opts = append(opts, messenger.WithQUIC(*listenAddr))
	}
	if *identityFile != "" {
		opts = append(opts, messenger.WithIdentityFromFile(*identityFile))
	}
	if *dataDir != "" {
		opts = append(opts, messenger.WithStoragePath(*dataDir))
	}
	if *metricsAddr != "" {
		opts = append(opts, messenger.WithMetricsAddr(*metricsAddr))
	}
	if *logLevel != "" {
		opts = append(opts, messenger.WithLogLevel(*logLevel))
	}
	for id, addr := range peers {
		opts = append(opts, messenger.WithPeer(id, addr))
	}
	return opts, nil
}

func resolveRoomKey() (types.RoomKey, error) {
	if *roomKey != "" {
		return types.ParseRoomKey(*roomKey)
	}
	if *roomName == "" {
		return types.RoomKey{}, fmt.Errorf("需要 -room 或 -room-key")
	}
	return messenger.RoomKeyFromName(*roomName), nil
}

// printNodeInfo 打印节点信息
func printNodeInfo(node *messenger.Node, key types.RoomKey) {
	cfg := node.Config()
	fmt.Println("════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", messenger.VersionInfo())
	fmt.Printf("  节点 ID:  %s\n", node.ID())
	fmt.Printf("  通道:     %s %s\n", cfg.Channel.Transport, cfg.Channel.ListenAddr)
	fmt.Printf("  房间:     %s\n", key)
	fmt.Println("════════════════════════════════════════════════════════")
	fmt.Println("输入文本回车发送，/name <名字> 改名，/quit 退出")
}

// printEvents 打印收到的事件，直到事件通道关闭
func printEvents(h *messenger.Handle) {
	for ev := range h.Events() {
		switch ev.Kind {
		case messenger.EventMessage:
			if text := ev.Message.Text; text != "" {
				fmt.Printf("[%s] %s\n", senderName(ev), text)
			}
		case messenger.EventMemberID:
			fmt.Printf("* 成员 ID 变更为 %s\n", ev.Member)
		case messenger.EventDeleted:
			fmt.Printf("* 消息 %s 已删除\n", ev.Hash.ShortString())
		}
	}
}

func senderName(ev messenger.Event) string {
	if ev.Sender != nil && ev.Sender.Name() != "" {
		return ev.Sender.Name()
	}
	return ev.Member.String()
}

// readInput 逐行读取标准输入
func readInput(ctx context.Context, node *messenger.Node, h *messenger.Handle, key types.RoomKey, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			quit()
			return
		case strings.HasPrefix(line, "/name "):
			if err := node.SetName(h, strings.TrimSpace(strings.TrimPrefix(line, "/name "))); err != nil {
				logger.Warn("改名失败", "error", err)
			}
		default:
			if _, err := node.Send(h, key, line); err != nil {
				logger.Warn("发送失败", "error", err)
			}
		}
	}
	quit()
}
