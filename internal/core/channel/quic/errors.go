package quic

import "errors"

var (
	// ErrClosed 服务或通道已关闭
	ErrClosed = errors.New("quic: closed")

	// ErrUnknownPeer 地址簿中没有该节点
	ErrUnknownPeer = errors.New("quic: no address for peer")

	// ErrPeerMismatch 证书公钥与期望节点不一致
	ErrPeerMismatch = errors.New("quic: peer key mismatch")

	// ErrNoCertificate 对端未提供证书
	ErrNoCertificate = errors.New("quic: no peer certificate")

	// ErrBadKey 证书公钥不是 Ed25519
	ErrBadKey = errors.New("quic: certificate key is not ed25519")

	// ErrFrameTooLarge 帧超过上限
	ErrFrameTooLarge = errors.New("quic: frame too large")

	// ErrBadPortFrame 首帧不是合法端口
	ErrBadPortFrame = errors.New("quic: invalid port frame")

	// ErrPortInUse 端口已被占用
	ErrPortInUse = errors.New("quic: port already open")

	// ErrSelfConnect 不允许连接自身
	ErrSelfConnect = errors.New("quic: cannot connect to self")
)
