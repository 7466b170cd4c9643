package message

import "errors"

var (
	// ErrInvalidMessage 消息格式错误
	ErrInvalidMessage = errors.New("message: invalid message")

	// ErrUnknownKind 未知消息类型
	ErrUnknownKind = errors.New("message: unknown kind")

	// ErrMissingKey JOIN/KEY 消息缺少公钥
	ErrMissingKey = errors.New("message: missing public key")

	// ErrInvalidText 文本包含 NUL 字符
	ErrInvalidText = errors.New("message: text contains NUL byte")

	// ErrNotPeerMessage 对非节点消息调用了节点验签
	ErrNotPeerMessage = errors.New("message: not a peer message")
)
