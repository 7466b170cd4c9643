package message

import (
	"fmt"

	"github.com/dep2p/go-messenger/pkg/lib/crypto"
)

// signingContext 签名域分隔前缀
const signingContext = "messenger-message-v1"

// SignedPayload 返回签名覆盖的字节
func SignedPayload(m *Message) ([]byte, error) {
	data, err := encode(m, crypto.Signature{})
	if err != nil {
		return nil, err
	}
	return append([]byte(signingContext), data...), nil
}

// Sign 用 key 对消息签名，返回编码后的消息
func Sign(m *Message, key crypto.PrivateKey) ([]byte, error) {
	payload, err := SignedPayload(m)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(key, payload)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", m.Kind, err)
	}
	m.Signature = sig
	return Encode(m)
}

// Verify 用 key 验证消息签名
func Verify(m *Message, key crypto.PublicKey) bool {
	if key == nil || m.Signature.IsEmpty() {
		return false
	}
	payload, err := SignedPayload(m)
	if err != nil {
		return false
	}
	ok, err := crypto.Verify(key, payload, m.Signature)
	return err == nil && ok
}

// VerifyPeer 用消息体中的作者 PeerID 验证节点消息
func VerifyPeer(m *Message) error {
	if !m.Kind.IsPeer() {
		return ErrNotPeerMessage
	}
	key, err := crypto.PublicKeyFromPeerID(m.Peer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !Verify(m, key) {
		return fmt.Errorf("%w: bad %s signature from %s", ErrInvalidMessage, m.Kind, m.Peer.ShortString())
	}
	return nil
}
