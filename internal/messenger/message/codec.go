package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// 头部固定部分长度（不含签名）
const (
	kindSize      = 2
	senderSize    = 16
	previousSize  = types.HashSize
	timestampSize = 8

	fixedHeaderSize = kindSize + senderSize + previousSize + timestampSize
	peerIDSize      = 32
	versionSize     = 4
	delaySize       = 8
)

// MinSize 最短合法消息长度
const MinSize = fixedHeaderSize + crypto.SignatureHeaderSize

// 无限延迟的线上编码
const infiniteDelay = math.MaxUint64

// Encode 编码消息
func Encode(m *Message) ([]byte, error) {
	return encode(m, m.Signature)
}

func encode(m *Message, sig crypto.Signature) ([]byte, error) {
	if !m.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(m.Kind))
	}

	buf := make([]byte, 0, MinSize+len(sig.Data)+64)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Kind))
	buf = append(buf, m.SenderID[:]...)
	buf = append(buf, m.Previous[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Timestamp))
	buf = sig.AppendTo(buf)

	switch m.Kind {
	case KindInfo:
		buf = append(buf, m.Peer[:]...)
		buf = binary.BigEndian.AppendUint32(buf, m.Version)
	case KindJoin, KindKey:
		if m.Key == nil {
			return nil, ErrMissingKey
		}
		key, err := crypto.MarshalPublicKey(m.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
	case KindLeave:
	case KindName, KindText:
		if bytes.IndexByte([]byte(m.Text), 0) >= 0 {
			return nil, ErrInvalidText
		}
		buf = append(buf, m.Text...)
		buf = append(buf, 0)
	case KindPeer:
		buf = append(buf, m.Peer[:]...)
	case KindID:
		buf = append(buf, m.ID[:]...)
	case KindMiss:
		buf = append(buf, m.Peer[:]...)
		buf = append(buf, m.Missing[:]...)
	case KindMerge, KindRequest:
		buf = append(buf, m.Peer[:]...)
		buf = append(buf, m.Target[:]...)
	case KindDelete:
		buf = append(buf, m.Target[:]...)
		buf = binary.BigEndian.AppendUint64(buf, encodeDelay(m.Delay))
	}
	return buf, nil
}

// Decode 解码消息
//
// 消息体必须恰好消耗全部输入。
func Decode(data []byte) (*Message, error) {
	if len(data) < MinSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalidMessage, len(data))
	}

	m := &Message{}
	m.Kind = Kind(binary.BigEndian.Uint16(data[0:2]))
	if !m.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint16(m.Kind))
	}
	off := kindSize
	copy(m.SenderID[:], data[off:off+senderSize])
	off += senderSize
	copy(m.Previous[:], data[off:off+previousSize])
	off += previousSize
	m.Timestamp = types.Timestamp(binary.BigEndian.Uint64(data[off : off+timestampSize]))
	off += timestampSize

	sig, n, err := crypto.ReadSignature(data[off:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	m.Signature = sig
	off += n

	body := data[off:]
	if err := decodeBody(m, body); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeBody(m *Message, body []byte) error {
	need := func(size int) error {
		if len(body) != size {
			return fmt.Errorf("%w: %s body has %d bytes, want %d", ErrInvalidMessage, m.Kind, len(body), size)
		}
		return nil
	}

	switch m.Kind {
	case KindInfo:
		if err := need(peerIDSize + versionSize); err != nil {
			return err
		}
		copy(m.Peer[:], body)
		m.Version = binary.BigEndian.Uint32(body[peerIDSize:])
	case KindJoin, KindKey:
		key, n, err := crypto.ReadPublicKey(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if n != len(body) {
			return fmt.Errorf("%w: trailing bytes after key", ErrInvalidMessage)
		}
		m.Key = key
	case KindLeave:
		if err := need(0); err != nil {
			return err
		}
	case KindName, KindText:
		end := bytes.IndexByte(body, 0)
		if end < 0 || end != len(body)-1 {
			return fmt.Errorf("%w: %s text not NUL terminated", ErrInvalidMessage, m.Kind)
		}
		m.Text = string(body[:end])
	case KindPeer:
		if err := need(peerIDSize); err != nil {
			return err
		}
		copy(m.Peer[:], body)
	case KindID:
		if err := need(senderSize); err != nil {
			return err
		}
		copy(m.ID[:], body)
	case KindMiss:
		if err := need(2 * peerIDSize); err != nil {
			return err
		}
		copy(m.Peer[:], body)
		copy(m.Missing[:], body[peerIDSize:])
	case KindMerge, KindRequest:
		if err := need(peerIDSize + types.HashSize); err != nil {
			return err
		}
		copy(m.Peer[:], body)
		copy(m.Target[:], body[peerIDSize:])
	case KindDelete:
		if err := need(types.HashSize + delaySize); err != nil {
			return err
		}
		copy(m.Target[:], body)
		m.Delay = decodeDelay(binary.BigEndian.Uint64(body[types.HashSize:]))
	}
	return nil
}

func encodeDelay(d time.Duration) uint64 {
	if d < 0 {
		return infiniteDelay
	}
	return uint64(d / time.Microsecond)
}

func decodeDelay(us uint64) time.Duration {
	if us > uint64(math.MaxInt64/int64(time.Microsecond)) {
		return -1
	}
	return time.Duration(us) * time.Microsecond
}

// Hash 计算编码后消息的哈希
func Hash(data []byte) types.Hash {
	return types.HashBytes(data)
}
