package member

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-messenger/internal/core/storage/kv"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// 键布局（相对房间前缀）：
//
//	m/<member>/id
//	m/<member>/s/<session>/meta
//	m/<member>/s/<session>/hist
const membersPrefix = "m/"

var errBadHistory = errors.New("member: malformed history record")

type sessionRef struct {
	Member string `json:"member"`
	Key    string `json:"key"`
}

type sessionMeta struct {
	Key    []byte          `json:"key"`
	Start  types.Timestamp `json:"start"`
	Closed bool            `json:"closed,omitempty"`
	Name   string          `json:"name,omitempty"`
	Prev   *sessionRef     `json:"prev,omitempty"`
	Next   *sessionRef     `json:"next,omitempty"`
}

func refOf(s *Session) *sessionRef {
	if s == nil || s.completed {
		return nil
	}
	return &sessionRef{Member: s.member.id.String(), Key: s.keyHash.String()}
}

// Save 保存全部成员与未完成的会话
//
// 先清空 m/ 子树再整体写入，已完成会话的目录随之被回收。
func (s *Store) Save(store *kv.Store) error {
	if err := store.DeletePrefix([]byte(membersPrefix)); err != nil {
		return err
	}

	batch := store.NewBatch()
	for id, m := range s.members {
		base := membersPrefix + id.String() + "/"
		batch.Put([]byte(base+"id"), id.Bytes())

		for hash, session := range m.sessions {
			if session.completed {
				continue
			}
			key, err := crypto.MarshalPublicKey(session.key)
			if err != nil {
				return err
			}
			meta := sessionMeta{
				Key:    key,
				Start:  session.start,
				Closed: session.closed,
				Prev:   refOf(session.prev),
				Next:   refOf(session.next),
			}
			if session.contact != nil {
				meta.Name = session.contact.Name()
			}

			dir := base + "s/" + hash.String() + "/"
			if err := batch.PutJSON([]byte(dir+"meta"), meta); err != nil {
				return err
			}
			batch.Put([]byte(dir+"hist"), encodeHistory(session))
		}
	}
	return batch.Write()
}

// Load 加载成员与会话，并恢复轮换链与联系人
func (s *Store) Load(store *kv.Store) error {
	metas := make(map[sessionRef][]byte)
	hists := make(map[sessionRef][]byte)

	err := store.PrefixScan([]byte(membersPrefix), func(key, value []byte) bool {
		parts := strings.Split(strings.TrimPrefix(string(key), membersPrefix), "/")
		switch {
		case len(parts) == 2 && parts[1] == "id":
			if id, err := types.MemberIDFromBytes(value); err == nil {
				s.Add(id)
			}
		case len(parts) == 4 && parts[1] == "s":
			ref := sessionRef{Member: parts[0], Key: parts[2]}
			if parts[3] == "meta" {
				metas[ref] = value
			} else if parts[3] == "hist" {
				hists[ref] = value
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	loaded := make(map[sessionRef]*Session, len(metas))
	links := make(map[*Session]sessionMeta, len(metas))
	for ref, raw := range metas {
		session, meta, err := s.loadSession(ref, raw, hists[ref])
		if err != nil {
			logger.Warn("跳过无效的会话记录", "member", ref.Member, "session", ref.Key, "error", err)
			continue
		}
		loaded[ref] = session
		links[session] = meta
	}

	for session, meta := range links {
		if meta.Prev != nil {
			session.prev = loaded[*meta.Prev]
		}
		if meta.Next != nil {
			session.next = loaded[*meta.Next]
		}
	}
	for session := range links {
		if session.next == nil {
			session.SyncContacts()
		}
	}
	return nil
}

func (s *Store) loadSession(ref sessionRef, rawMeta, rawHist []byte) (*Session, sessionMeta, error) {
	var meta sessionMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, meta, err
	}

	id, err := types.ParseMemberID(ref.Member)
	if err != nil {
		return nil, meta, err
	}
	key, err := crypto.UnmarshalPublicKeyBytes(meta.Key)
	if err != nil {
		return nil, meta, err
	}
	if crypto.KeyHash(key).String() != ref.Key {
		return nil, meta, fmt.Errorf("session key hash mismatch")
	}

	session := s.Add(id).TrySession(key)
	session.start = meta.Start
	session.closed = meta.Closed
	if meta.Name != "" && session.contact != nil && session.contact.Name() == "" {
		session.contact.SetName(meta.Name)
	}
	if err := decodeHistory(session, rawHist); err != nil {
		return nil, meta, err
	}
	return session, meta, nil
}

// ============================================================================
//                              历史记录编码
// ============================================================================

// 历史记录是一串 field 1 的嵌套记录：
//
//	entry { 1: hash bytes; 2: owned varint }
//
// 签发的条目按签发顺序在前。
const (
	fieldEntry = protowire.Number(1)
	fieldHash  = protowire.Number(1)
	fieldOwned = protowire.Number(2)
)

func encodeHistory(s *Session) []byte {
	var out []byte
	for _, h := range s.authored {
		out = appendEntry(out, h, true)
	}
	for h, owned := range s.history {
		if !owned {
			out = appendEntry(out, h, false)
		}
	}
	return out
}

func appendEntry(out []byte, hash types.Hash, owned bool) []byte {
	var e []byte
	e = protowire.AppendTag(e, fieldHash, protowire.BytesType)
	e = protowire.AppendBytes(e, hash[:])
	if owned {
		e = protowire.AppendTag(e, fieldOwned, protowire.VarintType)
		e = protowire.AppendVarint(e, 1)
	}
	out = protowire.AppendTag(out, fieldEntry, protowire.BytesType)
	return protowire.AppendBytes(out, e)
}

func decodeHistory(s *Session, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errBadHistory
		}
		data = data[n:]

		if num != fieldEntry || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errBadHistory
			}
			data = data[n:]
			continue
		}

		entry, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return errBadHistory
		}
		data = data[n:]

		hash, owned, err := decodeEntry(entry)
		if err != nil {
			return err
		}
		if owned {
			if !s.history[hash] {
				s.authored = append(s.authored, hash)
			}
			s.history[hash] = true
		} else if _, ok := s.history[hash]; !ok {
			s.history[hash] = false
		}
	}
	return nil
}

func decodeEntry(data []byte) (types.Hash, bool, error) {
	var hash types.Hash
	var owned, seen bool
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return hash, false, errBadHistory
		}
		data = data[n:]

		switch {
		case num == fieldHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 || len(v) != types.HashSize {
				return hash, false, errBadHistory
			}
			copy(hash[:], v)
			seen = true
			data = data[n:]
		case num == fieldOwned && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return hash, false, errBadHistory
			}
			owned = v != 0
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return hash, false, errBadHistory
			}
			data = data[n:]
		}
	}
	if !seen {
		return hash, false, errBadHistory
	}
	return hash, owned, nil
}
