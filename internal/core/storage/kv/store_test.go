package kv

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/internal/core/storage/engine/badger"
)

// testStore 创建测试用 KVStore
func testStore(t *testing.T, prefix string) *Store {
	t.Helper()

	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	eng, err := badger.New(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	t.Cleanup(func() {
		if err := eng.Close(); err != nil {
			t.Errorf("failed to close engine: %v", err)
		}
	})

	return New(eng, []byte(prefix))
}

// ============= 基础操作测试 =============

func TestStore_PutGet(t *testing.T) {
	s := testStore(t, "r/")

	if err := s.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("value1")) {
		t.Errorf("Get returned %q, want %q", got, "value1")
	}

	// 前缀已透明添加
	raw, err := s.engine.Get([]byte("r/key1"))
	if err != nil || !bytes.Equal(raw, []byte("value1")) {
		t.Errorf("engine.Get(r/key1) = %q, %v", raw, err)
	}
}

func TestStore_JSON(t *testing.T) {
	s := testStore(t, "")

	type record struct {
		Hashes []string `json:"hashes"`
	}

	in := record{Hashes: []string{"a", "b"}}
	if err := s.PutJSON([]byte("state"), in); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var out record
	if err := s.GetJSON([]byte("state"), &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if len(out.Hashes) != 2 || out.Hashes[1] != "b" {
		t.Errorf("GetJSON returned %+v", out)
	}

	if err := s.GetJSON([]byte("missing"), &out); !engine.IsNotFound(err) {
		t.Errorf("GetJSON(missing) error = %v, want ErrNotFound", err)
	}
}

// ============= 层级与前缀测试 =============

func TestStore_SubStoreHierarchy(t *testing.T) {
	root := testStore(t, "")
	room := root.SubStore([]byte("r/room1/"))
	member := room.SubStore([]byte("m/abc/"))

	for i := 0; i < 3; i++ {
		key := []byte(fmt.Sprintf("s/%d/meta", i))
		if err := member.Put(key, []byte{byte(i)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := room.Put([]byte("state"), []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	n, err := room.Count([]byte("m/"))
	if err != nil || n != 3 {
		t.Errorf("room.Count(m/) = %d, %v; want 3", n, err)
	}

	keys, err := member.Keys([]byte("s/"))
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 3 || !bytes.HasPrefix(keys[0], []byte("s/")) {
		t.Errorf("Keys = %q", keys)
	}

	// 删除单个会话目录
	if err := member.DeletePrefix([]byte("s/1/")); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	n, _ = member.Count(nil)
	if n != 2 {
		t.Errorf("member.Count after DeletePrefix = %d, want 2", n)
	}

	// 删除整个房间
	if err := root.DeletePrefix([]byte("r/room1/")); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	n, _ = root.Count(nil)
	if n != 0 {
		t.Errorf("root.Count after DeletePrefix = %d, want 0", n)
	}
}

func TestStore_PrefixScanStop(t *testing.T) {
	s := testStore(t, "p/")
	for i := 0; i < 5; i++ {
		_ = s.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	seen := 0
	err := s.PrefixScan([]byte("k"), func(_, _ []byte) bool {
		seen++
		return seen < 2
	})
	if err != nil {
		t.Fatalf("PrefixScan failed: %v", err)
	}
	if seen != 2 {
		t.Errorf("PrefixScan visited %d keys, want 2", seen)
	}
}

func TestStore_Batch(t *testing.T) {
	s := testStore(t, "b/")

	batch := s.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	if err := batch.PutJSON([]byte("b"), map[string]int{"x": 1}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}
	batch.Delete([]byte("c"))
	if batch.Size() != 3 {
		t.Errorf("Size = %d, want 3", batch.Size())
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if ok, _ := s.Has([]byte("b")); !ok {
		t.Error("batched key missing")
	}
}
