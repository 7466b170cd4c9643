package badger

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
)

// testEngine 创建测试用引擎
func testEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("failed to close engine: %v", err)
		}
	})

	return e
}

// ============= 基础 CRUD 测试 =============

func TestEngine_PutGet(t *testing.T) {
	e := testEngine(t)

	key := []byte("r/room/state")
	value := []byte(`["a","b"]`)

	if err := e.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := e.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}

	ok, err := e.Has(key)
	if err != nil || !ok {
		t.Errorf("Has = %v, %v; want true, nil", ok, err)
	}
}

func TestEngine_GetNotFound(t *testing.T) {
	e := testEngine(t)

	_, err := e.Get([]byte("nonexistent"))
	if !engine.IsNotFound(err) {
		t.Errorf("Get returned error %v, want ErrNotFound", err)
	}
}

func TestEngine_Delete(t *testing.T) {
	e := testEngine(t)
	key := []byte("delete-key")

	if err := e.Put(key, []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := e.Has(key); ok {
		t.Error("key still present after Delete")
	}

	// 幂等
	if err := e.Delete(key); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestEngine_EmptyKey(t *testing.T) {
	e := testEngine(t)

	if err := e.Put(nil, []byte("v")); err != engine.ErrEmptyKey {
		t.Errorf("Put(nil) error = %v, want ErrEmptyKey", err)
	}
	if _, err := e.Get(nil); err != engine.ErrEmptyKey {
		t.Errorf("Get(nil) error = %v, want ErrEmptyKey", err)
	}
}

// ============= 批量与迭代测试 =============

func TestEngine_BatchAndPrefixIterator(t *testing.T) {
	e := testEngine(t)

	batch := e.NewBatch()
	for i := 0; i < 5; i++ {
		batch.Put([]byte(fmt.Sprintf("r/a/msg/%d", i)), []byte{byte(i)})
	}
	batch.Put([]byte("r/b/msg/0"), []byte{9})
	if batch.Size() != 6 {
		t.Fatalf("batch.Size() = %d, want 6", batch.Size())
	}
	if err := e.Write(batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	iter := e.NewPrefixIterator([]byte("r/a/"))
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), []byte("r/a/")) {
			t.Errorf("unexpected key %q", iter.Key())
		}
		count++
	}
	if err := iter.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if count != 5 {
		t.Errorf("iterated %d keys, want 5", count)
	}
}

func TestEngine_BatchReuseAfterWrite(t *testing.T) {
	e := testEngine(t)

	batch := e.NewBatch()
	batch.Put([]byte("k1"), []byte("v1"))
	if err := batch.Write(); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	batch.Put([]byte("k2"), []byte("v2"))
	if err := batch.Write(); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	for _, k := range []string{"k1", "k2"} {
		if ok, _ := e.Has([]byte(k)); !ok {
			t.Errorf("key %s missing", k)
		}
	}
}

func TestEngine_Closed(t *testing.T) {
	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "closed.db"))
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := e.Put([]byte("k"), []byte("v")); !engine.IsClosed(err) {
		t.Errorf("Put after Close error = %v, want ErrClosed", err)
	}
	// 重复关闭
	if err := e.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
}
