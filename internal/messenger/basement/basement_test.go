package basement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/internal/core/storage"
	"github.com/dep2p/go-messenger/pkg/types"
)

func peer(b byte) types.PeerID {
	var id types.PeerID
	id[0] = b
	return id
}

func TestBasement_AddRemove(t *testing.T) {
	b := New()
	h := types.HashBytes([]byte("peer-1"))

	assert.True(t, b.Add(peer(2), types.EmptyHash))
	assert.True(t, b.Add(peer(1), h))
	assert.False(t, b.Add(peer(1), types.EmptyHash), "duplicate add")
	assert.Equal(t, []types.PeerID{peer(1), peer(2)}, b.Peers(), "sorted by peer id")

	got, ok := b.Message(peer(1))
	assert.True(t, ok)
	assert.Equal(t, h, got)
	_, ok = b.Message(peer(2))
	assert.False(t, ok)

	// 重复加入时补记 PEER 消息
	b.Add(peer(2), h)
	_, ok = b.Message(peer(2))
	assert.True(t, ok)

	assert.True(t, b.Remove(peer(1)))
	assert.False(t, b.Remove(peer(1)))
	assert.Equal(t, 0, b.Index(peer(2)))
	assert.Equal(t, -1, b.Index(peer(1)))
	assert.False(t, b.Contains(peer(1)))
}

func TestRequiredConnection_Symmetric(t *testing.T) {
	for n := 0; n <= 12; n++ {
		for src := 0; src < n; src++ {
			assert.False(t, RequiredConnection(n, src, src))
			for dst := 0; dst < n; dst++ {
				assert.Equal(t, RequiredConnection(n, src, dst), RequiredConnection(n, dst, src),
					"n=%d src=%d dst=%d", n, src, dst)
			}
		}
	}
	assert.False(t, RequiredConnection(3, -1, 0))
	assert.False(t, RequiredConnection(3, 0, 3))
}

func TestRequiredConnection_Rule(t *testing.T) {
	// 环相邻
	assert.True(t, RequiredConnection(8, 3, 4))
	assert.True(t, RequiredConnection(8, 7, 0))
	// 二叉树父子
	assert.True(t, RequiredConnection(8, 1, 3))
	assert.True(t, RequiredConnection(8, 1, 4))
	assert.True(t, RequiredConnection(8, 2, 6))
	// 其他
	assert.False(t, RequiredConnection(8, 1, 6))
	assert.False(t, RequiredConnection(8, 3, 6))
}

// connected 以 BFS 检查覆盖网连通
func connected(n int) bool {
	if n == 0 {
		return true
	}
	seen := map[int]bool{0: true}
	queue := []int{0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := 0; next < n; next++ {
			if !seen[next] && RequiredConnection(n, cur, next) {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return len(seen) == n
}

func TestRequiredConnection_Connected(t *testing.T) {
	for n := 1; n <= 64; n++ {
		assert.True(t, connected(n), "n=%d", n)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	// 加入顺序不同，列表相同
	a, b := New(), New()
	for i := byte(1); i <= 9; i++ {
		a.Add(peer(i), types.EmptyHash)
		b.Add(peer(10-i), types.EmptyHash)
	}
	require.Equal(t, a.Peers(), b.Peers())

	c1, d1, ok1 := a.Plan(peer(4))
	c2, d2, ok2 := b.Plan(peer(4))
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, d1, d2)
	assert.Len(t, append(c1, d1...), 8)

	// peer(4) 位于 3：环邻居 2、4，父节点 1，子节点 7、8
	assert.ElementsMatch(t, []types.PeerID{peer(3), peer(5), peer(2), peer(8), peer(9)}, c1)

	_, _, ok := a.Plan(peer(42))
	assert.False(t, ok)
}

func TestBasement_SaveLoad(t *testing.T) {
	eng, root, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer eng.Close()
	kvs := root.SubStore([]byte("r/x/"))

	empty := New()
	require.NoError(t, empty.Load(kvs))
	assert.Equal(t, 0, empty.Len())

	b := New()
	b.Add(peer(1), types.HashBytes([]byte("1")))
	b.Add(peer(2), types.EmptyHash)
	require.NoError(t, b.Save(kvs))

	loaded := New()
	require.NoError(t, loaded.Load(kvs))
	assert.Equal(t, b.Entries(), loaded.Entries())
}
