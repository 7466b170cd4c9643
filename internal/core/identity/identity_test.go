package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
)

// TestIdentity_PeerIDIsPublicKey 测试 PeerID 与公钥一致
func TestIdentity_PeerIDIsPublicKey(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	pub, err := crypto.PublicKeyFromPeerID(id.PeerID())
	require.NoError(t, err)
	assert.True(t, pub.Equals(id.PublicKey()))

	sig, err := id.Sign([]byte("hello"))
	require.NoError(t, err)
	ok, err := crypto.Verify(pub, []byte("hello"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestLoadOrCreate 测试密钥文件的生成与重载
func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "peer.pem")

	first, err := LoadOrCreate(path, true)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrCreate(path, true)
	require.NoError(t, err)
	assert.Equal(t, first.PeerID(), second.PeerID())
}

// TestLoadOrCreate_NoAutoGenerate 测试禁用自动生成时缺失文件报错
func TestLoadOrCreate_NoAutoGenerate(t *testing.T) {
	_, err := LoadOrCreate(filepath.Join(t.TempDir(), "missing.pem"), false)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// TestLoadPrivateKeyPEM_Invalid 测试无效 PEM
func TestLoadPrivateKeyPEM_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not pem"), 0o600))

	_, err := LoadPrivateKeyPEM(path)
	assert.ErrorIs(t, err, ErrInvalidPEM)
}

// TestProvideServices 测试 fx 提供函数
func TestProvideServices(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Identity.KeyFile = filepath.Join(t.TempDir(), "peer.pem")

	out, err := ProvideServices(ModuleInput{Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, out.Identity)
	require.NotNil(t, out.Anonymous)

	preset, _ := Generate()
	out, err = ProvideServices(ModuleInput{Identity: preset})
	require.NoError(t, err)
	assert.Same(t, preset, out.Identity)
}
