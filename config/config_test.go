package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dep2p/go-messenger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, TransportMemory, cfg.Channel.Transport)
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, DefaultVersion, cfg.Messenger.Version)
}

// TestFromJSON 测试 JSON 覆盖默认值
func TestFromJSON(t *testing.T) {
	var peer types.PeerID
	peer[0] = 7

	data := []byte(`{
		"storage": {"path": "/tmp/m"},
		"channel": {"transport": "quic", "listen_addr": "127.0.0.1:9000",
			"peers": {"` + peer.String() + `": "127.0.0.1:9001"}},
		"messenger": {"idle_delay": "250ms"}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, filepath.Join("/tmp/m", "messenger.db"), cfg.Storage.DBPath())
	assert.Equal(t, 250*time.Millisecond, cfg.Messenger.IdleDelay.Duration())
	assert.Equal(t, "127.0.0.1:9001", cfg.Channel.Peers[peer])
	// 未出现的字段保留默认值
	assert.Equal(t, DefaultMessengerConfig().MergeDelay, cfg.Messenger.MergeDelay)
}

// TestConfig_ValidateErrors 测试无效配置
func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown transport", func(c *Config) { c.Channel.Transport = "tcp" }},
		{"bad listen addr", func(c *Config) {
			c.Channel.Transport = TransportQUIC
			c.Channel.ListenAddr = "nope"
		}},
		{"zero version", func(c *Config) { c.Messenger.Version = 0 }},
		{"negative delay", func(c *Config) { c.Messenger.IdleDelay = -1 }},
		{"zero buffer", func(c *Config) { c.Messenger.EventBuffer = 0 }},
		{"zero pending limit", func(c *Config) { c.Messenger.PendingPerMember = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad metrics addr", func(c *Config) { c.Metrics.ListenAddr = "::::" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestLoadFile 测试文件加载
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messenger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log": {"level": "debug"}}`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestDuration_JSON 测试 Duration 编解码
func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	out, err := Duration(2 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}
