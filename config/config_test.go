package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.True(t, cfg.AllowIncoming)
	assert.Equal(t, 30*time.Second, cfg.Protocol.HandshakeTimeout.Duration())
	assert.Equal(t, 15*time.Second, cfg.Protocol.CandidateTTL.Duration())
	assert.Equal(t, 30*time.Second, cfg.Protocol.RelayTTL.Duration())
	assert.Equal(t, []string{"tcp"}, cfg.Transport.Enabled())
	assert.Equal(t, []string{UpgradeDirect}, cfg.Upgrade.Transports)

	// 默认配置缺少 NetworkID
	assert.Error(t, cfg.Validate())

	cfg.NetworkID = "net"
	assert.NoError(t, cfg.Validate())

	t.Log("✅ 默认配置正确")
}

// TestConfig_Validate 测试配置验证
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty_network", func(c *Config) { c.NetworkID = "" }},
		{"zero_rpc_timeout", func(c *Config) { c.Protocol.RPCTimeout = 0 }},
		{"zero_candidate_ttl", func(c *Config) { c.Protocol.CandidateTTL = 0 }},
		{"negative_rate", func(c *Config) { c.Protocol.RateLimit = -1 }},
		{"rate_without_burst", func(c *Config) { c.Protocol.RateBurst = 0 }},
		{"port_out_of_range", func(c *Config) { c.Transport.TCP.Port = 70000 }},
		{"bad_ws_path", func(c *Config) {
			c.Transport.WebSocket.Enable = true
			c.Transport.WebSocket.Path = "pxp"
		}},
		{"unknown_upgrade", func(c *Config) { c.Upgrade.Transports = []string{"carrier-pigeon"} }},
		{"duplicate_upgrade", func(c *Config) { c.Upgrade.Transports = []string{"direct", "direct"} }},
		{"negative_target", func(c *Config) { c.Discovery.TargetPeers = -1 }},
		{"incomplete_seed", func(c *Config) { c.Seeds = []Seed{{Transport: "tcp"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.NetworkID = "net"
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestFromJSON 测试从 JSON 解析配置
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"network_id": "chat",
		"allow_incoming": false,
		"protocol": {"candidate_ttl": "5s"},
		"transport": {"websocket": {"enable": true, "port": 8080, "path": "/ws"}},
		"seeds": [{"transport": "tcp", "address": "127.0.0.1:4001"}]
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, "chat", cfg.NetworkID)
	assert.False(t, cfg.AllowIncoming)
	assert.Equal(t, 5*time.Second, cfg.Protocol.CandidateTTL.Duration())
	// 未出现的字段保留默认值
	assert.Equal(t, 30*time.Second, cfg.Protocol.RelayTTL.Duration())
	assert.Equal(t, []string{"tcp", "websocket"}, cfg.Transport.Enabled())
	assert.Equal(t, "/ws", cfg.Transport.WebSocket.Path)
	require.Len(t, cfg.Seeds, 1)
	assert.Equal(t, "127.0.0.1:4001", cfg.Seeds[0].Address)

	_, err = FromJSON([]byte(`{"network_id": "chat", "protocol": {"rpc_timeout": "forever"}}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{}`))
	assert.Error(t, err, "缺少 network_id")

	// Parse 不验证
	cfg, err = Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, cfg.NetworkID)
	assert.True(t, cfg.AllowIncoming)
}

// TestLoad 测试从文件加载并往返
func TestLoad(t *testing.T) {
	cfg := NewConfig()
	cfg.NetworkID = "files"
	cfg.Discovery.TargetPeers = 3

	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"candidate_ttl": "15s"`)

	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	t.Log("✅ 配置文件往返正确")
}

// TestDuration_JSON 测试 Duration 的两种输入格式
func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000`)))
	assert.Equal(t, time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	out, err := Duration(2 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
	assert.Equal(t, "2s", Duration(2*time.Second).String())
}

// TestMustValidate 测试 MustValidate
func TestMustValidate(t *testing.T) {
	assert.Panics(t, func() { MustValidate(NewConfig()) })

	cfg := NewConfig()
	cfg.NetworkID = "net"
	assert.NotPanics(t, func() { MustValidate(cfg) })
}
