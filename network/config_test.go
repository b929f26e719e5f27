package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkPresets(t *testing.T) {
	tests := []struct {
		name    string
		network string
		url     string
		user    string
	}{
		{"regtest defaults", "regtest", "http://localhost:18443", "utu"},
		{"testnet defaults", "testnet", "http://localhost:18332", "utu"},
		{"signet defaults", "signet", "http://localhost:38332", "utu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preset, ok := NetworkPresets[tt.network]
			require.True(t, ok, "preset should exist for %s", tt.network)
			assert.Equal(t, tt.url, preset.URL)
			assert.Equal(t, tt.user, preset.User)
		})
	}
}

func TestMainnetHasNoPreset(t *testing.T) {
	_, ok := NetworkPresets["mainnet"]
	assert.False(t, ok, "mainnet should not have a default preset")
}

func TestResolveConfigFlagsOverrideAll(t *testing.T) {
	flags := &RPCConfig{URL: "http://custom:9999", User: "me", Password: "secret", Proxy: true}
	cfg, err := ResolveConfig(flags, map[string]string{EnvRPCURL: "http://env:1"}, "regtest")
	require.NoError(t, err)
	assert.Equal(t, "http://custom:9999", cfg.URL)
	assert.Equal(t, "me", cfg.User)
	assert.Equal(t, "secret", cfg.Password)
	assert.True(t, cfg.Proxy)
	assert.Equal(t, "regtest", cfg.Network)
}

func TestResolveConfigEnvOverridesPreset(t *testing.T) {
	env := map[string]string{
		EnvRPCURL:  "http://env-node:18443",
		EnvRPCUser: "envuser",
	}
	cfg, err := ResolveConfig(nil, env, "regtest")
	require.NoError(t, err)
	assert.Equal(t, "http://env-node:18443", cfg.URL)
	assert.Equal(t, "envuser", cfg.User)
	assert.Equal(t, "utu", cfg.Password) // falls through to preset
}

func TestResolveConfigPresetFallback(t *testing.T) {
	cfg, err := ResolveConfig(nil, nil, "regtest")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:18443", cfg.URL)
	assert.Equal(t, "utu", cfg.User)
	assert.Equal(t, "utu", cfg.Password)
	assert.False(t, cfg.Proxy)
}

func TestResolveConfigMainnetRequiresExplicit(t *testing.T) {
	_, err := ResolveConfig(nil, nil, "mainnet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mainnet")

	cfg, err := ResolveConfig(nil, map[string]string{EnvRPCURL: "https://node.example:8332"}, "mainnet")
	require.NoError(t, err)
	assert.Equal(t, "https://node.example:8332", cfg.URL)
	assert.Empty(t, cfg.User)
}

func TestResolveConfigPartialFlags(t *testing.T) {
	flags := &RPCConfig{URL: "http://partial:8332"}
	cfg, err := ResolveConfig(flags, nil, "regtest")
	require.NoError(t, err)
	assert.Equal(t, "http://partial:8332", cfg.URL)
	assert.Equal(t, "utu", cfg.User)     // from preset
	assert.Equal(t, "utu", cfg.Password) // from preset
}
