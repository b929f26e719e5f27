package network

import "fmt"

// RPCConfig holds the connection parameters for a Bitcoin node's JSON-RPC interface.
type RPCConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
	Network  string `json:"network"`

	// Proxy marks an endpoint that authenticates requests itself; no
	// credentials are sent.
	Proxy bool `json:"proxy"`
}

// Environment variables read by ResolveConfig.
const (
	EnvRPCURL  = "UTU_BTC_RPC_URL"
	EnvRPCUser = "UTU_BTC_RPC_USER"
	EnvRPCPass = "UTU_BTC_RPC_PASS"
)

// NetworkPresets contains default RPC configurations for known networks.
// Mainnet is intentionally omitted to require explicit configuration.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18443", User: "utu", Password: "utu"},
	"testnet": {URL: "http://localhost:18332", User: "utu", Password: "utu"},
	"signet":  {URL: "http://localhost:38332", User: "utu", Password: "utu"},
}

// ResolveConfig merges RPC configuration from three sources with decreasing priority:
//  1. CLI flags (highest priority)
//  2. Environment variables (UTU_BTC_RPC_URL, UTU_BTC_RPC_USER, UTU_BTC_RPC_PASS)
//  3. Network presets (lowest priority, regtest/testnet/signet only)
//
// For mainnet, explicit configuration is required -- there is no preset.
func ResolveConfig(flags *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}

	// Layer 1: start with preset defaults if available.
	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	// Layer 2: environment variables override preset defaults.
	if env != nil {
		if v, ok := env[EnvRPCURL]; ok && v != "" {
			result.URL = v
		}
		if v, ok := env[EnvRPCUser]; ok && v != "" {
			result.User = v
		}
		if v, ok := env[EnvRPCPass]; ok && v != "" {
			result.Password = v
		}
	}

	// Layer 3: CLI flags have highest priority.
	if flags != nil {
		if flags.URL != "" {
			result.URL = flags.URL
		}
		if flags.User != "" {
			result.User = flags.User
		}
		if flags.Password != "" {
			result.Password = flags.Password
		}
		if flags.Proxy {
			result.Proxy = true
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("network: %s requires explicit RPC configuration (set --btc-rpc-url, %s, or config file)", network, EnvRPCURL)
	}

	return &result, nil
}
