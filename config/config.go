// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads the utu configuration from a TOML file and UTU_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/relay"
)

// ConfigFileName is the name of the configuration file inside the data directory.
const ConfigFileName = "config.toml"

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "UTU"

// Config is the top level utu configuration.
type Config struct {
	DataDir     string        `mapstructure:"datadir"`
	Network     string        `mapstructure:"network"`
	LogLevel    string        `mapstructure:"loglevel"`
	MetricsAddr string        `mapstructure:"metrics"`
	Bitcoin     BitcoinConfig `mapstructure:"bitcoin"`
	Relay       RelayConfig   `mapstructure:"relay"`
}

// BitcoinConfig locates the Bitcoin node. Empty values fall back to the
// network presets.
type BitcoinConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Proxy    bool   `mapstructure:"proxy"`
}

// RelayConfig locates the relay contract.
type RelayConfig struct {
	RPCURL   string `mapstructure:"rpc_url"`
	Contract string `mapstructure:"contract"`
	BlockID  string `mapstructure:"block_id"`
	MinWork  string `mapstructure:"min_work"`

	// Entry point overrides, as hex selectors or names. Empty means the
	// standard entry point name.
	RegisterBlocks       string `mapstructure:"register_blocks"`
	UpdateCanonicalChain string `mapstructure:"update_canonical_chain"`
	GetStatus            string `mapstructure:"get_status"`
	GetBlock             string `mapstructure:"get_block"`
}

// DefaultDataDir returns ~/.utu, or .utu when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".utu"
	}
	return filepath.Join(home, ".utu")
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFileName)
}

// DefaultConfig returns a regtest configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:  DefaultDataDir(),
		Network:  "regtest",
		LogLevel: "info",
		Relay: RelayConfig{
			BlockID: "latest",
			MinWork: "0",
		},
	}
}

// settings flattens cfg into viper keys.
func settings(cfg Config) map[string]interface{} {
	return map[string]interface{}{
		"datadir":                      cfg.DataDir,
		"network":                      cfg.Network,
		"loglevel":                     cfg.LogLevel,
		"metrics":                      cfg.MetricsAddr,
		"bitcoin.url":                  cfg.Bitcoin.URL,
		"bitcoin.user":                 cfg.Bitcoin.User,
		"bitcoin.password":             cfg.Bitcoin.Password,
		"bitcoin.proxy":                cfg.Bitcoin.Proxy,
		"relay.rpc_url":                cfg.Relay.RPCURL,
		"relay.contract":               cfg.Relay.Contract,
		"relay.block_id":               cfg.Relay.BlockID,
		"relay.min_work":               cfg.Relay.MinWork,
		"relay.register_blocks":        cfg.Relay.RegisterBlocks,
		"relay.update_canonical_chain": cfg.Relay.UpdateCanonicalChain,
		"relay.get_status":             cfg.Relay.GetStatus,
		"relay.get_block":              cfg.Relay.GetBlock,
	}
}

// NewViper returns a viper instance preloaded with the defaults and bound to
// the UTU_* environment, e.g. UTU_RELAY_CONTRACT for relay.contract.
// The Bitcoin node variables are shared with network.ResolveConfig.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	for k, val := range settings(DefaultConfig()) {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("bitcoin.url", "UTU_BTC_RPC_URL")
	_ = v.BindEnv("bitcoin.user", "UTU_BTC_RPC_USER")
	_ = v.BindEnv("bitcoin.password", "UTU_BTC_RPC_PASS")
	return v
}

// LoadConfig reads the file at path over the defaults. An empty path loads
// defaults and environment only.
func LoadConfig(path string) (Config, error) {
	return Load(NewViper(), path)
}

// Load reads the file at path into v and decodes the merged configuration.
// Callers may bind command line flags to v before calling Load.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfigFile, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfigFile, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as TOML to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")
	for k, val := range settings(cfg) {
		v.Set(k, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

// Deployment resolves the contract address and entry point selectors.
func (r RelayConfig) Deployment() (relay.Deployment, error) {
	if r.Contract == "" {
		return relay.Deployment{}, ErrNoContract
	}
	addr, err := felt.FromHex(r.Contract)
	if err != nil {
		return relay.Deployment{}, fmt.Errorf("%w: %w", ErrInvalidContract, err)
	}
	dep := relay.NewDeployment(addr)
	overrides := []struct {
		value string
		dst   *felt.Felt
	}{
		{r.RegisterBlocks, &dep.RegisterBlocks},
		{r.UpdateCanonicalChain, &dep.UpdateCanonicalChain},
		{r.GetStatus, &dep.GetStatus},
		{r.GetBlock, &dep.GetBlock},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if *o.dst, err = relay.ResolveSelector(o.value); err != nil {
			return relay.Deployment{}, err
		}
	}
	return dep, nil
}

// MinWorkValue parses MinWork as a decimal or 0x-prefixed integer.
// An empty value is zero.
func (r RelayConfig) MinWorkValue() (*big.Int, error) {
	return ParseWork(r.MinWork)
}

// ParseWork parses a non-negative decimal or 0x-prefixed amount of work.
func ParseWork(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	w, ok := new(big.Int).SetString(s, 0)
	if !ok || w.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMinWork, s)
	}
	return w, nil
}
