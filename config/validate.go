// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validNetworks = map[string]bool{
	"mainnet": true,
	"testnet": true,
	"signet":  true,
	"regtest": true,
}

// ValidateConfig checks every configuration value and returns all problems
// found as a *multierror.Error, or nil if the configuration is valid.
// Optional values are only checked when set.
func ValidateConfig(cfg Config) error {
	var result error

	if cfg.DataDir == "" {
		result = multierror.Append(result, ErrEmptyDataDir)
	}
	if !validNetworks[cfg.Network] {
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrInvalidNetwork, cfg.Network))
	}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel))
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: %w", ErrInvalidListenAddr, err))
		}
	}
	if cfg.Bitcoin.URL != "" {
		if err := validateURL(cfg.Bitcoin.URL); err != nil {
			result = multierror.Append(result, fmt.Errorf("bitcoin: %w", err))
		}
	}
	if cfg.Relay.RPCURL != "" {
		if err := validateURL(cfg.Relay.RPCURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("relay: %w", err))
		}
	}
	if cfg.Relay.Contract != "" {
		if _, err := cfg.Relay.Deployment(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if _, err := cfg.Relay.MinWorkValue(); err != nil {
		result = multierror.Append(result, err)
	}

	return result
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
