// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", \"signet\", or \"regtest\")")

	// ErrInvalidListenAddr indicates the metrics listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"trace\", \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigFile indicates a configuration file that cannot be decoded.
	ErrInvalidConfigFile = errors.New("config: invalid configuration file")

	// ErrInvalidURL indicates an RPC endpoint that is not an http(s) URL.
	ErrInvalidURL = errors.New("config: invalid RPC URL")

	// ErrNoContract indicates that no relay contract address is configured.
	ErrNoContract = errors.New("config: relay contract address not set")

	// ErrInvalidContract indicates a contract address that is not a field element.
	ErrInvalidContract = errors.New("config: invalid relay contract address")

	// ErrInvalidMinWork indicates a minimum work value that is not a non-negative integer.
	ErrInvalidMinWork = errors.New("config: invalid minimum work")
)
