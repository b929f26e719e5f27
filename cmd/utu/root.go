package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitfsorg/utu-go/config"
	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/metrics"
	"github.com/bitfsorg/utu-go/network"
	"github.com/bitfsorg/utu-go/oracle"
	"github.com/bitfsorg/utu-go/relay"
)

// app carries the resolved configuration into subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	out        io.Writer
	logger     zerolog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"datadir":       "datadir",
	"network":       "network",
	"log-level":     "loglevel",
	"metrics-addr":  "metrics",
	"btc-rpc-url":   "bitcoin.url",
	"btc-rpc-user":  "bitcoin.user",
	"btc-rpc-pass":  "bitcoin.password",
	"btc-proxy":     "bitcoin.proxy",
	"relay-rpc-url": "relay.rpc_url",
	"contract":      "relay.contract",
	"block-id":      "relay.block_id",
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper(), out: os.Stdout}

	root := &cobra.Command{
		Use:   "utu",
		Short: "Sync planner and proof builder for a Starknet Bitcoin relay",
		Long: `utu reads a Bitcoin node over JSON-RPC and a relay contract over
starknet_call, and prints the register_blocks and update_canonical_chain
calls that bring the relay in sync with the Bitcoin chain.

Settings come from flags, UTU_* environment variables and
<datadir>/config.toml, in that order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(os.Stdout)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "configuration file (default <datadir>/config.toml)")
	pf.String("datadir", config.DefaultDataDir(), "data directory")
	pf.String("network", "regtest", "bitcoin network: mainnet, testnet, signet or regtest")
	pf.String("log-level", "info", "log level: trace, debug, info, warn or error")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	pf.String("btc-rpc-url", "", "bitcoin node RPC URL")
	pf.String("btc-rpc-user", "", "bitcoin node RPC user")
	pf.String("btc-rpc-pass", "", "bitcoin node RPC password")
	pf.Bool("btc-proxy", false, "the RPC endpoint authenticates requests itself")
	pf.String("relay-rpc-url", "", "Starknet JSON-RPC URL")
	pf.String("contract", "", "relay contract address")
	pf.String("block-id", "latest", "Starknet block id relay state is read at")
	for flag, key := range flagKeys {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		initCmd(a),
		planCmd(a),
		heightProofCmd(a),
		txProofCmd(a),
		registerCmd(a),
		updateCmd(a),
		selectorCmd(a),
		decodeProofCmd(a),
	)
	return root
}

// setup loads and validates the configuration and configures logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.out = cmd.OutOrStdout()

	// A missing default file is fine, and init may be about to create one.
	path := a.configFile
	if path == "" || cmd.Name() == "init" {
		if path == "" {
			path = config.ConfigPath(a.v.GetString("datadir"))
		}
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(a.v, path)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	a.logger = log.With().Str("module", "cli").Logger()

	a.registry = prometheus.NewRegistry()
	if a.metrics, err = metrics.NewMetrics(a.registry); err != nil {
		return err
	}
	return nil
}

// serveMetrics exposes the registry until ctx is done. It is a no-op
// without a metrics address.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux, a.registry)
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	a.logger.Info().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
}

// bitcoin connects to the configured Bitcoin node.
func (a *app) bitcoin() (*network.RPCClient, error) {
	flags := &network.RPCConfig{
		URL:      a.cfg.Bitcoin.URL,
		User:     a.cfg.Bitcoin.User,
		Password: a.cfg.Bitcoin.Password,
		Proxy:    a.cfg.Bitcoin.Proxy,
	}
	rc, err := network.ResolveConfig(flags, nil, a.cfg.Network)
	if err != nil {
		return nil, err
	}
	return network.NewRPCClient(*rc), nil
}

// deployment resolves the relay contract, which every oracle-backed and
// calldata-producing command needs.
func (a *app) deployment() (relay.Deployment, error) {
	return a.cfg.Relay.Deployment()
}

// chainState opens the local replica at localState, or dials the relay's
// Starknet node. The returned close function releases it.
func (a *app) chainState(ctx context.Context, localState string) (relay.ChainStateOracle, *oracle.BoltOracle, func(), error) {
	if localState != "" {
		o, err := oracle.OpenBoltOracle(localState)
		if err != nil {
			return nil, nil, nil, err
		}
		return o, o, func() { _ = o.Close() }, nil
	}
	if a.cfg.Relay.RPCURL == "" {
		return nil, nil, nil, errors.New("relay RPC URL not set (use --relay-rpc-url, UTU_RELAY_RPC_URL or --local-state)")
	}
	dep, err := a.deployment()
	if err != nil {
		return nil, nil, nil, err
	}
	o, err := oracle.DialRPCOracle(ctx, a.cfg.Relay.RPCURL, dep, oracle.WithBlockID(a.cfg.Relay.BlockID))
	if err != nil {
		return nil, nil, nil, err
	}
	return o, nil, o.Close, nil
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// callDeployment is deployment with calls addressed to 0x0 when no contract
// is configured.
func (a *app) callDeployment() (relay.Deployment, error) {
	dep, err := a.deployment()
	if errors.Is(err, config.ErrNoContract) {
		a.logger.Warn().Msg("relay contract not set, calls are addressed to 0x0")
		return relay.NewDeployment(felt.Zero), nil
	}
	return dep, err
}

// printCalls renders operations as contract calls.
func (a *app) printCalls(ops ...relay.Operation) error {
	dep, err := a.callDeployment()
	if err != nil {
		return err
	}
	calls, err := (&relay.Plan{Ops: ops}).Calls(dep)
	if err != nil {
		return err
	}
	if calls == nil {
		calls = []relay.Call{}
	}
	return a.printJSON(calls)
}
