package main

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/utu-go/config"
	"github.com/bitfsorg/utu-go/oracle"
	"github.com/bitfsorg/utu-go/relay"
)

func planCmd(a *app) *cobra.Command {
	var (
		height     uint32
		minWork    string
		localState string
		useLocal   bool
		apply      bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the calls that bring the relay in sync from a height",
		Long: `Scan the Bitcoin chain forward from --height until --min-work of proof of
work has been seen and print the register_blocks and update_canonical_chain
calls the relay needs, as JSON.

Relay state is read from the contract over starknet_call, or from a local
replica with --local-state. --apply replays the plan on the replica, which
makes repeated runs incremental. With --interval the scan repeats until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if minWork == "" {
				minWork = a.cfg.Relay.MinWork
			}
			work, err := config.ParseWork(minWork)
			if err != nil {
				return err
			}
			if useLocal && localState == "" {
				localState = filepath.Join(a.cfg.DataDir, "relay.db")
			}
			if apply && localState == "" {
				return errors.New("--apply requires --local-state")
			}

			btc, err := a.bitcoin()
			if err != nil {
				return err
			}
			state, local, closeState, err := a.chainState(ctx, localState)
			if err != nil {
				return err
			}
			defer closeState()

			a.serveMetrics(ctx)
			planner := relay.NewPlanner(btc, state, relay.WithMetrics(a.metrics))

			if interval <= 0 {
				return a.planOnce(ctx, planner, local, height, work, apply)
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if err := a.planOnce(ctx, planner, local, height, work, apply); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					a.logger.Error().Err(err).Uint32("height", height).Msg("plan failed")
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	f := cmd.Flags()
	f.Uint32Var(&height, "height", 0, "first Bitcoin height to check")
	f.StringVar(&minWork, "min-work", "", "minimum proof of work to scan, decimal or 0x hex (default relay.min_work)")
	f.StringVar(&localState, "local-state", "", "read relay state from this bbolt replica instead of the contract")
	f.BoolVar(&useLocal, "local", false, "use <datadir>/relay.db as the local replica")
	f.BoolVar(&apply, "apply", false, "apply the plan to the local replica")
	f.DurationVar(&interval, "interval", 0, "re-plan at this interval until interrupted")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func (a *app) planOnce(ctx context.Context, planner *relay.Planner, local *oracle.BoltOracle, height uint32, work *big.Int, apply bool) error {
	plan, err := planner.Plan(ctx, height, work)
	if err != nil {
		return err
	}
	if err := a.printCalls(plan.Ops...); err != nil {
		return err
	}
	if plan.Empty() {
		a.logger.Info().Uint32("height", height).Msg("relay in sync")
		return nil
	}
	if apply {
		if err := local.Apply(plan); err != nil {
			return err
		}
		a.logger.Info().Int("ops", len(plan.Ops)).Msg("applied plan to local state")
	}
	return nil
}
