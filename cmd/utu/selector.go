package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/utu-go/config"
	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/relay"
)

func selectorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selector [name|0x...]...",
		Short: "Print entry point selectors",
		Long: `Print the selector of each argument. Names are hashed with
starknet_keccak; hex values are checked and echoed. Without arguments the
selectors of the configured deployment are printed.`,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				dep, err := a.callDeployment()
				if err != nil {
					return err
				}
				names := []string{
					relay.EntryRegisterBlocks, relay.EntryUpdateCanonicalChain,
					relay.EntryGetStatus, relay.EntryGetBlock,
				}
				sels := []felt.Felt{dep.RegisterBlocks, dep.UpdateCanonicalChain, dep.GetStatus, dep.GetBlock}
				for i, name := range names {
					fmt.Fprintf(a.out, "%s %s\n", name, sels[i])
				}
				return nil
			}
			for _, arg := range args {
				sel, err := relay.ResolveSelector(arg)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s\n", arg, sel)
			}
			return nil
		},
	}
}

func initCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings to <datadir>/config.toml",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := a.configFile
			if path == "" {
				path = config.ConfigPath(a.cfg.DataDir)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(path, a.cfg); err != nil {
				return err
			}
			fmt.Fprintln(a.out, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	return cmd
}
