package main

import (
	"fmt"
	"os"

	"github.com/danmuck/kinectl/internal/executor"
	"github.com/danmuck/kinectl/internal/observability"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "nodectl",
		Short:         "Run one execution node",
		Long:          "nodectl drives the relay channels of its blocks on command from the master and stops any actuator that runs past its timeout.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configPath)
			if err != nil {
				return err
			}
			observability.InitLogger("nodectl")
			svc, err := executor.NewService(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to nodectl TOML config")
	cmd.AddCommand(newWiringCmd(&configPath))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// newWiringCmd prints the resolved relay wiring table.
func newWiringCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "wiring",
		Short: "Print the relay pin of every actuator channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "node %s relay=%s active_low=%t\n", cfg.ID, cfg.Relay.Driver, cfg.Relay.ActiveLow)
			for _, b := range cfg.Blocks {
				fmt.Fprintf(out, "  block %d:", b.ID)
				for _, a := range b.Actuators {
					fmt.Fprintf(out, " %d/%d", a.Forward, a.Reverse)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nodectl %s (commit: %s)\n", Version, Commit)
		},
	}
}

func resolveConfig(path string) (executor.Config, error) {
	cfg := executor.DefaultConfig()
	if path != "" {
		loaded, err := loadNodeConfig(path)
		if err != nil {
			return executor.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return executor.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nodectl: %v\n", err)
		os.Exit(1)
	}
}
