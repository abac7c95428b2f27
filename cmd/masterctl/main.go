package main

import (
	"fmt"
	"os"

	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/master"
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
		Use:           "masterctl",
		Short:         "Run the kinetic installation master",
		Long:          "masterctl accepts operator commands over UDP and HTTP, enforces the admission cap and drives the execution nodes over their links.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configPath)
			if err != nil {
				return err
			}
			observability.InitLogger("masterctl")
			return master.Run(cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to masterctl TOML config")
	cmd.AddCommand(newCheckCmd(&configPath))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// newCheckCmd validates the config and prints the resolved layout without dialing.
func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the block layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "master %s: %d blocks, cap %d\n", cfg.ID, cfg.Partition.TotalBlocks, cfg.AdmissionCap)
			for _, lc := range cfg.Links {
				blocks := cfg.Partition.LinkBlocks(lc.Name)
				target := lc.Address
				if lc.Transport == link.TransportSerial {
					target = lc.Device
				}
				fmt.Fprintf(out, "  %s %s %s blocks %d-%d\n", lc.Name, lc.Transport, target, blocks[0], blocks[len(blocks)-1])
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
			fmt.Fprintf(cmd.OutOrStdout(), "masterctl %s (commit: %s)\n", Version, Commit)
		},
	}
}

func resolveConfig(path string) (master.Config, error) {
	cfg := master.DefaultConfig()
	if path != "" {
		loaded, err := loadMasterConfig(path)
		if err != nil {
			return master.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return master.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "masterctl: %v\n", err)
		os.Exit(1)
	}
}
