package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/spf13/cobra"
)

type clientOptions struct {
	addr    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:           "kinectl",
		Short:         "Operator client for the kinetic installation master",
		Long:          "kinectl sends one command per UDP datagram to the master and prints its reply. Commands the master does not recognize get no reply.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.addr, "addr", "a", "127.0.0.1:4210", "master UDP address")
	cmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", 2*time.Second, "reply timeout")

	cmd.AddCommand(newSendCmd(opts))
	cmd.AddCommand(newBareCmd(opts, "ping", "Report link liveness", protocol.KindPing))
	cmd.AddCommand(newBareCmd(opts, "status", "Print the motion state of every block", protocol.KindStatus))
	cmd.AddCommand(newStopCmd(opts))
	return cmd
}

// newSendCmd sends a command written in either wire form: "BLOCK 3 UP 2000" or
// "BLOCK:3:UP:2000".
func newSendCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "send COMMAND...",
		Short:   "Send one command line",
		Example: "  kinectl send BLOCK 3 UP 2000\n  kinectl send RING:INNER:DOWN",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := protocol.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return run(cmd, opts, msg)
		},
	}
}

func newBareCmd(opts *clientOptions, use, short string, kind protocol.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, protocol.Message{Kind: kind})
		},
	}
}

func newStopCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Emergency stop every block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, protocol.All(protocol.ActionStop))
		},
	}
}

// run prints the reply and fails when the master answered with ERR.
func run(cmd *cobra.Command, opts *clientOptions, msg protocol.Message) error {
	reply, err := exchange(opts.addr, msg, opts.timeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	if strings.HasPrefix(reply, "ERR:") {
		return fmt.Errorf("master rejected %s: %s", msg.Encode(), reply)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kinectl: %v\n", err)
		os.Exit(1)
	}
}
