// seqfetch pulls the full packet stream from a feed server, recovers any
// dropped sequences with targeted resend rounds, and writes the ordered
// dataset as JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/seqfetch/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seqfetch: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts fetchOptions
	rootCmd := &cobra.Command{
		Use:   "seqfetch",
		Short: "Fetch and reconcile a sequenced packet stream",
		Long: `seqfetch requests every packet from a feed server, re-requests any
sequence numbers that did not arrive, and writes the complete ordered
dataset to a JSON file.

Running seqfetch without a subcommand is the same as "seqfetch fetch".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts)
		},
	}
	bindFetchFlags(rootCmd, &opts)

	rootCmd.AddCommand(
		fetchCmd(),
		configCmd(),
		versionCmd(),
	)
	return rootCmd
}
