package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/seqfetch/internal/artifact"
	"github.com/danmuck/seqfetch/internal/config"
	"github.com/danmuck/seqfetch/internal/logging"
	"github.com/danmuck/seqfetch/internal/observability"
	"github.com/danmuck/seqfetch/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	configPath   string
	host         string
	port         int
	output       string
	idleTimeout  time.Duration
	maxRounds    int
	allowPartial bool
	duplicates   string
	metricsAddr  string
	logLevel     string
}

func fetchCmd() *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the full stream and write the reconciled dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts)
		},
	}
	bindFetchFlags(cmd, &opts)
	return cmd
}

func bindFetchFlags(cmd *cobra.Command, o *fetchOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "TOML config file")
	f.StringVar(&o.host, "host", "", "feed server host (default localhost)")
	f.IntVarP(&o.port, "port", "p", 0, "feed server port (default 3000)")
	f.StringVarP(&o.output, "output", "o", "", "artifact path (default output.json)")
	f.DurationVar(&o.idleTimeout, "idle-timeout", 0, "abort when a connection is silent this long; 0 waits forever")
	f.IntVar(&o.maxRounds, "max-rounds", 0, "maximum resend rounds")
	f.BoolVar(&o.allowPartial, "allow-partial", false, "write the dataset even if gaps remain after the last round")
	f.StringVar(&o.duplicates, "duplicates", "", `duplicate sequence policy: "last-write-wins" or "reject"`)
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	f.StringVar(&o.logLevel, "log-level", "", "trace|debug|info|warn|error|off")
}

// resolveSettings layers changed flags over the config file over defaults.
func resolveSettings(cmd *cobra.Command, o fetchOptions) (config.Settings, error) {
	settings := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Settings{}, err
		}
		settings = loaded
	}

	f := cmd.Flags()
	if f.Changed("host") {
		settings.Session.Host = o.host
	}
	if f.Changed("port") {
		settings.Session.Port = o.port
	}
	if f.Changed("output") {
		settings.Output = o.output
	}
	if f.Changed("idle-timeout") {
		settings.Session.IdleTimeout = o.idleTimeout
	}
	if f.Changed("max-rounds") {
		settings.Session.MaxResendRounds = o.maxRounds
	}
	if f.Changed("allow-partial") {
		settings.Session.AllowPartial = o.allowPartial
	}
	if f.Changed("duplicates") {
		settings.Session.DuplicatePolicy = session.NormalizeDuplicatePolicy(session.DuplicatePolicy(o.duplicates))
	}
	if f.Changed("metrics-addr") {
		settings.MetricsAddr = o.metricsAddr
	}
	if f.Changed("log-level") {
		settings.LogLevel = o.logLevel
	}
	if err := config.Validate(settings); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func runFetch(cmd *cobra.Command, o fetchOptions) error {
	settings, err := resolveSettings(cmd, o)
	if err != nil {
		return err
	}
	if settings.LogLevel != "" && !logging.SetLevel(settings.LogLevel) {
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if settings.MetricsAddr != "" {
		ln, err := net.Listen("tcp", settings.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		go func() {
			if err := observability.ServeMetrics(ctx, ln); err != nil {
				log.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	ctrl, err := session.NewController(settings.Session, artifact.NewFileWriter(settings.Output))
	if err != nil {
		return err
	}
	res, err := ctrl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Stringer("state", res.State).Msg("interrupted, no artifact written")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d packets to %s (%d resend rounds)\n", res.Packets, settings.Output, res.Rounds)
	return nil
}
