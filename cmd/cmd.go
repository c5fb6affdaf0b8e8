// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package cmd implements the ledgerctl command-line interface.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/featureset"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/promauto"
	"github.com/obolnetwork/ledgerctl/app/tracer"
	"github.com/obolnetwork/ledgerctl/app/z"
)

const (
	// The name of our config file, without the file extension because
	// viper supports many different config file languages.
	defaultConfigFilename = "ledgerctl"

	// The environment variable prefix of all environment variables bound to our command line flags.
	envPrefix = "ledgerctl"
)

// New returns a new root cobra command that handles our command line tool.
func New() *cobra.Command {
	return newRootCmd(
		newVersionCmd(runVersionCmd),
		newDeploymentCmd(
			newDeploymentCreateCmd(runDeploymentCreate),
			newDeploymentAddClusterCmd(runDeploymentAddCluster),
			newDeploymentShowCmd(runDeploymentShow),
			newDeploymentHistoryCmd(runDeploymentHistory),
			newDeploymentDeleteComponentsCmd(runDeploymentDeleteComponents),
		),
		newNodeCmd(
			newNodeAddCmd(runNodeAdd),
		),
		newRelayCmd(
			newRelayAddCmd(runRelayAdd),
		),
		newClusterRefCmd(
			newClusterRefConnectCmd(runClusterRefConnect),
			newClusterRefChecksCmd(runClusterRefChecks),
		),
		newLeaseCmd(
			newLeaseShowCmd(runLeaseShow),
			newLeaseReleaseCmd(runLeaseRelease),
		),
	)
}

type rootConfig struct {
	Log             log.Config
	OTLPAddress     string
	TraceStdout     bool
	MetricsTextfile string
	Feature         featureset.Config
}

func newRootCmd(cmds ...*cobra.Command) *cobra.Command {
	var (
		conf     rootConfig
		shutdown = func(context.Context) error { return nil }
	)

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "ledgerctl - deploy and operate ledger networks on Kubernetes",
		Long: `ledgerctl deploys and operates distributed ledger networks spanning one or more Kubernetes clusters.
The topology of each deployment is replicated as remote config to every cluster it spans.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initializeConfig(cmd); err != nil {
				return err
			}

			if err := log.InitLogger(conf.Log); err != nil {
				return err
			}

			if err := featureset.Init(cmd.Context(), conf.Feature); err != nil {
				return err
			}

			var opts []tracer.Option
			if conf.OTLPAddress != "" {
				opts = append(opts, tracer.WithOTLP(conf.OTLPAddress))
			}

			if conf.TraceStdout {
				opts = append(opts, tracer.WithStdOut(cmd.ErrOrStderr()))
			}

			if len(opts) == 0 {
				return nil
			}

			var err error
			shutdown, err = tracer.Init(cmd.Context(), opts...)

			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if err := shutdown(context.WithoutCancel(cmd.Context())); err != nil {
				return err
			}

			if conf.MetricsTextfile == "" {
				return nil
			}

			return promauto.WriteTextfile(conf.MetricsTextfile, prometheus.Labels{"command": cmd.CommandPath()})
		},
	}

	bindLogFlags(root.PersistentFlags(), &conf.Log)
	bindTracingFlags(root.PersistentFlags(), &conf)
	bindMetricsFlags(root.PersistentFlags(), &conf)
	bindFeatureFlags(root.PersistentFlags(), &conf.Feature)

	root.AddCommand(cmds...)

	return root
}

func bindLogFlags(flags *pflag.FlagSet, config *log.Config) {
	defaults := log.DefaultConfig()
	flags.StringVar(&config.Level, "log-level", defaults.Level, "Log level; debug, info, warn or error")
	flags.StringVar(&config.Format, "log-format", defaults.Format, "Log format; console, logfmt or json")
	flags.StringVar(&config.Color, "log-color", defaults.Color, "Log color; auto, force, disable.")
	flags.StringVar(&config.LogOutputPath, "log-output-path", "", "Path in which to write on-disk logs, in logfmt and rotated by size.")
}

func bindTracingFlags(flags *pflag.FlagSet, config *rootConfig) {
	flags.StringVar(&config.OTLPAddress, "otlp-address", "", "Listening address for OTLP gRPC tracing backend.")
	flags.BoolVar(&config.TraceStdout, "trace-stdout", false, "Write tracing spans to stderr.")
}

func bindMetricsFlags(flags *pflag.FlagSet, config *rootConfig) {
	flags.StringVar(&config.MetricsTextfile, "metrics-textfile", "", "Write command metrics to this file on exit, e.g. for the node exporter textfile collector.")
}

func bindFeatureFlags(flags *pflag.FlagSet, config *featureset.Config) {
	defaults := featureset.DefaultConfig()
	flags.StringVar(&config.MinStatus, "feature-set", defaults.MinStatus, "Minimum feature set to enable by default: alpha, beta, or stable. Warning: modify at own risk.")
	flags.StringSliceVar(&config.Enabled, "feature-set-enable", nil, "Comma-separated list of features to enable, overriding the default minimum feature set.")
	flags.StringSliceVar(&config.Disabled, "feature-set-disable", nil, "Comma-separated list of features to disable, overriding the default minimum feature set.")
}

// initializeConfig sets up the general viper config and binds the cobra flags to the viper flags.
func initializeConfig(cmd *cobra.Command) error {
	v := viper.New()

	v.SetConfigName(defaultConfigFilename)
	v.AddConfigPath(".")

	// Attempt to read the config file, gracefully ignoring errors
	// caused by a config file not being found. Return an error
	// if we cannot parse the config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if there isn't a config file
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config file")
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Bind the current command's flags to viper
	return bindFlags(cmd.Flags(), v)
}

// bindFlags binds each cobra flag to its associated viper configuration (config file and environment variable).
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	var lastErr error

	flags.VisitAll(func(f *pflag.Flag) {
		// Cobra provided flags take priority
		if f.Changed {
			return
		}

		if !v.IsSet(f.Name) {
			return
		}

		if err := flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
			lastErr = errors.Wrap(err, "set flag from config", z.Str("flag", f.Name))
		}
	})

	return lastErr
}
