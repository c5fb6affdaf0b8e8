// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/featureset"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/lease"
	"github.com/obolnetwork/ledgerctl/localconfig"
	"github.com/obolnetwork/ledgerctl/remoteconfig"
)

// connectionConfig locates the local config and the kubeconfig.
type connectionConfig struct {
	LocalConfig string
	Kubeconfig  string
}

// deploymentConfig holds the flags of commands operating on a deployment.
type deploymentConfig struct {
	connectionConfig

	Deployment    string
	Namespace     string
	Context       string
	LeaseAttempts int
	LeaseDuration time.Duration

	// Argv is the invocation recorded in the remote config history.
	Argv remoteconfig.Argv
}

// unrecordedFlags are not part of the invocation recorded in the remote config history.
var unrecordedFlags = []string{
	"local-config", "kubeconfig", "lease-attempts", "lease-duration",
	"log-level", "log-format", "log-color", "log-output-path", "otlp-address", "trace-stdout", "metrics-textfile",
	"feature-set", "feature-set-enable", "feature-set-disable",
}

func bindConnectionFlags(flags *pflag.FlagSet, config *connectionConfig) {
	flags.StringVar(&config.LocalConfig, "local-config", "", "Path to the local config file. Defaults to ~/.ledgerctl/local-config.yaml.")
	flags.StringVar(&config.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file. Defaults to $KUBECONFIG or ~/.kube/config.")
}

func bindDeploymentFlags(flags *pflag.FlagSet, config *deploymentConfig) {
	bindConnectionFlags(flags, &config.connectionConfig)
	flags.StringVar(&config.Deployment, "deployment", "", "The deployment name. Defaults to the only deployment in the local config.")
	flags.StringVar(&config.Namespace, "namespace", "", "The deployment namespace. Defaults to the deployment's namespace in the local config.")
	flags.StringVar(&config.Context, "context", "", "The kube context to read the remote config from. Defaults to the deployment's first cluster.")
	flags.IntVar(&config.LeaseAttempts, "lease-attempts", 10, "Number of attempts to acquire the deployment lease before giving up.")
	flags.DurationVar(&config.LeaseDuration, "lease-duration", lease.DefaultDuration, "Deployment lease duration, the maximum time a crashed session blocks others.")
}

// argvOf returns the command path below the root and the explicitly set flags.
func argvOf(cmd *cobra.Command) remoteconfig.Argv {
	var path []string
	for c := cmd; c.HasParent(); c = c.Parent() {
		path = append([]string{c.Name()}, path...)
	}

	flags := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if slices.Contains(unrecordedFlags, f.Name) {
			return
		}

		if sv, ok := f.Value.(pflag.SliceValue); ok {
			flags[f.Name] = strings.Join(sv.GetSlice(), ",")
			return
		}

		flags[f.Name] = f.Value.String()
	})

	return remoteconfig.NewArgv(path, flags)
}

func loadLocalConfig(config connectionConfig) (*localconfig.Config, error) {
	path := config.LocalConfig
	if path == "" {
		var err error
		path, err = localconfig.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	return localconfig.Load(path)
}

// session is an opened deployment.
type session struct {
	factory kube.Factory
	local   *localconfig.Config
	target  remoteconfig.Target
	manager *remoteconfig.Manager
	config  deploymentConfig
}

// openSession resolves the deployment target from flags, local config and, if interactive, a prompt.
func openSession(ctx context.Context, factory kube.Factory, config deploymentConfig) (*session, error) {
	local, err := loadLocalConfig(config.connectionConfig)
	if err != nil {
		return nil, err
	}

	current, err := factory.CurrentContext()
	if err != nil {
		log.Debug(ctx, "No current kube context", z.Err(err))
	}

	target, err := remoteconfig.ResolveTarget(remoteconfig.TargetInput{
		Deployment:     config.Deployment,
		Namespace:      config.Namespace,
		Context:        config.Context,
		CurrentContext: current,
		Local:          local,
		Prompt:         deploymentPrompt(),
	})
	if err != nil {
		return nil, err
	}

	return newSession(factory, local, target, config), nil
}

func newSession(factory kube.Factory, local *localconfig.Config, target remoteconfig.Target, config deploymentConfig) *session {
	return &session{
		factory: factory,
		local:   local,
		target:  target,
		manager: remoteconfig.NewManager(factory, local, target),
		config:  config,
	}
}

// withLease runs fn while holding the deployment lease, renewing it in the background.
func (s *session) withLease(ctx context.Context, fn func(context.Context, remoteconfig.Guard) error) error {
	l, err := s.lease()
	if err != nil {
		return err
	}

	return l.Hold(ctx, s.config.LeaseAttempts, func(ctx context.Context) error {
		return fn(ctx, l)
	})
}

// lease returns the deployment lease in the target cluster for a new holder of this process.
func (s *session) lease() (*lease.Lease, error) {
	client, err := s.factory.Client(s.target.Context)
	if err != nil {
		return nil, err
	}

	return lease.New(client, s.target.Namespace, s.target.Deployment, s.holder(),
		lease.WithDuration(s.config.LeaseDuration))
}

// loadOptions returns the remote config validation options of the enabled features.
func loadOptions() []remoteconfig.LoadOption {
	if featureset.Enabled(featureset.ConsensusNodePods) {
		return []remoteconfig.LoadOption{remoteconfig.WithConsensusNodeValidation()}
	}

	return nil
}

func (s *session) holder() string {
	return lease.NewHolder(s.local.UserIdentity.Name, s.local.UserIdentity.Hostname)
}

// deploymentPrompt returns a prompt selecting a deployment, or nil if stdin is not a terminal.
func deploymentPrompt() remoteconfig.PromptFunc {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil
	}

	return func(deployments []string) (string, error) {
		var choice string

		err := huh.NewSelect[string]().
			Title("Select a deployment").
			Options(huh.NewOptions(deployments...)...).
			Value(&choice).
			Run()
		if err != nil {
			return "", errors.Wrap(err, "select deployment")
		}

		return choice, nil
	}
}
