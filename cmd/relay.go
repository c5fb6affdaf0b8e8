// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/component"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/remoteconfig"
)

func newRelayCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Manage JSON-RPC relays",
	}

	root.AddCommand(cmds...)

	return root
}

type relayAddConfig struct {
	deploymentConfig

	Name            string
	NodeAliases     []string
	ClusterRef      string
	RelayReleaseTag string
}

func newRelayAddCmd(runFunc func(context.Context, io.Writer, kube.Factory, relayAddConfig) error) *cobra.Command {
	var conf relayAddConfig

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a relay serving consensus nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf.Argv = argvOf(cmd)
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf.deploymentConfig)
	bindRelayAddFlags(cmd.Flags(), &conf)

	mustMarkFlagsRequired(cmd, remoteconfig.FlagNodeAliases)

	return cmd
}

func bindRelayAddFlags(flags *pflag.FlagSet, config *relayAddConfig) {
	flags.StringVar(&config.Name, "name", "relay", "Name of the relay.")
	flags.StringSliceVar(&config.NodeAliases, remoteconfig.FlagNodeAliases, nil, "Comma separated aliases of the consensus nodes served by the relay.")
	flags.StringVar(&config.ClusterRef, "cluster-ref", "", "Cluster ref of the relay. Defaults to the deployment's only cluster.")
	flags.StringVar(&config.RelayReleaseTag, remoteconfig.FlagRelayReleaseTag, "", "Relay release tag.")
}

func runRelayAdd(ctx context.Context, w io.Writer, factory kube.Factory, conf relayAddConfig) error {
	s, err := openSession(ctx, factory, conf.deploymentConfig)
	if err != nil {
		return err
	}

	err = s.withLease(ctx, func(ctx context.Context, lock remoteconfig.Guard) error {
		// Check the served nodes before the command is recorded in the history.
		if err := s.manager.Load(ctx, "", ""); err != nil {
			return err
		}

		comps, err := s.manager.Components()
		if err != nil {
			return err
		}

		for _, alias := range conf.NodeAliases {
			if c, ok := comps.Get(alias); !ok || c.Type() != component.TypeConsensusNode {
				return errors.New("relay references unknown consensus node", z.Str("node_alias", alias))
			}
		}

		if _, err := s.manager.LoadAndValidate(ctx, lock, conf.Argv, loadOptions()...); err != nil {
			return err
		}

		return s.manager.Modify(ctx, lock, func(_ context.Context, env *remoteconfig.Envelope) error {
			clusterRef, err := deploymentClusterRef(env, conf.ClusterRef)
			if err != nil {
				return err
			}

			relay, err := component.NewRelay(conf.Name, clusterRef, s.target.Namespace, conf.NodeAliases)
			if err != nil {
				return err
			}

			return env.Components.Add(relay)
		})
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Added relay %s serving %s\n", conf.Name, strings.Join(conf.NodeAliases, ","))

	return nil
}
