// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/component"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/remoteconfig"
)

func newNodeCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "node",
		Short: "Manage consensus nodes",
	}

	root.AddCommand(cmds...)

	return root
}

type nodeAddConfig struct {
	deploymentConfig

	NodeAlias    string
	ClusterRef   string
	ReleaseTag   string
	ChartVersion string
}

func newNodeAddCmd(runFunc func(context.Context, io.Writer, kube.Factory, nodeAddConfig) error) *cobra.Command {
	var conf nodeAddConfig

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a consensus node to a deployment",
		Long:  "Adds a consensus node in requested state to the remote config of a deployment.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf.Argv = argvOf(cmd)
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf.deploymentConfig)
	bindNodeAddFlags(cmd.Flags(), &conf)

	mustMarkFlagsRequired(cmd, "node-alias")

	return cmd
}

func bindNodeAddFlags(flags *pflag.FlagSet, config *nodeAddConfig) {
	flags.StringVar(&config.NodeAlias, "node-alias", "", "Alias of the new consensus node.")
	flags.StringVar(&config.ClusterRef, "cluster-ref", "", "Cluster ref of the new node. Defaults to the deployment's only cluster.")
	flags.StringVar(&config.ReleaseTag, remoteconfig.FlagReleaseTag, "", "Platform release tag of the node. Defaults to the deployment's.")
	flags.StringVar(&config.ChartVersion, remoteconfig.FlagChartVersion, "", "Chart version. Defaults to the deployment's.")
}

func runNodeAdd(ctx context.Context, w io.Writer, factory kube.Factory, conf nodeAddConfig) error {
	s, err := openSession(ctx, factory, conf.deploymentConfig)
	if err != nil {
		return err
	}

	var added component.Component

	err = s.withLease(ctx, func(ctx context.Context, lock remoteconfig.Guard) error {
		argv, err := s.manager.LoadAndValidate(ctx, lock, conf.Argv, loadOptions()...)
		if err != nil {
			return err
		}

		if tag, ok := argv.Flag(remoteconfig.FlagReleaseTag); ok {
			log.Info(ctx, "Using platform release", z.Str("release_tag", tag))
		}

		return s.manager.Modify(ctx, lock, func(_ context.Context, env *remoteconfig.Envelope) error {
			clusterRef, err := deploymentClusterRef(env, conf.ClusterRef)
			if err != nil {
				return err
			}

			added, err = component.NewConsensusNode(conf.NodeAlias, clusterRef, s.target.Namespace,
				nextNodeID(env.Components), component.StateRequested)
			if err != nil {
				return err
			}

			return env.Components.Add(added)
		})
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Added consensus node %s (node id %d) on cluster ref %s\n",
		added.Name(), added.NodeID(), added.Cluster())

	return nil
}

// deploymentClusterRef returns clusterRef if the deployment spans it, or the deployment's
// only cluster ref if empty.
func deploymentClusterRef(env *remoteconfig.Envelope, clusterRef string) (string, error) {
	if clusterRef == "" {
		refs := env.ClusterRefs()
		if len(refs) != 1 {
			return "", errors.New("deployment spans multiple clusters, specify --cluster-ref", z.Any("cluster_refs", refs))
		}

		return refs[0], nil
	}

	if _, ok := env.Clusters[clusterRef]; !ok {
		return "", errors.New("cluster ref not part of deployment", z.Str("cluster_ref", clusterRef))
	}

	return clusterRef, nil
}

// nextNodeID returns one more than the highest consensus node id of the deployment.
func nextNodeID(comps *remoteconfig.Components) int {
	next := 0
	for _, node := range comps.ConsensusNodes() {
		next = max(next, node.NodeID()+1)
	}

	return next
}
