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
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/localconfig"
	"github.com/obolnetwork/ledgerctl/remoteconfig"
)

func newDeploymentCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "deployment",
		Short: "Create and inspect deployments",
		Long:  "Create deployments and inspect or reset their remote config.",
	}

	root.AddCommand(cmds...)

	return root
}

type deploymentCreateConfig struct {
	deploymentConfig

	ClusterRef              string
	NodeAliases             []string
	DNSBaseDomain           string
	DNSConsensusNodePattern string
	ReleaseTag              string
	ChartVersion            string
}

func newDeploymentCreateCmd(runFunc func(context.Context, io.Writer, kube.Factory, deploymentCreateConfig) error) *cobra.Command {
	var conf deploymentCreateConfig

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deployment",
		Long:  "Registers a deployment in the local config and creates its remote config in the first cluster.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf.Argv = argvOf(cmd)
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf.deploymentConfig)
	bindDeploymentCreateFlags(cmd.Flags(), &conf)

	mustMarkFlagsRequired(cmd, "deployment", "namespace", "cluster-ref")

	return cmd
}

func bindDeploymentCreateFlags(flags *pflag.FlagSet, config *deploymentCreateConfig) {
	flags.StringVar(&config.ClusterRef, "cluster-ref", "", "The connected cluster ref hosting the deployment.")
	flags.StringSliceVar(&config.NodeAliases, remoteconfig.FlagNodeAliases, nil, "Comma separated consensus node aliases, e.g. node1,node2.")
	flags.StringVar(&config.DNSBaseDomain, remoteconfig.FlagDNSBaseDomain, "", "Base domain of consensus node addresses. Defaults to "+remoteconfig.DefaultDNSBaseDomain+".")
	flags.StringVar(&config.DNSConsensusNodePattern, remoteconfig.FlagDNSNodePattern, "", "Consensus node host pattern. Defaults to "+remoteconfig.DefaultDNSConsensusNodePattern+".")
	flags.StringVar(&config.ReleaseTag, remoteconfig.FlagReleaseTag, "", "Platform release tag of the consensus nodes.")
	flags.StringVar(&config.ChartVersion, remoteconfig.FlagChartVersion, "", "Chart version of the deployment.")
}

// runDeploymentCreate adds the deployment to the local config and creates its remote config.
// The local config is only saved once the remote config is created.
func runDeploymentCreate(ctx context.Context, w io.Writer, factory kube.Factory, conf deploymentCreateConfig) error {
	local, err := loadLocalConfig(conf.connectionConfig)
	if err != nil {
		return err
	}

	kubeContext, ok := local.Context(conf.ClusterRef)
	if !ok {
		return errors.Wrap(localconfig.ErrClusterRefNotFound, "cluster ref not connected, run cluster-ref connect first",
			z.Str("cluster_ref", conf.ClusterRef))
	}

	if err := local.AddDeployment(conf.Deployment, conf.Namespace, []string{conf.ClusterRef}); err != nil {
		return err
	}

	client, err := factory.Client(kubeContext)
	if err != nil {
		return err
	}

	if err := client.CreateNamespace(ctx, conf.Namespace); err != nil {
		return err
	}

	s := newSession(factory, local, remoteconfig.Target{
		Deployment: conf.Deployment,
		Namespace:  conf.Namespace,
		Context:    kubeContext,
	}, conf.deploymentConfig)

	err = s.withLease(ctx, func(ctx context.Context, lock remoteconfig.Guard) error {
		return s.manager.Create(ctx, lock, remoteconfig.CreateRequest{
			Argv:                    conf.Argv,
			ClusterRef:              conf.ClusterRef,
			NodeAliases:             conf.NodeAliases,
			DNSBaseDomain:           conf.DNSBaseDomain,
			DNSConsensusNodePattern: conf.DNSConsensusNodePattern,
		})
	})
	if err != nil {
		return err
	}

	if err := local.Save(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Created deployment %s in namespace %s on cluster ref %s\n",
		conf.Deployment, conf.Namespace, conf.ClusterRef)

	return nil
}

type deploymentAddClusterConfig struct {
	deploymentConfig

	ClusterRef              string
	DNSBaseDomain           string
	DNSConsensusNodePattern string
}

func newDeploymentAddClusterCmd(runFunc func(context.Context, io.Writer, kube.Factory, deploymentAddClusterConfig) error) *cobra.Command {
	var conf deploymentAddClusterConfig

	cmd := &cobra.Command{
		Use:   "add-cluster",
		Short: "Extend a deployment to another cluster",
		Long:  "Registers a connected cluster ref in the remote config of a deployment and replicates the remote config to it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf.Argv = argvOf(cmd)
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf.deploymentConfig)
	bindDeploymentAddClusterFlags(cmd.Flags(), &conf)

	mustMarkFlagsRequired(cmd, "cluster-ref")

	return cmd
}

func bindDeploymentAddClusterFlags(flags *pflag.FlagSet, config *deploymentAddClusterConfig) {
	flags.StringVar(&config.ClusterRef, "cluster-ref", "", "The connected cluster ref to add to the deployment.")
	flags.StringVar(&config.DNSBaseDomain, remoteconfig.FlagDNSBaseDomain, "", "Base domain of consensus node addresses. Defaults to the deployment's.")
	flags.StringVar(&config.DNSConsensusNodePattern, remoteconfig.FlagDNSNodePattern, "", "Consensus node host pattern. Defaults to the deployment's.")
}

// runDeploymentAddCluster adds the cluster ref to the deployment in the local and remote config.
// The local config is only saved once the remote config is replicated.
func runDeploymentAddCluster(ctx context.Context, w io.Writer, factory kube.Factory, conf deploymentAddClusterConfig) error {
	s, err := openSession(ctx, factory, conf.deploymentConfig)
	if err != nil {
		return err
	}

	kubeContext, ok := s.local.Context(conf.ClusterRef)
	if !ok {
		return errors.Wrap(localconfig.ErrClusterRefNotFound, "cluster ref not connected, run cluster-ref connect first",
			z.Str("cluster_ref", conf.ClusterRef))
	}

	client, err := factory.Client(kubeContext)
	if err != nil {
		return err
	}

	if err := client.CreateNamespace(ctx, s.target.Namespace); err != nil {
		return err
	}

	err = s.withLease(ctx, func(ctx context.Context, lock remoteconfig.Guard) error {
		if err := s.manager.Load(ctx, "", ""); err != nil {
			return err
		}

		clusters, err := s.manager.Clusters()
		if err != nil {
			return err
		} else if _, ok := clusters[conf.ClusterRef]; ok {
			return errors.Wrap(remoteconfig.ErrClusterExists, "add cluster", z.Str("cluster_ref", conf.ClusterRef))
		}

		argv, err := s.manager.LoadAndValidate(ctx, lock, conf.Argv, loadOptions()...)
		if err != nil {
			return err
		}

		if err := s.local.AddClusterToDeployment(s.target.Deployment, conf.ClusterRef); err != nil {
			return err
		}

		// Pinned DNS flags default to the deployment's recorded values.
		dnsBaseDomain, _ := argv.Flag(remoteconfig.FlagDNSBaseDomain)
		dnsPattern, _ := argv.Flag(remoteconfig.FlagDNSNodePattern)

		return s.manager.AddCluster(ctx, lock, remoteconfig.ClusterRequest{
			ClusterRef:              conf.ClusterRef,
			DNSBaseDomain:           dnsBaseDomain,
			DNSConsensusNodePattern: dnsPattern,
		})
	})
	if err != nil {
		return err
	}

	if err := s.local.Save(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Added cluster ref %s (context %s) to deployment %s\n",
		conf.ClusterRef, kubeContext, s.target.Deployment)

	return nil
}

func newDeploymentShowCmd(runFunc func(context.Context, io.Writer, kube.Factory, deploymentConfig) error) *cobra.Command {
	var conf deploymentConfig

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the remote config of a deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf)

	return cmd
}

func runDeploymentShow(ctx context.Context, w io.Writer, factory kube.Factory, conf deploymentConfig) error {
	s, err := openSession(ctx, factory, conf)
	if err != nil {
		return err
	}

	env, err := s.manager.Get(ctx, "")
	if err != nil {
		return err
	}

	b, err := remoteconfig.Encode(env)
	if err != nil {
		return err
	}

	_, err = w.Write(b)

	return errors.Wrap(err, "write remote config")
}

func newDeploymentHistoryCmd(runFunc func(context.Context, io.Writer, kube.Factory, deploymentConfig) error) *cobra.Command {
	var conf deploymentConfig

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the commands executed against a deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf)

	return cmd
}

func runDeploymentHistory(ctx context.Context, w io.Writer, factory kube.Factory, conf deploymentConfig) error {
	s, err := openSession(ctx, factory, conf)
	if err != nil {
		return err
	}

	env, err := s.manager.Get(ctx, "")
	if err != nil {
		return err
	}

	for i, command := range env.CommandHistory {
		_, _ = fmt.Fprintf(w, "%3d  %s\n", i+1, command)
	}

	return nil
}

func newDeploymentDeleteComponentsCmd(runFunc func(context.Context, io.Writer, kube.Factory, deploymentConfig) error) *cobra.Command {
	var conf deploymentConfig

	cmd := &cobra.Command{
		Use:   "delete-components",
		Short: "Remove all components from the remote config of a deployment",
		Long:  "Empties the components of the deployment's remote config in every cluster. Clusters and history are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf)

	return cmd
}

func runDeploymentDeleteComponents(ctx context.Context, w io.Writer, factory kube.Factory, conf deploymentConfig) error {
	s, err := openSession(ctx, factory, conf)
	if err != nil {
		return err
	}

	err = s.withLease(ctx, func(ctx context.Context, lock remoteconfig.Guard) error {
		if err := s.manager.Load(ctx, "", ""); err != nil {
			return err
		}

		return s.manager.DeleteComponents(ctx, lock)
	})
	if err != nil {
		return err
	}

	log.Debug(ctx, "Deleted components", z.Str("deployment", s.target.Deployment))
	_, _ = fmt.Fprintf(w, "Deleted all components of deployment %s\n", s.target.Deployment)

	return nil
}

func mustMarkFlagsRequired(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			panic(err) // Only fails for unknown flags.
		}
	}
}
