// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/localconfig"
)

func newClusterRefCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "cluster-ref",
		Short: "Connect and probe clusters",
		Long:  "Cluster refs are local names for kube contexts, shared by all deployments in the local config.",
	}

	root.AddCommand(cmds...)

	return root
}

type clusterRefConnectConfig struct {
	connectionConfig

	ClusterRef string
	Context    string
}

func newClusterRefConnectCmd(runFunc func(context.Context, io.Writer, kube.Factory, clusterRefConnectConfig) error) *cobra.Command {
	var conf clusterRefConnectConfig

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Map a cluster ref to a kube context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindConnectionFlags(cmd.Flags(), &conf.connectionConfig)
	cmd.Flags().StringVar(&conf.ClusterRef, "cluster-ref", "", "Name of the cluster ref.")
	cmd.Flags().StringVar(&conf.Context, "context", "", "The kube context of the cluster.")

	mustMarkFlagsRequired(cmd, "cluster-ref", "context")

	return cmd
}

func runClusterRefConnect(_ context.Context, w io.Writer, factory kube.Factory, conf clusterRefConnectConfig) error {
	contexts, err := factory.Contexts()
	if err != nil {
		return err
	} else if !slices.Contains(contexts, conf.Context) {
		return errors.Wrap(kube.ErrUnknownContext, "connect cluster ref", z.Str("context", conf.Context))
	}

	local, err := loadLocalConfig(conf.connectionConfig)
	if err != nil {
		return err
	}

	if err := local.AddClusterRef(conf.ClusterRef, conf.Context); err != nil {
		return err
	}

	if err := local.Save(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Connected cluster ref %s to context %s\n", conf.ClusterRef, conf.Context)

	return nil
}

type clusterRefChecksConfig struct {
	connectionConfig

	ClusterRef string
	Namespace  string
}

func newClusterRefChecksCmd(runFunc func(context.Context, io.Writer, kube.Factory, clusterRefChecksConfig) error) *cobra.Command {
	var conf clusterRefChecksConfig

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "Probe the platform features installed in a cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindConnectionFlags(cmd.Flags(), &conf.connectionConfig)
	cmd.Flags().StringVar(&conf.ClusterRef, "cluster-ref", "", "Name of the connected cluster ref.")
	cmd.Flags().StringVar(&conf.Namespace, "namespace", "", "Namespace of the namespaced probes. Omit to only run cluster wide probes.")

	mustMarkFlagsRequired(cmd, "cluster-ref")

	return cmd
}

func runClusterRefChecks(ctx context.Context, w io.Writer, factory kube.Factory, conf clusterRefChecksConfig) error {
	local, err := loadLocalConfig(conf.connectionConfig)
	if err != nil {
		return err
	}

	kubeContext, ok := local.Context(conf.ClusterRef)
	if !ok {
		return errors.Wrap(localconfig.ErrClusterRefNotFound, "cluster checks", z.Str("cluster_ref", conf.ClusterRef))
	}

	client, err := factory.Client(kubeContext)
	if err != nil {
		return err
	}

	checks := kube.NewChecks(client)

	writeCheck(w, "cert-manager", checks.CertManagerInstalled(ctx))
	writeCheck(w, "ingress controller", checks.IngressControllerInstalled(ctx))

	if conf.Namespace == "" {
		writeCheck(w, "remote config", checks.RemoteConfigPresent(ctx, kube.AllNamespaces))
		return nil
	}

	writeCheck(w, "minio", checks.MinioInstalled(ctx, conf.Namespace))
	writeCheck(w, "prometheus", checks.PrometheusInstalled(ctx, conf.Namespace))
	writeCheck(w, "remote config", checks.RemoteConfigPresent(ctx, conf.Namespace))

	return nil
}

func writeCheck(w io.Writer, feature string, ok bool) {
	result := "missing"
	if ok {
		result = "ok"
	}

	_, _ = fmt.Fprintf(w, "%-20s %s\n", feature, result)
}
