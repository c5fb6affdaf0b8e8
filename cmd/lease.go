// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/lease"
)

func newLeaseCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "lease",
		Short: "Inspect and break deployment leases",
		Long:  "Deployments are locked by a lease while a command modifies them. These commands inspect and break leases left behind by crashed sessions.",
	}

	root.AddCommand(cmds...)

	return root
}

func newLeaseShowCmd(runFunc func(context.Context, io.Writer, kube.Factory, deploymentConfig) error) *cobra.Command {
	var conf deploymentConfig

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the lease of a deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf)

	return cmd
}

func runLeaseShow(ctx context.Context, w io.Writer, factory kube.Factory, conf deploymentConfig) error {
	s, err := openSession(ctx, factory, conf)
	if err != nil {
		return err
	}

	l, err := s.lease()
	if err != nil {
		return err
	}

	status, err := l.Read(ctx)
	if errors.Is(err, lease.ErrNotFound) {
		_, _ = fmt.Fprintf(w, "Deployment %s is not locked\n", s.target.Deployment)
		return nil
	} else if err != nil {
		return err
	}

	writeLeaseStatus(w, status)

	return nil
}

type leaseReleaseConfig struct {
	deploymentConfig

	Force bool
}

func newLeaseReleaseCmd(runFunc func(context.Context, io.Writer, kube.Factory, leaseReleaseConfig) error) *cobra.Command {
	var conf leaseReleaseConfig

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Break the lease of a deployment",
		Long:  "Deletes an expired deployment lease. Use --force to also delete a lease that is still held.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), cmd.OutOrStdout(), kube.NewKubeconfigFactory(conf.Kubeconfig), conf)
		},
	}

	bindDeploymentFlags(cmd.Flags(), &conf.deploymentConfig)
	cmd.Flags().BoolVar(&conf.Force, "force", false, "Delete the lease even if it has not expired. Only use if the holder crashed.")

	return cmd
}

func runLeaseRelease(ctx context.Context, w io.Writer, factory kube.Factory, conf leaseReleaseConfig) error {
	s, err := openSession(ctx, factory, conf.deploymentConfig)
	if err != nil {
		return err
	}

	l, err := s.lease()
	if err != nil {
		return err
	}

	status, err := l.Read(ctx)
	if errors.Is(err, lease.ErrNotFound) {
		_, _ = fmt.Fprintf(w, "Deployment %s is not locked\n", s.target.Deployment)
		return nil
	} else if err != nil {
		return err
	}

	if !status.Expired && !conf.Force {
		return errors.New("lease still held, use --force to break it",
			z.Str("holder", status.Holder), z.Any("expires_at", status.ExpiresAt))
	}

	status, err = l.Break(ctx)
	if errors.Is(err, lease.ErrNotFound) {
		_, _ = fmt.Fprintf(w, "Deployment %s is not locked\n", s.target.Deployment)
		return nil
	} else if err != nil {
		return err
	}

	log.Warn(ctx, "Deployment lease broken", nil, z.Str("holder", status.Holder))
	_, _ = fmt.Fprintf(w, "Released lease of deployment %s held by %s\n", s.target.Deployment, status.Holder)

	return nil
}

func writeLeaseStatus(w io.Writer, status lease.Status) {
	state := "held"
	if status.Expired {
		state = "expired"
	}

	_, _ = fmt.Fprintf(w, "Holder:   %s\n", status.Holder)
	_, _ = fmt.Fprintf(w, "State:    %s\n", state)
	_, _ = fmt.Fprintf(w, "Acquired: %s\n", status.AcquiredAt.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Renewed:  %s\n", status.RenewedAt.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Expires:  %s\n", status.ExpiresAt.UTC().Format(time.RFC3339))
}
