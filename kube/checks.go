// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package kube

import (
	"context"

	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// Checks detects optional cluster features. Every probe degrades to false and logs
// a warning if the underlying query fails, so callers can treat errors as "not installed".
type Checks struct {
	client *Client
}

// NewChecks returns feature probes against the client's cluster.
func NewChecks(client *Client) Checks {
	return Checks{client: client}
}

// CertManagerInstalled returns true if cert-manager pods exist in any namespace.
func (c Checks) CertManagerInstalled(ctx context.Context) bool {
	return c.podsExist(ctx, "cert-manager", AllNamespaces, "app=cert-manager")
}

// MinioInstalled returns true if minio pods exist in the namespace.
func (c Checks) MinioInstalled(ctx context.Context, namespace string) bool {
	return c.podsExist(ctx, "minio", namespace, "app=minio")
}

// PrometheusInstalled returns true if prometheus pods exist in the namespace.
func (c Checks) PrometheusInstalled(ctx context.Context, namespace string) bool {
	return c.podsExist(ctx, "prometheus", namespace, "app.kubernetes.io/name=prometheus")
}

// IngressControllerInstalled returns true if any ingress class exists.
func (c Checks) IngressControllerInstalled(ctx context.Context) bool {
	classes, err := c.client.ListIngressClasses(ctx)
	if err != nil {
		log.Warn(ctx, "Ingress controller check failed, assuming not installed", err)
		return false
	}

	return len(classes) > 0
}

// RemoteConfigPresent returns true if a remote config map exists in the namespace,
// or in any namespace if namespace is AllNamespaces.
func (c Checks) RemoteConfigPresent(ctx context.Context, namespace string) bool {
	cms, err := c.client.ListConfigMaps(ctx, namespace, RemoteConfigSelector)
	if err != nil {
		log.Warn(ctx, "Remote config check failed, assuming not present", err, z.Str("namespace", namespace))
		return false
	}

	return len(cms) > 0
}

func (c Checks) podsExist(ctx context.Context, feature, namespace, selector string) bool {
	pods, err := c.client.ListPods(ctx, namespace, selector)
	if err != nil {
		log.Warn(ctx, "Cluster feature check failed, assuming not installed", err,
			z.Str("feature", feature), z.Str("namespace", namespace))

		return false
	}

	return len(pods) > 0
}
