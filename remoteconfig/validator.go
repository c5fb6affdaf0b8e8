// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/forkjoin"
	"github.com/obolnetwork/ledgerctl/app/tracer"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/component"
	"github.com/obolnetwork/ledgerctl/kube"
)

// ValidationError lists every failure found by Validate. Broken references wrap
// ErrInvalid, cluster access errors are included as is.
type ValidationError struct {
	Failures []error
}

func (e ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}

	return fmt.Sprintf("remote config validation failed with %d errors: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e ValidationError) Unwrap() []error {
	return e.Failures
}

type clusterCheck struct {
	kubeContext string
	describe    string
	fn          func(context.Context, *kube.Client) error
}

// Validate checks that the components reference live resources: every cluster ref maps
// to a kube context, the namespace exists in each referenced cluster, every relay alias
// names a consensus node and, unless skipped, every consensus node has pods.
// All checks run, concurrently where they access a cluster, and every failure is reported.
func Validate(ctx context.Context, factory kube.Factory, clusterRefs map[string]string, namespace string,
	components *Components, skipConsensusNodes bool,
) error {
	ctx, span := tracer.Start(ctx, "remoteconfig/Validate")
	defer span.End()

	var (
		failures []error
		checks   []clusterCheck
		seen     = make(map[string]bool)
	)

	for _, comp := range components.All() {
		kubeContext, ok := clusterRefs[comp.Cluster()]
		if !ok {
			failures = append(failures, errors.Wrap(ErrInvalid, "component "+comp.Name()+" references unknown cluster "+comp.Cluster(),
				z.Str("component", comp.Name()), z.Str("cluster", comp.Cluster())))

			continue
		}

		if !seen[kubeContext] {
			seen[kubeContext] = true
			checks = append(checks, namespaceCheck(kubeContext, namespace))
		}

		switch comp.Type() {
		case component.TypeConsensusNode:
			if !skipConsensusNodes {
				checks = append(checks, podsCheck(kubeContext, namespace, comp.Name()))
			}
		case component.TypeRelay:
			for _, alias := range comp.ConsensusNodeAliases() {
				node, ok := components.Get(alias)
				if !ok || node.Type() != component.TypeConsensusNode {
					failures = append(failures, errors.Wrap(ErrInvalid, "relay "+comp.Name()+" references unknown consensus node "+alias,
						z.Str("component", comp.Name()), z.Str("alias", alias)))
				}
			}
		default:
		}
	}

	work := func(ctx context.Context, check clusterCheck) (struct{}, error) {
		client, err := factory.Client(check.kubeContext)
		if err != nil {
			return struct{}{}, errors.Wrap(err, check.describe)
		}

		return struct{}{}, check.fn(ctx, client)
	}

	results, cancel := forkjoin.NewWithInputs(ctx, work, checks, forkjoin.WithoutFailFast())
	defer cancel()

	for res := range results {
		if res.Err == nil {
			continue
		}

		failures = append(failures, res.Err)
	}

	if len(failures) == 0 {
		return nil
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Error() < failures[j].Error()
	})

	return ValidationError{Failures: failures}
}

func namespaceCheck(kubeContext, namespace string) clusterCheck {
	return clusterCheck{
		kubeContext: kubeContext,
		describe:    "check namespace",
		fn: func(ctx context.Context, client *kube.Client) error {
			ok, err := client.NamespaceExists(ctx, namespace)
			if err != nil {
				return errors.Wrap(err, "check namespace", z.Str("namespace", namespace))
			} else if !ok {
				return errors.Wrap(ErrInvalid, "namespace "+namespace+" not found in "+kubeContext,
					z.Str("namespace", namespace), z.Str("context", kubeContext))
			}

			return nil
		},
	}
}

func podsCheck(kubeContext, namespace, nodeAlias string) clusterCheck {
	return clusterCheck{
		kubeContext: kubeContext,
		describe:    "check consensus node pods",
		fn: func(ctx context.Context, client *kube.Client) error {
			pods, err := client.ListPods(ctx, namespace, kube.ConsensusNodeSelector(nodeAlias))
			if err != nil {
				return errors.Wrap(err, "check consensus node pods", z.Str("node", nodeAlias))
			} else if len(pods) == 0 {
				return errors.Wrap(ErrInvalid, "consensus node "+nodeAlias+" has no pods in "+kubeContext,
					z.Str("node", nodeAlias), z.Str("context", kubeContext))
			}

			return nil
		},
	}
}
