// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/localconfig"
)

// ErrTargetUnresolved is returned when the deployment, namespace or context cannot be determined.
var ErrTargetUnresolved = errors.NewSentinel("cannot resolve deployment target")

// Target identifies the deployment a command operates on, its namespace and the kube
// context to read the remote config from.
type Target struct {
	Deployment string
	Namespace  string
	Context    string
}

// PromptFunc asks the operator to pick one of the deployments.
type PromptFunc func(deployments []string) (string, error)

// TargetInput bundles everything target resolution depends on.
type TargetInput struct {
	// Deployment, Namespace and Context are the explicit flag values, empty if unset.
	Deployment string
	Namespace  string
	Context    string

	// CurrentContext is the kubeconfig's current context, empty if none.
	CurrentContext string

	Local  *localconfig.Config
	Prompt PromptFunc
}

// ResolveTarget resolves each part of the target from the explicit flag, then the local
// config, then for the deployment only, an interactive prompt. A nil Prompt disables prompting.
func ResolveTarget(in TargetInput) (Target, error) {
	deployment, err := resolveDeployment(in)
	if err != nil {
		return Target{}, err
	}

	resp := Target{
		Deployment: deployment,
		Namespace:  in.Namespace,
		Context:    in.Context,
	}

	dep, err := in.Local.Deployment(deployment)
	if errors.Is(err, localconfig.ErrDeploymentNotFound) {
		dep = localconfig.Deployment{}
	} else if err != nil {
		return Target{}, err
	}

	switch {
	case resp.Namespace == "":
		resp.Namespace = dep.Namespace
	case dep.Namespace != "" && dep.Namespace != resp.Namespace:
		return Target{}, errors.Wrap(ErrTargetUnresolved, "namespace does not match deployment",
			z.Str("deployment", deployment), z.Str("namespace", resp.Namespace), z.Str("expected", dep.Namespace))
	}

	if resp.Namespace == "" {
		return Target{}, errors.Wrap(ErrTargetUnresolved, "no namespace for deployment", z.Str("deployment", deployment))
	}

	if resp.Context == "" && len(dep.ClusterRefs) > 0 {
		resp.Context, _ = in.Local.Context(dep.ClusterRefs[0])
	}

	if resp.Context == "" {
		resp.Context = in.CurrentContext
	}

	if resp.Context == "" {
		return Target{}, errors.Wrap(ErrTargetUnresolved, "no kube context for deployment", z.Str("deployment", deployment))
	}

	return resp, nil
}

func resolveDeployment(in TargetInput) (string, error) {
	if in.Deployment != "" {
		return in.Deployment, nil
	}

	names := in.Local.DeploymentNames()
	switch {
	case len(names) == 1:
		return names[0], nil
	case len(names) == 0:
		return "", errors.Wrap(ErrTargetUnresolved, "no deployments in local config, create one first")
	case in.Prompt == nil:
		return "", errors.Wrap(ErrTargetUnresolved, "multiple deployments, specify one with --deployment",
			z.Any("deployments", names))
	}

	deployment, err := in.Prompt(names)
	if err != nil {
		return "", errors.Wrap(err, "prompt deployment")
	}

	return deployment, nil
}
