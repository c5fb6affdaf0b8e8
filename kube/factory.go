// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package kube

import (
	"slices"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// ErrUnknownContext is wrapped when a kube context is not present in the kubeconfig.
var ErrUnknownContext = errors.NewSentinel("unknown kube context")

// Factory returns cluster clients per kube context.
type Factory interface {
	// Client returns the client of the kube context.
	Client(kubeContext string) (*Client, error)
	// CurrentContext returns the kubeconfig's current context.
	CurrentContext() (string, error)
	// Contexts returns all kube context names, sorted.
	Contexts() ([]string, error)
}

// clientTTL bounds how long clients are reused within a long-running process.
const clientTTL = 30 * time.Minute

// KubeconfigFactory builds clients from kubeconfig files, caching one client per context.
type KubeconfigFactory struct {
	rules   *clientcmd.ClientConfigLoadingRules
	clients *cache.Cache
}

// NewKubeconfigFactory returns a factory using the kubeconfig path, or the default
// loading rules ($KUBECONFIG, ~/.kube/config) if empty.
func NewKubeconfigFactory(kubeconfig string) *KubeconfigFactory {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}

	return &KubeconfigFactory{
		rules:   rules,
		clients: cache.New(clientTTL, 0), // No janitor goroutine, expired items are replaced on access.
	}
}

func (f *KubeconfigFactory) Client(kubeContext string) (*Client, error) {
	if cached, ok := f.clients.Get(kubeContext); ok {
		return cached.(*Client), nil //nolint:forcetypeassert // Only *Client is cached.
	}

	contexts, err := f.Contexts()
	if err != nil {
		return nil, err
	} else if !slices.Contains(contexts, kubeContext) {
		return nil, errors.Wrap(ErrUnknownContext, "kube client", z.Str("context", kubeContext))
	}

	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(f.rules, overrides).ClientConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load kube client config", z.Str("context", kubeContext))
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "new kube clientset", z.Str("context", kubeContext))
	}

	client := NewClient(kubeContext, cs)
	f.clients.SetDefault(kubeContext, client)

	return client, nil
}

func (f *KubeconfigFactory) CurrentContext() (string, error) {
	raw, err := f.rules.Load()
	if err != nil {
		return "", errors.Wrap(err, "load kubeconfig")
	} else if raw.CurrentContext == "" {
		return "", errors.New("kubeconfig has no current context")
	}

	return raw.CurrentContext, nil
}

func (f *KubeconfigFactory) Contexts() ([]string, error) {
	raw, err := f.rules.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load kubeconfig")
	}

	var resp []string
	for name := range raw.Contexts {
		resp = append(resp, name)
	}
	sort.Strings(resp)

	return resp, nil
}
