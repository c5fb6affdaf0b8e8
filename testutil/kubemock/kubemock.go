// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package kubemock provides a multi-context kube.Factory backed by fake clientsets.
package kubemock

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/kube"
)

// Factory is a kube.Factory with one fake clientset per context.
// The first context is the current context.
type Factory struct {
	mu         sync.Mutex
	current    string
	clientsets map[string]*fake.Clientset
	calls      int
}

var _ kube.Factory = (*Factory)(nil)

// New returns a factory with a fresh fake cluster per kube context.
func New(kubeContexts ...string) *Factory {
	f := &Factory{
		clientsets: make(map[string]*fake.Clientset),
	}

	for i, name := range kubeContexts {
		if i == 0 {
			f.current = name
		}

		f.clientsets[name] = fake.NewSimpleClientset() //nolint:staticcheck // Field management not required.
	}

	return f
}

func (f *Factory) Client(kubeContext string) (*kube.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	cs, ok := f.clientsets[kubeContext]
	if !ok {
		return nil, errors.Wrap(kube.ErrUnknownContext, "mock client", z.Str("context", kubeContext))
	}

	return kube.NewClient(kubeContext, cs), nil
}

func (f *Factory) CurrentContext() (string, error) {
	if f.current == "" {
		return "", errors.New("no current context")
	}

	return f.current, nil
}

func (f *Factory) Contexts() ([]string, error) {
	var resp []string
	for name := range f.clientsets {
		resp = append(resp, name)
	}
	sort.Strings(resp)

	return resp, nil
}

// ClientCalls returns the number of Client calls, a proxy for cluster access.
func (f *Factory) ClientCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// Clientset returns the fake clientset of the context.
func (f *Factory) Clientset(t *testing.T, kubeContext string) *fake.Clientset {
	t.Helper()

	cs, ok := f.clientsets[kubeContext]
	require.True(t, ok, "unknown context %s", kubeContext)

	return cs
}

// AddNamespace creates the namespace in the context's cluster.
func (f *Factory) AddNamespace(t *testing.T, kubeContext, namespace string) {
	t.Helper()

	_, err := f.Clientset(t, kubeContext).CoreV1().Namespaces().Create(context.Background(),
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}, metav1.CreateOptions{})
	require.NoError(t, err)
}

// AddPod creates a labeled pod in the context's cluster.
func (f *Factory) AddPod(t *testing.T, kubeContext, namespace, name string, labels map[string]string) {
	t.Helper()

	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels}}
	_, err := f.Clientset(t, kubeContext).CoreV1().Pods(namespace).Create(context.Background(), pod, metav1.CreateOptions{})
	require.NoError(t, err)
}

// AddIngressClass creates an ingress class in the context's cluster.
func (f *Factory) AddIngressClass(t *testing.T, kubeContext, name string) {
	t.Helper()

	class := &networkingv1.IngressClass{ObjectMeta: metav1.ObjectMeta{Name: name}}
	_, err := f.Clientset(t, kubeContext).NetworkingV1().IngressClasses().Create(context.Background(), class, metav1.CreateOptions{})
	require.NoError(t, err)
}

// FailOn makes every verb request on the resource in the context fail with err.
func (f *Factory) FailOn(t *testing.T, kubeContext, verb, resource string, err error) {
	t.Helper()

	f.Clientset(t, kubeContext).PrependReactor(verb, resource, func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, err
	})
}

// OnRequest calls fn before every verb request on the resource in the context,
// failing the request if fn returns an error.
func (f *Factory) OnRequest(t *testing.T, kubeContext, verb, resource string, fn func() error) {
	t.Helper()

	f.Clientset(t, kubeContext).PrependReactor(verb, resource, func(k8stesting.Action) (bool, runtime.Object, error) {
		if err := fn(); err != nil {
			return true, nil, err
		}

		return false, nil, nil
	})
}
