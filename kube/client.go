// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package kube provides the cluster access capability used by remote config, leases and
// validation: config maps, leases, pods, ingress classes and namespaces of one kube context.
package kube

import (
	"context"

	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

var (
	// ErrNotFound is wrapped when the requested resource does not exist.
	ErrNotFound = errors.NewSentinel("resource not found")
	// ErrAlreadyExists is wrapped when creating a resource that exists.
	ErrAlreadyExists = errors.NewSentinel("resource already exists")
	// ErrConflict is wrapped when an update is rejected due to a stale resource version.
	ErrConflict = errors.NewSentinel("resource version conflict")
)

// AllNamespaces selects resources across all namespaces in list calls.
const AllNamespaces = metav1.NamespaceAll

// Client accesses the cluster of a single kube context.
type Client struct {
	kubeContext string
	cs          kubernetes.Interface
}

// NewClient returns a client for the kube context using the clientset.
func NewClient(kubeContext string, cs kubernetes.Interface) *Client {
	return &Client{
		kubeContext: kubeContext,
		cs:          cs,
	}
}

// Context returns the kube context name of the client.
func (c *Client) Context() string {
	return c.kubeContext
}

// CreateConfigMap creates a labeled config map, failing with ErrAlreadyExists if present.
func (c *Client) CreateConfigMap(ctx context.Context, namespace, name string, labels, data map[string]string) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Data:       data,
	}

	_, err := c.cs.CoreV1().ConfigMaps(namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		return c.wrap(err, "create config map", namespace, name)
	}

	return nil
}

// ReadConfigMap returns the named config map, failing with ErrNotFound if absent.
func (c *Client) ReadConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	cm, err := c.cs.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, c.wrap(err, "read config map", namespace, name)
	}

	return cm, nil
}

// ReplaceConfigMap overwrites the labels and data of an existing config map.
func (c *Client) ReplaceConfigMap(ctx context.Context, namespace, name string, labels, data map[string]string) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Data:       data,
	}

	_, err := c.cs.CoreV1().ConfigMaps(namespace).Update(ctx, cm, metav1.UpdateOptions{})
	if err != nil {
		return c.wrap(err, "replace config map", namespace, name)
	}

	return nil
}

// ListConfigMaps returns the config maps matching the label selector; use AllNamespaces to search everywhere.
func (c *Client) ListConfigMaps(ctx context.Context, namespace, selector string) ([]corev1.ConfigMap, error) {
	list, err := c.cs.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, c.wrap(err, "list config maps", namespace, selector)
	}

	return list.Items, nil
}

// CreateLease creates the lease, failing with ErrAlreadyExists if present.
func (c *Client) CreateLease(ctx context.Context, lease *coordinationv1.Lease) (*coordinationv1.Lease, error) {
	resp, err := c.cs.CoordinationV1().Leases(lease.Namespace).Create(ctx, lease, metav1.CreateOptions{})
	if err != nil {
		return nil, c.wrap(err, "create lease", lease.Namespace, lease.Name)
	}

	return resp, nil
}

// ReadLease returns the named lease, failing with ErrNotFound if absent.
func (c *Client) ReadLease(ctx context.Context, namespace, name string) (*coordinationv1.Lease, error) {
	resp, err := c.cs.CoordinationV1().Leases(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, c.wrap(err, "read lease", namespace, name)
	}

	return resp, nil
}

// UpdateLease updates the lease. The update is rejected with ErrConflict if the
// lease's resource version is stale, making read-modify-update cycles atomic.
func (c *Client) UpdateLease(ctx context.Context, lease *coordinationv1.Lease) (*coordinationv1.Lease, error) {
	resp, err := c.cs.CoordinationV1().Leases(lease.Namespace).Update(ctx, lease, metav1.UpdateOptions{})
	if err != nil {
		return nil, c.wrap(err, "update lease", lease.Namespace, lease.Name)
	}

	return resp, nil
}

// DeleteLease deletes the named lease, failing with ErrNotFound if absent.
func (c *Client) DeleteLease(ctx context.Context, namespace, name string) error {
	err := c.cs.CoordinationV1().Leases(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		return c.wrap(err, "delete lease", namespace, name)
	}

	return nil
}

// ListPods returns the pods matching the label selector; use AllNamespaces to search everywhere.
func (c *Client) ListPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	list, err := c.cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, c.wrap(err, "list pods", namespace, selector)
	}

	return list.Items, nil
}

// ListIngressClasses returns all ingress classes of the cluster.
func (c *Client) ListIngressClasses(ctx context.Context) ([]networkingv1.IngressClass, error) {
	list, err := c.cs.NetworkingV1().IngressClasses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, c.wrap(err, "list ingress classes", "", "")
	}

	return list.Items, nil
}

// NamespaceExists returns true if the namespace exists.
func (c *Client) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	_, err := c.cs.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, c.wrap(err, "read namespace", namespace, namespace)
	}

	return true, nil
}

// CreateNamespace creates the namespace unless it exists.
func (c *Client) CreateNamespace(ctx context.Context, namespace string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}

	_, err := c.cs.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	} else if err != nil {
		return c.wrap(err, "create namespace", namespace, namespace)
	}

	return nil
}

// wrap maps kubernetes API errors to the package sentinels and adds request fields.
func (c *Client) wrap(err error, msg, namespace, name string) error {
	fields := []z.Field{
		z.Str("context", c.kubeContext),
		z.Str("namespace", namespace),
		z.Str("name", name),
	}

	switch {
	case apierrors.IsNotFound(err):
		return errors.Wrap(ErrNotFound, msg, append(fields, z.Str("cause", err.Error()))...)
	case apierrors.IsAlreadyExists(err):
		return errors.Wrap(ErrAlreadyExists, msg, append(fields, z.Str("cause", err.Error()))...)
	case apierrors.IsConflict(err):
		return errors.Wrap(ErrConflict, msg, append(fields, z.Str("cause", err.Error()))...)
	default:
		return errors.Wrap(err, msg, fields...)
	}
}
