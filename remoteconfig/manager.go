// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package remoteconfig maintains the remote config of a deployment: the envelope describing
// its clusters and components, replicated as a config map to every cluster of the deployment.
package remoteconfig

import (
	"context"
	"maps"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/promauto"
	"github.com/obolnetwork/ledgerctl/app/tracer"
	"github.com/obolnetwork/ledgerctl/app/version"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/component"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/localconfig"
)

var (
	// ErrNotLoaded is returned by operations requiring a loaded envelope.
	ErrNotLoaded = errors.NewSentinel("remote config not loaded")
	// ErrLockRequired is returned when a mutating operation is called without a lock.
	ErrLockRequired = errors.NewSentinel("deployment lock required")
	// ErrClusterExists is returned when adding a cluster ref already registered in the remote config.
	ErrClusterExists = errors.NewSentinel("cluster ref already registered")
)

var (
	saveCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerctl",
		Subsystem: "remoteconfig",
		Name:      "save_total",
		Help:      "Total number of remote config saves by result",
	}, []string{"result"})

	loadCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerctl",
		Subsystem: "remoteconfig",
		Name:      "load_total",
		Help:      "Total number of remote config loads by result",
	}, []string{"result"})
)

// Guard proves the caller holds the deployment lock. *lease.Lease implements it.
type Guard interface {
	// Verify returns an error if the lock is no longer held.
	Verify(ctx context.Context) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to stamp metadata.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithToolVersion overrides the tool version stamped in metadata.
func WithToolVersion(v string) Option {
	return func(m *Manager) {
		m.toolVersion = v
	}
}

// Manager loads, validates, modifies and saves the remote config of a target deployment.
// It holds at most one envelope and is not safe for concurrent use.
type Manager struct {
	factory     kube.Factory
	local       *localconfig.Config
	target      Target
	store       store
	clock       clockwork.Clock
	toolVersion string

	env *Envelope
}

// NewManager returns a manager of the target deployment.
func NewManager(factory kube.Factory, local *localconfig.Config, target Target, opts ...Option) *Manager {
	m := &Manager{
		factory:     factory,
		local:       local,
		target:      target,
		store:       store{factory: factory},
		clock:       clockwork.NewRealClock(),
		toolVersion: version.Version,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Target returns the deployment target of the manager.
func (m *Manager) Target() Target {
	return m.target
}

// IsLoaded returns true if an envelope is held in memory.
func (m *Manager) IsLoaded() bool {
	return m.env != nil
}

// Unload drops the in-memory envelope. The persisted remote config is unaffected.
func (m *Manager) Unload() {
	m.env = nil
}

// CreateRequest defines a new deployment's remote config.
type CreateRequest struct {
	Argv        Argv
	State       DeploymentState
	ClusterRef  string
	NodeAliases []string
	// DNSBaseDomain and DNSConsensusNodePattern default if empty.
	DNSBaseDomain           string
	DNSConsensusNodePattern string
}

// Create builds a new envelope with one cluster and a consensus node per alias and writes it
// to the target context only. It fails with ErrAlreadyExists if the remote config exists.
func (m *Manager) Create(ctx context.Context, lock Guard, req CreateRequest) error {
	ctx, span := tracer.Start(ctx, "remoteconfig/Create")
	defer span.End()

	ctx = m.logCtx(ctx)

	if err := verifyLock(ctx, lock); err != nil {
		return err
	}

	if req.State == "" {
		req.State = DeploymentRequested
	}

	cluster, err := NewCluster(req.ClusterRef, m.target.Namespace, m.target.Deployment,
		req.DNSBaseDomain, req.DNSConsensusNodePattern)
	if err != nil {
		return err
	}

	components, err := NewComponentsWithNodes(req.NodeAliases, req.ClusterRef, m.target.Namespace)
	if err != nil {
		return err
	}

	env := NewEnvelope(Metadata{
		Namespace:  m.target.Namespace,
		Deployment: m.target.Deployment,
		State:      req.State,
	}, map[string]Cluster{req.ClusterRef: cluster}, components)

	argv, err := env.Flags.Reconcile(req.Argv)
	if err != nil {
		return err
	}

	stampVersions(&env.Metadata, argv)
	env.AddCommandToHistory(m.historyLine(req.Argv))
	m.stamp(env)

	if err := m.store.create(ctx, m.target.Context, m.target.Namespace, env); err != nil {
		saveCounter.WithLabelValues("error").Inc()
		return err
	}

	saveCounter.WithLabelValues("ok").Inc()
	m.env = env

	log.Info(ctx, "Remote config created", z.Str("cluster_ref", req.ClusterRef), z.Int("nodes", len(req.NodeAliases)))

	return nil
}

// Load reads the remote config from the kube context, unless already loaded. Empty namespace
// and context default to the target's. A missing remote config fails with ErrNotFound.
func (m *Manager) Load(ctx context.Context, namespace, kubeContext string) error {
	if m.IsLoaded() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "remoteconfig/Load")
	defer span.End()

	if namespace == "" {
		namespace = m.target.Namespace
	}

	if kubeContext == "" {
		kubeContext = m.target.Context
	}

	env, err := m.store.read(ctx, kubeContext, namespace)
	if errors.Is(err, ErrNotFound) {
		loadCounter.WithLabelValues("not_found").Inc()
		return errors.Wrap(err, "no remote config for deployment, create the deployment first",
			z.Str("deployment", m.target.Deployment))
	} else if err != nil {
		loadCounter.WithLabelValues("error").Inc()
		return err
	}

	loadCounter.WithLabelValues("ok").Inc()
	m.env = env

	log.Debug(m.logCtx(ctx), "Remote config loaded", z.Str("context", kubeContext))

	return nil
}

// Get loads the remote config from the kube context if needed, validates it without checking
// consensus node pods and returns a snapshot.
func (m *Manager) Get(ctx context.Context, kubeContext string) (*Envelope, error) {
	if kubeContext == "" {
		kubeContext = m.target.Context
	}

	if err := m.Load(ctx, "", kubeContext); err != nil {
		return nil, err
	}

	err := Validate(ctx, m.factory, m.local.ClusterRefContexts(), m.target.Namespace, m.env.Components, true)
	if err != nil {
		return nil, errors.Wrap(err, "remote config is invalid for cluster "+kubeContext, z.Str("context", kubeContext))
	}

	return m.env.Clone(), nil
}

type loadOptions struct {
	validate           bool
	skipConsensusNodes bool
}

// LoadOption configures LoadAndValidate.
type LoadOption func(*loadOptions)

// WithoutValidation skips validation, history and flag reconciliation; the remote config is only loaded.
func WithoutValidation() LoadOption {
	return func(o *loadOptions) {
		o.validate = false
	}
}

// WithConsensusNodeValidation also checks that every consensus node has pods.
func WithConsensusNodeValidation() LoadOption {
	return func(o *loadOptions) {
		o.skipConsensusNodes = false
	}
}

// LoadAndValidate loads and validates the remote config, records the command in the history,
// stamps component versions, reconciles the flags ledger and saves. It returns argv with
// unset tracked flags filled from the ledger.
func (m *Manager) LoadAndValidate(ctx context.Context, lock Guard, argv Argv, opts ...LoadOption) (Argv, error) {
	o := loadOptions{
		validate:           true,
		skipConsensusNodes: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "remoteconfig/LoadAndValidate")
	defer span.End()

	ctx = m.logCtx(ctx)

	if err := verifyLock(ctx, lock); err != nil {
		return Argv{}, err
	}

	if err := m.Load(ctx, "", ""); err != nil {
		return Argv{}, err
	}

	if !o.validate {
		return argv, nil
	}

	err := Validate(ctx, m.factory, m.local.ClusterRefContexts(), m.target.Namespace, m.env.Components, o.skipConsensusNodes)
	if err != nil {
		return Argv{}, err
	}

	env := m.env.Clone()

	filled, err := env.Flags.Reconcile(argv)
	if err != nil {
		return Argv{}, err
	}

	env.AddCommandToHistory(m.historyLine(argv))
	stampVersions(&env.Metadata, argv)

	if err := m.save(ctx, env); err != nil {
		return Argv{}, err
	}

	return filled, nil
}

// Modify calls fn with a copy of the envelope and saves the result, also if fn changed nothing.
// The in-memory envelope is replaced only once the save succeeded.
func (m *Manager) Modify(ctx context.Context, lock Guard, fn func(context.Context, *Envelope) error) error {
	if !m.IsLoaded() {
		return errors.Wrap(ErrNotLoaded, "modify remote config")
	}

	ctx, span := tracer.Start(ctx, "remoteconfig/Modify")
	defer span.End()

	ctx = m.logCtx(ctx)

	if err := verifyLock(ctx, lock); err != nil {
		return err
	}

	env := m.env.Clone()
	if err := fn(ctx, env); err != nil {
		return err
	}

	return m.save(ctx, env)
}

// DeleteComponents replaces the components directory with an empty one.
func (m *Manager) DeleteComponents(ctx context.Context, lock Guard) error {
	return m.Modify(ctx, lock, func(_ context.Context, env *Envelope) error {
		env.Components = NewEmptyComponents()
		return nil
	})
}

// ClusterRequest defines a cluster added to a deployment.
type ClusterRequest struct {
	ClusterRef string
	// DNSBaseDomain and DNSConsensusNodePattern default if empty.
	DNSBaseDomain           string
	DNSConsensusNodePattern string
}

// AddCluster registers the cluster ref in the loaded envelope, creates the remote config in
// the cluster ref's kube context and saves it to every cluster of the deployment. The local
// config deployment must already include the cluster ref.
func (m *Manager) AddCluster(ctx context.Context, lock Guard, req ClusterRequest) error {
	if !m.IsLoaded() {
		return errors.Wrap(ErrNotLoaded, "add cluster")
	}

	ctx, span := tracer.Start(ctx, "remoteconfig/AddCluster")
	defer span.End()

	ctx = log.WithCtx(m.logCtx(ctx), z.Str("cluster_ref", req.ClusterRef))

	if err := verifyLock(ctx, lock); err != nil {
		return err
	}

	if _, ok := m.env.Clusters[req.ClusterRef]; ok {
		return errors.Wrap(ErrClusterExists, "add cluster", z.Str("cluster_ref", req.ClusterRef))
	}

	kubeContext, ok := m.local.Context(req.ClusterRef)
	if !ok {
		return errors.Wrap(localconfig.ErrClusterRefNotFound, "add cluster", z.Str("cluster_ref", req.ClusterRef))
	}

	cluster, err := NewCluster(req.ClusterRef, m.target.Namespace, m.target.Deployment,
		req.DNSBaseDomain, req.DNSConsensusNodePattern)
	if err != nil {
		return err
	}

	env := m.env.Clone()
	if env.Clusters == nil {
		env.Clusters = make(map[string]Cluster)
	}
	env.Clusters[req.ClusterRef] = cluster
	m.stamp(env)

	if err := m.store.create(ctx, kubeContext, m.target.Namespace, env); err != nil {
		saveCounter.WithLabelValues("error").Inc()
		return err
	}

	if err := m.save(ctx, env); err != nil {
		return err
	}

	log.Info(ctx, "Cluster added to remote config", z.Str("context", kubeContext))

	return nil
}

// Components returns a snapshot of the components directory.
func (m *Manager) Components() (*Components, error) {
	if !m.IsLoaded() {
		return nil, errors.Wrap(ErrNotLoaded, "get components")
	}

	return m.env.Components.Clone(), nil
}

// Clusters returns a snapshot of the cluster registry.
func (m *Manager) Clusters() (map[string]Cluster, error) {
	if !m.IsLoaded() {
		return nil, errors.Wrap(ErrNotLoaded, "get clusters")
	}

	return maps.Clone(m.env.Clusters), nil
}

// ConsensusNode is a consensus node joined with its cluster and kube context.
type ConsensusNode struct {
	Name                    string
	NodeID                  int
	Namespace               string
	Cluster                 string
	Context                 string
	DNSBaseDomain           string
	DNSConsensusNodePattern string
	FQDN                    string
}

// ConsensusNodes returns the consensus nodes in cluster and node id order.
func (m *Manager) ConsensusNodes() ([]ConsensusNode, error) {
	if !m.IsLoaded() {
		return nil, errors.Wrap(ErrNotLoaded, "get consensus nodes")
	}

	var resp []ConsensusNode
	for _, node := range m.env.Components.ConsensusNodes() {
		n, err := m.joinNode(node)
		if err != nil {
			return nil, err
		}

		resp = append(resp, n)
	}

	return resp, nil
}

// Contexts returns the distinct kube contexts of the consensus nodes in node order.
func (m *Manager) Contexts() ([]string, error) {
	nodes, err := m.ConsensusNodes()
	if err != nil {
		return nil, err
	}

	var resp []string
	for _, node := range nodes {
		if !slices.Contains(resp, node.Context) {
			resp = append(resp, node.Context)
		}
	}

	return resp, nil
}

// ClusterRefs returns the cluster refs of the consensus nodes mapped to their kube contexts.
func (m *Manager) ClusterRefs() (map[string]string, error) {
	nodes, err := m.ConsensusNodes()
	if err != nil {
		return nil, err
	}

	resp := make(map[string]string)
	for _, node := range nodes {
		resp[node.Cluster] = node.Context
	}

	return resp, nil
}

// Compare returns true if both envelopes register the same cluster refs. Components are not compared.
// Cluster refs are compared as a sorted set, the order of the persisted document is not retained.
func Compare(a, b *Envelope) bool {
	return slices.Equal(a.ClusterRefs(), b.ClusterRefs())
}

func (m *Manager) joinNode(node component.Component) (ConsensusNode, error) {
	kubeContext, ok := m.local.Context(node.Cluster())
	if !ok {
		return ConsensusNode{}, errors.Wrap(localconfig.ErrClusterRefNotFound, "consensus node cluster ref",
			z.Str("node", node.Name()), z.Str("cluster_ref", node.Cluster()))
	}

	cluster, ok := m.env.Clusters[node.Cluster()]
	if !ok {
		return ConsensusNode{}, errors.Wrap(ErrInvalid, "consensus node "+node.Name()+" references unregistered cluster "+node.Cluster())
	}

	return ConsensusNode{
		Name:                    node.Name(),
		NodeID:                  node.NodeID(),
		Namespace:               node.Namespace(),
		Cluster:                 node.Cluster(),
		Context:                 kubeContext,
		DNSBaseDomain:           cluster.DNSBaseDomain,
		DNSConsensusNodePattern: cluster.DNSConsensusNodePattern,
		FQDN:                    cluster.ConsensusNodeFQDN(node.Name(), node.NodeID()),
	}, nil
}

// save stamps the last writer and writes the envelope to every cluster of the deployment.
func (m *Manager) save(ctx context.Context, env *Envelope) error {
	kubeContexts, err := m.deploymentContexts()
	if err != nil {
		return err
	}

	m.stamp(env)

	if err := m.store.replace(ctx, kubeContexts, m.target.Namespace, env); err != nil {
		saveCounter.WithLabelValues("error").Inc()
		return err
	}

	saveCounter.WithLabelValues("ok").Inc()
	m.env = env

	log.Debug(ctx, "Remote config saved", z.Int("clusters", len(kubeContexts)))

	return nil
}

func (m *Manager) deploymentContexts() ([]string, error) {
	dep, err := m.local.Deployment(m.target.Deployment)
	if err != nil {
		return nil, err
	}

	var resp []string
	for _, ref := range dep.ClusterRefs {
		kubeContext, ok := m.local.Context(ref)
		if !ok {
			return nil, errors.Wrap(localconfig.ErrClusterRefNotFound, "deployment cluster ref", z.Str("cluster_ref", ref))
		}

		resp = append(resp, kubeContext)
	}

	return resp, nil
}

func (m *Manager) stamp(env *Envelope) {
	env.Metadata.LastUpdatedAt = m.clock.Now().UTC()
	env.Metadata.LastUpdatedBy = m.local.UserIdentity
	env.Metadata.ToolVersion = m.toolVersion
}

func (m *Manager) historyLine(argv Argv) string {
	return "Executed by " + m.local.UserIdentity.Name + ": " + argv.String()
}

func (m *Manager) logCtx(ctx context.Context) context.Context {
	ctx = log.WithTopic(ctx, "remoteconfig")
	return log.WithCtx(ctx, z.Str("deployment", m.target.Deployment), z.Str("namespace", m.target.Namespace))
}

func verifyLock(ctx context.Context, lock Guard) error {
	if lock == nil {
		return errors.Wrap(ErrLockRequired, "mutate remote config")
	}

	if err := lock.Verify(ctx); err != nil {
		return errors.Wrap(err, "verify deployment lock")
	}

	return nil
}
