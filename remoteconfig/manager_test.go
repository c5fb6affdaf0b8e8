// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/component"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/localconfig"
	"github.com/obolnetwork/ledgerctl/remoteconfig"
	"github.com/obolnetwork/ledgerctl/testutil/kubemock"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type guard struct {
	calls int
	err   error
}

func (g *guard) Verify(context.Context) error {
	g.calls++
	return g.err
}

type harness struct {
	factory *kubemock.Factory
	local   *localconfig.Config
	clock   *clockwork.FakeClock
	target  remoteconfig.Target
}

// newHarness returns a deployment "dep" in namespace solo-e2e spanning cluster refs c1..cN
// mapped to kube contexts kind-c1..kind-cN, with the namespace created in each cluster.
func newHarness(t *testing.T, clusters ...string) harness {
	t.Helper()

	var kubeContexts []string
	refs := make(map[string]string)
	for _, ref := range clusters {
		kubeContexts = append(kubeContexts, "kind-"+ref)
		refs[ref] = "kind-" + ref
	}

	factory := kubemock.New(kubeContexts...)
	for _, kubeContext := range kubeContexts {
		factory.AddNamespace(t, kubeContext, "solo-e2e")
	}

	return harness{
		factory: factory,
		local:   newLocal(t, refs, map[string][]string{"dep": clusters}),
		clock:   clockwork.NewFakeClockAt(t0),
		target:  remoteconfig.Target{Deployment: "dep", Namespace: "solo-e2e", Context: kubeContexts[0]},
	}
}

func (h harness) manager() *remoteconfig.Manager {
	return remoteconfig.NewManager(h.factory, h.local, h.target,
		remoteconfig.WithClock(h.clock), remoteconfig.WithToolVersion("v1.2.3"))
}

// read decodes the remote config persisted in the kube context.
func (h harness) read(t *testing.T, kubeContext string) *remoteconfig.Envelope {
	t.Helper()

	cm, err := h.factory.Clientset(t, kubeContext).CoreV1().ConfigMaps("solo-e2e").
		Get(context.Background(), kube.RemoteConfigName, metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, kube.RemoteConfigLabels(), cm.Labels)

	env, err := remoteconfig.Decode([]byte(cm.Data[kube.RemoteConfigDataKey]))
	require.NoError(t, err)

	return env
}

// copyTo replicates the remote config of the first cluster to the kube context.
func (h harness) copyTo(t *testing.T, kubeContext string) {
	t.Helper()

	cm, err := h.factory.Clientset(t, h.target.Context).CoreV1().ConfigMaps("solo-e2e").
		Get(context.Background(), kube.RemoteConfigName, metav1.GetOptions{})
	require.NoError(t, err)

	cm.ResourceVersion = ""
	_, err = h.factory.Clientset(t, kubeContext).CoreV1().ConfigMaps("solo-e2e").
		Create(context.Background(), cm, metav1.CreateOptions{})
	require.NoError(t, err)
}

func createDeployment(t *testing.T, m *remoteconfig.Manager, flags map[string]string, aliases ...string) {
	t.Helper()

	err := m.Create(context.Background(), new(guard), remoteconfig.CreateRequest{
		Argv:        remoteconfig.NewArgv([]string{"deployment", "create"}, flags),
		ClusterRef:  "c1",
		NodeAliases: aliases,
	})
	require.NoError(t, err)
}

func TestModifyWithoutLoad(t *testing.T) {
	h := newHarness(t, "c1")
	m := h.manager()
	g := new(guard)

	var called bool
	err := m.Modify(context.Background(), g, func(context.Context, *remoteconfig.Envelope) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, remoteconfig.ErrNotLoaded)
	require.False(t, called)
	require.Zero(t, g.calls)
	require.Zero(t, h.factory.ClientCalls())

	require.ErrorIs(t, m.DeleteComponents(context.Background(), g), remoteconfig.ErrNotLoaded)
	require.Zero(t, h.factory.ClientCalls())

	_, err = m.Components()
	require.ErrorIs(t, err, remoteconfig.ErrNotLoaded)
	_, err = m.ConsensusNodes()
	require.ErrorIs(t, err, remoteconfig.ErrNotLoaded)
}

func TestCreateThenGet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1")

	m := h.manager()
	createDeployment(t, m, nil, "node1", "node2")
	require.True(t, m.IsLoaded())

	m.Unload()
	require.False(t, m.IsLoaded())

	env, err := m.Get(ctx, "")
	require.NoError(t, err)
	require.Len(t, env.Clusters, 1)
	require.Equal(t, remoteconfig.Cluster{
		Name:                    "c1",
		Namespace:               "solo-e2e",
		Deployment:              "dep",
		DNSBaseDomain:           remoteconfig.DefaultDNSBaseDomain,
		DNSConsensusNodePattern: remoteconfig.DefaultDNSConsensusNodePattern,
	}, env.Clusters["c1"])

	require.Equal(t, "solo-e2e", env.Metadata.Namespace)
	require.Equal(t, "dep", env.Metadata.Deployment)
	require.Equal(t, remoteconfig.DeploymentRequested, env.Metadata.State)
	require.Equal(t, localconfig.UserIdentity{Name: "alice", Hostname: "laptop"}, env.Metadata.LastUpdatedBy)
	require.Equal(t, "v1.2.3", env.Metadata.ToolVersion)
	require.True(t, t0.Equal(env.Metadata.LastUpdatedAt))
	require.Equal(t, []string{"Executed by alice: deployment create"}, env.CommandHistory)

	// Get returns a snapshot.
	env.Clusters["c2"] = remoteconfig.Cluster{}
	require.NoError(t, env.Components.Remove("node1"))

	clusters, err := m.Clusters()
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	comps, err := m.Components()
	require.NoError(t, err)
	require.Equal(t, 2, comps.Len())

	// Creating twice fails.
	err = h.manager().Create(ctx, new(guard), remoteconfig.CreateRequest{ClusterRef: "c1"})
	require.ErrorIs(t, err, remoteconfig.ErrAlreadyExists)
}

func TestSoloE2EScenario(t *testing.T) {
	h := newHarness(t, "c1")
	m := h.manager()
	createDeployment(t, m, nil, "node1", "node2")

	nodes := h.read(t, "kind-c1").Components.ConsensusNodes()
	require.Len(t, nodes, 2)

	for i, name := range []string{"node1", "node2"} {
		require.Equal(t, component.TypeConsensusNode, nodes[i].Type())
		require.Equal(t, name, nodes[i].Name())
		require.Equal(t, i, nodes[i].NodeID())
		require.Equal(t, "c1", nodes[i].Cluster())
		require.Equal(t, "solo-e2e", nodes[i].Namespace())
	}

	views, err := m.ConsensusNodes()
	require.NoError(t, err)
	require.Equal(t, remoteconfig.ConsensusNode{
		Name:                    "node2",
		NodeID:                  1,
		Namespace:               "solo-e2e",
		Cluster:                 "c1",
		Context:                 "kind-c1",
		DNSBaseDomain:           "cluster.local",
		DNSConsensusNodePattern: "network-{nodeAlias}-svc.{namespace}.svc",
		FQDN:                    "network-node2-svc.solo-e2e.svc.cluster.local",
	}, views[1])
}

func TestCompare(t *testing.T) {
	meta := remoteconfig.Metadata{Namespace: "solo-e2e", Deployment: "dep", State: remoteconfig.DeploymentDeployed}

	c1, err := remoteconfig.NewCluster("c1", "solo-e2e", "dep", "", "")
	require.NoError(t, err)
	c2, err := remoteconfig.NewCluster("c2", "solo-e2e", "dep", "example.com", "")
	require.NoError(t, err)

	comps1, err := remoteconfig.NewComponentsWithNodes([]string{"node1"}, "c1", "solo-e2e")
	require.NoError(t, err)
	comps2, err := remoteconfig.NewComponentsWithNodes([]string{"node1", "node2", "node3"}, "c2", "solo-e2e")
	require.NoError(t, err)

	a := remoteconfig.NewEnvelope(meta, map[string]remoteconfig.Cluster{"c1": c1, "c2": c2}, comps1)
	b := remoteconfig.NewEnvelope(meta, map[string]remoteconfig.Cluster{"c2": c2, "c1": c1}, comps2)
	c := remoteconfig.NewEnvelope(meta, map[string]remoteconfig.Cluster{"c1": c1}, comps1)

	require.True(t, remoteconfig.Compare(a, b))
	require.True(t, remoteconfig.Compare(b, a))
	require.False(t, remoteconfig.Compare(a, c))
	require.True(t, remoteconfig.Compare(c, c.Clone()))
}

func TestModify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1", "c2")
	m := h.manager()
	createDeployment(t, m, nil, "node1")
	h.copyTo(t, "kind-c2")

	relay, err := component.NewRelay("relay1", "c1", "solo-e2e", []string{"node1"})
	require.NoError(t, err)

	g := new(guard)
	h.clock.Advance(time.Minute)
	err = m.Modify(ctx, g, func(_ context.Context, env *remoteconfig.Envelope) error {
		return env.Components.Add(relay)
	})
	require.NoError(t, err)
	require.Equal(t, 1, g.calls)

	for _, kubeContext := range []string{"kind-c1", "kind-c2"} {
		env := h.read(t, kubeContext)
		_, ok := env.Components.Get("relay1")
		require.True(t, ok, kubeContext)
		require.True(t, t0.Add(time.Minute).Equal(env.Metadata.LastUpdatedAt))
	}

	// Saves even without changes.
	h.clock.Advance(time.Minute)
	require.NoError(t, m.Modify(ctx, g, func(context.Context, *remoteconfig.Envelope) error { return nil }))
	require.True(t, t0.Add(2*time.Minute).Equal(h.read(t, "kind-c2").Metadata.LastUpdatedAt))

	// A failing callback saves nothing.
	errBoom := errors.New("boom")
	err = m.Modify(ctx, g, func(_ context.Context, env *remoteconfig.Envelope) error {
		env.Components = remoteconfig.NewEmptyComponents()
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	comps, err := m.Components()
	require.NoError(t, err)
	require.Equal(t, 2, comps.Len())

	require.NoError(t, m.DeleteComponents(ctx, g))
	require.Zero(t, h.read(t, "kind-c2").Components.Len())
}

func TestModifyLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1")
	m := h.manager()
	createDeployment(t, m, nil, "node1")

	noop := func(context.Context, *remoteconfig.Envelope) error { return nil }

	require.ErrorIs(t, m.Modify(ctx, nil, noop), remoteconfig.ErrLockRequired)

	errLost := errors.New("lease lost")
	require.ErrorIs(t, m.Modify(ctx, &guard{err: errLost}, noop), errLost)

	_, err := m.LoadAndValidate(ctx, nil, remoteconfig.NewArgv([]string{"node", "add"}, nil))
	require.ErrorIs(t, err, remoteconfig.ErrLockRequired)

	err = h.manager().Create(ctx, nil, remoteconfig.CreateRequest{ClusterRef: "c1"})
	require.ErrorIs(t, err, remoteconfig.ErrLockRequired)
}

func TestSavePartialFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1", "c2")
	m := h.manager()
	createDeployment(t, m, nil, "node1")
	h.copyTo(t, "kind-c2")

	// Cluster 2 fails once cluster 1's write has been sent.
	c1Written := make(chan struct{})
	h.factory.OnRequest(t, "kind-c1", "update", "configmaps", func() error {
		close(c1Written)
		return nil
	})
	h.factory.OnRequest(t, "kind-c2", "update", "configmaps", func() error {
		<-c1Written
		return errors.New("cluster unreachable")
	})

	relay, err := component.NewRelay("relay1", "c1", "solo-e2e", []string{"node1"})
	require.NoError(t, err)

	err = m.Modify(ctx, new(guard), func(_ context.Context, env *remoteconfig.Envelope) error {
		return env.Components.Add(relay)
	})
	require.ErrorContains(t, err, "save remote config")
	require.ErrorContains(t, err, "cluster unreachable")

	// Cluster 1's write is not rolled back.
	_, ok := h.read(t, "kind-c1").Components.Get("relay1")
	require.True(t, ok)

	_, ok = h.read(t, "kind-c2").Components.Get("relay1")
	require.False(t, ok)

	// The in-memory envelope is unchanged.
	comps, err := m.Components()
	require.NoError(t, err)
	_, ok = comps.Get("relay1")
	require.False(t, ok)
}

func TestLoadNotFound(t *testing.T) {
	h := newHarness(t, "c1")
	m := h.manager()

	err := m.Load(context.Background(), "", "")
	require.ErrorIs(t, err, remoteconfig.ErrNotFound)
	require.ErrorContains(t, err, "create the deployment first")

	errDown := errors.New("connection refused")
	h.factory.FailOn(t, "kind-c1", "get", "configmaps", errDown)

	err = m.Load(context.Background(), "", "")
	require.ErrorIs(t, err, errDown)
	require.NotErrorIs(t, err, remoteconfig.ErrNotFound)
	require.False(t, m.IsLoaded())

	err = m.Load(context.Background(), "", "kind-unknown")
	require.ErrorIs(t, err, kube.ErrUnknownContext)
}

func TestGetInvalid(t *testing.T) {
	h := newHarness(t, "c1")
	m := h.manager()
	createDeployment(t, m, nil, "node1")

	require.NoError(t, m.Modify(context.Background(), new(guard), func(_ context.Context, env *remoteconfig.Envelope) error {
		relay, err := component.NewRelay("relay1", "c1", "solo-e2e", []string{"ghost"})
		if err != nil {
			return err
		}

		return env.Components.Add(relay)
	}))

	_, err := h.manager().Get(context.Background(), "kind-c1")
	require.ErrorContains(t, err, "remote config is invalid for cluster kind-c1")
	require.ErrorIs(t, err, remoteconfig.ErrInvalid)
}

func TestLoadAndValidate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1")
	createDeployment(t, h.manager(), map[string]string{remoteconfig.FlagReleaseTag: "v0.60.0"}, "node1")

	m := h.manager()
	argv, err := m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"node", "add"},
		map[string]string{remoteconfig.FlagChartVersion: "v0.59.0"}))
	require.NoError(t, err)

	tag, ok := argv.Flag(remoteconfig.FlagReleaseTag)
	require.True(t, ok)
	require.Equal(t, "v0.60.0", tag)

	env := h.read(t, "kind-c1")
	require.Equal(t, []string{
		"Executed by alice: deployment create --release-tag=v0.60.0",
		"Executed by alice: node add --chart-version=v0.59.0",
	}, env.CommandHistory)
	require.Equal(t, env.CommandHistory[1], env.LastExecutedCommand)
	require.Equal(t, "v0.59.0", env.Metadata.ChartVersion)
	require.Equal(t, "v0.60.0", env.Metadata.PlatformVersion)
	require.Empty(t, env.Metadata.RelayChartVersion)
	require.Equal(t, "v0.59.0", env.Flags[remoteconfig.FlagChartVersion].Value)

	// Deploying a relay records the default version.
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"relay", "add"}, nil))
	require.NoError(t, err)
	require.Equal(t, remoteconfig.DefaultRelayVersion, h.read(t, "kind-c1").Metadata.RelayChartVersion)

	// A recorded version is kept by later commands without the flag.
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"relay", "add"},
		map[string]string{remoteconfig.FlagRelayReleaseTag: "v0.68.0"}))
	require.NoError(t, err)
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"relay", "add"}, nil))
	require.NoError(t, err)
	require.Equal(t, "v0.68.0", h.read(t, "kind-c1").Metadata.RelayChartVersion)

	// Downgrades are rejected and nothing is saved.
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"node", "add"},
		map[string]string{remoteconfig.FlagReleaseTag: "v0.50.0"}))
	require.ErrorIs(t, err, remoteconfig.ErrFlagConflict)
	require.Len(t, h.read(t, "kind-c1").CommandHistory, 5)

	// Strict validation requires consensus node pods.
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"node", "start"}, nil),
		remoteconfig.WithConsensusNodeValidation())
	require.ErrorIs(t, err, remoteconfig.ErrInvalid)

	h.factory.AddPod(t, "kind-c1", "solo-e2e", "network-node1-0", map[string]string{"app": "network-node1"})
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"node", "start"}, nil),
		remoteconfig.WithConsensusNodeValidation())
	require.NoError(t, err)

	// Without validation nothing is recorded.
	_, err = m.LoadAndValidate(ctx, new(guard), remoteconfig.NewArgv([]string{"node", "logs"}, nil),
		remoteconfig.WithoutValidation())
	require.NoError(t, err)
	require.Len(t, h.read(t, "kind-c1").CommandHistory, 6)
}

func TestDerivedViews(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1", "c2")
	m := h.manager()
	createDeployment(t, m, nil, "node1", "node2")
	h.copyTo(t, "kind-c2")

	require.NoError(t, m.Modify(ctx, new(guard), func(_ context.Context, env *remoteconfig.Envelope) error {
		cluster, err := remoteconfig.NewCluster("c2", "solo-e2e", "dep", "example.com", "{nodeAlias}")
		if err != nil {
			return err
		}
		env.Clusters["c2"] = cluster

		node, err := component.NewConsensusNode("node3", "c2", "solo-e2e", 0, component.StateRequested)
		if err != nil {
			return err
		}

		return env.Components.Add(node)
	}))

	contexts, err := m.Contexts()
	require.NoError(t, err)
	require.Equal(t, []string{"kind-c1", "kind-c2"}, contexts)

	refs, err := m.ClusterRefs()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"c1": "kind-c1", "c2": "kind-c2"}, refs)

	nodes, err := m.ConsensusNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.Equal(t, "node3.example.com", nodes[2].FQDN)
}

func TestAddCluster(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "c1", "c2")
	m := h.manager()
	g := new(guard)

	err := m.AddCluster(ctx, g, remoteconfig.ClusterRequest{ClusterRef: "c2"})
	require.ErrorIs(t, err, remoteconfig.ErrNotLoaded)

	createDeployment(t, m, nil, "node1")

	err = m.AddCluster(ctx, g, remoteconfig.ClusterRequest{ClusterRef: "c1"})
	require.ErrorIs(t, err, remoteconfig.ErrClusterExists)

	err = m.AddCluster(ctx, g, remoteconfig.ClusterRequest{ClusterRef: "c9"})
	require.ErrorIs(t, err, localconfig.ErrClusterRefNotFound)

	require.NoError(t, m.AddCluster(ctx, g, remoteconfig.ClusterRequest{ClusterRef: "c2", DNSBaseDomain: "example.com"}))

	for _, kubeContext := range []string{"kind-c1", "kind-c2"} {
		env := h.read(t, kubeContext)
		require.Equal(t, []string{"c1", "c2"}, env.ClusterRefs())
		require.Equal(t, "example.com", env.Clusters["c2"].DNSBaseDomain)
	}

	node2, err := component.NewConsensusNode("node2", "c2", "solo-e2e", 1, component.StateRequested)
	require.NoError(t, err)
	require.NoError(t, m.Modify(ctx, g, func(_ context.Context, env *remoteconfig.Envelope) error {
		return env.Components.Add(node2)
	}))

	contexts, err := m.Contexts()
	require.NoError(t, err)
	require.Equal(t, []string{"kind-c1", "kind-c2"}, contexts)

	for _, kubeContext := range []string{"kind-c1", "kind-c2"} {
		_, ok := h.read(t, kubeContext).Components.Get("node2")
		require.True(t, ok)
	}
}

func TestAddClusterExistingRemoteConfig(t *testing.T) {
	h := newHarness(t, "c1", "c2")
	m := h.manager()
	createDeployment(t, m, nil, "node1")
	h.copyTo(t, "kind-c2")

	err := m.AddCluster(context.Background(), new(guard), remoteconfig.ClusterRequest{ClusterRef: "c2"})
	require.ErrorIs(t, err, remoteconfig.ErrAlreadyExists)

	clusters, err := m.Clusters()
	require.NoError(t, err)
	require.NotContains(t, clusters, "c2")
}
