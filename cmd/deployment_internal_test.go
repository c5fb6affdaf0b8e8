// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/ledgerctl/app/featureset"
	"github.com/obolnetwork/ledgerctl/component"
	"github.com/obolnetwork/ledgerctl/kube"
	"github.com/obolnetwork/ledgerctl/lease"
	"github.com/obolnetwork/ledgerctl/localconfig"
	"github.com/obolnetwork/ledgerctl/remoteconfig"
	"github.com/obolnetwork/ledgerctl/testutil/kubemock"
)

const testLocalConfig = `userIdentity:
  name: alice
  hostname: laptop
`

// newTestConnection returns a connection to a temporary local config of user alice.
func newTestConnection(t *testing.T) connectionConfig {
	t.Helper()

	path := filepath.Join(t.TempDir(), "local-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testLocalConfig), 0o644))

	return connectionConfig{LocalConfig: path}
}

func newTestDeployment(conn connectionConfig, command string, flags map[string]string) deploymentConfig {
	return deploymentConfig{
		connectionConfig: conn,
		Deployment:       "dep",
		Namespace:        "solo-e2e",
		LeaseAttempts:    1,
		LeaseDuration:    lease.DefaultDuration,
		Argv:             remoteconfig.NewArgv(strings.Fields(command), flags),
	}
}

func TestDeploymentLifecycle(t *testing.T) {
	ctx := context.Background()
	factory := kubemock.New("kind-c1")
	conn := newTestConnection(t)

	var buf bytes.Buffer
	show := func(t *testing.T) *remoteconfig.Envelope {
		t.Helper()
		buf.Reset()
		require.NoError(t, runDeploymentShow(ctx, &buf, factory, newTestDeployment(conn, "deployment show", nil)))

		env, err := remoteconfig.Decode(buf.Bytes())
		require.NoError(t, err)

		return env
	}

	// Deployments require connected cluster refs.
	err := runDeploymentCreate(ctx, &buf, factory, deploymentCreateConfig{
		deploymentConfig: newTestDeployment(conn, "deployment create", nil),
		ClusterRef:       "c1",
	})
	require.ErrorIs(t, err, localconfig.ErrClusterRefNotFound)

	err = runClusterRefConnect(ctx, &buf, factory, clusterRefConnectConfig{connectionConfig: conn, ClusterRef: "c1", Context: "kind-unknown"})
	require.ErrorIs(t, err, kube.ErrUnknownContext)

	require.NoError(t, runClusterRefConnect(ctx, &buf, factory, clusterRefConnectConfig{connectionConfig: conn, ClusterRef: "c1", Context: "kind-c1"}))

	createFlags := map[string]string{
		remoteconfig.FlagNodeAliases: "node1,node2",
		remoteconfig.FlagReleaseTag:  "v0.60.0",
	}
	require.NoError(t, runDeploymentCreate(ctx, &buf, factory, deploymentCreateConfig{
		deploymentConfig: newTestDeployment(conn, "deployment create", createFlags),
		ClusterRef:       "c1",
		NodeAliases:      []string{"node1", "node2"},
	}))

	local, err := localconfig.Load(conn.LocalConfig)
	require.NoError(t, err)
	require.Equal(t, []string{"dep"}, local.DeploymentNames())

	env := show(t)
	require.Equal(t, "v0.60.0", env.Metadata.PlatformVersion)
	require.Len(t, env.Components.ConsensusNodes(), 2)

	// Platform versions never go backwards.
	err = runNodeAdd(ctx, &buf, factory, nodeAddConfig{
		deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node3", remoteconfig.FlagReleaseTag: "v0.59.0"}),
		NodeAlias:        "node3",
	})
	require.ErrorIs(t, err, remoteconfig.ErrFlagConflict)

	require.NoError(t, runNodeAdd(ctx, &buf, factory, nodeAddConfig{
		deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node3"}),
		NodeAlias:        "node3",
	}))

	node3, ok := show(t).Components.Get("node3")
	require.True(t, ok)
	require.Equal(t, 2, node3.NodeID())
	require.Equal(t, "c1", node3.Cluster())
	require.Equal(t, component.StateRequested, node3.NodeState())

	err = runRelayAdd(ctx, &buf, factory, relayAddConfig{
		deploymentConfig: newTestDeployment(conn, "relay add", map[string]string{remoteconfig.FlagNodeAliases: "node4"}),
		Name:             "relay",
		NodeAliases:      []string{"node4"},
	})
	require.ErrorContains(t, err, "relay references unknown consensus node")

	require.NoError(t, runRelayAdd(ctx, &buf, factory, relayAddConfig{
		deploymentConfig: newTestDeployment(conn, "relay add", map[string]string{remoteconfig.FlagNodeAliases: "node1,node3"}),
		Name:             "relay",
		NodeAliases:      []string{"node1", "node3"},
	}))

	relay, ok := show(t).Components.Get("relay")
	require.True(t, ok)
	require.Equal(t, []string{"node1", "node3"}, relay.ConsensusNodeAliases())

	buf.Reset()
	require.NoError(t, runDeploymentHistory(ctx, &buf, factory, newTestDeployment(conn, "deployment history", nil)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "Executed by alice: deployment create")
	require.Contains(t, lines[1], "node add --node-alias=node3")
	require.Contains(t, lines[2], "relay add")

	require.NoError(t, runDeploymentDeleteComponents(ctx, &buf, factory, newTestDeployment(conn, "deployment delete-components", nil)))

	env = show(t)
	require.Equal(t, 0, env.Components.Len())
	require.Len(t, env.CommandHistory, 3)
}

func TestLeaseCommands(t *testing.T) {
	ctx := context.Background()
	factory := kubemock.New("kind-c1")
	conn := newTestConnection(t)

	var buf bytes.Buffer
	require.NoError(t, runClusterRefConnect(ctx, &buf, factory, clusterRefConnectConfig{connectionConfig: conn, ClusterRef: "c1", Context: "kind-c1"}))
	require.NoError(t, runDeploymentCreate(ctx, &buf, factory, deploymentCreateConfig{
		deploymentConfig: newTestDeployment(conn, "deployment create", nil),
		ClusterRef:       "c1",
	}))

	// Commands release the lease when done.
	buf.Reset()
	require.NoError(t, runLeaseShow(ctx, &buf, factory, newTestDeployment(conn, "lease show", nil)))
	require.Equal(t, "Deployment dep is not locked\n", buf.String())

	client, err := factory.Client("kind-c1")
	require.NoError(t, err)
	bob, err := lease.New(client, "solo-e2e", "dep", "bob@desktop/1")
	require.NoError(t, err)
	require.NoError(t, bob.Create(ctx))

	buf.Reset()
	require.NoError(t, runLeaseShow(ctx, &buf, factory, newTestDeployment(conn, "lease show", nil)))
	require.Contains(t, buf.String(), "Holder:   bob@desktop/1")
	require.Contains(t, buf.String(), "State:    held")

	// A held lease blocks other sessions.
	err = runNodeAdd(ctx, &buf, factory, nodeAddConfig{
		deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node1"}),
		NodeAlias:        "node1",
	})
	require.Error(t, err)

	err = runLeaseRelease(ctx, &buf, factory, leaseReleaseConfig{deploymentConfig: newTestDeployment(conn, "lease release", nil)})
	require.ErrorContains(t, err, "lease still held, use --force to break it")

	buf.Reset()
	require.NoError(t, runLeaseRelease(ctx, &buf, factory, leaseReleaseConfig{
		deploymentConfig: newTestDeployment(conn, "lease release", nil),
		Force:            true,
	}))
	require.Equal(t, "Released lease of deployment dep held by bob@desktop/1\n", buf.String())

	require.NoError(t, runNodeAdd(ctx, &buf, factory, nodeAddConfig{
		deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node1"}),
		NodeAlias:        "node1",
	}))

	// Sub-second leases are rejected before touching the lease.
	for _, duration := range []time.Duration{0, 500 * time.Millisecond} {
		conf := newTestDeployment(conn, "node add", map[string]string{"node-alias": "node2"})
		conf.LeaseDuration = duration

		err = runNodeAdd(ctx, &buf, factory, nodeAddConfig{deploymentConfig: conf, NodeAlias: "node2"})
		require.ErrorContains(t, err, "lease duration below one second")
	}

	buf.Reset()
	require.NoError(t, runLeaseShow(ctx, &buf, factory, newTestDeployment(conn, "lease show", nil)))
	require.Equal(t, "Deployment dep is not locked\n", buf.String())
}

func TestDeploymentAddCluster(t *testing.T) {
	ctx := context.Background()
	factory := kubemock.New("kind-c1", "kind-c2")
	conn := newTestConnection(t)

	var buf bytes.Buffer
	for _, ref := range []string{"c1", "c2"} {
		require.NoError(t, runClusterRefConnect(ctx, &buf, factory, clusterRefConnectConfig{
			connectionConfig: conn,
			ClusterRef:       ref,
			Context:          "kind-" + ref,
		}))
	}

	createFlags := map[string]string{
		remoteconfig.FlagNodeAliases:   "node1",
		remoteconfig.FlagDNSBaseDomain: "example.com",
	}
	require.NoError(t, runDeploymentCreate(ctx, &buf, factory, deploymentCreateConfig{
		deploymentConfig: newTestDeployment(conn, "deployment create", createFlags),
		ClusterRef:       "c1",
		NodeAliases:      []string{"node1"},
		DNSBaseDomain:    "example.com",
	}))

	addCluster := func(ref string) error {
		buf.Reset()
		return runDeploymentAddCluster(ctx, &buf, factory, deploymentAddClusterConfig{
			deploymentConfig: newTestDeployment(conn, "deployment add-cluster", map[string]string{"cluster-ref": ref}),
			ClusterRef:       ref,
		})
	}

	require.ErrorIs(t, addCluster("c1"), remoteconfig.ErrClusterExists)
	require.ErrorIs(t, addCluster("c3"), localconfig.ErrClusterRefNotFound)

	require.NoError(t, addCluster("c2"))
	require.Equal(t, "Added cluster ref c2 (context kind-c2) to deployment dep\n", buf.String())
	require.ErrorIs(t, addCluster("c2"), remoteconfig.ErrClusterExists)

	local, err := localconfig.Load(conn.LocalConfig)
	require.NoError(t, err)
	dep, err := local.Deployment("dep")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, dep.ClusterRefs)

	err = runNodeAdd(ctx, &buf, factory, nodeAddConfig{
		deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node2"}),
		NodeAlias:        "node2",
	})
	require.ErrorContains(t, err, "deployment spans multiple clusters, specify --cluster-ref")

	require.NoError(t, runNodeAdd(ctx, &buf, factory, nodeAddConfig{
		deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node2", "cluster-ref": "c2"}),
		NodeAlias:        "node2",
		ClusterRef:       "c2",
	}))

	// Both clusters hold the same remote config.
	var envs []*remoteconfig.Envelope
	for _, kubeContext := range []string{"kind-c1", "kind-c2"} {
		conf := newTestDeployment(conn, "deployment show", nil)
		conf.Context = kubeContext

		buf.Reset()
		require.NoError(t, runDeploymentShow(ctx, &buf, factory, conf))

		env, err := remoteconfig.Decode(buf.Bytes())
		require.NoError(t, err)

		require.Equal(t, []string{"c1", "c2"}, env.ClusterRefs())
		require.Equal(t, "example.com", env.Clusters["c2"].DNSBaseDomain)

		node2, ok := env.Components.Get("node2")
		require.True(t, ok)
		require.Equal(t, "c2", node2.Cluster())
		require.Equal(t, 1, node2.NodeID())

		envs = append(envs, env)
	}

	require.Equal(t, envs[0].CommandHistory, envs[1].CommandHistory)
	require.Contains(t, envs[0].CommandHistory, "Executed by alice: deployment add-cluster --cluster-ref=c2")
}

func TestClusterRefChecks(t *testing.T) {
	ctx := context.Background()
	factory := kubemock.New("kind-c1")
	factory.AddIngressClass(t, "kind-c1", "haproxy")
	factory.AddPod(t, "kind-c1", "solo-e2e", "minio-0", map[string]string{"app": "minio"})
	conn := newTestConnection(t)

	var buf bytes.Buffer
	err := runClusterRefChecks(ctx, &buf, factory, clusterRefChecksConfig{connectionConfig: conn, ClusterRef: "c1"})
	require.ErrorIs(t, err, localconfig.ErrClusterRefNotFound)

	require.NoError(t, runClusterRefConnect(ctx, &buf, factory, clusterRefConnectConfig{connectionConfig: conn, ClusterRef: "c1", Context: "kind-c1"}))

	buf.Reset()
	require.NoError(t, runClusterRefChecks(ctx, &buf, factory, clusterRefChecksConfig{connectionConfig: conn, ClusterRef: "c1", Namespace: "solo-e2e"}))
	require.Equal(t, strings.Join([]string{
		"cert-manager         missing",
		"ingress controller   ok",
		"minio                ok",
		"prometheus           missing",
		"remote config        missing",
	}, "\n")+"\n", buf.String())
}

func TestConsensusNodePodsFeature(t *testing.T) {
	ctx := context.Background()
	factory := kubemock.New("kind-c1")
	conn := newTestConnection(t)

	var buf bytes.Buffer
	require.NoError(t, runClusterRefConnect(ctx, &buf, factory, clusterRefConnectConfig{connectionConfig: conn, ClusterRef: "c1", Context: "kind-c1"}))
	require.NoError(t, runDeploymentCreate(ctx, &buf, factory, deploymentCreateConfig{
		deploymentConfig: newTestDeployment(conn, "deployment create", map[string]string{remoteconfig.FlagNodeAliases: "node1"}),
		ClusterRef:       "c1",
		NodeAliases:      []string{"node1"},
	}))

	addNode2 := func() error {
		return runNodeAdd(ctx, &buf, factory, nodeAddConfig{
			deploymentConfig: newTestDeployment(conn, "node add", map[string]string{"node-alias": "node2"}),
			NodeAlias:        "node2",
		})
	}

	featureset.EnableForT(t, featureset.ConsensusNodePods)

	err := addNode2()
	require.ErrorContains(t, err, "consensus node node1 has no pods in kind-c1")

	factory.AddPod(t, "kind-c1", "solo-e2e", "network-node1-0", map[string]string{"app": "network-node1"})
	require.NoError(t, addNode2())
}
