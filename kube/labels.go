// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package kube

const (
	// RemoteConfigName is the name of the config map holding a deployment's remote config.
	RemoteConfigName = "ledgerctl-remote-config"
	// RemoteConfigDataKey is the config map data key of the serialized remote config.
	RemoteConfigDataKey = "remote-config-data"

	typeLabel        = "ledgerctl.io/type"
	remoteConfigType = "remote-config"

	// RemoteConfigSelector selects remote config maps.
	RemoteConfigSelector = typeLabel + "=" + remoteConfigType
)

// RemoteConfigLabels returns the labels of remote config maps.
func RemoteConfigLabels() map[string]string {
	return map[string]string{typeLabel: remoteConfigType}
}

// ConsensusNodeSelector returns the label selector of a consensus node's pods.
func ConsensusNodeSelector(nodeAlias string) string {
	return "app=network-" + nodeAlias
}
