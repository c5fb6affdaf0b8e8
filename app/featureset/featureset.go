// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package featureset defines a set of global features and their rollout status.
package featureset

import "sync"

// status enumerates the rollout status of a feature.
type status int

const (
	// statusAlpha is for internal testing against development clusters.
	statusAlpha status = iota + 1
	// statusBeta is for testing by early adopters.
	statusBeta
	// statusStable is for stable feature ready for production.
	statusStable
	// statusSentinel is an internal tail-end placeholder.
	statusSentinel // Must always be last
)

func (s status) String() string {
	switch s {
	case statusAlpha:
		return "alpha"
	case statusBeta:
		return "beta"
	case statusStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Feature is a feature being rolled out.
type Feature string

const (
	// StrictRemoteConfig rejects remote configs with fields unknown to this version.
	StrictRemoteConfig Feature = "strict_remote_config"

	// ConsensusNodePods requires running pods for every consensus node before a command
	// modifies a deployment, instead of only checking cluster and namespace references.
	ConsensusNodePods Feature = "consensus_node_pods"
)

var (
	// state defines the current rollout status of each feature.
	state = map[Feature]status{
		StrictRemoteConfig: statusBeta,
		ConsensusNodePods:  statusAlpha,
		// Add all features and there status here.
	}

	// minStatus defines the minimum enabled status.
	minStatus = statusStable

	initMu sync.Mutex
)

// Enabled returns true if the feature is enabled.
func Enabled(feature Feature) bool {
	initMu.Lock()
	defer initMu.Unlock()

	return state[feature] >= minStatus
}
