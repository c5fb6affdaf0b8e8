// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"time"

	"github.com/obolnetwork/ledgerctl/localconfig"
)

// DeploymentState is the lifecycle state of a deployment.
type DeploymentState string

const (
	DeploymentRequested DeploymentState = "requested"
	DeploymentDeployed  DeploymentState = "deployed"
	DeploymentDeleted   DeploymentState = "deleted"
)

// Valid returns true if the state is known.
func (s DeploymentState) Valid() bool {
	switch s {
	case DeploymentRequested, DeploymentDeployed, DeploymentDeleted:
		return true
	default:
		return false
	}
}

// Metadata describes the deployment and its last writer.
type Metadata struct {
	Namespace     string                   `yaml:"namespace"`
	Deployment    string                   `yaml:"deployment"`
	State         DeploymentState          `yaml:"state"`
	LastUpdatedAt time.Time                `yaml:"lastUpdatedAt"`
	LastUpdatedBy localconfig.UserIdentity `yaml:"lastUpdatedBy"`
	ToolVersion   string                   `yaml:"toolVersion"`

	ChartVersion           string `yaml:"chartVersion,omitempty"`
	PlatformVersion        string `yaml:"platformVersion,omitempty"`
	MirrorNodeChartVersion string `yaml:"mirrorNodeChartVersion,omitempty"`
	ExplorerChartVersion   string `yaml:"explorerChartVersion,omitempty"`
	RelayChartVersion      string `yaml:"relayChartVersion,omitempty"`
}
