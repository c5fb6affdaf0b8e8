// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/featureset"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/localconfig"
)

// Supported schema versions. Envelopes are always written with the latest.
const (
	SchemaV0_1_0 = "v0.1.0"
	SchemaV1_0_0 = "v1.0.0"

	SchemaLatest = SchemaV1_0_0
)

var (
	ErrInvalid           = errors.NewSentinel("invalid remote config")
	ErrUnsupportedSchema = errors.NewSentinel("unsupported remote config schema version")
)

// Envelope is the remote config document of a deployment, replicated to every cluster.
type Envelope struct {
	Metadata            Metadata
	Clusters            map[string]Cluster
	Components          *Components
	CommandHistory      []string
	LastExecutedCommand string
	Flags               Flags
}

// NewEnvelope returns an envelope with empty history.
func NewEnvelope(metadata Metadata, clusters map[string]Cluster, components *Components) *Envelope {
	if components == nil {
		components = NewEmptyComponents()
	}

	return &Envelope{
		Metadata:   metadata,
		Clusters:   maps.Clone(clusters),
		Components: components,
		Flags:      make(Flags),
	}
}

// AddCommandToHistory appends the command to the history and marks it as last executed.
func (e *Envelope) AddCommandToHistory(command string) {
	e.CommandHistory = append(e.CommandHistory, command)
	e.LastExecutedCommand = command
}

// Clone returns a deep copy.
func (e *Envelope) Clone() *Envelope {
	return &Envelope{
		Metadata:            e.Metadata,
		Clusters:            maps.Clone(e.Clusters),
		Components:          e.Components.Clone(),
		CommandHistory:      slices.Clone(e.CommandHistory),
		LastExecutedCommand: e.LastExecutedCommand,
		Flags:               maps.Clone(e.Flags),
	}
}

// ClusterRefs returns the registered cluster references, sorted.
func (e *Envelope) ClusterRefs() []string {
	return slices.Sorted(maps.Keys(e.Clusters))
}

// Validate checks the structure of the envelope. References to clusters and workloads
// are checked by Validate at package level.
func (e *Envelope) Validate() error {
	if e.Metadata.Namespace == "" || e.Metadata.Deployment == "" {
		return errors.Wrap(ErrInvalid, "missing namespace or deployment in metadata")
	}

	if !e.Metadata.State.Valid() {
		return errors.Wrap(ErrInvalid, "invalid deployment state", z.Any("state", e.Metadata.State))
	}

	for ref, cluster := range e.Clusters {
		if ref != cluster.Name {
			return errors.Wrap(ErrInvalid, "cluster name does not match key", z.Str("key", ref), z.Str("name", cluster.Name))
		}

		if err := cluster.Validate(); err != nil {
			return err
		}
	}

	if e.Components == nil {
		return errors.Wrap(ErrInvalid, "missing components")
	}

	return nil
}

type envelopeV1 struct {
	SchemaVersion       string             `yaml:"schemaVersion"`
	Metadata            Metadata           `yaml:"metadata"`
	Clusters            map[string]Cluster `yaml:"clusters"`
	Components          *Components        `yaml:"components"`
	CommandHistory      []string           `yaml:"commandHistory"`
	LastExecutedCommand string             `yaml:"lastExecutedCommand"`
	Flags               Flags              `yaml:"flags,omitempty"`
}

// metadataV0 differs from Metadata in recording only the user name of the last writer.
type metadataV0 struct {
	Namespace     string          `yaml:"namespace"`
	Deployment    string          `yaml:"deployment"`
	State         DeploymentState `yaml:"state"`
	LastUpdatedAt time.Time       `yaml:"lastUpdatedAt"`
	LastUpdatedBy string          `yaml:"lastUpdatedBy"`
	ToolVersion   string          `yaml:"toolVersion"`

	ChartVersion           string `yaml:"chartVersion,omitempty"`
	PlatformVersion        string `yaml:"platformVersion,omitempty"`
	MirrorNodeChartVersion string `yaml:"mirrorNodeChartVersion,omitempty"`
	ExplorerChartVersion   string `yaml:"explorerChartVersion,omitempty"`
	RelayChartVersion      string `yaml:"relayChartVersion,omitempty"`
}

type envelopeV0 struct {
	SchemaVersion       string             `yaml:"schemaVersion"`
	Metadata            metadataV0         `yaml:"metadata"`
	Clusters            map[string]Cluster `yaml:"clusters"`
	Components          *Components        `yaml:"components"`
	CommandHistory      []string           `yaml:"commandHistory"`
	LastExecutedCommand string             `yaml:"lastExecutedCommand"`
}

// Encode returns the YAML document of the envelope with the latest schema version.
func Encode(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	b, err := yaml.Marshal(envelopeV1{
		SchemaVersion:       SchemaLatest,
		Metadata:            e.Metadata,
		Clusters:            e.Clusters,
		Components:          e.Components,
		CommandHistory:      e.CommandHistory,
		LastExecutedCommand: e.LastExecutedCommand,
		Flags:               e.Flags,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal remote config")
	}

	return b, nil
}

// Decode parses and validates a YAML document of any supported schema version.
func Decode(b []byte) (*Envelope, error) {
	var header struct {
		SchemaVersion string `yaml:"schemaVersion"`
	}
	if err := yaml.Unmarshal(b, &header); err != nil {
		return nil, errors.Wrap(ErrInvalid, "unmarshal remote config", z.Str("reason", err.Error()))
	}

	var resp *Envelope

	switch header.SchemaVersion {
	case SchemaV1_0_0:
		var raw envelopeV1
		if err := unmarshal(b, &raw); err != nil {
			return nil, errors.Wrap(ErrInvalid, "unmarshal remote config", z.Str("reason", err.Error()))
		}

		resp = &Envelope{
			Metadata:            raw.Metadata,
			Clusters:            raw.Clusters,
			Components:          raw.Components,
			CommandHistory:      raw.CommandHistory,
			LastExecutedCommand: raw.LastExecutedCommand,
			Flags:               raw.Flags,
		}
	case SchemaV0_1_0:
		var raw envelopeV0
		if err := unmarshal(b, &raw); err != nil {
			return nil, errors.Wrap(ErrInvalid, "unmarshal remote config", z.Str("reason", err.Error()))
		}

		resp = &Envelope{
			Metadata: Metadata{
				Namespace:              raw.Metadata.Namespace,
				Deployment:             raw.Metadata.Deployment,
				State:                  raw.Metadata.State,
				LastUpdatedAt:          raw.Metadata.LastUpdatedAt,
				LastUpdatedBy:          localconfig.UserIdentity{Name: raw.Metadata.LastUpdatedBy},
				ToolVersion:            raw.Metadata.ToolVersion,
				ChartVersion:           raw.Metadata.ChartVersion,
				PlatformVersion:        raw.Metadata.PlatformVersion,
				MirrorNodeChartVersion: raw.Metadata.MirrorNodeChartVersion,
				ExplorerChartVersion:   raw.Metadata.ExplorerChartVersion,
				RelayChartVersion:      raw.Metadata.RelayChartVersion,
			},
			Clusters:            raw.Clusters,
			Components:          raw.Components,
			CommandHistory:      raw.CommandHistory,
			LastExecutedCommand: raw.LastExecutedCommand,
		}
	default:
		return nil, errors.Wrap(ErrUnsupportedSchema, "decode remote config", z.Str("schema_version", header.SchemaVersion))
	}

	if resp.Components == nil {
		resp.Components = NewEmptyComponents()
	}

	if resp.Flags == nil {
		resp.Flags = make(Flags)
	}

	if err := resp.Validate(); err != nil {
		return nil, err
	}

	return resp, nil
}

// unmarshal decodes the document, rejecting unknown fields if the strict remote config feature is enabled.
func unmarshal(b []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(featureset.Enabled(featureset.StrictRemoteConfig))

	return dec.Decode(v)
}
