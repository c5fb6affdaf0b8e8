// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package component defines the deployable units of a ledger network deployment.
//
// A Component is an immutable tagged union: Type selects the variant and only the
// variant's own fields are populated. Components are constructed via the New*
// functions or FromObject, which validate synchronously.
package component

import (
	"slices"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// ErrInvalid is wrapped by all component validation errors.
var ErrInvalid = errors.NewSentinel("invalid component")

// Type enumerates the component variants.
type Type string

const (
	TypeConsensusNode Type = "consensusNode"
	TypeRelay         Type = "relay"
	TypeEnvoyProxy    Type = "envoyProxy"
	TypeMirrorNode    Type = "mirrorNode"
	TypeExplorer      Type = "explorer"
	TypeBlockNode     Type = "blockNode"
)

// Types returns all known component types in directory order.
func Types() []Type {
	return []Type{
		TypeConsensusNode,
		TypeRelay,
		TypeEnvoyProxy,
		TypeMirrorNode,
		TypeExplorer,
		TypeBlockNode,
	}
}

// Valid returns true if t is a known component type.
func (t Type) Valid() bool {
	return slices.Contains(Types(), t)
}

// NodeState is the lifecycle state of a consensus node.
type NodeState string

const (
	StateRequested   NodeState = "requested"
	StateInitialized NodeState = "initialized"
	StateStarted     NodeState = "started"
	StateFrozen      NodeState = "frozen"
	StateStopped     NodeState = "stopped"
)

// Valid returns true if s is a known consensus node state.
func (s NodeState) Valid() bool {
	switch s {
	case StateRequested, StateInitialized, StateStarted, StateFrozen, StateStopped:
		return true
	default:
		return false
	}
}

// Component is one deployable unit of the network topology.
// The zero value is not valid; use the constructors.
type Component struct {
	typ       Type
	name      string
	cluster   string
	namespace string

	// consensus node fields
	nodeID int
	state  NodeState

	// relay fields
	aliases []string
}

// NewConsensusNode returns a validated consensus node component.
func NewConsensusNode(name, cluster, namespace string, nodeID int, state NodeState) (Component, error) {
	c := Component{
		typ:       TypeConsensusNode,
		name:      name,
		cluster:   cluster,
		namespace: namespace,
		nodeID:    nodeID,
		state:     state,
	}

	return c, c.validate()
}

// NewRelay returns a validated relay component serving the consensus node aliases.
// An empty alias list is valid.
func NewRelay(name, cluster, namespace string, consensusNodeAliases []string) (Component, error) {
	c := Component{
		typ:       TypeRelay,
		name:      name,
		cluster:   cluster,
		namespace: namespace,
		aliases:   cloneAliases(consensusNodeAliases),
	}

	return c, c.validate()
}

// NewEnvoyProxy returns a validated envoy proxy component.
func NewEnvoyProxy(name, cluster, namespace string) (Component, error) {
	return newBase(TypeEnvoyProxy, name, cluster, namespace)
}

// NewMirrorNode returns a validated mirror node component.
func NewMirrorNode(name, cluster, namespace string) (Component, error) {
	return newBase(TypeMirrorNode, name, cluster, namespace)
}

// NewExplorer returns a validated explorer component.
func NewExplorer(name, cluster, namespace string) (Component, error) {
	return newBase(TypeExplorer, name, cluster, namespace)
}

// NewBlockNode returns a validated block node component.
func NewBlockNode(name, cluster, namespace string) (Component, error) {
	return newBase(TypeBlockNode, name, cluster, namespace)
}

func newBase(typ Type, name, cluster, namespace string) (Component, error) {
	c := Component{
		typ:       typ,
		name:      name,
		cluster:   cluster,
		namespace: namespace,
	}

	return c, c.validate()
}

// Type returns the variant tag.
func (c Component) Type() Type {
	return c.typ
}

// Name returns the unique name of the component within its deployment.
func (c Component) Name() string {
	return c.name
}

// Cluster returns the cluster reference the component is deployed to.
func (c Component) Cluster() string {
	return c.cluster
}

// Namespace returns the kubernetes namespace the component is deployed to.
func (c Component) Namespace() string {
	return c.namespace
}

// NodeID returns the consensus node id, zero for other variants.
func (c Component) NodeID() int {
	return c.nodeID
}

// NodeState returns the consensus node state, empty for other variants.
func (c Component) NodeState() NodeState {
	return c.state
}

// ConsensusNodeAliases returns a copy of the relay's consensus node aliases.
func (c Component) ConsensusNodeAliases() []string {
	return cloneAliases(c.aliases)
}

// WithState returns a copy of the consensus node in the given state.
func (c Component) WithState(state NodeState) (Component, error) {
	if c.typ != TypeConsensusNode {
		return Component{}, errors.Wrap(ErrInvalid, "state only applies to consensus nodes",
			z.Str("name", c.name), z.Any("type", c.typ))
	}

	resp := c
	resp.state = state

	return resp, resp.validate()
}

// validate dispatches on the type tag.
func (c Component) validate() error {
	if !c.typ.Valid() {
		return invalid("type", string(c.typ), c.name)
	} else if c.name == "" {
		return invalid("name", c.name, c.name)
	} else if c.cluster == "" {
		return invalid("cluster", c.cluster, c.name)
	} else if c.namespace == "" {
		return invalid("namespace", c.namespace, c.name)
	}

	switch c.typ {
	case TypeConsensusNode:
		if !c.state.Valid() {
			return invalid("state", string(c.state), c.name)
		} else if c.nodeID < 0 {
			return invalid("nodeId", c.nodeID, c.name)
		}
	case TypeRelay:
		for i, alias := range c.aliases {
			if alias == "" {
				return errors.Wrap(ErrInvalid, "empty consensus node alias",
					z.Str("field", "consensusNodeAliases"), z.Int("index", i), z.Str("name", c.name))
			}
		}
	default:
	}

	return nil
}

func invalid(field string, value any, name string) error {
	return errors.Wrap(ErrInvalid, "invalid "+field,
		z.Str("field", field), z.Any("value", value), z.Str("name", name))
}

func cloneAliases(aliases []string) []string {
	if len(aliases) == 0 {
		return nil
	}

	return slices.Clone(aliases)
}
