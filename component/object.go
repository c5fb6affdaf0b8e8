// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package component

import (
	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// Object is the flat wire form of a component as stored in the remote config.
type Object struct {
	Type                 Type      `yaml:"type"`
	Name                 string    `yaml:"name"`
	Cluster              string    `yaml:"cluster"`
	Namespace            string    `yaml:"namespace"`
	NodeID               int       `yaml:"nodeId,omitempty"`
	State                NodeState `yaml:"state,omitempty"`
	ConsensusNodeAliases []string  `yaml:"consensusNodeAliases,omitempty"`
}

// ToObject returns the wire form of the component.
func (c Component) ToObject() Object {
	return Object{
		Type:                 c.typ,
		Name:                 c.name,
		Cluster:              c.cluster,
		Namespace:            c.namespace,
		NodeID:               c.nodeID,
		State:                c.state,
		ConsensusNodeAliases: cloneAliases(c.aliases),
	}
}

// FromObject returns the validated component of the wire form, dispatching on its type.
// Fields not applicable to the type are ignored.
func FromObject(o Object) (Component, error) {
	switch o.Type {
	case TypeConsensusNode:
		return NewConsensusNode(o.Name, o.Cluster, o.Namespace, o.NodeID, o.State)
	case TypeRelay:
		return NewRelay(o.Name, o.Cluster, o.Namespace, o.ConsensusNodeAliases)
	case TypeEnvoyProxy, TypeMirrorNode, TypeExplorer, TypeBlockNode:
		return newBase(o.Type, o.Name, o.Cluster, o.Namespace)
	default:
		return Component{}, errors.Wrap(ErrInvalid, "unknown component type",
			z.Str("field", "type"), z.Any("value", o.Type), z.Str("name", o.Name))
	}
}
