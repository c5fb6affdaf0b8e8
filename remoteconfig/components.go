// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/component"
)

var (
	ErrDuplicateComponent = errors.NewSentinel("duplicate component")
	ErrComponentNotFound  = errors.NewSentinel("component not found")
)

// sections maps component types to their key in the serialized directory.
var sections = map[component.Type]string{
	component.TypeConsensusNode: "consensusNodes",
	component.TypeRelay:         "relays",
	component.TypeEnvoyProxy:    "envoyProxies",
	component.TypeMirrorNode:    "mirrorNodes",
	component.TypeExplorer:      "explorers",
	component.TypeBlockNode:     "blockNodes",
}

// Components is the directory of all components of a deployment, partitioned by type.
// Names are unique across the whole directory and no two consensus nodes share a
// cluster and node id. The zero value is an empty directory.
type Components struct {
	byType map[component.Type]map[string]component.Component
}

// NewEmptyComponents returns an empty directory.
func NewEmptyComponents() *Components {
	byType := make(map[component.Type]map[string]component.Component)
	for _, typ := range component.Types() {
		byType[typ] = make(map[string]component.Component)
	}

	return &Components{byType: byType}
}

// NewComponentsWithNodes returns a directory with a requested consensus node per alias,
// with node ids assigned sequentially from 0 in alias order.
func NewComponentsWithNodes(nodeAliases []string, cluster, namespace string) (*Components, error) {
	c := NewEmptyComponents()

	for i, alias := range nodeAliases {
		node, err := component.NewConsensusNode(alias, cluster, namespace, i, component.StateRequested)
		if err != nil {
			return nil, err
		}

		if err := c.Add(node); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Clone returns a deep copy. Components are immutable, so copying the maps suffices.
func (c *Components) Clone() *Components {
	resp := NewEmptyComponents()
	for typ, byName := range c.byType {
		for name, comp := range byName {
			resp.byType[typ][name] = comp
		}
	}

	return resp
}

// Get returns the named component.
func (c *Components) Get(name string) (component.Component, bool) {
	for _, byName := range c.byType {
		if comp, ok := byName[name]; ok {
			return comp, true
		}
	}

	return component.Component{}, false
}

// Add adds a new component.
func (c *Components) Add(comp component.Component) error {
	if _, ok := c.Get(comp.Name()); ok {
		return errors.Wrap(ErrDuplicateComponent, "add component", z.Str("name", comp.Name()))
	}

	if err := c.checkNodeID(comp); err != nil {
		return err
	}

	c.put(comp)

	return nil
}

// Remove removes the named component. Removing a consensus node still referenced by
// a relay is allowed; validation reports the dangling alias.
func (c *Components) Remove(name string) error {
	comp, ok := c.Get(name)
	if !ok {
		return errors.Wrap(ErrComponentNotFound, "remove component", z.Str("name", name))
	}

	delete(c.byType[comp.Type()], name)

	return nil
}

// Replace replaces the component of the same name, which may change its type.
func (c *Components) Replace(comp component.Component) error {
	prev, ok := c.Get(comp.Name())
	if !ok {
		return errors.Wrap(ErrComponentNotFound, "replace component", z.Str("name", comp.Name()))
	}

	delete(c.byType[prev.Type()], prev.Name())

	if err := c.checkNodeID(comp); err != nil {
		c.put(prev)
		return err
	}

	c.put(comp)

	return nil
}

// put stores the component, allocating its type partition on first use.
func (c *Components) put(comp component.Component) {
	if c.byType == nil {
		c.byType = make(map[component.Type]map[string]component.Component)
	}

	byName, ok := c.byType[comp.Type()]
	if !ok {
		byName = make(map[string]component.Component)
		c.byType[comp.Type()] = byName
	}

	byName[comp.Name()] = comp
}

// OfType returns the components of the type sorted by name.
func (c *Components) OfType(typ component.Type) []component.Component {
	var resp []component.Component
	for _, comp := range c.byType[typ] {
		resp = append(resp, comp)
	}

	sort.Slice(resp, func(i, j int) bool {
		return resp[i].Name() < resp[j].Name()
	})

	return resp
}

// ConsensusNodes returns the consensus nodes sorted by cluster and node id.
func (c *Components) ConsensusNodes() []component.Component {
	resp := c.OfType(component.TypeConsensusNode)
	sort.SliceStable(resp, func(i, j int) bool {
		if resp[i].Cluster() != resp[j].Cluster() {
			return resp[i].Cluster() < resp[j].Cluster()
		}

		return resp[i].NodeID() < resp[j].NodeID()
	})

	return resp
}

// All returns all components in type order, sorted by name within each type.
func (c *Components) All() []component.Component {
	var resp []component.Component
	for _, typ := range component.Types() {
		resp = append(resp, c.OfType(typ)...)
	}

	return resp
}

// Len returns the total number of components.
func (c *Components) Len() int {
	var n int
	for _, byName := range c.byType {
		n += len(byName)
	}

	return n
}

func (c *Components) checkNodeID(comp component.Component) error {
	if comp.Type() != component.TypeConsensusNode {
		return nil
	}

	for _, other := range c.byType[component.TypeConsensusNode] {
		if other.Name() != comp.Name() && other.Cluster() == comp.Cluster() && other.NodeID() == comp.NodeID() {
			return errors.Wrap(ErrDuplicateComponent, "duplicate consensus node id in cluster",
				z.Str("name", comp.Name()), z.Str("other", other.Name()),
				z.Str("cluster", comp.Cluster()), z.Int("node_id", comp.NodeID()))
		}
	}

	return nil
}

// MarshalYAML encodes the directory as a map of sections to component objects by name.
func (c *Components) MarshalYAML() (any, error) {
	resp := make(map[string]map[string]component.Object)
	for typ, byName := range c.byType {
		objects := make(map[string]component.Object)
		for name, comp := range byName {
			objects[name] = comp.ToObject()
		}

		resp[sections[typ]] = objects
	}

	return resp, nil
}

// UnmarshalYAML decodes and validates the directory. The section of a component
// defines its type; objects without a type inherit it.
func (c *Components) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]map[string]component.Object
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "decode components")
	}

	resp := NewEmptyComponents()

	for _, typ := range component.Types() {
		for name, obj := range raw[sections[typ]] {
			if obj.Type == "" {
				obj.Type = typ
			} else if obj.Type != typ {
				return errors.Wrap(component.ErrInvalid, "component type does not match section",
					z.Str("name", name), z.Any("type", obj.Type), z.Str("section", sections[typ]))
			}

			if obj.Name == "" {
				obj.Name = name
			} else if obj.Name != name {
				return errors.Wrap(component.ErrInvalid, "component name does not match key",
					z.Str("name", obj.Name), z.Str("key", name))
			}

			comp, err := component.FromObject(obj)
			if err != nil {
				return err
			}

			if err := resp.Add(comp); err != nil {
				return err
			}
		}

		delete(raw, sections[typ])
	}

	for section := range raw {
		return errors.New("unknown components section", z.Str("section", section))
	}

	*c = *resp

	return nil
}
