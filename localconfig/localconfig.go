// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package localconfig stores the operator's local state: identity, deployments and the
// mapping of cluster references to kube contexts.
package localconfig

import (
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

var (
	ErrClusterRefExists   = errors.NewSentinel("cluster ref already exists")
	ErrDeploymentExists   = errors.NewSentinel("deployment already exists")
	ErrDeploymentNotFound = errors.NewSentinel("deployment not found in local config")
	ErrClusterRefNotFound = errors.NewSentinel("cluster ref not found in local config")
	errInvalidConfig      = errors.NewSentinel("invalid local config")
)

// validate checks struct tags, with "k8sname" requiring a DNS-1123 label.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("k8sname", func(fl validator.FieldLevel) bool {
		return len(k8svalidation.IsDNS1123Label(fl.Field().String())) == 0
	})

	return v
}

// UserIdentity identifies the operator in remote config history and lease holders.
type UserIdentity struct {
	Name     string `yaml:"name"     validate:"required"`
	Hostname string `yaml:"hostname" validate:"required"`
}

// Deployment is a named deployment spanning one or more clusters in one namespace.
type Deployment struct {
	Namespace   string   `yaml:"namespace" validate:"required,k8sname"`
	ClusterRefs []string `yaml:"clusters"  validate:"required,min=1,unique,dive,required"`
}

// Config is the local configuration file.
type Config struct {
	UserIdentity UserIdentity          `yaml:"userIdentity"`
	Deployments  map[string]Deployment `yaml:"deployments,omitempty" validate:"dive,keys,required,endkeys"`
	ClusterRefs  map[string]string     `yaml:"clusterRefs,omitempty" validate:"dive,keys,required,endkeys,required"`

	path string
}

// DefaultPath returns ~/.ledgerctl/local-config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "user home dir")
	}

	return filepath.Join(home, ".ledgerctl", "local-config.yaml"), nil
}

// Load reads and validates the config file. A missing file results in an empty
// config with the current OS user as identity.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		identity, err := currentIdentity()
		if err != nil {
			return nil, err
		}

		return &Config{UserIdentity: identity, path: path}, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "read local config", z.Str("path", path))
	}

	conf := new(Config)
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, errors.Wrap(err, "unmarshal local config", z.Str("path", path))
	}

	conf.path = path

	if conf.UserIdentity.Name == "" {
		conf.UserIdentity, err = currentIdentity()
		if err != nil {
			return nil, err
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "load local config", z.Str("path", path))
	}

	return conf, nil
}

// Save validates and writes the config to the path it was loaded from.
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return err
	}

	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal local config")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "create local config dir", z.Str("path", c.path))
	}

	if err := os.WriteFile(c.path, b, 0o644); err != nil { //nolint:gosec // Not secret.
		return errors.Wrap(err, "write local config", z.Str("path", c.path))
	}

	return nil
}

// Validate checks the config's invariants, including that every deployment's cluster
// refs are mapped to a kube context.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errInvalidConfig, err.Error())
	}

	for name, d := range c.Deployments {
		for _, ref := range d.ClusterRefs {
			if _, ok := c.ClusterRefs[ref]; !ok {
				return errors.Wrap(ErrClusterRefNotFound, "deployment references unmapped cluster",
					z.Str("deployment", name), z.Str("cluster_ref", ref))
			}
		}
	}

	return nil
}

// Deployment returns the named deployment.
func (c *Config) Deployment(name string) (Deployment, error) {
	d, ok := c.Deployments[name]
	if !ok {
		return Deployment{}, errors.Wrap(ErrDeploymentNotFound, "get deployment", z.Str("deployment", name))
	}

	return Deployment{
		Namespace:   d.Namespace,
		ClusterRefs: slices.Clone(d.ClusterRefs),
	}, nil
}

// DeploymentNames returns the sorted deployment names.
func (c *Config) DeploymentNames() []string {
	var resp []string
	for name := range c.Deployments {
		resp = append(resp, name)
	}
	sort.Strings(resp)

	return resp
}

// Context returns the kube context of the cluster ref.
func (c *Config) Context(clusterRef string) (string, bool) {
	kubeCtx, ok := c.ClusterRefs[clusterRef]
	return kubeCtx, ok
}

// ClusterRefContexts returns a copy of the cluster ref to kube context mapping.
func (c *Config) ClusterRefContexts() map[string]string {
	resp := make(map[string]string, len(c.ClusterRefs))
	for ref, kubeCtx := range c.ClusterRefs {
		resp[ref] = kubeCtx
	}

	return resp
}

// AddClusterRef maps a new cluster ref to a kube context.
func (c *Config) AddClusterRef(clusterRef, kubeContext string) error {
	if existing, ok := c.ClusterRefs[clusterRef]; ok {
		return errors.Wrap(ErrClusterRefExists, "connect cluster ref",
			z.Str("cluster_ref", clusterRef), z.Str("context", existing))
	}

	if c.ClusterRefs == nil {
		c.ClusterRefs = make(map[string]string)
	}
	c.ClusterRefs[clusterRef] = kubeContext

	return nil
}

// AddDeployment adds a new deployment over already connected cluster refs.
func (c *Config) AddDeployment(name, namespace string, clusterRefs []string) error {
	if _, ok := c.Deployments[name]; ok {
		return errors.Wrap(ErrDeploymentExists, "add deployment", z.Str("deployment", name))
	}

	if c.Deployments == nil {
		c.Deployments = make(map[string]Deployment)
	}
	c.Deployments[name] = Deployment{
		Namespace:   namespace,
		ClusterRefs: slices.Clone(clusterRefs),
	}

	if err := c.Validate(); err != nil {
		delete(c.Deployments, name)
		return err
	}

	return nil
}

// AddClusterToDeployment extends an existing deployment with a connected cluster ref.
func (c *Config) AddClusterToDeployment(name, clusterRef string) error {
	d, ok := c.Deployments[name]
	if !ok {
		return errors.Wrap(ErrDeploymentNotFound, "add cluster to deployment", z.Str("deployment", name))
	} else if _, ok := c.ClusterRefs[clusterRef]; !ok {
		return errors.Wrap(ErrClusterRefNotFound, "add cluster to deployment", z.Str("cluster_ref", clusterRef))
	} else if slices.Contains(d.ClusterRefs, clusterRef) {
		return nil
	}

	d.ClusterRefs = append(slices.Clone(d.ClusterRefs), clusterRef)
	c.Deployments[name] = d

	return nil
}

func currentIdentity() (UserIdentity, error) {
	u, err := user.Current()
	if err != nil {
		return UserIdentity{}, errors.Wrap(err, "current user")
	}

	host, err := os.Hostname()
	if err != nil {
		return UserIdentity{}, errors.Wrap(err, "hostname")
	}

	return UserIdentity{Name: u.Username, Hostname: host}, nil
}
