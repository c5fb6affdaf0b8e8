// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

const (
	DefaultDNSBaseDomain           = "cluster.local"
	DefaultDNSConsensusNodePattern = "network-{nodeAlias}-svc.{namespace}.svc"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("k8sname", func(fl validator.FieldLevel) bool {
		return len(k8svalidation.IsDNS1123Label(fl.Field().String())) == 0
	})

	return v
}

// Cluster is a cluster registry entry keyed by cluster reference.
type Cluster struct {
	Name                    string `yaml:"name"                    validate:"required"`
	Namespace               string `yaml:"namespace"               validate:"required,k8sname"`
	Deployment              string `yaml:"deployment"              validate:"required"`
	DNSBaseDomain           string `yaml:"dnsBaseDomain"           validate:"required,hostname_rfc1123"`
	DNSConsensusNodePattern string `yaml:"dnsConsensusNodePattern" validate:"required,contains={nodeAlias}"`
}

// NewCluster returns a validated cluster entry, defaulting empty DNS settings.
func NewCluster(clusterRef, namespace, deployment, dnsBaseDomain, dnsConsensusNodePattern string) (Cluster, error) {
	if dnsBaseDomain == "" {
		dnsBaseDomain = DefaultDNSBaseDomain
	}

	if dnsConsensusNodePattern == "" {
		dnsConsensusNodePattern = DefaultDNSConsensusNodePattern
	}

	c := Cluster{
		Name:                    clusterRef,
		Namespace:               namespace,
		Deployment:              deployment,
		DNSBaseDomain:           dnsBaseDomain,
		DNSConsensusNodePattern: dnsConsensusNodePattern,
	}

	return c, c.Validate()
}

// Validate returns an error if the entry is incomplete or malformed.
func (c Cluster) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(ErrInvalid, "invalid cluster", z.Str("cluster", c.Name), z.Str("reason", err.Error()))
	}

	return nil
}

// ConsensusNodeFQDN renders the DNS pattern for the node and appends the base domain.
func (c Cluster) ConsensusNodeFQDN(nodeAlias string, nodeID int) string {
	host := strings.NewReplacer(
		"{nodeAlias}", nodeAlias,
		"{nodeId}", strconv.Itoa(nodeID),
		"{namespace}", c.Namespace,
		"{clusterRef}", c.Name,
	).Replace(c.DNSConsensusNodePattern)

	return host + "." + c.DNSBaseDomain
}
