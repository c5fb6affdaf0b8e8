// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"context"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/forkjoin"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/kube"
)

var (
	// ErrNotFound is returned when a cluster holds no remote config for the namespace.
	ErrNotFound = errors.NewSentinel("remote config not found")
	// ErrAlreadyExists is returned when creating a remote config that exists.
	ErrAlreadyExists = errors.NewSentinel("remote config already exists")
)

// store reads and writes envelopes as config maps.
type store struct {
	factory kube.Factory
}

func (s store) read(ctx context.Context, kubeContext, namespace string) (*Envelope, error) {
	client, err := s.factory.Client(kubeContext)
	if err != nil {
		return nil, err
	}

	cm, err := client.ReadConfigMap(ctx, namespace, kube.RemoteConfigName)
	if errors.Is(err, kube.ErrNotFound) {
		return nil, errors.Wrap(ErrNotFound, "read remote config", z.Str("context", kubeContext), z.Str("namespace", namespace))
	} else if err != nil {
		return nil, err
	}

	data, ok := cm.Data[kube.RemoteConfigDataKey]
	if !ok {
		return nil, errors.Wrap(ErrInvalid, "remote config map without data key",
			z.Str("context", kubeContext), z.Str("namespace", namespace))
	}

	env, err := Decode([]byte(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode remote config", z.Str("context", kubeContext))
	}

	return env, nil
}

func (s store) create(ctx context.Context, kubeContext, namespace string, env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}

	client, err := s.factory.Client(kubeContext)
	if err != nil {
		return err
	}

	err = client.CreateConfigMap(ctx, namespace, kube.RemoteConfigName, kube.RemoteConfigLabels(),
		map[string]string{kube.RemoteConfigDataKey: string(data)})
	if errors.Is(err, kube.ErrAlreadyExists) {
		return errors.Wrap(ErrAlreadyExists, "create remote config", z.Str("context", kubeContext), z.Str("namespace", namespace))
	}

	return err
}

// replace writes the envelope to every context concurrently. The first failure cancels
// writes not yet started; completed writes are not rolled back.
func (s store) replace(ctx context.Context, kubeContexts []string, namespace string, env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}

	write := func(ctx context.Context, kubeContext string) (struct{}, error) {
		client, err := s.factory.Client(kubeContext)
		if err != nil {
			return struct{}{}, err
		}

		err = client.ReplaceConfigMap(ctx, namespace, kube.RemoteConfigName, kube.RemoteConfigLabels(),
			map[string]string{kube.RemoteConfigDataKey: string(data)})
		if errors.Is(err, kube.ErrNotFound) {
			return struct{}{}, errors.Wrap(ErrNotFound, "replace remote config", z.Str("context", kubeContext))
		}

		return struct{}{}, err
	}

	results, cancel := forkjoin.NewWithInputs(ctx, write, kubeContexts)
	defer cancel()

	_, err = results.Flatten()
	if err != nil {
		return errors.Wrap(err, "save remote config", z.Int("clusters", len(kubeContexts)))
	}

	return nil
}
