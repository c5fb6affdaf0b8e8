// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package lease implements a distributed lock on coordination.k8s.io/v1 Leases.
//
// A lease is held by a holder until released or until its duration elapses without
// renewal. A crashed holder therefore blocks other holders for at most one lease
// duration, which is also the longest window in which two sessions may mutate
// the same deployment concurrently.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
	"github.com/obolnetwork/ledgerctl/kube"
)

var (
	// ErrConflict indicates an unexpired lease is held by another holder.
	ErrConflict = errors.NewSentinel("lease held by another holder")
	// ErrNotHeld indicates the caller is not the lease holder.
	ErrNotHeld = errors.NewSentinel("lease not held")
	// ErrExpired indicates the lease expired before renewal.
	ErrExpired = errors.NewSentinel("lease expired")
	// ErrNotFound indicates the lease does not exist.
	ErrNotFound = errors.NewSentinel("lease not found")
)

const (
	// DefaultDuration is the default lease time-to-live.
	DefaultDuration = 20 * time.Second
	// MinDuration is the shortest lease time-to-live, the Lease resource stores whole seconds.
	MinDuration = time.Second
)

// Name returns the lease name of a deployment.
func Name(deployment string) string {
	return deployment + "-lease"
}

// NewHolder returns a holder identity unique to this process: "<user>@<host>/<uuid>".
func NewHolder(user, hostname string) string {
	return user + "@" + hostname + "/" + uuid.NewString()
}

// Status is a snapshot of a lease.
type Status struct {
	Holder     string
	AcquiredAt time.Time
	RenewedAt  time.Time
	ExpiresAt  time.Time
	Expired    bool
}

// Lease is a deployment lock identified by namespace and name, acquired on behalf of holder.
type Lease struct {
	client    *kube.Client
	namespace string
	name      string
	holder    string
	duration  time.Duration
	clock     clockwork.Clock
}

type Option func(*Lease)

// WithDuration overrides DefaultDuration. Durations are truncated to seconds and must be at least MinDuration.
func WithDuration(d time.Duration) Option {
	return func(l *Lease) {
		l.duration = d
	}
}

// WithClock overrides the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Lease) {
		l.clock = clock
	}
}

// New returns a lease of the deployment in the namespace for the holder.
func New(client *kube.Client, namespace, deployment, holder string, opts ...Option) (*Lease, error) {
	l := &Lease{
		client:    client,
		namespace: namespace,
		name:      Name(deployment),
		holder:    holder,
		duration:  DefaultDuration,
		clock:     clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.duration < MinDuration {
		return nil, errors.New("lease duration below one second", z.Dur("duration", l.duration))
	}

	return l, nil
}

// Holder returns the identity this lease is acquired for.
func (l *Lease) Holder() string {
	return l.holder
}

// Duration returns the lease time-to-live.
func (l *Lease) Duration() time.Duration {
	return l.duration
}

// Read returns the current lease status.
func (l *Lease) Read(ctx context.Context) (Status, error) {
	kl, err := l.read(ctx)
	if err != nil {
		return Status{}, err
	}

	return l.status(kl), nil
}

// Create acquires the lease. It succeeds if the lease is absent, expired, or already held
// by this holder (refreshing its expiry), and fails with ErrConflict if another holder
// holds an unexpired lease.
func (l *Lease) Create(ctx context.Context) error {
	existing, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		now := l.now()
		_, err := l.client.CreateLease(ctx, &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: l.name, Namespace: l.namespace},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       ptr.To(l.holder),
				LeaseDurationSeconds: ptr.To(int32(l.duration / time.Second)),
				AcquireTime:          now,
				RenewTime:            now,
				LeaseTransitions:     ptr.To[int32](0),
			},
		})
		if errors.Is(err, kube.ErrAlreadyExists) {
			return l.wrap(ErrConflict, "create lease", z.Str("cause", "created concurrently"))
		}

		return err
	} else if err != nil {
		return err
	}

	status := l.status(existing)
	switch {
	case status.Holder == l.holder:
		existing.Spec.RenewTime = l.now()
		existing.Spec.LeaseDurationSeconds = ptr.To(int32(l.duration / time.Second))

		return l.update(ctx, existing, "refresh lease")
	case !status.Expired:
		return l.wrap(ErrConflict, "create lease",
			z.Str("holder", status.Holder), z.Str("expires_at", status.ExpiresAt.Format(time.RFC3339)))
	default:
		takeOver(existing, l.holder, l.clock.Now(), l.duration)
		return l.update(ctx, existing, "take over expired lease")
	}
}

// Renew extends the lease by its duration from now. It fails with ErrNotHeld if held by
// another holder and with ErrExpired if the lease already expired.
func (l *Lease) Renew(ctx context.Context) error {
	existing, err := l.read(ctx)
	if err != nil {
		return err
	}

	status := l.status(existing)
	if status.Holder != l.holder {
		return l.wrap(ErrNotHeld, "renew lease", z.Str("holder", status.Holder))
	} else if status.Expired {
		return l.wrap(ErrExpired, "renew lease", z.Str("expired_at", status.ExpiresAt.Format(time.RFC3339)))
	}

	existing.Spec.RenewTime = l.now()

	return l.update(ctx, existing, "renew lease")
}

// Transfer hands the lease held by this holder to newHolder. The holder changes in a
// single resource-versioned update, so the lease never appears unheld.
func (l *Lease) Transfer(ctx context.Context, newHolder string) error {
	existing, err := l.read(ctx)
	if err != nil {
		return err
	}

	status := l.status(existing)
	if status.Holder != l.holder {
		return l.wrap(ErrNotHeld, "transfer lease", z.Str("holder", status.Holder))
	}

	takeOver(existing, newHolder, l.clock.Now(), l.duration)

	return l.update(ctx, existing, "transfer lease", z.Str("new_holder", newHolder))
}

// Release deletes the lease if held by this holder. Releasing an absent lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	existing, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	if holder := ptr.Deref(existing.Spec.HolderIdentity, ""); holder != l.holder {
		return l.wrap(ErrNotHeld, "release lease", z.Str("holder", holder))
	}

	err = l.client.DeleteLease(ctx, l.namespace, l.name)
	if errors.Is(err, kube.ErrNotFound) {
		return nil
	}

	return err
}

// Break deletes the lease regardless of its holder and returns its last status.
// It recovers a deployment locked by a crashed session before the lease expires.
func (l *Lease) Break(ctx context.Context) (Status, error) {
	existing, err := l.read(ctx)
	if err != nil {
		return Status{}, err
	}

	status := l.status(existing)

	err = l.client.DeleteLease(ctx, l.namespace, l.name)
	if errors.Is(err, kube.ErrNotFound) {
		return Status{}, l.wrap(ErrNotFound, "break lease")
	} else if err != nil {
		return Status{}, err
	}

	return status, nil
}

// Verify returns nil if the lease is currently held by this holder and not expired.
func (l *Lease) Verify(ctx context.Context) error {
	status, err := l.Read(ctx)
	if err != nil {
		return err
	} else if status.Holder != l.holder {
		return l.wrap(ErrNotHeld, "verify lease", z.Str("holder", status.Holder))
	} else if status.Expired {
		return l.wrap(ErrExpired, "verify lease")
	}

	return nil
}

func (l *Lease) read(ctx context.Context) (*coordinationv1.Lease, error) {
	kl, err := l.client.ReadLease(ctx, l.namespace, l.name)
	if errors.Is(err, kube.ErrNotFound) {
		return nil, l.wrap(ErrNotFound, "read lease")
	} else if err != nil {
		return nil, errors.Wrap(err, "read lease")
	}

	return kl, nil
}

func (l *Lease) update(ctx context.Context, kl *coordinationv1.Lease, msg string, fields ...z.Field) error {
	_, err := l.client.UpdateLease(ctx, kl)
	if errors.Is(err, kube.ErrConflict) {
		return l.wrap(ErrConflict, msg, append(fields, z.Str("cause", "concurrent update"))...)
	} else if errors.Is(err, kube.ErrNotFound) {
		return l.wrap(ErrNotFound, msg, fields...)
	} else if err != nil {
		return errors.Wrap(err, msg, fields...)
	}

	return nil
}

func (l *Lease) status(kl *coordinationv1.Lease) Status {
	var resp Status
	resp.Holder = ptr.Deref(kl.Spec.HolderIdentity, "")

	if kl.Spec.AcquireTime != nil {
		resp.AcquiredAt = kl.Spec.AcquireTime.Time
	}

	if kl.Spec.RenewTime != nil {
		resp.RenewedAt = kl.Spec.RenewTime.Time
	}

	duration := time.Duration(ptr.Deref(kl.Spec.LeaseDurationSeconds, 0)) * time.Second
	resp.ExpiresAt = resp.RenewedAt.Add(duration)
	resp.Expired = !l.clock.Now().Before(resp.ExpiresAt)

	return resp
}

func (l *Lease) now() *metav1.MicroTime {
	return &metav1.MicroTime{Time: l.clock.Now()}
}

func (l *Lease) wrap(sentinel error, msg string, fields ...z.Field) error {
	return errors.Wrap(sentinel, msg, append(fields, z.Str("namespace", l.namespace), z.Str("lease", l.name))...)
}

// takeOver assigns the lease to the holder as a new acquisition.
func takeOver(kl *coordinationv1.Lease, holder string, now time.Time, duration time.Duration) {
	kl.Spec.HolderIdentity = ptr.To(holder)
	kl.Spec.AcquireTime = &metav1.MicroTime{Time: now}
	kl.Spec.RenewTime = &metav1.MicroTime{Time: now}
	kl.Spec.LeaseDurationSeconds = ptr.To(int32(duration / time.Second))
	kl.Spec.LeaseTransitions = ptr.To(ptr.Deref(kl.Spec.LeaseTransitions, 0) + 1)
}
