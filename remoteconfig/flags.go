// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/version"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// ErrFlagConflict is returned when a command's flag is incompatible with the deployment.
var ErrFlagConflict = errors.NewSentinel("flag incompatible with deployment")

// Argv is a parsed command invocation: the command path and the flags set explicitly.
type Argv struct {
	Command []string
	Flags   map[string]string
}

// NewArgv returns an argv of the command path and flags.
func NewArgv(command []string, flags map[string]string) Argv {
	return Argv{
		Command: slices.Clone(command),
		Flags:   maps.Clone(flags),
	}
}

// Is returns true if the command path is exactly the given path.
func (a Argv) Is(command ...string) bool {
	return slices.Equal(a.Command, command)
}

// Flag returns the value of the explicitly set flag.
func (a Argv) Flag(name string) (string, bool) {
	v, ok := a.Flags[name]
	return v, ok
}

// CommandString returns the space separated command path.
func (a Argv) CommandString() string {
	return strings.Join(a.Command, " ")
}

// FlagString returns the flags as "--name=value" sorted by name.
func (a Argv) FlagString() string {
	var resp []string
	for _, name := range slices.Sorted(maps.Keys(a.Flags)) {
		resp = append(resp, "--"+name+"="+a.Flags[name])
	}

	return strings.Join(resp, " ")
}

// String returns the command path followed by its flags.
func (a Argv) String() string {
	return strings.TrimSpace(a.CommandString() + " " + a.FlagString())
}

// withFlag returns a copy of the argv with the flag set.
func (a Argv) withFlag(name, value string) Argv {
	resp := NewArgv(a.Command, a.Flags)
	if resp.Flags == nil {
		resp.Flags = make(map[string]string)
	}

	resp.Flags[name] = value

	return resp
}

// FlagClass defines how a tracked flag may change between commands of a deployment.
type FlagClass string

const (
	// FlagPinned must never change once recorded.
	FlagPinned FlagClass = "pinned"
	// FlagMonotonic is a semantic version that must never decrease.
	FlagMonotonic FlagClass = "monotonic"
	// FlagLatest takes the most recently supplied value.
	FlagLatest FlagClass = "latest"
)

// Tracked flag names.
const (
	FlagChartVersion      = "chart-version"
	FlagReleaseTag        = "release-tag"
	FlagMirrorNodeVersion = "mirror-node-version"
	FlagExplorerVersion   = "explorer-version"
	FlagRelayReleaseTag   = "relay-release-tag"
	FlagDNSBaseDomain     = "dns-base-domain"
	FlagDNSNodePattern    = "dns-consensus-node-pattern"
	FlagNodeAliases       = "node-aliases"
	FlagCacheDir          = "cache-dir"
)

var trackedFlags = map[string]FlagClass{
	FlagChartVersion:      FlagMonotonic,
	FlagReleaseTag:        FlagMonotonic,
	FlagMirrorNodeVersion: FlagMonotonic,
	FlagExplorerVersion:   FlagMonotonic,
	FlagRelayReleaseTag:   FlagMonotonic,
	FlagDNSBaseDomain:     FlagPinned,
	FlagDNSNodePattern:    FlagPinned,
	FlagNodeAliases:       FlagLatest,
	FlagCacheDir:          FlagLatest,
}

// FlagEntry is a recorded flag value.
type FlagEntry struct {
	Value string    `yaml:"value"`
	Class FlagClass `yaml:"class"`
}

// Flags is the ledger of tracked flag values of a deployment.
type Flags map[string]FlagEntry

// Reconcile checks the explicitly set tracked flags of argv against the ledger and records
// accepted values. It returns argv with unset tracked flags filled from the ledger.
// The ledger is left unchanged on error.
func (f *Flags) Reconcile(argv Argv) (Argv, error) {
	if *f == nil {
		*f = make(Flags)
	}

	updates := make(Flags)

	for _, name := range slices.Sorted(maps.Keys(trackedFlags)) {
		class := trackedFlags[name]
		recorded, hasRecorded := (*f)[name]
		value, hasValue := argv.Flag(name)

		switch {
		case !hasValue && !hasRecorded:
			continue
		case !hasValue:
			argv = argv.withFlag(name, recorded.Value)
			continue
		case !hasRecorded || recorded.Value == value:
			updates[name] = FlagEntry{Value: value, Class: class}
			continue
		}

		if err := checkFlag(name, class, recorded.Value, value); err != nil {
			return Argv{}, err
		}

		updates[name] = FlagEntry{Value: value, Class: class}
	}

	maps.Copy(*f, updates)

	return argv, nil
}

func checkFlag(name string, class FlagClass, recorded, value string) error {
	fields := []z.Field{z.Str("flag", name), z.Str("recorded", recorded), z.Str("value", value)}

	switch class {
	case FlagLatest:
		return nil
	case FlagMonotonic:
		prev, next := version.Canonical(recorded), version.Canonical(value)
		if prev == "" || next == "" {
			return errors.Wrap(ErrFlagConflict, "flag is not a semantic version", fields...)
		}

		if semver.Compare(next, prev) < 0 {
			return errors.Wrap(ErrFlagConflict, "flag version downgrade", fields...)
		}

		return nil
	default:
		return errors.Wrap(ErrFlagConflict, "flag is pinned to its deployed value", fields...)
	}
}
