// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/ledgerctl/remoteconfig"
)

func TestArgvString(t *testing.T) {
	argv := remoteconfig.NewArgv([]string{"node", "add"}, map[string]string{
		"release-tag": "v0.60.0",
		"cache-dir":   "/tmp",
	})

	require.Equal(t, "node add", argv.CommandString())
	require.Equal(t, "--cache-dir=/tmp --release-tag=v0.60.0", argv.FlagString())
	require.Equal(t, "node add --cache-dir=/tmp --release-tag=v0.60.0", argv.String())
	require.True(t, argv.Is("node", "add"))
	require.False(t, argv.Is("node"))

	require.Equal(t, "deployment create", remoteconfig.NewArgv([]string{"deployment", "create"}, nil).String())
}

func TestReconcile(t *testing.T) {
	recorded := remoteconfig.Flags{
		remoteconfig.FlagReleaseTag:    {Value: "v0.60.0", Class: remoteconfig.FlagMonotonic},
		remoteconfig.FlagDNSBaseDomain: {Value: "cluster.local", Class: remoteconfig.FlagPinned},
		remoteconfig.FlagCacheDir:      {Value: "/tmp/a", Class: remoteconfig.FlagLatest},
	}

	tests := []struct {
		name    string
		flags   map[string]string
		want    map[string]string
		err     bool
		updated map[string]string
		absent  string
	}{
		{
			name: "fill from ledger",
			want: map[string]string{
				remoteconfig.FlagReleaseTag:    "v0.60.0",
				remoteconfig.FlagDNSBaseDomain: "cluster.local",
				remoteconfig.FlagCacheDir:      "/tmp/a",
			},
		},
		{
			name:    "upgrade monotonic",
			flags:   map[string]string{remoteconfig.FlagReleaseTag: "v0.61.0"},
			updated: map[string]string{remoteconfig.FlagReleaseTag: "v0.61.0"},
		},
		{
			name:  "downgrade monotonic",
			flags: map[string]string{remoteconfig.FlagReleaseTag: "0.59.9"},
			err:   true,
		},
		{
			name:  "monotonic not semver",
			flags: map[string]string{remoteconfig.FlagReleaseTag: "latest"},
			err:   true,
		},
		{
			name:  "change pinned",
			flags: map[string]string{remoteconfig.FlagDNSBaseDomain: "example.com"},
			err:   true,
		},
		{
			name:    "same pinned",
			flags:   map[string]string{remoteconfig.FlagDNSBaseDomain: "cluster.local"},
			updated: map[string]string{remoteconfig.FlagDNSBaseDomain: "cluster.local"},
		},
		{
			name:    "change latest",
			flags:   map[string]string{remoteconfig.FlagCacheDir: "/tmp/b"},
			updated: map[string]string{remoteconfig.FlagCacheDir: "/tmp/b"},
		},
		{
			name:    "record new",
			flags:   map[string]string{remoteconfig.FlagChartVersion: "v0.58.0"},
			updated: map[string]string{remoteconfig.FlagChartVersion: "v0.58.0"},
		},
		{
			name:   "untracked flag ignored",
			flags:  map[string]string{"quiet": "true"},
			absent: "quiet",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ledger := make(remoteconfig.Flags)
			for k, v := range recorded {
				ledger[k] = v
			}

			argv := remoteconfig.NewArgv([]string{"node", "add"}, test.flags)
			filled, err := ledger.Reconcile(argv)
			if test.err {
				require.ErrorIs(t, err, remoteconfig.ErrFlagConflict)
				require.Equal(t, recorded, ledger)

				return
			}
			require.NoError(t, err)

			for name, value := range test.want {
				got, ok := filled.Flag(name)
				require.True(t, ok, name)
				require.Equal(t, value, got)
			}

			for name, value := range test.updated {
				require.Equal(t, value, ledger[name].Value)
			}

			if test.absent != "" {
				require.NotContains(t, ledger, test.absent)
			}

			// The input argv is not mutated.
			require.Len(t, argv.Flags, len(test.flags))
		})
	}

	var empty remoteconfig.Flags
	_, err := empty.Reconcile(remoteconfig.NewArgv(nil, map[string]string{remoteconfig.FlagCacheDir: "/tmp"}))
	require.NoError(t, err)
	require.Equal(t, "/tmp", empty[remoteconfig.FlagCacheDir].Value)
}
