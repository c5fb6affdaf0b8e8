// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package version exposes the ledgerctl release version and build info.
package version

import (
	"context"
	"runtime/debug"

	"golang.org/x/mod/semver"

	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// Version is the release version, stamped into remote config metadata as the tool version.
// Overridden via ldflags when building release binaries.
var Version = "v0.8.0"

// GitCommit returns the short git commit hash and commit time from build info.
func GitCommit() (hash string, timestamp string) {
	hash, timestamp = "unknown", "unknown"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return hash, timestamp
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			hash = s.Value[:min(7, len(s.Value))]
		case "vcs.time":
			timestamp = s.Value
		}
	}

	return hash, timestamp
}

// Canonical returns the canonical semver form of v, accepting a missing "v" prefix.
// It returns an empty string if v is not valid semver.
func Canonical(v string) string {
	if v != "" && v[0] != 'v' {
		v = "v" + v
	}

	return semver.Canonical(v)
}

// LogInfo logs the version and git info with the message.
func LogInfo(ctx context.Context, msg string) {
	hash, timestamp := GitCommit()
	log.Info(ctx, msg,
		z.Str("version", Version),
		z.Str("git_commit_hash", hash),
		z.Str("git_commit_time", timestamp),
	)
}
