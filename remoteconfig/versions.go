// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package remoteconfig

// Default component versions stamped when a command deploys a component without an explicit version.
const (
	DefaultChartVersion      = "v0.58.1"
	DefaultPlatformVersion   = "v0.63.9"
	DefaultMirrorNodeVersion = "v0.129.1"
	DefaultExplorerVersion   = "v25.1.1"
	DefaultRelayVersion      = "v0.67.0"
)

type versionStamp struct {
	flag     string
	fallback string
	field    func(*Metadata) *string
	commands [][]string
}

var versionStamps = []versionStamp{
	{
		flag:     FlagChartVersion,
		fallback: DefaultChartVersion,
		field:    func(m *Metadata) *string { return &m.ChartVersion },
		commands: [][]string{{"network", "deploy"}, {"network", "upgrade"}, {"node", "add"}, {"node", "update"}, {"node", "delete"}},
	},
	{
		flag:     FlagReleaseTag,
		fallback: DefaultPlatformVersion,
		field:    func(m *Metadata) *string { return &m.PlatformVersion },
		commands: [][]string{{"network", "deploy"}, {"node", "add"}, {"node", "update"}, {"node", "upgrade"}},
	},
	{
		flag:     FlagMirrorNodeVersion,
		fallback: DefaultMirrorNodeVersion,
		field:    func(m *Metadata) *string { return &m.MirrorNodeChartVersion },
		commands: [][]string{{"mirror-node", "deploy"}},
	},
	{
		flag:     FlagExplorerVersion,
		fallback: DefaultExplorerVersion,
		field:    func(m *Metadata) *string { return &m.ExplorerChartVersion },
		commands: [][]string{{"explorer", "deploy"}},
	},
	{
		flag:     FlagRelayReleaseTag,
		fallback: DefaultRelayVersion,
		field:    func(m *Metadata) *string { return &m.RelayChartVersion },
		commands: [][]string{{"relay", "add"}, {"relay", "deploy"}},
	},
}

// stampVersions records component versions in the metadata. An explicit flag always wins,
// otherwise commands that deploy the component record the default if no version is known yet.
// A recorded version is never reset to the default by a later command without the flag.
func stampVersions(m *Metadata, argv Argv) {
	for _, stamp := range versionStamps {
		field := stamp.field(m)

		if v, ok := argv.Flag(stamp.flag); ok && v != "" {
			*field = v
			continue
		}

		if *field != "" {
			continue
		}

		for _, command := range stamp.commands {
			if argv.Is(command...) {
				*field = stamp.fallback
				break
			}
		}
	}
}
