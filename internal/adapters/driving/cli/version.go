package cli

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionJSON bool

// buildInfo is what `strata version` reports.
type buildInfo struct {
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the strata version and build details",
	Annotations: map[string]string{annotationNoServices: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := currentBuild(debug.ReadBuildInfo)
		if versionJSON {
			return printJSON(cmd, info)
		}
		cmd.Printf("strata version %s\n", info.Version)
		if info.Commit != "" {
			commit := info.Commit
			if info.Modified {
				commit += " (modified)"
			}
			cmd.Printf("  commit:   %s\n", commit)
		}
		cmd.Printf("  go:       %s\n", info.Go)
		cmd.Printf("  platform: %s\n", info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output build details as JSON")
	rootCmd.AddCommand(versionCmd)
}

// currentBuild combines the linker-set version with the VCS stamp the Go
// toolchain embeds in the binary.
func currentBuild(read func() (*debug.BuildInfo, bool)) buildInfo {
	info := buildInfo{
		Version:  version,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := read()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
			if len(info.Commit) > 12 {
				info.Commit = info.Commit[:12]
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	return info
}
