// Package version reports how the running binary was built.
//
// Release builds set the variables with ldflags:
//
//	-X github.com/jmylchreest/jobctl/internal/version.Version=1.4.0
//	-X github.com/jmylchreest/jobctl/internal/version.Commit=$(git rev-parse HEAD)
//	-X github.com/jmylchreest/jobctl/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)
//
// Plain `go build` and `go install` builds fall back to the VCS stamp the
// toolchain embeds.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const ApplicationName = "jobctl"

const unset = "unknown"

var (
	Version = "dev"
	Commit  = unset
	Date    = unset
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info is the build description printed by `jobctl version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get resolves the build description, preferring ldflags values over the
// embedded VCS stamp.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == unset {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == unset {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

// ShortCommit is the first eight characters of the commit, or "".
func (i Info) ShortCommit() string {
	if i.Commit == unset || len(i.Commit) < 8 {
		return ""
	}
	return i.Commit[:8]
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", ApplicationName, i.Version)
	details := make([]string, 0, 4)
	if sha := i.ShortCommit(); sha != "" {
		if i.Modified {
			sha += "-dirty"
		}
		details = append(details, "commit: "+sha)
	}
	if i.Date != unset {
		details = append(details, "built: "+i.Date)
	}
	details = append(details, i.GoVersion, i.Platform)
	fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	return b.String()
}

// String is Get().String().
func String() string {
	return Get().String()
}

// Short is the value cobra prints for --version.
func Short() string {
	info := Get()
	if sha := info.ShortCommit(); sha != "" {
		return info.Version + " (" + sha + ")"
	}
	return info.Version
}

func JSON() string {
	data, _ := json.MarshalIndent(Get(), "", "  ")
	return string(data)
}

// UserAgent is sent with every engine request.
func UserAgent() string {
	return ApplicationName + "/" + Version
}
