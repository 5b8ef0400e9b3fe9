// Package buildinfo reports the version stamped into vidq binaries.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
	"runtime/debug"
)

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/vidq/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/vidq/pkg/buildinfo.Commit=4f1c2ab
// -X github.com/otherjamesbrown/vidq/pkg/buildinfo.BuildTime=2026-10-01T09:00:00Z
//
// Binaries built with plain `go install` leave them unset; Get then falls
// back to the module version and VCS stamp recorded by the toolchain.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info holds build information for one vidq surface (cli, server, mcp).
type Info struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	Modified    bool   `json:"modified,omitempty"`
}

// Get returns build info for the named service.
func Get(serviceName string) Info {
	info := Info{
		ServiceName: serviceName,
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String returns a human-readable one-liner like "v0.3.0 (4f1c2ab, 2026-10-01T09:00:00Z)".
func String() string {
	info := Get("")
	s := info.Version + " (" + info.Commit + ", " + info.BuildTime + ")"
	if info.Modified {
		s += " dirty"
	}
	return s
}

// UserAgent is sent on outgoing model requests.
func UserAgent() string {
	return "vidq/" + Get("").Version
}

// Handler returns an HTTP handler that responds with build info JSON.
func Handler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get(serviceName))
	}
}
