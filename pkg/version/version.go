package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/zama-ai/testnet-dispatcher/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

func GetVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", v.Version, v.Commit, v.Date, v.GoVersion)
}
