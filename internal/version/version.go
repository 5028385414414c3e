// Package version carries the build stamp set with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("SignalPilot %s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
	if i.GoVersion != "" {
		s += " " + i.GoVersion
	}
	return s
}
