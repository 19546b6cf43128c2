package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

// Overridden at release time with
// -ldflags "-X github.com/openmined/appsync/internal/version.Version=..."
var (
	AppName   = "appsync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	App       string
	Version   string
	Revision  string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short is `0.1.0 (5e23a4)`.
func (i Info) Short() string {
	return fmt.Sprintf("%s (%s)", i.Version, i.Revision)
}

// String is `0.1.0 (5e23a4; go1.23.6; linux/amd64; 2025-01-01T00:00:00Z)`.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s; %s; %s; %s)", i.Version, i.Revision, i.GoVersion, i.Platform, i.BuildDate)
}

func Short() string {
	return Get().Short()
}

func Detailed() string {
	return Get().String()
}

// DetailedWithApp prefixes Detailed with the application name.
func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

// UserAgent is sent with every request to the remote instance.
func UserAgent() string {
	i := Get()
	return fmt.Sprintf("%s/%s (%s)", i.App, i.Version, i.Platform)
}

// fillFromBuildInfo replaces values that ldflags left at their defaults with the module
// version and VCS stamps recorded by the go command.
func fillFromBuildInfo(info *debug.BuildInfo) {
	if info == nil {
		return
	}

	vcs := make(map[string]string)
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			vcs[s.Key] = s.Value
		}
	}

	if v := info.Main.Version; (Version == devVersion || Version == "") && v != "" && v != "(devel)" {
		Version = strings.TrimPrefix(v, "v")
	}

	if rev := vcs["vcs.revision"]; (Revision == "HEAD" || Revision == "") && rev != "" {
		if vcs["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		Revision = rev
	}

	if BuildDate == "" {
		BuildDate = vcs["vcs.time"]
	}
}

func init() {
	info, _ := debug.ReadBuildInfo()
	fillFromBuildInfo(info)
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
