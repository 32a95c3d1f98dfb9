// Package build reports which build of speedtracer is running.
package build

import (
	"net/http"
	"runtime/debug"
)

const defaultValue = "dirty"

// BUILD_DATE and VERSION are set at link time with -ldflags -X. Builds that
// do not set them fall back to the module version and VCS time recorded
// by the Go toolchain, when there is one.
var (
	BUILD_DATE = defaultValue
	VERSION    = defaultValue
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	VERSION, BUILD_DATE = fromBuildInfo(info, VERSION, BUILD_DATE)
}

func fromBuildInfo(info *debug.BuildInfo, version, buildDate string) (string, string) {
	if version == defaultValue && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if version == defaultValue {
				version = setting.Value
			}
		case "vcs.time":
			if buildDate == defaultValue {
				buildDate = setting.Value
			}
		}
	}
	return version, buildDate
}

func HandleBuildDate(writer http.ResponseWriter, _ *http.Request) {
	writer.Write([]byte(BUILD_DATE))
}

func HandleVersion(writer http.ResponseWriter, _ *http.Request) {
	writer.Write([]byte(VERSION))
}
