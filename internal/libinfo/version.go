/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"runtime/debug"
	"strings"
	"sync"
)

const LibName = "go-pubkeyutil"

const libPath = "github.com/acronis/" + LibName

var libVersion string
var libVersionOnce sync.Once

func initLibVersion() {
	buildInfo, _ := debug.ReadBuildInfo()
	if libVersion = extractLibVersion(buildInfo, libPath); libVersion == "" {
		libVersion = "v0.0.0"
	}
}

// extractLibVersion looks for the module (or its /vN major version) in the build dependencies.
func extractLibVersion(buildInfo *debug.BuildInfo, modulePath string) string {
	if buildInfo == nil {
		return ""
	}
	for _, dep := range buildInfo.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
		if suffix, ok := strings.CutPrefix(dep.Path, modulePath+"/v"); ok && isDigits(suffix) {
			return dep.Version
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func GetLibVersion() string {
	libVersionOnce.Do(initLibVersion)
	return libVersion
}
