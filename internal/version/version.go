// Package version reports the version of this module, as recorded in the binary's build information.
package version

import (
	"runtime/debug"
	"strings"
)

// Default is used when the build information has no usable version, such as in tests or `go run`.
const Default = "dev"

// modulePath is the import path of this module.
const modulePath = "github.com/tetratelabs/wasmcore"

// GetVersion returns the version of wasmcore linked into the running binary, whether it is the main module (the CLI
// built from a tag) or a dependency of it.
func GetVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return versionOf(info)
}

func versionOf(info *debug.BuildInfo) string {
	if info.Main.Path == modulePath {
		return cleanVersion(info.Main.Version)
	}
	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return cleanVersion(dep.Replace.Version)
		}
		return cleanVersion(dep.Version)
	}
	return Default
}

func cleanVersion(v string) string {
	// "(devel)" is the main module version when built from a source tree.
	if v == "" || v == "(devel)" {
		return Default
	}
	return strings.TrimSuffix(v, "+incompatible")
}
