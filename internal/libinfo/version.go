/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of the go-distlimit module linked into the running binary.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/acronis/go-distlimit"

const unknownVersion = "v0.0.0"

// PrometheusVersionLabel is the name of the constant label with the module version.
const PrometheusVersionLabel = "distlimit_version"

var moduleRe = regexp.MustCompile(`^` + regexp.QuoteMeta(moduleName) + `(/v[0-9]+)?$`)

var (
	version     string
	versionOnce sync.Once
)

// Version returns the module version. It's v0.0.0 for development builds.
func Version() string {
	versionOnce.Do(func() {
		buildInfo, _ := debug.ReadBuildInfo()
		version = extractVersion(buildInfo)
	})
	return version
}

// AddPrometheusVersionLabel returns a copy of labels with the module version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	res := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		res[k] = v
	}
	res[PrometheusVersionLabel] = Version()
	return res
}

// extractVersion looks for the module among the main module and the dependencies of the binary.
func extractVersion(buildInfo *debug.BuildInfo) string {
	if buildInfo == nil {
		return unknownVersion
	}
	modules := append([]*debug.Module{&buildInfo.Main}, buildInfo.Deps...)
	for _, mod := range modules {
		if mod == nil || !moduleRe.MatchString(mod.Path) {
			continue
		}
		if mod.Replace != nil && mod.Replace.Version != "" {
			return mod.Replace.Version
		}
		if mod.Version == "" || mod.Version == "(devel)" {
			return unknownVersion
		}
		return mod.Version
	}
	return unknownVersion
}
