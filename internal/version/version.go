// Package version implements Component B, the Version Manager: install,
// list, remove, and resolve versions of agent binaries; shim scripts; and
// per-version isolated home directories.
package version

import (
	"strconv"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
)

// Latest is the sentinel version string meaning "resolve to the newest
// published release at install time".
const Latest = "latest"

// ParseSpec parses "<agent>[@<version>]" into an agent id and version
// string. Invalid agent names yield ok=false.
func ParseSpec(spec string) (agent agentkind.ID, ver string, ok bool) {
	name, v, hasVer := strings.Cut(spec, "@")
	id, known := agentkind.Parse(name)
	if !known {
		return "", "", false
	}
	if !hasVer || v == "" {
		v = Latest
	}
	return id, v, true
}

// compareVersions implements the numeric-component comparator from spec.md
// §4.B: dot-separated components compared numerically, equal when
// zero-padding would make them equal (e.g. "1.2" == "1.2.0" is NOT implied
// by spec; the invariant is "pad-with-zero equality" for differing component
// counts during comparison, so "1.2" sorts equal to "1.2.0").
func compareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		na := componentAt(pa, i)
		nb := componentAt(pb, i)
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

func componentAt(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		// Non-numeric components (e.g. pre-release tags) sort below any
		// numeric value at the same position, keeping comparison total.
		return -1
	}
	return n
}

// SortVersions sorts version strings ascending using the numeric-component
// comparator.
func SortVersions(versions []string) {
	for i := 1; i < len(versions); i++ {
		j := i
		for j > 0 && compareVersions(versions[j-1], versions[j]) > 0 {
			versions[j-1], versions[j] = versions[j], versions[j-1]
			j--
		}
	}
}
