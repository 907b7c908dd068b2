// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package roudi

import (
	"fmt"
	"strings"
)

// CompatibilityLevel selects how strictly roudi checks a connecting
// runtime's version against its own before allowing discovery to proceed.
// The six levels mirror the original's version_info.cpp handshake: each
// level checks everything the one before it checks, plus one more field.
type CompatibilityLevel uint8

const (
	// CompatibilityOff skips the check entirely.
	CompatibilityOff CompatibilityLevel = iota
	// CompatibilityMajor requires matching major versions only.
	CompatibilityMajor
	// CompatibilityMinor requires matching major and minor versions.
	CompatibilityMinor
	// CompatibilityPatch requires matching major, minor, and patch versions.
	CompatibilityPatch
	// CompatibilityCommitID additionally requires a matching commit id.
	CompatibilityCommitID
	// CompatibilityBuildDate additionally requires a matching build date.
	CompatibilityBuildDate
)

func (l CompatibilityLevel) String() string {
	switch l {
	case CompatibilityOff:
		return "off"
	case CompatibilityMajor:
		return "major"
	case CompatibilityMinor:
		return "minor"
	case CompatibilityPatch:
		return "patch"
	case CompatibilityCommitID:
		return "commit_id"
	case CompatibilityBuildDate:
		return "build_date"
	default:
		return "unknown"
	}
}

// ParseCompatibilityLevel parses the YAML/CLI compatibility string into a
// CompatibilityLevel, in lockstep with config.ParseCompatibilityLevel.
func ParseCompatibilityLevel(s string) (CompatibilityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return CompatibilityOff, nil
	case "major":
		return CompatibilityMajor, nil
	case "minor":
		return CompatibilityMinor, nil
	case "patch":
		return CompatibilityPatch, nil
	case "commit_id":
		return CompatibilityCommitID, nil
	case "build_date":
		return CompatibilityBuildDate, nil
	default:
		return 0, fmt.Errorf("roudi: unknown compatibility level %q", s)
	}
}

// VersionInfo identifies a runtime build, the way version_info.cpp does.
type VersionInfo struct {
	Major, Minor, Patch int
	CommitID            string
	BuildDate           string
}

// CheckCompatibility reports whether remote is compatible with local at the
// given level, following VersionInfo::checkCompatibility: each level's
// check implies every weaker level's check also passes.
func CheckCompatibility(level CompatibilityLevel, local, remote VersionInfo) bool {
	if level == CompatibilityOff {
		return true
	}
	if local.Major != remote.Major {
		return false
	}
	if level == CompatibilityMajor {
		return true
	}
	if local.Minor != remote.Minor {
		return false
	}
	if level == CompatibilityMinor {
		return true
	}
	if local.Patch != remote.Patch {
		return false
	}
	if level == CompatibilityPatch {
		return true
	}
	if local.CommitID != remote.CommitID {
		return false
	}
	if level == CompatibilityCommitID {
		return true
	}
	return local.BuildDate == remote.BuildDate
}
