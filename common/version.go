package common

import "strconv"

const (
	major = 0
	minor = 4
	patch = 0

	// Version is the numeric version of the program, major*1_000_000 +
	// minor*1_000 + patch.
	Version = major*1_000_000 + minor*1_000 + patch
)

// VersionString returns the version in major.minor.patch form.
func VersionString() string {
	return strconv.Itoa(major) + "." + strconv.Itoa(minor) + "." + strconv.Itoa(patch)
}
