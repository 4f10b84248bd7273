// Package kvguard provides the version information for kvguard.
package kvguard

// Version is the current version of kvguard.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
