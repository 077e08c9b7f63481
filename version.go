// Package itinerary provides the release version of itinerary.
package itinerary

// Version is the current release of itinerary.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
