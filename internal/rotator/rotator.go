// Package rotator drives antenna rotators over the two wire protocols in
// common ground-station use: the hamlib rotctld TCP protocol and the
// PSTRotator UDP protocol.
package rotator

import "math"

// Rotator is a connected antenna rotator.
type Rotator interface {
	// Connect establishes the transport and verifies the far end answers.
	Connect() error

	// SetAzEl commands the rotator to the given azimuth/elevation in
	// degrees. When checkResponse is set, protocols that support it wait
	// for an acknowledgement.
	SetAzEl(azimuth, elevation float64, checkResponse bool) error

	// Position returns the last known rotator position, when the
	// protocol reports one.
	Position() (azimuth, elevation float64, known bool)

	Close() error
}

// clampAzEl normalizes a commanded position: elevation is limited to
// [0, 90] and azimuth wrapped into [0, 360).
func clampAzEl(azimuth, elevation float64) (float64, float64) {
	if elevation > 90 {
		elevation = 90
	} else if elevation < 0 {
		elevation = 0
	}

	azimuth = math.Mod(azimuth, 360)
	if azimuth < 0 {
		azimuth += 360
	}
	return azimuth, elevation
}
