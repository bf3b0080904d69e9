package sequence

import (
	"fmt"
	"time"
)

// Profile selects the pacing of a sequence. The two profiles share the same
// relative ordering and differ only in magnitude, so an entire campaign can
// be validated end-to-end in minutes before running at real-world cadence.
type Profile string

const (
	ProfileAccelerated Profile = "accelerated"
	ProfileRealWorld   Profile = "real-world"
)

// ParseProfile validates a profile name from configuration.
func ParseProfile(name string) (Profile, error) {
	switch Profile(name) {
	case ProfileAccelerated, ProfileRealWorld:
		return Profile(name), nil
	}
	return "", fmt.Errorf("unknown timing profile %q", name)
}

// Offset tables. The first entry is always zero: step 1 fires immediately.
var (
	realWorldOffsets = []time.Duration{
		0,
		24 * time.Hour,
		72 * time.Hour,
		120 * time.Hour,
		168 * time.Hour,
		240 * time.Hour,
		336 * time.Hour,
	}
	acceleratedOffsets = []time.Duration{
		0,
		2 * time.Minute,
		4 * time.Minute,
		6 * time.Minute,
		8 * time.Minute,
		10 * time.Minute,
		12 * time.Minute,
	}
)

// Offsets returns the relative delay of each of the first `steps` steps under
// the given profile, ordered and non-decreasing.
func Offsets(profile Profile, steps int) ([]time.Duration, error) {
	var table []time.Duration
	switch profile {
	case ProfileAccelerated:
		table = acceleratedOffsets
	case ProfileRealWorld:
		table = realWorldOffsets
	default:
		return nil, fmt.Errorf("unknown timing profile %q", profile)
	}

	if steps < 1 || steps > len(table) {
		return nil, fmt.Errorf("step count %d out of range 1..%d", steps, len(table))
	}

	out := make([]time.Duration, steps)
	copy(out, table[:steps])
	return out, nil
}
