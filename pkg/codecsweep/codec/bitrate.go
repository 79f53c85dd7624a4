package codec

import (
	"fmt"
	"slices"
	"strings"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// Policy says what to do with a bitrate the codec cannot realize exactly.
type Policy string

const (
	PolicyExact   Policy = "exact"
	PolicyNearest Policy = "nearest"
)

// ParsePolicy accepts "", "exact" and "nearest".
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExact:
		return PolicyExact, nil
	case PolicyNearest:
		return PolicyNearest, nil
	}
	return "", fmt.Errorf("unknown bitrate policy %q (want exact or nearest)", s)
}

// BitrateSpec is the set of bitrates a codec configuration accepts.
// Allowed, when non-empty, is a discrete set; otherwise [Min, Max] is a range.
type BitrateSpec struct {
	Allowed []int
	Min     int
	Max     int
	Policy  Policy
}

// Validate reports malformed specs at load time.
func (s BitrateSpec) Validate() error {
	if _, err := ParsePolicy(string(s.Policy)); err != nil {
		return err
	}
	if len(s.Allowed) > 0 {
		for _, b := range s.Allowed {
			if b <= 0 {
				return fmt.Errorf("bitrate %d must be positive", b)
			}
		}
		return nil
	}
	if s.Min <= 0 || s.Max < s.Min {
		return fmt.Errorf("bitrate range [%d, %d] is empty", s.Min, s.Max)
	}
	return nil
}

// Resolve maps a requested bitrate to the one that will be used. An unsupported
// bitrate is a configuration error unless the nearest policy is declared.
func (s BitrateSpec) Resolve(op string, requested int) (int, error) {
	if len(s.Allowed) > 0 {
		if slices.Contains(s.Allowed, requested) {
			return requested, nil
		}
		if s.Policy == PolicyNearest {
			return nearest(s.Allowed, requested), nil
		}
		return 0, models.Errorf(models.KindConfiguration, op, "bitrate %d not in supported set %v", requested, s.Allowed)
	}

	if requested >= s.Min && requested <= s.Max {
		return requested, nil
	}
	if s.Policy == PolicyNearest {
		return min(max(requested, s.Min), s.Max), nil
	}
	return 0, models.Errorf(models.KindConfiguration, op, "bitrate %d outside supported range [%d, %d]", requested, s.Min, s.Max)
}

func (s BitrateSpec) String() string {
	if len(s.Allowed) > 0 {
		return fmt.Sprintf("%v (%s)", s.Allowed, s.policy())
	}
	return fmt.Sprintf("[%d, %d] (%s)", s.Min, s.Max, s.policy())
}

func (s BitrateSpec) policy() Policy {
	if s.Policy == "" {
		return PolicyExact
	}
	return s.Policy
}

// nearest picks the closest allowed value; ties go to the lower bitrate.
func nearest(allowed []int, requested int) int {
	best := allowed[0]
	for _, b := range allowed[1:] {
		db, dbest := abs(b-requested), abs(best-requested)
		if db < dbest || (db == dbest && b < best) {
			best = b
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Default bitrate capabilities of the built-in adapters.
var (
	LC3Bitrates     = BitrateSpec{Min: 16000, Max: 320000}
	LC3PlusBitrates = BitrateSpec{Min: 16000, Max: 320000}
	OpusBitrates    = BitrateSpec{Min: 6000, Max: 510000}
	EVSBitrates     = BitrateSpec{Allowed: []int{5900, 7200, 8000, 9600, 13200, 16400, 24400, 32000, 48000, 64000, 96000, 128000}}
	FFmpegBitrates  = BitrateSpec{Min: 6000, Max: 512000}
)
