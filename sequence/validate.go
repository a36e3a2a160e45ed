package sequence

import (
	"math"
	"regexp"

	"github.com/pkg/errors"
)

// ErrBadMeasurement is returned when the operator's entry does not match
// the decimal format for the armed point.
var ErrBadMeasurement = errors.New("sequence: measurement does not match the expected decimal format")

// Entry formats, per the meter scales used at each point:
// low voltage points read like "-99.8", the 1 kV points like "-1002.3",
// solenoid currents like "2.49".
var (
	lowVoltageEntry  = regexp.MustCompile(`^-?\d{1,3}\.\d$`)
	highVoltageEntry = regexp.MustCompile(`^-?\d{1,4}\.\d$`)
	solenoidEntry    = regexp.MustCompile(`^\d?\.\d{1,2}$`)
)

// validateMeasurement checks the operator's entry against the format for
// the channel kind and point magnitude.  Entries are rejected before they
// can reach a result slot.
func validateMeasurement(ch Channel, pt TestPoint, text string) error {
	var pat *regexp.Regexp
	switch {
	case ch.Kind() == SolenoidCurrent:
		pat = solenoidEntry
	case math.Abs(pt.Target) >= 1000:
		pat = highVoltageEntry
	default:
		pat = lowVoltageEntry
	}
	if !pat.MatchString(text) {
		return errors.Wrapf(ErrBadMeasurement, "entry %q for point %s", text, pt.Label())
	}
	return nil
}
