/*Package sequence implements the acceptance-test sequencer for v3 high
voltage power supplies.

An operator walks the occupied channels of the supply in a fixed order.  For
each channel the engine arms one test point at a time (commands the target,
enables the output), waits for the operator to read the external meter and
submit the value, then captures the supply's own readback alongside the
operator's measurement and quiesces the output.  The supply is never left
energized across a channel transition or session teardown.
*/
package sequence

import "strconv"

// Channel identifies one output of the supply
type Channel string

// the seven channels of a fully populated supply
const (
	Beam      Channel = "BM"
	Extractor Channel = "EX"
	Lens1     Channel = "L1"
	Lens2     Channel = "L2"
	Lens3     Channel = "L3"
	Lens4     Channel = "L4"
	Solenoid  Channel = "SL"
)

// CanonicalOrder is the order channels are tested in, independent of which
// of them are occupied
var CanonicalOrder = []Channel{Beam, Extractor, Lens1, Lens2, Lens3, Lens4, Solenoid}

// Kind distinguishes high voltage channels from the solenoid current channel
type Kind int

const (
	// HighVoltage channels are tested with the signed voltage ladder
	HighVoltage Kind = iota

	// SolenoidCurrent is tested with the positive current ladder.  Solenoids
	// are unidirectional, so unlike the HV ladder there are no negative
	// points.
	SolenoidCurrent
)

// Kind returns the channel's classification
func (c Channel) Kind() Kind {
	if c == Solenoid {
		return SolenoidCurrent
	}
	return HighVoltage
}

// Valid returns true if c is one of the seven channel ids
func (c Channel) Valid() bool {
	for _, ch := range CanonicalOrder {
		if c == ch {
			return true
		}
	}
	return false
}

// TestPoint is one rung of a channel's test ladder
type TestPoint struct {
	// Ordinal is the point's position in the ladder, and the index of its
	// result slot
	Ordinal int `json:"ordinal"`

	// Target is the commanded magnitude, volts for HV channels and amps
	// for the solenoid
	Target float64 `json:"target"`
}

// Label returns a human readable name for the point, e.g. "-500 V" or "1.2 A"
func (tp TestPoint) Label() string {
	var unit string
	if tp.Target == float64(int(tp.Target)) {
		unit = strconv.Itoa(int(tp.Target)) + " V"
	} else {
		unit = strconv.FormatFloat(tp.Target, 'f', -1, 64) + " A"
	}
	return unit
}

var (
	hvLadder  = []float64{100, 500, 1000, -100, -500, -1000}
	solLadder = []float64{0.3, 1.2, 2.5}
)

// Ladder returns the test points for a channel kind, in ordinal order.
// HV channels get six signed voltage points, the solenoid three currents.
func Ladder(k Kind) []TestPoint {
	var targets []float64
	if k == SolenoidCurrent {
		targets = solLadder
	} else {
		targets = hvLadder
	}
	pts := make([]TestPoint, len(targets))
	for i, t := range targets {
		pts[i] = TestPoint{Ordinal: i, Target: t}
	}
	return pts
}

// PointCount returns the number of result slots a channel has
func PointCount(c Channel) int {
	if c.Kind() == SolenoidCurrent {
		return len(solLadder)
	}
	return len(hvLadder)
}

var channelNames = map[Channel]string{
	Beam:      "Beam",
	Extractor: "Extractor",
	Lens1:     "Lens 1",
	Lens2:     "Lens 2",
	Lens3:     "Lens 3",
	Lens4:     "Lens 4",
	Solenoid:  "Solenoid",
}

// Name returns the long form name of the channel
func (c Channel) Name() string {
	return channelNames[c]
}

// Instructions returns the printed operator workflow for testing c
func (c Channel) Instructions() string {
	if c.Kind() == SolenoidCurrent {
		return `1. Plug a 2-pin Fischer connector into the solenoid current receptacle.
2. Plug the current tester connector into the other end of the cable.
3. Set up a multimeter to measure current, scaled to read up to 2.5 A.
4. Attach the positive lead to one pin of the current connector.
5. Attach the common lead to the other pin.
6. Arm one of the current test points, wait for the current to ramp and
   stabilize, then record the measured value.
7. Repeat for each of the three current settings.
8. Advance to finish the sequence.`
	}
	return `1. Ensure the interlock receptacle is jumpered.
2. Insert the HV pigtail into the ` + c.Name() + ` HV receptacle.
3. Connect the HV pigtail banana plug to the voltmeter.
4. Attach the common lead of the voltmeter to the ground lug.
5. Arm one of the voltage test points, wait for the voltage to ramp and
   stabilize, then record the measured value.
6. Repeat for each of the six voltage settings.
7. Advance to the next channel when complete.`
}
