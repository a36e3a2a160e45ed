package sequence

import (
	"github.com/pkg/errors"

	"github.com/ebeamtools/hvpsqual/hvps"
)

var (
	// ErrPointArmed is returned by Arm when a different point is already
	// armed; the triggers for other points are disabled while one is live.
	ErrPointArmed = errors.New("sequence: another test point is armed")

	// ErrNoArmedPoint is returned by Capture when no point is armed.
	ErrNoArmedPoint = errors.New("sequence: no test point is armed")

	// ErrBadOrdinal is returned when an ordinal is outside the ladder.
	ErrBadOrdinal = errors.New("sequence: no such test point")
)

// Focus names the control the operator's input focus should land on after
// an engine transition.  It is a pure function of the ladder position, not
// a chain of hand-wired references.
type Focus struct {
	// Point is the ordinal of the trigger to focus, meaningful when
	// Advance is false
	Point int `json:"point"`

	// Advance is true when focus should move to the channel-advance
	// control instead (the captured point was the last in the ladder)
	Advance bool `json:"advance"`
}

// FocusAfter returns the focus target following a capture at ordinal in a
// ladder of count points.
func FocusAfter(ordinal, count int) Focus {
	if ordinal+1 >= count {
		return Focus{Advance: true}
	}
	return Focus{Point: ordinal + 1}
}

// Engine runs one channel's visit: it arms a single test point at a time
// against the supply and commits captured (readback, measurement) pairs to
// the result slots.  A fresh Engine is created on every channel activation;
// nothing is shared between visits except the Results.
type Engine struct {
	dev     hvps.Controller
	results *Results
	channel Channel
	points  []TestPoint
	armed   int // ordinal of the armed point, -1 when idle
}

func newEngine(dev hvps.Controller, results *Results, ch Channel) *Engine {
	return &Engine{
		dev:     dev,
		results: results,
		channel: ch,
		points:  Ladder(ch.Kind()),
		armed:   -1,
	}
}

// Channel returns the channel this engine is visiting.
func (e *Engine) Channel() Channel {
	return e.channel
}

// Points returns the channel's ladder in ordinal order.
func (e *Engine) Points() []TestPoint {
	out := make([]TestPoint, len(e.points))
	copy(out, e.points)
	return out
}

// Armed returns the ordinal of the armed point, if there is one.
func (e *Engine) Armed() (int, bool) {
	if e.armed < 0 {
		return 0, false
	}
	return e.armed, true
}

// Arm commands the supply to the point's target and enables the matching
// output if it is not already live.  While a point is armed every other
// trigger is unavailable; re-arming the same point retries the device
// commands.  On a device failure the engine state is unchanged and the
// operator may re-trigger.
func (e *Engine) Arm(ordinal int) error {
	if ordinal < 0 || ordinal >= len(e.points) {
		return ErrBadOrdinal
	}
	if e.armed >= 0 && e.armed != ordinal {
		return ErrPointArmed
	}
	pt := e.points[ordinal]
	if e.channel.Kind() == SolenoidCurrent {
		if err := e.dev.SetSolenoidCurrent(pt.Target); err != nil {
			return errors.Wrapf(err, "setting %s target for point %s", e.channel, pt.Label())
		}
	} else {
		if err := e.dev.SetVoltage(string(e.channel), pt.Target); err != nil {
			return errors.Wrapf(err, "setting %s target for point %s", e.channel, pt.Label())
		}
	}
	st, err := e.dev.State()
	if err != nil {
		return errors.Wrap(err, "querying supply state")
	}
	if e.channel.Kind() == SolenoidCurrent {
		if !st.SolenoidEnabled {
			if err := e.dev.EnableSolenoid(); err != nil {
				return errors.Wrap(err, "enabling solenoid current")
			}
		}
	} else {
		if !st.HVEnabled {
			if err := e.dev.EnableHV(); err != nil {
				return errors.Wrap(err, "enabling high voltage")
			}
		}
	}
	e.armed = ordinal
	return nil
}

// Capture commits the operator's measurement for the armed point.  It reads
// the supply's readback, records the pair in the point's result slot, zeroes
// the target, disables the output, and returns the engine to idle along
// with the next focus target.
//
// A failure before the record leaves the point armed for retry.  A failure
// after the record is still returned, but the engine presses on to disable
// the output; the supply must not be left energized.
func (e *Engine) Capture(measurement string) (Focus, error) {
	if e.armed < 0 {
		return Focus{}, ErrNoArmedPoint
	}
	pt := e.points[e.armed]
	if err := validateMeasurement(e.channel, pt, measurement); err != nil {
		return Focus{}, err
	}

	var (
		readback string
		err      error
	)
	if e.channel.Kind() == SolenoidCurrent {
		readback, err = e.dev.Current(string(e.channel))
	} else {
		readback, err = e.dev.Voltage(string(e.channel))
	}
	if err != nil {
		return Focus{}, errors.Wrapf(err, "reading %s readback", e.channel)
	}

	e.results.Record(e.channel, pt.Ordinal, readback, measurement)

	var zeroErr, offErr error
	if e.channel.Kind() == SolenoidCurrent {
		zeroErr = e.dev.SetSolenoidCurrent(0)
		offErr = e.dev.DisableSolenoid()
	} else {
		zeroErr = e.dev.SetVoltage(string(e.channel), 0)
		offErr = e.dev.DisableHV()
	}
	e.armed = -1
	focus := FocusAfter(pt.Ordinal, len(e.points))
	if zeroErr != nil {
		return focus, errors.Wrapf(zeroErr, "zeroing %s target", e.channel)
	}
	if offErr != nil {
		return focus, errors.Wrap(offErr, "disabling output")
	}
	return focus, nil
}

// DisableOutput is the operator's manual kill control.  If the channel's
// output is enabled it is disabled; for HV channels the target is zeroed
// as well.
func (e *Engine) DisableOutput() error {
	st, err := e.dev.State()
	if err != nil {
		return errors.Wrap(err, "querying supply state")
	}
	if e.channel.Kind() == SolenoidCurrent {
		if st.SolenoidEnabled {
			return e.dev.DisableSolenoid()
		}
		return nil
	}
	if st.HVEnabled {
		if err := e.dev.DisableHV(); err != nil {
			return err
		}
	}
	return e.dev.SetVoltage(string(e.channel), 0)
}
