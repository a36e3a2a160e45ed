package sequence

import (
	"log"

	"github.com/pkg/errors"

	"github.com/ebeamtools/hvpsqual/hvps"
)

var (
	// ErrSessionComplete is returned for operator actions after the last
	// channel has been advanced past.
	ErrSessionComplete = errors.New("sequence: session is complete")

	// ErrSessionClosed is returned for operator actions after Close.
	ErrSessionClosed = errors.New("sequence: session is closed")
)

// Transition names the way a channel visit began.
type Transition string

// the three ways a channel activation can be reached
const (
	TransitionStart Transition = "start"
	TransitionNext  Transition = "next"
	TransitionBack  Transition = "back"
)

// Activation describes the current channel visit for the operator's display:
// which channel, what to hook up, which points exist, and what was
// previously entered for each slot.
type Activation struct {
	Channel      Channel     `json:"channel"`
	Name         string      `json:"name"`
	Index        int         `json:"index"`
	Count        int         `json:"count"`
	Instructions string      `json:"instructions"`
	Points       []TestPoint `json:"points"`

	// Entries holds the slot contents in ordinal order; recaptured slots
	// show the prior measurement when a channel is revisited
	Entries []string `json:"entries"`

	// BackEnabled is false at the first channel
	BackEnabled bool `json:"backEnabled"`

	// Reason is the transition that produced this activation
	Reason Transition `json:"reason"`
}

// Session drives one full acceptance test: a Sequencer over the occupied
// channels, a fresh Engine per visit, and the shared Results.  All device
// traffic for sequencing funnels through here so the quiesce contract holds
// on every transition.
type Session struct {
	dev     hvps.Controller
	seq     *Sequencer
	results *Results
	engine  *Engine
	reason  Transition

	complete bool
	closed   bool

	// OnComplete, if set, receives the accumulated (readbacks, measurements)
	// mappings when the operator advances past the last channel
	OnComplete func(readbacks, measurements map[string][]string)
}

// NewSession builds a session over the occupied channels.  Occupied
// channels' result slots start as Unmeasured; everything else stays N/I.
func NewSession(dev hvps.Controller, occupied []Channel) *Session {
	results := NewResults()
	seq := NewSequencer(occupied)
	for _, ch := range seq.Plan() {
		results.MarkOccupied(ch)
	}
	s := &Session{
		dev:     dev,
		seq:     seq,
		results: results,
		reason:  TransitionStart,
	}
	if ch, ok := seq.Current(); ok {
		s.engine = newEngine(dev, results, ch)
	} else {
		s.complete = true
	}
	return s
}

// Activation returns the display state for the current channel visit.
func (s *Session) Activation() (Activation, error) {
	if err := s.usable(); err != nil {
		return Activation{}, err
	}
	ch := s.engine.Channel()
	pts := s.engine.Points()
	entries := make([]string, len(pts))
	for i := range pts {
		entries[i] = s.results.Measurement(ch, i)
	}
	return Activation{
		Channel:      ch,
		Name:         ch.Name(),
		Index:        s.seq.Index(),
		Count:        len(s.seq.Plan()),
		Instructions: ch.Instructions(),
		Points:       pts,
		Entries:      entries,
		BackEnabled:  !s.seq.AtFirst(),
		Reason:       s.reason,
	}, nil
}

// Arm arms a test point on the current channel.
func (s *Session) Arm(ordinal int) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.engine.Arm(ordinal)
}

// Capture commits a measurement for the armed point.
func (s *Session) Capture(measurement string) (Focus, error) {
	if err := s.usable(); err != nil {
		return Focus{}, err
	}
	return s.engine.Capture(measurement)
}

// DisableOutput is the manual kill control for the current channel.
func (s *Session) DisableOutput() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.engine.DisableOutput()
}

// Next quiesces the supply and advances to the next channel.  Advancing
// past the last channel completes the session and emits the accumulated
// mappings.  A quiesce failure aborts the move; the position is unchanged
// and the operator may retry.
func (s *Session) Next() error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := quiesce(s.dev, s.engine.Channel()); err != nil {
		return err
	}
	s.seq.Advance()
	s.reason = TransitionNext
	if ch, ok := s.seq.Current(); ok {
		s.engine = newEngine(s.dev, s.results, ch)
		return nil
	}
	s.complete = true
	s.engine = nil
	if s.OnComplete != nil {
		rb, ms := s.results.Mappings()
		s.OnComplete(rb, ms)
	}
	return nil
}

// Back quiesces the supply and retreats to the previous channel.  It is an
// error at the first channel; the check runs before any device traffic.
func (s *Session) Back() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.seq.AtFirst() {
		return ErrAtFirstChannel
	}
	if err := quiesce(s.dev, s.engine.Channel()); err != nil {
		return err
	}
	if err := s.seq.Retreat(); err != nil {
		return err
	}
	s.reason = TransitionBack
	ch, _ := s.seq.Current()
	s.engine = newEngine(s.dev, s.results, ch)
	return nil
}

// Complete returns true once every channel has been advanced past.
func (s *Session) Complete() bool {
	return s.complete
}

// Mappings returns the accumulated result mappings.
func (s *Session) Mappings() (readbacks, measurements map[string][]string) {
	return s.results.Mappings()
}

// Close quiesces the supply and retires the session.  It is safe on any
// termination path, normal or not; quiesce failures are logged rather than
// returned, since teardown must not be blocked on a sick device.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.complete || s.engine == nil {
		return
	}
	if err := quiesce(s.dev, s.engine.Channel()); err != nil {
		log.Printf("quiesce on close: %v", err)
	}
}

func (s *Session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.complete {
		return ErrSessionComplete
	}
	return nil
}

// quiesce makes the supply safe before leaving a channel: state is queried
// once, and any enabled output is disabled and its target zeroed.  Only the
// kind of output the departing channel uses can be live, but both bits are
// honored so a supply left hot by another path still gets shut down.
func quiesce(dev hvps.Controller, ch Channel) error {
	st, err := dev.State()
	if err != nil {
		return errors.Wrap(err, "querying supply state")
	}
	if st.HVEnabled {
		if err := dev.DisableHV(); err != nil {
			return errors.Wrap(err, "disabling high voltage")
		}
		hvCh := ch
		if hvCh.Kind() != HighVoltage {
			hvCh = Beam
		}
		if err := dev.SetVoltage(string(hvCh), 0); err != nil {
			return errors.Wrapf(err, "zeroing %s target", hvCh)
		}
	}
	if st.SolenoidEnabled {
		if err := dev.DisableSolenoid(); err != nil {
			return errors.Wrap(err, "disabling solenoid current")
		}
		if err := dev.SetSolenoidCurrent(0); err != nil {
			return errors.Wrap(err, "zeroing solenoid target")
		}
	}
	return nil
}
