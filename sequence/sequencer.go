package sequence

import "github.com/pkg/errors"

// ErrAtFirstChannel is returned by Retreat when the sequencer is at the
// first channel, which has no back target.
var ErrAtFirstChannel = errors.New("sequence: already at the first channel")

// BuildPlan filters the canonical channel order down to the occupied set.
// The result is deterministic for a given occupancy regardless of the order
// occupied is given in.  Unknown ids are dropped.
func BuildPlan(occupied []Channel) []Channel {
	set := map[Channel]bool{}
	for _, ch := range occupied {
		set[ch] = true
	}
	plan := make([]Channel, 0, len(CanonicalOrder))
	for _, ch := range CanonicalOrder {
		if set[ch] {
			plan = append(plan, ch)
		}
	}
	return plan
}

// Sequencer owns the ordered list of channels under test and the current
// position.  It does not touch the device; callers quiesce the supply
// before moving it.
type Sequencer struct {
	plan []Channel
	idx  int
}

// NewSequencer returns a Sequencer over the occupied channels in canonical
// order, positioned at the first.
func NewSequencer(occupied []Channel) *Sequencer {
	return &Sequencer{plan: BuildPlan(occupied)}
}

// Plan returns the ordered channel list under test.
func (s *Sequencer) Plan() []Channel {
	out := make([]Channel, len(s.plan))
	copy(out, s.plan)
	return out
}

// Current returns the channel at the current position.  ok is false once
// the sequence has run past the end.
func (s *Sequencer) Current() (ch Channel, ok bool) {
	if s.idx >= len(s.plan) {
		return "", false
	}
	return s.plan[s.idx], true
}

// Index returns the current 0-based position.
func (s *Sequencer) Index() int {
	return s.idx
}

// Done returns true when every channel has been visited.
func (s *Sequencer) Done() bool {
	return s.idx >= len(s.plan)
}

// AtFirst returns true at the first channel, where Back is disabled.
func (s *Sequencer) AtFirst() bool {
	return s.idx == 0
}

// Advance moves to the next channel.
func (s *Sequencer) Advance() {
	s.idx++
}

// Retreat moves to the previous channel.  It is an error at the first
// channel.
func (s *Sequencer) Retreat() error {
	if s.idx == 0 {
		return ErrAtFirstChannel
	}
	s.idx--
	return nil
}
