package sequence

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/ebeamtools/hvpsqual/hvps"
)

// failing wraps the mock supply and forces errors on selected commands to
// exercise the retry paths.
type failing struct {
	*hvps.Mock
	failEnable  bool
	failVoltage bool
}

func (f *failing) EnableHV() error {
	if f.failEnable {
		return errors.New("no response from supply")
	}
	return f.Mock.EnableHV()
}

func (f *failing) Voltage(channel string) (string, error) {
	if f.failVoltage {
		return "", errors.New("no response from supply")
	}
	return f.Mock.Voltage(channel)
}

func callIndex(calls []string, target string) int {
	for i, c := range calls {
		if c == target {
			return i
		}
	}
	return -1
}

func countCalls(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestArmCommandsTargetThenEnables(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam, Solenoid})

	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm(0): %v", err)
	}
	set := callIndex(mock.Calls, "SetVoltage BM 100")
	on := callIndex(mock.Calls, "EnableHV")
	if set == -1 || on == -1 || set > on {
		t.Fatalf("arm call order wrong: %v", mock.Calls)
	}

	// a second trigger while armed is rejected without touching the supply
	before := len(mock.Calls)
	if err := s.Arm(1); errors.Cause(err) != ErrPointArmed {
		t.Errorf("Arm(1) while point 0 armed: got %v, want ErrPointArmed", err)
	}
	if len(mock.Calls) != before {
		t.Errorf("rejected arm still reached the supply: %v", mock.Calls[before:])
	}

	// re-arming the same point retries, but the already-enabled output is
	// not toggled again
	if err := s.Arm(0); err != nil {
		t.Fatalf("re-Arm(0): %v", err)
	}
	if n := countCalls(mock.Calls, "EnableHV"); n != 1 {
		t.Errorf("EnableHV called %d times, want 1", n)
	}
}

func TestCaptureRecordsThenZeroesThenDisables(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam, Solenoid})

	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm(0): %v", err)
	}
	focus, err := s.Capture("99.8")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if focus.Advance || focus.Point != 1 {
		t.Errorf("focus after first capture = %+v, want point 1", focus)
	}

	read := callIndex(mock.Calls, "Voltage BM")
	zero := callIndex(mock.Calls, "SetVoltage BM 0")
	off := callIndex(mock.Calls, "DisableHV")
	if read == -1 || zero == -1 || off == -1 {
		t.Fatalf("capture did not run the full shutdown: %v", mock.Calls)
	}
	if !(read < zero && zero < off) {
		t.Errorf("capture order readback=%d zero=%d disable=%d, want readback < zero < disable", read, zero, off)
	}

	act, err := s.Activation()
	if err != nil {
		t.Fatalf("Activation: %v", err)
	}
	if act.Entries[0] != "99.8" {
		t.Errorf("recorded entry %q, want it byte for byte as typed", act.Entries[0])
	}
}

func TestMeasurementsKeptVerbatim(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam})

	entries := []string{"99.8", "503.2", "1002.3", "-99.9", "-500.0", "-1000.1"}
	for i, e := range entries {
		if err := s.Arm(i); err != nil {
			t.Fatalf("Arm(%d): %v", i, err)
		}
		if _, err := s.Capture(e); err != nil {
			t.Fatalf("Capture(%q): %v", e, err)
		}
	}
	_, ms := s.Mappings()
	for i, e := range entries {
		if ms["BM"][i] != e {
			t.Errorf("measurement slot %d = %q, want %q", i, ms["BM"][i], e)
		}
	}
}

func TestBadEntryRejectedBeforeCommit(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam})

	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm(0): %v", err)
	}
	before := len(mock.Calls)
	if _, err := s.Capture("99"); errors.Cause(err) != ErrBadMeasurement {
		t.Fatalf("Capture(\"99\"): got %v, want ErrBadMeasurement", err)
	}
	if len(mock.Calls) != before {
		t.Errorf("rejected entry still reached the supply: %v", mock.Calls[before:])
	}
	// the point stays armed; a corrected entry goes through
	if _, err := s.Capture("99.8"); err != nil {
		t.Errorf("corrected Capture: %v", err)
	}
}

func TestDeviceFailureLeavesStateUnchanged(t *testing.T) {
	dev := &failing{Mock: hvps.NewMock("", false), failEnable: true}
	results := NewResults()
	e := newEngine(dev, results, Beam)

	if err := e.Arm(0); err == nil {
		t.Fatal("Arm should surface the enable failure")
	}
	if _, armed := e.Armed(); armed {
		t.Error("failed arm must not leave the point armed")
	}
	dev.failEnable = false
	if err := e.Arm(0); err != nil {
		t.Fatalf("retry after failure cleared: %v", err)
	}

	// a readback failure mid-capture leaves the point armed for retry
	dev.failVoltage = true
	if _, err := e.Capture("99.8"); err == nil {
		t.Fatal("Capture should surface the readback failure")
	}
	if ord, armed := e.Armed(); !armed || ord != 0 {
		t.Errorf("point should remain armed after a readback failure; armed=%v ord=%d", armed, ord)
	}
	if results.Captured(Beam, 0) {
		t.Error("failed capture must not commit a result")
	}
	dev.failVoltage = false
	if _, err := e.Capture("99.8"); err != nil {
		t.Errorf("retry capture: %v", err)
	}
}

func TestSentinelsForUnoccupiedAndSkipped(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam, Solenoid})

	// capture only one point on the beam, skip the rest and the solenoid
	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if _, err := s.Capture("99.8"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next past last: %v", err)
	}

	rb, ms := s.Mappings()
	if ms["BM"][0] != "99.8" {
		t.Errorf("BM[0] = %q, want the capture", ms["BM"][0])
	}
	for i := 1; i < 6; i++ {
		if ms["BM"][i] != Unmeasured {
			t.Errorf("skipped BM slot %d = %q, want %q", i, ms["BM"][i], Unmeasured)
		}
	}
	for i := 0; i < 3; i++ {
		if ms["SL"][i] != Unmeasured || rb["SL"][i] != Unmeasured {
			t.Errorf("occupied SL slot %d should read %q", i, Unmeasured)
		}
	}
	for _, ch := range []string{"EX", "L1", "L2", "L3", "L4"} {
		for i, v := range ms[ch] {
			if v != NotInstalled {
				t.Errorf("unoccupied %s slot %d = %q, want %q", ch, i, v, NotInstalled)
			}
		}
	}
}

func TestNextQuiescesBeforeMoving(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam, Solenoid})

	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	// leave the output hot and advance anyway
	if err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	off := callIndex(mock.Calls, "DisableHV")
	zero := callIndex(mock.Calls, "SetVoltage BM 0")
	if off == -1 || zero == -1 || off > zero {
		t.Fatalf("transition quiesce order wrong: %v", mock.Calls)
	}
	act, err := s.Activation()
	if err != nil {
		t.Fatalf("Activation: %v", err)
	}
	if act.Channel != Solenoid {
		t.Errorf("advanced to %s, want SL", act.Channel)
	}
}

func TestBackGuardedAtFirstChannel(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam, Extractor})

	act, _ := s.Activation()
	if act.BackEnabled {
		t.Error("Back should be disabled at the first channel")
	}
	before := len(mock.Calls)
	if err := s.Back(); errors.Cause(err) != ErrAtFirstChannel {
		t.Errorf("Back at first channel: got %v, want ErrAtFirstChannel", err)
	}
	if len(mock.Calls) != before {
		t.Errorf("guarded Back still reached the supply: %v", mock.Calls[before:])
	}

	if err := s.Arm(0); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if _, err := s.Capture("99.8"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := s.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	act, err := s.Activation()
	if err != nil {
		t.Fatalf("Activation: %v", err)
	}
	if act.Channel != Beam || act.Reason != TransitionBack {
		t.Errorf("activation after Back = %s/%s, want BM/back", act.Channel, act.Reason)
	}
	// the earlier entry is re-displayed for recapture
	if act.Entries[0] != "99.8" {
		t.Errorf("revisit entry = %q, want the prior capture", act.Entries[0])
	}
}

func TestCloseMidTestShutsDownOnce(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Beam, Solenoid})

	if err := s.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	s.Close()
	if n := countCalls(mock.Calls, "DisableHV"); n != 1 {
		t.Errorf("DisableHV called %d times during close, want 1", n)
	}
	if n := countCalls(mock.Calls, "SetVoltage BM 0"); n != 1 {
		t.Errorf("SetVoltage BM 0 called %d times during close, want 1", n)
	}
	// idempotent
	s.Close()
	if n := countCalls(mock.Calls, "DisableHV"); n != 1 {
		t.Errorf("second Close touched the supply again")
	}
	if err := s.Arm(0); errors.Cause(err) != ErrSessionClosed {
		t.Errorf("Arm after Close: got %v, want ErrSessionClosed", err)
	}
}

func TestCompletionEmitsMappings(t *testing.T) {
	mock := hvps.NewMock("", false)
	s := NewSession(mock, []Channel{Solenoid})

	var gotRB, gotMS map[string][]string
	s.OnComplete = func(rb, ms map[string][]string) {
		gotRB, gotMS = rb, ms
	}

	if err := s.Arm(1); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	set := callIndex(mock.Calls, "SetSolenoidCurrent 1.2")
	on := callIndex(mock.Calls, "EnableSolenoid")
	if set == -1 || on == -1 || set > on {
		t.Fatalf("solenoid arm order wrong: %v", mock.Calls)
	}
	focus, err := s.Capture("1.19")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if focus.Advance || focus.Point != 2 {
		t.Errorf("focus = %+v, want point 2", focus)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next past last: %v", err)
	}
	if !s.Complete() {
		t.Fatal("session should be complete")
	}
	if gotMS == nil || gotMS["SL"][1] != "1.19" {
		t.Errorf("OnComplete measurements = %v", gotMS)
	}
	if gotRB == nil || gotRB["SL"][1] != "1.20" {
		t.Errorf("OnComplete readbacks = %v", gotRB)
	}
	if err := s.Next(); errors.Cause(err) != ErrSessionComplete {
		t.Errorf("Next after completion: got %v, want ErrSessionComplete", err)
	}
}
