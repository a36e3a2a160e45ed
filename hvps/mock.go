package hvps

import (
	"fmt"
	"strconv"
	"sync"
)

// Mock is an in-memory stand in for a v3 supply.  It records every call
// made against it in order, which the tests and the bench-side dry runs
// lean on.
type Mock struct {
	sync.Mutex

	voltages map[string]float64
	solenoid float64
	hvOn     bool
	solOn    bool

	// Calls holds a human readable log of every command, in order
	Calls []string
}

// NewMock returns a Mock with all targets at zero and both outputs off.
// The signature matches NewHVPSv3 so the two swap freely in config.
func NewMock(addr string, connectSerial bool) *Mock {
	return &Mock{voltages: map[string]float64{}}
}

func (m *Mock) log(format string, args ...interface{}) {
	m.Calls = append(m.Calls, fmt.Sprintf(format, args...))
}

// State reports the mock's output-enable state
func (m *Mock) State() (Status, error) {
	m.Lock()
	defer m.Unlock()
	m.log("State")
	return Status{HVEnabled: m.hvOn, SolenoidEnabled: m.solOn}, nil
}

// SetVoltage stores the voltage target for a channel
func (m *Mock) SetVoltage(channel string, volts float64) error {
	m.Lock()
	defer m.Unlock()
	m.voltages[channel] = volts
	m.log("SetVoltage %s %v", channel, volts)
	return nil
}

// Voltage reports the stored target back, as the real supply settles to it
func (m *Mock) Voltage(channel string) (string, error) {
	m.Lock()
	defer m.Unlock()
	m.log("Voltage %s", channel)
	return strconv.FormatFloat(m.voltages[channel], 'f', 1, 64), nil
}

// SetSolenoidCurrent stores the solenoid current target
func (m *Mock) SetSolenoidCurrent(amps float64) error {
	m.Lock()
	defer m.Unlock()
	m.solenoid = amps
	m.log("SetSolenoidCurrent %v", amps)
	return nil
}

// Current reports the stored solenoid target back
func (m *Mock) Current(channel string) (string, error) {
	m.Lock()
	defer m.Unlock()
	m.log("Current %s", channel)
	return strconv.FormatFloat(m.solenoid, 'f', 2, 64), nil
}

// EnableHV turns on the mock HV output
func (m *Mock) EnableHV() error {
	m.Lock()
	defer m.Unlock()
	m.hvOn = true
	m.log("EnableHV")
	return nil
}

// DisableHV turns off the mock HV output
func (m *Mock) DisableHV() error {
	m.Lock()
	defer m.Unlock()
	m.hvOn = false
	m.log("DisableHV")
	return nil
}

// EnableSolenoid turns on the mock solenoid output
func (m *Mock) EnableSolenoid() error {
	m.Lock()
	defer m.Unlock()
	m.solOn = true
	m.log("EnableSolenoid")
	return nil
}

// DisableSolenoid turns off the mock solenoid output
func (m *Mock) DisableSolenoid() error {
	m.Lock()
	defer m.Unlock()
	m.solOn = false
	m.log("DisableSolenoid")
	return nil
}
