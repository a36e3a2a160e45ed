/*Package hvps provides a driver for v3 multi-channel high voltage power
supplies used in electron-beam instrumentation.

The supply exposes six high voltage channels (BM, EX, L1..L4) sharing one HV
enable, and a single solenoid current output with its own enable.  The
composite enable state is reported by the supply as an ASCII token,
"STATE0000" .. "STATE0011"; it is decoded into a Status struct here at the
driver boundary and the raw token never leaves this package.
*/
package hvps

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"
	"golang.org/x/time/rate"

	"github.com/ebeamtools/hvpsqual/comm"
)

const (
	// terminator is the message termination used by the supply in both directions
	terminator = '\r'

	// the supply drops commands above ~20/s, stay under that
	cmdsPerSecond = 20

	timeout = 3 * time.Second

	replySize = 80
)

// Status is the decoded output-enable state of the supply
type Status struct {
	// HVEnabled is true when the high voltage output is live
	HVEnabled bool `json:"hvEnabled"`

	// SolenoidEnabled is true when the solenoid current output is live
	SolenoidEnabled bool `json:"solenoidEnabled"`
}

// decodeState converts a composite state token, e.g. "STATE0001", to a
// Status.  The low bit is the HV enable, the next bit the solenoid enable.
func decodeState(token string) (Status, error) {
	var s Status
	if !strings.HasPrefix(token, "STATE") || len(token) != 9 {
		return s, fmt.Errorf("hvps: malformed state token %q", token)
	}
	bits := token[5:]
	for _, b := range bits {
		if b != '0' && b != '1' {
			return s, fmt.Errorf("hvps: malformed state token %q", token)
		}
	}
	s.HVEnabled = bits[3] == '1'
	s.SolenoidEnabled = bits[2] == '1'
	return s, nil
}

// Controller is the interface of a v3 supply, satisfied by both the real
// driver and the mock
type Controller interface {
	// State reports the decoded output-enable state
	State() (Status, error)

	// SetVoltage commands the voltage target for a channel, in volts
	SetVoltage(channel string, volts float64) error

	// Voltage reads the supply's own voltage readback for a channel,
	// as the supply reports it
	Voltage(channel string) (string, error)

	// SetSolenoidCurrent commands the solenoid current target, in amps
	SetSolenoidCurrent(amps float64) error

	// Current reads the supply's current readback for a channel
	Current(channel string) (string, error)

	// EnableHV turns on the high voltage output
	EnableHV() error

	// DisableHV turns off the high voltage output
	DisableHV() error

	// EnableSolenoid turns on the solenoid current output
	EnableSolenoid() error

	// DisableSolenoid turns off the solenoid current output
	DisableSolenoid() error
}

func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout}
}

// HVPSv3 talks to a v3 supply over TCP or RS232
type HVPSv3 struct {
	pool    *comm.Pool
	limiter *rate.Limiter
}

// NewHVPSv3 creates a new HVPSv3 instance.  addr is a host:port for TCP, or
// a port name for serial when connectSerial is true.
func NewHVPSv3(addr string, connectSerial bool) *HVPSv3 {
	var maker comm.CreationFunc
	if connectSerial {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, timeout)
	}
	return &HVPSv3{
		pool:    comm.NewPool(1, 30*time.Second, maker),
		limiter: rate.NewLimiter(rate.Limit(cmdsPerSecond), 1),
	}
}

func (h *HVPSv3) exchange(cmd string) (string, error) {
	err := h.limiter.Wait(context.Background())
	if err != nil {
		return "", err
	}
	conn, err := h.pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { h.pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, terminator, terminator)
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return "", err
	}
	_, err = io.WriteString(wrap, cmd)
	if err != nil {
		return "", err
	}
	buf := make([]byte, replySize)
	n, err := wrap.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// writeOnly sends a command and checks the supply's OK acknowledgement
func (h *HVPSv3) writeOnly(cmd string) error {
	resp, err := h.exchange(cmd)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return fmt.Errorf("hvps: command %q not acknowledged, got %q", cmd, resp)
	}
	return nil
}

// State reports the decoded output-enable state of the supply
func (h *HVPSv3) State() (Status, error) {
	resp, err := h.exchange("STATE?")
	if err != nil {
		return Status{}, err
	}
	return decodeState(resp)
}

// SetVoltage commands the voltage target for a channel, in volts
func (h *HVPSv3) SetVoltage(channel string, volts float64) error {
	return h.writeOnly("VSET " + channel + " " + strconv.FormatFloat(volts, 'f', 1, 64))
}

// Voltage reads the supply's voltage readback for a channel
func (h *HVPSv3) Voltage(channel string) (string, error) {
	return h.exchange("VGET " + channel)
}

// SetSolenoidCurrent commands the solenoid current target, in amps
func (h *HVPSv3) SetSolenoidCurrent(amps float64) error {
	return h.writeOnly("ISET " + strconv.FormatFloat(amps, 'f', 2, 64))
}

// Current reads the supply's current readback for a channel
func (h *HVPSv3) Current(channel string) (string, error) {
	return h.exchange("IGET " + channel)
}

// EnableHV turns on the high voltage output
func (h *HVPSv3) EnableHV() error {
	return h.writeOnly("HVON")
}

// DisableHV turns off the high voltage output
func (h *HVPSv3) DisableHV() error {
	return h.writeOnly("HVOFF")
}

// EnableSolenoid turns on the solenoid current output
func (h *HVPSv3) EnableSolenoid() error {
	return h.writeOnly("SOLON")
}

// DisableSolenoid turns off the solenoid current output
func (h *HVPSv3) DisableSolenoid() error {
	return h.writeOnly("SOLOFF")
}

// Raw sends a raw command to the supply and returns its response
func (h *HVPSv3) Raw(cmd string) (string, error) {
	return h.exchange(cmd)
}
