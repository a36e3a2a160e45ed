/*Package comm provides connection plumbing for talking to bench instruments.

The expected usage is to build a Pool with a connection maker, then wrap the
connection taken from the pool for the flavor of line protocol the device
speaks:

	maker := comm.BackingOffTCPConnMaker("192.168.100.41:2101", 3*time.Second)
	pool := comm.NewPool(1, 30*time.Second, maker)
	conn, err := pool.Get()
	// handle err
	defer func() { pool.ReturnWithError(conn, err) }()
	rw := comm.NewTerminator(conn, '\r', '\r')
	rw, err = comm.NewTimeout(rw, 3*time.Second)
*/
package comm

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// CreationFunc returns a new connection to a device.  Use a closure to
// capture the address and any dial options.
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection and applies timeout to the dial as
// well as the first read and write.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Some devices (and terminal servers) refuse
// connections when thrashed; the backoff keeps reconnects polite.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by cfg.  The port's own ReadTimeout stands in for deadlines.
func SerialConnMaker(cfg *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(cfg)
	}
}

// Pool holds one or more connections to a device.  Connections are handed
// out with Get and restored with Put or ReturnWithError; idle connections
// are closed after timeout once all of them have been returned.  Pools are
// concurrent safe and must be created with NewPool.
type Pool struct {
	maxSize int
	onLease int
	timeout time.Duration
	conns   chan io.ReadWriteCloser
	timer   *time.Timer
	maker   CreationFunc

	reclaiming bool
	mu         sync.Mutex
}

// NewPool creates a new Pool holding up to maxSize connections made by maker.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
	}
	p.timer.Stop() // nothing to free yet
	return p
}

// Get retrieves a connection from the pool, blocking until one is available
// if all of them are leased out.  The caller has exclusive use of the
// ReadWriter until it is returned with Put, ReturnWithError, or Destroy.
// A connection obtained alongside a non-nil error must not be returned.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) > 0 {
		ret := <-p.conns
		p.onLease++
		return ret, nil
	}
	if p.onLease == p.maxSize {
		// all leased out; wait for one to come back
		ret := <-p.conns
		p.onLease++
		return ret, nil
	}
	c, err := p.maker()
	if err == nil {
		p.onLease++
	}
	return c, err
}

// Put restores a connection to the pool for reuse.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.conns <- rwc
	p.mu.Lock()
	p.onLease--
	if len(p.conns) == p.maxSize {
		p.startReclaim()
	}
	p.mu.Unlock()
}

// Destroy closes a connection and removes it from the pool's accounting.
// Use it instead of Put when the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	if rwc, ok := rw.(io.ReadWriteCloser); ok {
		rwc.Close()
	}
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
}

// ReturnWithError puts rw back in the pool if err is nil, otherwise destroys
// it.  Intended for use in a deferred closure around a command exchange.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if rw == nil {
		return
	}
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections owned by the pool, leased or idle.
func (p *Pool) Size() int {
	return len(p.conns) + p.onLease
}

// Active returns the number of connections currently leased out.
func (p *Pool) Active() int {
	return p.onLease
}

func (p *Pool) startReclaim() {
	if p.reclaiming {
		return
	}
	p.reclaiming = true
	p.timer.Reset(p.timeout)
	go func() {
		<-p.timer.C
		p.mu.Lock()
		for len(p.conns) > 0 {
			c := <-p.conns
			c.Close()
		}
		p.reclaiming = false
		p.mu.Unlock()
	}()
}

// Terminator wraps a ReadWriter for devices speaking a terminated line
// protocol.  Write appends the Tx terminator; Read consumes through the Rx
// terminator and strips it.
type Terminator struct {
	rxTerm byte
	txTerm byte
	buf    *bufio.Reader
	raw    io.ReadWriter
}

// NewTerminator returns a Terminator using the given Rx and Tx terminators.
func NewTerminator(rw io.ReadWriter, rxTerm, txTerm byte) *Terminator {
	return &Terminator{
		rxTerm: rxTerm,
		txTerm: txTerm,
		buf:    bufio.NewReader(rw),
		raw:    rw,
	}
}

// Write sends b followed by the Tx terminator.  The returned count excludes
// the terminator.
func (t *Terminator) Write(b []byte) (int, error) {
	out := make([]byte, 0, len(b)+1)
	out = append(out, b...)
	out = append(out, t.txTerm)
	n, err := t.raw.Write(out)
	if n > 0 {
		n--
	}
	return n, err
}

// Read reads through the Rx terminator and copies the stripped response
// into b.
func (t *Terminator) Read(b []byte) (int, error) {
	data, err := t.buf.ReadBytes(t.rxTerm)
	if err != nil {
		return 0, err
	}
	data = bytes.TrimSuffix(data, []byte{t.rxTerm})
	n := copy(b, data)
	return n, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// NewTimeout applies a deadline of now+timeout to the connection underneath
// rw, reaching through a Terminator if there is one.  Connections without
// deadline support (serial ports) pass through untouched; their own read
// timeout governs.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	under := rw
	if t, ok := rw.(*Terminator); ok {
		under = t.raw
	}
	if d, ok := under.(deadliner); ok {
		err := d.SetDeadline(time.Now().Add(timeout))
		return rw, err
	}
	return rw, nil
}
