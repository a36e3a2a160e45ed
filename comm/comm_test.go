package comm

import (
	"bytes"
	"io"
	"testing"
	"time"
)

// pipeRW is an in-memory ReadWriteCloser used to stand in for a device.
type pipeRW struct {
	rx *bytes.Buffer
	tx *bytes.Buffer
}

func (p *pipeRW) Read(b []byte) (int, error)  { return p.rx.Read(b) }
func (p *pipeRW) Write(b []byte) (int, error) { return p.tx.Write(b) }
func (p *pipeRW) Close() error                { return nil }

func TestTerminatorAppendsAndStrips(t *testing.T) {
	p := &pipeRW{rx: bytes.NewBufferString("STATE0001\r"), tx: &bytes.Buffer{}}
	term := NewTerminator(p, '\r', '\r')
	n, err := term.Write([]byte("STATE?"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("expected write count 6, got %d", n)
	}
	if got := p.tx.String(); got != "STATE?\r" {
		t.Errorf("expected terminated command on the wire, got %q", got)
	}
	buf := make([]byte, 80)
	n, err = term.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "STATE0001" {
		t.Errorf("expected stripped response, got %q", got)
	}
}

func TestPoolReusesConnections(t *testing.T) {
	made := 0
	maker := func() (io.ReadWriteCloser, error) {
		made++
		return &pipeRW{rx: &bytes.Buffer{}, tx: &bytes.Buffer{}}, nil
	}
	pool := NewPool(1, time.Minute, maker)
	c, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(c)
	c2, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	if made != 1 {
		t.Errorf("expected one dial, got %d", made)
	}
	if c2 != c {
		t.Error("expected the same connection back from the pool")
	}
	pool.Put(c2)
}

func TestPoolDestroyOnError(t *testing.T) {
	maker := func() (io.ReadWriteCloser, error) {
		return &pipeRW{rx: &bytes.Buffer{}, tx: &bytes.Buffer{}}, nil
	}
	pool := NewPool(1, time.Minute, maker)
	c, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.ReturnWithError(c, io.ErrUnexpectedEOF)
	if pool.Size() != 0 {
		t.Errorf("expected empty pool after destroying errored conn, got size %d", pool.Size())
	}
}
