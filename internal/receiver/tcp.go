package receiver

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"
)

// TCPDriver talks to a networked receiver front-end (an SDR server
// exposing the dish's digitizer). The wire protocol is a line-oriented
// control channel multiplexed with raw sample data: a TUNE command is
// answered with "OK\n", after which the server streams interleaved
// little-endian float32 I/Q pairs continuously.
type TCPDriver struct {
	addr       string
	sampleRate float64

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// NewTCPDriver returns a driver for the digitizer at addr. The
// connection is established on first use.
func NewTCPDriver(addr string, sampleRate float64) *TCPDriver {
	return &TCPDriver{addr: addr, sampleRate: sampleRate}
}

func (d *TCPDriver) connect(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, d.rd, nil
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial digitizer %s: %w", d.addr, err)
	}
	d.conn = conn
	d.rd = bufio.NewReaderSize(conn, 1<<16)
	return d.conn, d.rd, nil
}

// Tune sends the retune command and waits for the acknowledgement.
func (d *TCPDriver) Tune(ctx context.Context, centerFreq float64) error {
	conn, rd, err := d.connect(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	if t, ok := ctx.Deadline(); ok && t.Before(deadline) {
		deadline = t
	}
	_ = conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if _, err := fmt.Fprintf(conn, "TUNE %.0f\n", centerFreq); err != nil {
		return err
	}
	line, err := rd.ReadString('\n')
	if err != nil {
		return err
	}
	if line != "OK\n" {
		return fmt.Errorf("digitizer refused tune: %q", line)
	}
	return nil
}

// ReadBlock reads n complex samples off the stream. The read deadline is
// generous relative to the sample rate so a stall is reported as a
// timeout rather than hanging the pipeline.
func (d *TCPDriver) ReadBlock(ctx context.Context, n int) ([]complex64, error) {
	conn, rd, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	wait := 2 * time.Duration(float64(n)/d.sampleRate*float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}
	deadline := time.Now().Add(wait)
	if t, ok := ctx.Deadline(); ok && t.Before(deadline) {
		deadline = t
	}
	_ = conn.SetReadDeadline(deadline)

	raw := make([]byte, n*8)
	if _, err := io.ReadFull(rd, raw); err != nil {
		return nil, err
	}
	block := make([]complex64, n)
	for i := range block {
		re := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8+4:]))
		block[i] = complex(re, im)
	}
	return block, nil
}

func (d *TCPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.rd = nil
	return err
}
