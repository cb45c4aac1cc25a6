package receiver

import (
	"bufio"
	"context"
	"encoding/binary"
	"math"
	"net"
	"strings"
	"testing"
)

// fakeDigitizer answers one TUNE command and then streams a constant
// sample value.
func fakeDigitizer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		rd := bufio.NewReader(conn)
		line, err := rd.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "TUNE ") {
			return
		}
		if _, err := conn.Write([]byte("OK\n")); err != nil {
			return
		}
		sample := make([]byte, 8)
		binary.LittleEndian.PutUint32(sample[0:], math.Float32bits(0.5))
		binary.LittleEndian.PutUint32(sample[4:], math.Float32bits(-0.25))
		for {
			if _, err := conn.Write(sample); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestTCPDriverTuneAndRead(t *testing.T) {
	addr := fakeDigitizer(t)
	src := NewReal(NewTCPDriver(addr, 1e6))
	defer src.Close()
	ctx := context.Background()

	if err := src.Tune(ctx, 1420.4e6); err != nil {
		t.Fatalf("tune: %v", err)
	}
	block, err := src.ReadBlock(ctx, 64)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(block) != 64 {
		t.Fatalf("block size = %d", len(block))
	}
	if real(block[0]) != 0.5 || imag(block[0]) != -0.25 {
		t.Errorf("sample = %v", block[0])
	}
}

func TestTCPDriverDialFailure(t *testing.T) {
	drv := NewTCPDriver("127.0.0.1:1", 1e6)
	if err := drv.Tune(context.Background(), 1e6); err == nil {
		t.Fatal("expected dial error")
	}
}
