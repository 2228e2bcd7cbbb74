//go:build linux

package serialcore

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

// pty is the device side of a pseudo-terminal pair; the port under test
// opens the slave path.
type pty struct {
	t      *testing.T
	master int
	path   string
	closed bool
}

func openPTY(t *testing.T) *pty {
	t.Helper()

	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		t.Skipf("Pseudo-terminals unavailable: %v", err)
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		unix.Close(fd)
		t.Skipf("Cannot unlock pty: %v", err)
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		unix.Close(fd)
		t.Skipf("Cannot get pty number: %v", err)
	}

	p := &pty{t: t, master: fd, path: fmt.Sprintf("/dev/pts/%d", n)}
	t.Cleanup(p.close)
	return p
}

func (p *pty) write(data []byte) {
	p.t.Helper()
	if _, err := unix.Write(p.master, data); err != nil {
		p.t.Fatalf("Failed to write to pty master: %v", err)
	}
}

// readN collects n bytes from the master side or fails after timeout
func (p *pty) readN(n int, timeout time.Duration) []byte {
	p.t.Helper()

	var got []byte
	buf := make([]byte, 256)
	deadline := time.Now().Add(timeout)
	for len(got) < n && time.Now().Before(deadline) {
		fds := []unix.PollFd{{Fd: int32(p.master), Events: unix.POLLIN}}
		if _, err := unix.Poll(fds, pollMillis(time.Until(deadline))); err != nil && !errors.Is(err, unix.EINTR) {
			p.t.Fatalf("Poll on pty master failed: %v", err)
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}
		m, err := unix.Read(p.master, buf)
		if err != nil {
			p.t.Fatalf("Read from pty master failed: %v", err)
		}
		got = append(got, buf[:m]...)
	}
	return got
}

func (p *pty) close() {
	if !p.closed {
		p.closed = true
		unix.Close(p.master)
	}
}

func newTermiosService(t *testing.T) *Service {
	return NewService(WithDriver(NewDriver()), WithLogger(zaptest.NewLogger(t)), WithEnumerator(&fakeEnumerator{}))
}

// receiveN keeps receiving until n bytes arrived or the deadline passes
func receiveN(t *testing.T, svc *Service, n int, timeout time.Duration) []byte {
	t.Helper()

	var got []byte
	deadline := time.Now().Add(timeout)
	for len(got) < n && time.Now().Before(deadline) {
		data, err := svc.ReceiveData(n - len(got))
		if err != nil {
			t.Fatalf("ReceiveData failed: %v", err)
		}
		got = append(got, data...)
	}
	return got
}

func TestGetBaudRate(t *testing.T) {
	tests := []struct {
		input    int
		hasError bool
	}{
		{115200, false},
		{9600, false},
		{57600, false},
		{4000000, false},
		{123456, true}, // Invalid baud rate
	}

	for _, test := range tests {
		result, err := getBaudRate(test.input)
		if test.hasError {
			if !errors.Is(err, ErrInvalidBaudRate) {
				t.Errorf("Expected ErrInvalidBaudRate for %d, got %v", test.input, err)
			}
		} else {
			if err != nil {
				t.Errorf("Unexpected error for baud rate %d: %v", test.input, err)
			}
			if result == 0 {
				t.Errorf("Got zero result for valid baud rate %d", test.input)
			}
		}
	}
}

func TestTermiosValidate(t *testing.T) {
	d := NewDriver()

	tests := []struct {
		name  string
		opts  []Option
		cause error
	}{
		{"defaults", nil, nil},
		{"rts/cts", []Option{WithFlowControl(FlowControlRTSCTS)}, nil},
		{"7E2", []Option{WithDataBits(7), WithParity(ParityEven), WithStopBits(2)}, nil},
		{"dtr/dsr", []Option{WithFlowControl(FlowControlDTRDSR)}, ErrUnsupportedFlowControl},
		{"odd baud", []Option{WithBaudRate(12345)}, ErrInvalidBaudRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := NewConfig(tt.opts...)
			if err != nil {
				t.Fatalf("NewConfig failed: %v", err)
			}
			err = d.Validate(config)
			if tt.cause == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, tt.cause) {
				t.Errorf("Expected InvalidConfig wrapping %v, got %v", tt.cause, err)
			}
		})
	}
}

func TestOpenNonExistentDevice(t *testing.T) {
	_, err := NewDriver().Open("/dev/nonexistent", DefaultConfig())
	if !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Expected ErrPortUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestOpenNonTTY(t *testing.T) {
	_, err := NewDriver().Open("/dev/null", DefaultConfig())
	if !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Expected ErrPortUnavailable for a non-tty device, got %v", err)
	}
}

func TestTermiosRoundTrip(t *testing.T) {
	p := openPTY(t)
	svc := newTermiosService(t)

	config, _ := NewConfig(WithTimeout(200))
	if _, err := svc.OpenSerialPort(p.path, config); err != nil {
		t.Fatalf("OpenSerialPort failed: %v", err)
	}
	defer svc.CloseSerialPort()

	payload := []byte{0x00, 0x01, 0x7f, 0x80, 0xff, '\r', '\n'}
	p.write(payload)
	if got := receiveN(t, svc, len(payload), 2*time.Second); !bytes.Equal(got, payload) {
		t.Errorf("Expected %x, got %x", payload, got)
	}

	n, err := svc.SendData([]byte("ping\n"))
	if err != nil {
		t.Fatalf("SendData failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 bytes written, got %d", n)
	}
	if got := p.readN(5, 2*time.Second); string(got) != "ping\n" {
		t.Errorf("Expected %q on the device side, got %q", "ping\n", got)
	}
}

func TestTermiosNonBlockingReceive(t *testing.T) {
	p := openPTY(t)
	svc := newTermiosService(t)

	config, _ := NewConfig(WithTimeout(0))
	if _, err := svc.OpenSerialPort(p.path, config); err != nil {
		t.Fatalf("OpenSerialPort failed: %v", err)
	}
	defer svc.CloseSerialPort()

	start := time.Now()
	data, err := svc.ReceiveData(0)
	if err != nil {
		t.Fatalf("ReceiveData failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected no data, got %q", data)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected non-blocking receive, took %v", elapsed)
	}
}

func TestTermiosReceiveTimeout(t *testing.T) {
	p := openPTY(t)
	svc := newTermiosService(t)

	config, _ := NewConfig(WithTimeout(100))
	if _, err := svc.OpenSerialPort(p.path, config); err != nil {
		t.Fatalf("OpenSerialPort failed: %v", err)
	}
	defer svc.CloseSerialPort()

	start := time.Now()
	data, err := svc.ReceiveData(0)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Timeout should not be an error, got %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected no data, got %q", data)
	}
	if elapsed < 90*time.Millisecond || elapsed > time.Second {
		t.Errorf("Expected to wait about 100ms, waited %v", elapsed)
	}
}

func TestTermiosExclusiveOwnership(t *testing.T) {
	p := openPTY(t)
	d := NewDriver()

	first, err := d.Open(p.path, DefaultConfig())
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}

	_, err = d.Open(p.path, DefaultConfig())
	if !errors.Is(err, ErrPortUnavailable) || !errors.Is(err, ErrDeviceInUse) {
		t.Errorf("Expected PortUnavailable wrapping ErrDeviceInUse, got %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !errors.Is(first.Close(), ErrPortClosed) {
		t.Error("Expected second close to report ErrPortClosed")
	}

	again, err := d.Open(p.path, DefaultConfig())
	if err != nil {
		t.Fatalf("Reopen after close failed: %v", err)
	}
	again.Close()
}

func TestTermiosFlush(t *testing.T) {
	p := openPTY(t)
	svc := newTermiosService(t)

	config, _ := NewConfig(WithTimeout(0))
	if _, err := svc.OpenSerialPort(p.path, config); err != nil {
		t.Fatalf("OpenSerialPort failed: %v", err)
	}
	defer svc.CloseSerialPort()

	p.write([]byte("stale data"))
	time.Sleep(50 * time.Millisecond)

	if !svc.FlushBuffer() {
		t.Fatal("Expected flush to succeed")
	}
	if data, _ := svc.ReceiveData(0); len(data) != 0 {
		t.Errorf("Expected nothing after flush, got %q", data)
	}
}

func TestTermiosDeviceGone(t *testing.T) {
	p := openPTY(t)
	svc := newTermiosService(t)

	if _, err := svc.OpenSerialPort(p.path, DefaultConfig()); err != nil {
		t.Fatalf("OpenSerialPort failed: %v", err)
	}

	// Closing the master hangs up the slave, like unplugging an adapter
	p.close()

	_, err := svc.ReceiveData(0)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}
	if svc.GetConnectionStatus().IsConnected {
		t.Error("Expected is_connected=false after the device went away")
	}
}

func TestTermiosStatusDetectsHangup(t *testing.T) {
	p := openPTY(t)
	svc := newTermiosService(t)

	if _, err := svc.OpenSerialPort(p.path, DefaultConfig()); err != nil {
		t.Fatalf("OpenSerialPort failed: %v", err)
	}
	if !svc.GetConnectionStatus().IsConnected {
		t.Fatal("Expected open port to report connected")
	}

	p.close()

	if svc.GetConnectionStatus().IsConnected {
		t.Error("Expected status to notice the hang-up")
	}
	if _, err := svc.SendData([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after the loss, got %v", err)
	}
}
