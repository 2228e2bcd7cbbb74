package serialcore

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type serviceFixture struct {
	svc    *Service
	driver *fakeDriver
	enum   *fakeEnumerator
	logs   *observer.ObservedLogs
}

func newServiceFixture(t *testing.T, opts ...ServiceOption) *serviceFixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	f := &serviceFixture{
		driver: newFakeDriver(),
		enum:   &fakeEnumerator{},
		logs:   logs,
	}
	f.enum.set(
		PortDetails{Name: "/dev/ttyUSB0", Type: PortTypeUSB},
		PortDetails{Name: "/dev/ttyS0", Type: PortTypePCI},
	)

	opts = append([]ServiceOption{
		WithDriver(f.driver),
		WithEnumerator(f.enum),
		WithLogger(zap.New(core)),
	}, opts...)
	f.svc = NewService(opts...)
	return f
}

func (f *serviceFixture) open(t *testing.T, port string, config Config) {
	t.Helper()
	ok, err := f.svc.OpenSerialPort(port, config)
	if err != nil || !ok {
		t.Fatalf("OpenSerialPort(%s) = %v, %v", port, ok, err)
	}
}

func TestOpenThenStatusReportsConfig(t *testing.T) {
	configs := []Config{DefaultConfig()}
	for _, baud := range []int{9600, 57600, 921600} {
		for _, bits := range []int{5, 6, 7, 8} {
			for _, parity := range []Parity{ParityNone, ParityOdd, ParityEven} {
				c, err := NewConfig(
					WithBaudRate(baud),
					WithDataBits(bits),
					WithStopBits(1+bits%2),
					WithParity(parity),
					WithFlowControl(FlowControl(bits%3)),
					WithTimeout(bits*10),
				)
				if err != nil {
					t.Fatalf("NewConfig failed: %v", err)
				}
				configs = append(configs, c)
			}
		}
	}

	for _, config := range configs {
		f := newServiceFixture(t)
		f.open(t, "/dev/ttyUSB0", config)

		state := f.svc.GetConnectionStatus()
		if !state.IsConnected {
			t.Errorf("%s: expected is_connected=true", config)
		}
		if state.PortName != "/dev/ttyUSB0" {
			t.Errorf("%s: expected port /dev/ttyUSB0, got %q", config, state.PortName)
		}
		if state.Config != config {
			t.Errorf("Expected config %+v, got %+v", config, state.Config)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	f.open(t, "/dev/ttyUSB0", DefaultConfig())

	for i := 0; i < 2; i++ {
		if !f.svc.CloseSerialPort() {
			t.Errorf("Close #%d: expected success", i+1)
		}
		state := f.svc.GetConnectionStatus()
		if state.IsConnected || state.PortName != "" {
			t.Errorf("Close #%d: expected closed status, got %+v", i+1, state)
		}
	}

	// Never opened at all
	if !newServiceFixture(t).svc.CloseSerialPort() {
		t.Error("Expected close on a fresh service to succeed")
	}
}

func TestSendWhenClosed(t *testing.T) {
	f := newServiceFixture(t)

	n, err := f.svc.SendData([]byte("AT\r\n"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 bytes written, got %d", n)
	}

	// Open, close, then send: the old handle must not see anything
	f.open(t, "/dev/ttyUSB0", DefaultConfig())
	h := f.driver.last()
	f.svc.CloseSerialPort()

	if _, err := f.svc.SendData([]byte("late")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after close, got %v", err)
	}
	if len(h.written()) != 0 {
		t.Errorf("Expected no I/O on a closed connection, got %q", h.written())
	}
}

func TestReceiveNonBlocking(t *testing.T) {
	f := newServiceFixture(t)
	config, _ := NewConfig(WithTimeout(0))
	f.open(t, "/dev/ttyUSB0", config)

	start := time.Now()
	data, err := f.svc.ReceiveData(0)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("ReceiveData failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty result, got %d bytes", len(data))
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("Expected near-zero delay, took %v", elapsed)
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	config, _ := NewConfig(WithTimeout(0))
	f.open(t, "/dev/ttyUSB0", config)
	h := f.driver.last()

	n, err := f.svc.SendData([]byte{0x01, 0x02, 0xff})
	if err != nil || n != 3 {
		t.Fatalf("SendData = %d, %v", n, err)
	}
	if !bytes.Equal(h.written(), []byte{0x01, 0x02, 0xff}) {
		t.Errorf("Expected device to receive exact bytes, got %x", h.written())
	}

	h.feed([]byte("OK\r\n"))
	data, err := f.svc.ReceiveData(100)
	if err != nil {
		t.Fatalf("ReceiveData failed: %v", err)
	}
	if string(data) != "OK\r\n" {
		t.Errorf("Expected %q, got %q", "OK\r\n", data)
	}
}

func TestReceiveLimits(t *testing.T) {
	f := newServiceFixture(t, WithReceiveLimits(8, 32))
	config, _ := NewConfig(WithTimeout(0))
	f.open(t, "/dev/ttyUSB0", config)
	f.driver.last().feed(bytes.Repeat([]byte("x"), 100))

	if data, _ := f.svc.ReceiveData(0); len(data) != 8 {
		t.Errorf("Expected default of 8 bytes, got %d", len(data))
	}
	if data, _ := f.svc.ReceiveData(1000); len(data) != 32 {
		t.Errorf("Expected cap of 32 bytes, got %d", len(data))
	}
}

func TestDeviceRemovedScenario(t *testing.T) {
	f := newServiceFixture(t)
	f.open(t, "/dev/ttyUSB0", DefaultConfig())
	h := f.driver.last()

	h.remove()
	f.enum.set(PortDetails{Name: "/dev/ttyS0"})

	_, err := f.svc.SendData([]byte("ping"))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}

	state := f.svc.GetConnectionStatus()
	if state.IsConnected {
		t.Error("Expected is_connected=false after the device was removed")
	}
	if !h.isClosed() {
		t.Error("Expected the handle to be released")
	}

	if f.logs.FilterMessage("Serial transport failed, closing port").Len() != 1 {
		t.Error("Expected the transport failure to be logged")
	}
}

func TestUnplugDetectedByStatus(t *testing.T) {
	f := newServiceFixture(t)
	f.open(t, "/dev/ttyUSB0", DefaultConfig())
	f.driver.last().remove()

	if f.svc.GetConnectionStatus().IsConnected {
		t.Error("Expected status to report the unplugged port closed")
	}
	if f.logs.FilterMessage("Serial device lost").Len() != 1 {
		t.Error("Expected a warning about the lost device")
	}

	// The port can be opened again once it is back
	f.open(t, "/dev/ttyUSB0", DefaultConfig())
}

func TestUnplugStatusDuringLongReceive(t *testing.T) {
	f := newServiceFixture(t)
	config, _ := NewConfig(WithTimeout(2000))
	f.open(t, "/dev/ttyUSB0", config)
	h := f.driver.last()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.ReceiveData(0)
	}()

	deadline := time.Now().Add(time.Second)
	for h.reads() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Receive never reached the handle")
		}
		time.Sleep(time.Millisecond)
	}
	h.remove()

	start := time.Now()
	state := f.svc.GetConnectionStatus()
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Expected status without waiting for the receive, took %v", elapsed)
	}
	if state.IsConnected {
		t.Error("Expected is_connected=false after the unplug")
	}
	<-done
	deadline = time.Now().Add(time.Second)
	for !h.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("Expected the handle to be released once the receive returned")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFlushBuffer(t *testing.T) {
	f := newServiceFixture(t)

	if f.svc.FlushBuffer() {
		t.Error("Expected flush to report false when not connected")
	}

	config, _ := NewConfig(WithTimeout(0))
	f.open(t, "/dev/ttyUSB0", config)
	h := f.driver.last()
	h.feed([]byte("garbage"))

	if !f.svc.FlushBuffer() {
		t.Error("Expected flush to succeed")
	}
	if data, _ := f.svc.ReceiveData(0); len(data) != 0 {
		t.Errorf("Expected nothing after flush, got %q", data)
	}
}

func TestGetSerialPortsMarksOpenPort(t *testing.T) {
	f := newServiceFixture(t)
	f.open(t, "/dev/ttyS0", DefaultConfig())

	ports, err := f.svc.GetSerialPorts()
	if err != nil {
		t.Fatalf("GetSerialPorts failed: %v", err)
	}
	for _, p := range ports {
		expected := p.PortName == "/dev/ttyS0"
		if p.IsOpen != expected {
			t.Errorf("%s: expected is_open=%v, got %v", p.PortName, expected, p.IsOpen)
		}
	}

	f.enum.err = errFakeListing
	if _, err := f.svc.GetSerialPorts(); !errors.Is(err, ErrEnumeration) {
		t.Errorf("Expected ErrEnumeration, got %v", err)
	}
}

func TestCheckPortAvailability(t *testing.T) {
	f := newServiceFixture(t)

	if !f.svc.CheckPortAvailability("") {
		t.Error("Expected true when nothing is connected")
	}
	if !f.svc.CheckPortAvailability("/dev/ttyUSB0") {
		t.Error("Expected /dev/ttyUSB0 to be available")
	}
	if f.svc.CheckPortAvailability("/dev/ttyUSB7") {
		t.Error("Expected /dev/ttyUSB7 to be unavailable")
	}

	f.open(t, "/dev/ttyUSB0", DefaultConfig())
	if !f.svc.CheckPortAvailability("") {
		t.Error("Expected the open port to be available")
	}

	// Device vanished from the listing while still open
	f.enum.set(PortDetails{Name: "/dev/ttyS0"})
	if f.svc.CheckPortAvailability("") {
		t.Error("Expected false once the open port disappears from the listing")
	}
}

func TestCheckPortAvailabilityAfterLoss(t *testing.T) {
	f := newServiceFixture(t)
	f.open(t, "/dev/ttyUSB0", DefaultConfig())
	f.driver.last().remove()

	if f.svc.CheckPortAvailability("") {
		t.Error("Expected false when the open port was lost")
	}
}

func TestCheckPortAvailabilityFailsOpen(t *testing.T) {
	f := newServiceFixture(t)
	f.enum.err = errFakeListing

	if !f.svc.CheckPortAvailability("/dev/ttyUSB0") {
		t.Error("Expected true when the registry errors")
	}

	f.enum.err = nil
	f.open(t, "/dev/ttyUSB0", DefaultConfig())
	f.enum.err = errFakeListing
	if !f.svc.CheckPortAvailability("") {
		t.Error("Expected true for the open port when the registry errors")
	}

	if f.logs.FilterMessage("Availability check failed, assuming available").Len() != 2 {
		t.Error("Expected each swallowed failure to be logged")
	}
}

func TestFailOpen(t *testing.T) {
	tests := []struct {
		ok       bool
		err      error
		expected bool
	}{
		{true, nil, true},
		{false, nil, false},
		{false, errFakeListing, true},
		{true, errFakeListing, true},
	}

	for _, test := range tests {
		if got := failOpen(test.ok, test.err); got != test.expected {
			t.Errorf("failOpen(%v, %v) = %v, expected %v", test.ok, test.err, got, test.expected)
		}
	}
}

func TestOperationsAreSerialized(t *testing.T) {
	f := newServiceFixture(t)
	config, _ := NewConfig(WithTimeout(0))
	f.open(t, "/dev/ttyUSB0", config)
	h := f.driver.last()
	h.delay = time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			f.svc.SendData([]byte("data"))
		}()
		go func() {
			defer wg.Done()
			f.svc.ReceiveData(0)
		}()
		go func() {
			defer wg.Done()
			// Status polls run alongside and must not disturb anything
			if !f.svc.GetConnectionStatus().IsConnected {
				t.Error("Expected connection to stay open")
			}
		}()
	}
	wg.Wait()

	if h.overlapSeen.Load() {
		t.Error("Expected send and receive never to overlap on the handle")
	}
	if len(h.written()) != 8*len("data") {
		t.Errorf("Expected %d bytes written, got %d", 8*len("data"), len(h.written()))
	}
}

func TestWithConnection(t *testing.T) {
	d := newFakeDriver()
	conn := NewConnection(d, zap.NewNop())
	svc := NewService(WithConnection(conn), WithEnumerator(&fakeEnumerator{}))

	if ok, err := svc.OpenSerialPort("/dev/ttyUSB0", DefaultConfig()); !ok || err != nil {
		t.Fatalf("OpenSerialPort = %v, %v", ok, err)
	}
	if !conn.Snapshot().IsConnected {
		t.Error("Expected the injected connection to be the one opened")
	}
}
