//go:build !linux

package serialcore

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.bug.st/serial"
)

// bugstDriver opens ports through go.bug.st/serial on hosts without the
// termios backend.
type bugstDriver struct{}

// NewDriver returns the driver for the host platform
func NewDriver() Driver {
	return bugstDriver{}
}

type bugstPort struct {
	mu     sync.RWMutex
	port   serial.Port
	closed bool

	wmu   sync.Mutex
	stuck chan writeResult
}

type writeResult struct {
	n   int
	err error
}

var _ Handle = (*bugstPort)(nil)

func (bugstDriver) Validate(config Config) error {
	if config.FlowControl != FlowControlNone {
		return invalidConfig("%w: %s", ErrUnsupportedFlowControl, config.FlowControl)
	}
	return nil
}

func (d bugstDriver) Open(name string, config Config) (Handle, error) {
	if err := d.Validate(config); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch config.Parity {
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	}
	if config.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, openError(name, err)
	}
	_ = port.ResetInputBuffer()
	return &bugstPort{port: port}, nil
}

func openError(name string, err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return newError(KindPortUnavailable, "open", name, err)
	}

	switch portErr.Code() {
	case serial.PortNotFound, serial.InvalidSerialPort:
		return newError(KindPortUnavailable, "open", name, fmt.Errorf("%w (%w)", ErrDeviceNotFound, err))
	case serial.PortBusy:
		return newError(KindPortUnavailable, "open", name, fmt.Errorf("%w (%w)", ErrDeviceInUse, err))
	case serial.PermissionDenied:
		return newError(KindPortUnavailable, "open", name, fmt.Errorf("%w (%w)", ErrPermissionDenied, err))
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
		return newError(KindInvalidConfig, "open", name, err)
	default:
		return newError(KindPortUnavailable, "open", name, err)
	}
}

func ioError(op string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%s: %w (%w)", op, ErrDeviceRemoved, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *bugstPort) Read(buf []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	// go.bug.st treats a zero timeout as "block forever"
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return 0, ioError("read", err)
	}

	n, err := p.port.Read(buf)
	if err != nil {
		return n, ioError("read", err)
	}
	return n, nil
}

// Write waits up to timeout for the driver to take data. On expiry the
// unsent output is discarded and the count is what the driver reports once
// it lets go, or 0 if it is still blocked.
func (p *bugstPort) Write(data []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()

	// A write that outlived its timeout still owns the port
	if p.stuck != nil {
		select {
		case <-p.stuck:
			p.stuck = nil
		case <-time.After(timeout):
			return 0, nil
		}
	}

	result := make(chan writeResult, 1)
	buf := slices.Clone(data)
	go func() {
		n, err := p.port.Write(buf)
		result <- writeResult{n: n, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-result:
		return r.count()
	case <-timer.C:
	}

	_ = p.port.ResetOutputBuffer()
	select {
	case r := <-result:
		return r.count()
	case <-time.After(timeout):
		p.stuck = result
		return 0, nil
	}
}

func (r writeResult) count() (int, error) {
	if r.err != nil {
		return r.n, ioError("write", r.err)
	}
	return r.n, nil
}

func (p *bugstPort) ResetInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.port.ResetInputBuffer()
}

func (p *bugstPort) ResetOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.port.ResetOutputBuffer()
}

// Probe queries the modem lines, which fails once the device is gone
func (p *bugstPort) Probe() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	if _, err := p.port.GetModemStatusBits(); err != nil {
		return fmt.Errorf("probe: %w (%w)", ErrDeviceRemoved, err)
	}
	return nil
}

func (p *bugstPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true
	return p.port.Close()
}
