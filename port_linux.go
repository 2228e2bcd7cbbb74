//go:build linux

package serialcore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// termiosDriver opens tty devices directly through termios ioctls
type termiosDriver struct{}

// NewDriver returns the driver for the host platform
func NewDriver() Driver {
	return termiosDriver{}
}

// termiosPort is the Linux Handle implementation
type termiosPort struct {
	mu     sync.RWMutex
	fd     int
	name   string
	closed bool
}

// Ensure termiosPort implements Handle at compile time
var _ Handle = (*termiosPort)(nil)

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

func (termiosDriver) Validate(config Config) error {
	if _, err := getBaudRate(config.BaudRate); err != nil {
		return invalidConfig("%w: %d is not a standard termios rate", err, config.BaudRate)
	}
	if config.FlowControl == FlowControlDTRDSR {
		return invalidConfig("%w: %s", ErrUnsupportedFlowControl, config.FlowControl)
	}
	return nil
}

// Open opens the device non-blocking, takes an exclusive lock on it and
// switches it to raw mode.
func (d termiosDriver) Open(name string, config Config) (Handle, error) {
	if err := d.Validate(config); err != nil {
		return nil, err
	}

	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(name, err)
	}

	// flock covers other handles in this process and cooperating processes;
	// TIOCEXCL covers everyone else without CAP_SYS_ADMIN.
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return nil, openError(name, err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
		return nil, openError(name, err)
	}

	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
		return nil, openError(name, err)
	}

	// Drop anything the device buffered before we owned it
	unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	return &termiosPort{fd: fd, name: name}, nil
}

// configurePort puts the port in raw mode with the requested framing
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}

	termios.Iflag = 0 // No input processing
	termios.Oflag = 0 // No output processing
	termios.Lflag = 0 // No line processing (raw mode)
	termios.Cflag = unix.CREAD | unix.CLOCAL | baudRate

	switch config.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if config.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch config.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
		termios.Iflag |= unix.INPCK
	case ParityEven:
		termios.Cflag |= unix.PARENB
		termios.Iflag |= unix.INPCK
	}

	if config.FlowControl == FlowControlRTSCTS {
		termios.Cflag |= unix.CRTSCTS
	}

	// Reads never block in the kernel; waiting is done with poll(2)
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}

	// For RTS/CTS flow control, ensure RTS is asserted to signal readiness.
	// Some adapters do not support manual RTS control, which is not fatal.
	if config.FlowControl == FlowControlRTSCTS {
		_ = unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, unix.TIOCM_RTS)
	}

	return nil
}

func openError(name string, err error) error {
	var cause error
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		cause = ErrDeviceNotFound
	case errors.Is(err, unix.EBUSY), errors.Is(err, unix.EWOULDBLOCK):
		cause = ErrDeviceInUse
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		cause = ErrPermissionDenied
	case errors.Is(err, unix.ENOTTY):
		return newError(KindPortUnavailable, "open", name, fmt.Errorf("not a serial device: %w", err))
	default:
		return newError(KindPortUnavailable, "open", name, err)
	}
	return newError(KindPortUnavailable, "open", name, fmt.Errorf("%w (%w)", cause, err))
}

// ioError marks errors that mean the device is gone
func ioError(op string, err error) error {
	if errors.Is(err, unix.EIO) || errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENXIO) || errors.Is(err, unix.EBADF) {
		return fmt.Errorf("%s: %w (%w)", op, ErrDeviceRemoved, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// pollMillis rounds a duration up to whole milliseconds for poll(2)
func pollMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// wait blocks until the fd reports events or the timeout elapses.
func (p *termiosPort) wait(events int16, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		fds := []unix.PollFd{{Fd: int32(p.fd), Events: events}}
		n, err := unix.Poll(fds, pollMillis(time.Until(deadline)))
		if err != nil {
			if errors.Is(err, unix.EINTR) && time.Now().Before(deadline) {
				continue
			}
			if errors.Is(err, unix.EINTR) {
				return false, nil
			}
			return false, ioError("poll", err)
		}
		if n == 0 {
			return false, nil
		}

		revents := fds[0].Revents
		if revents&events != 0 {
			return true, nil
		}
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, fmt.Errorf("poll: %w", ErrDeviceRemoved)
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

// Read waits for input and reads what is available
func (p *termiosPort) Read(buf []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ready, err := p.wait(unix.POLLIN, timeout)
	if err != nil || !ready {
		return 0, err
	}

	n, err := unix.Read(p.fd, buf)
	switch {
	case err == nil && n > 0:
		return n, nil
	case err == nil:
		// Readable with zero bytes is a hang-up
		return 0, fmt.Errorf("read: %w", ErrDeviceRemoved)
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, nil
	default:
		return 0, ioError("read", err)
	}
}

// Write writes data until it is accepted or the timeout elapses
func (p *termiosPort) Write(data []byte, timeout time.Duration) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if n > 0 {
			written += n
		}

		switch {
		case err == nil, errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return written, nil
			}
			ready, err := p.wait(unix.POLLOUT, remaining)
			if err != nil {
				return written, err
			}
			if !ready {
				return written, nil
			}
		default:
			return written, ioError("write", err)
		}
	}
	return written, nil
}

// ResetInput discards any unread input data
func (p *termiosPort) ResetInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// ResetOutput discards any unwritten output data
func (p *termiosPort) ResetOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCOFLUSH)
}

// Probe detects a device that disappeared underneath the open descriptor
func (p *termiosPort) Probe() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	fds := []unix.PollFd{{Fd: int32(p.fd)}}
	if _, err := unix.Poll(fds, 0); err != nil && !errors.Is(err, unix.EINTR) {
		return ioError("probe", err)
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return fmt.Errorf("probe: %w", ErrDeviceRemoved)
	}

	if _, err := unix.IoctlGetTermios(p.fd, unix.TCGETS); err != nil {
		return ioError("probe", err)
	}
	return nil
}

// Close releases the lock and the descriptor
func (p *termiosPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true

	unix.IoctlSetInt(p.fd, unix.TIOCNXCL, 0)
	unix.Flock(p.fd, unix.LOCK_UN)
	return unix.Close(p.fd)
}
