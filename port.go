package serialcore

import "time"

// Handle is an open OS-level serial port. All waits are bounded by the
// timeout passed to each call.
type Handle interface {
	// Read waits at most timeout for input, then reads whatever is available
	// into buf. It returns 0, nil when nothing arrived in time.
	Read(buf []byte, timeout time.Duration) (int, error)
	// Write writes as much of data as the port accepts within timeout and
	// returns the count written. A short count without error means the
	// timeout elapsed.
	Write(data []byte, timeout time.Duration) (int, error)
	// ResetInput discards data received but not read
	ResetInput() error
	// ResetOutput discards data written but not transmitted
	ResetOutput() error
	// Probe returns an error when the underlying device has gone away
	Probe() error
	Close() error
}

// Driver opens handles for the host platform.
type Driver interface {
	// Validate rejects configurations the host cannot apply. It must not
	// touch hardware.
	Validate(config Config) error
	// Open acquires exclusive ownership of the named port.
	Open(name string, config Config) (Handle, error)
}
