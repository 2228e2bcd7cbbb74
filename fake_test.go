package serialcore

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeDriver hands out fakeHandles and records what it was asked to open
type fakeDriver struct {
	mu       sync.Mutex
	opened   []string
	held     map[string]bool
	missing  map[string]bool
	validate func(Config) error
	handles  []*fakeHandle
	// writeLimit caps how many bytes a handle accepts per Write (0 = all)
	writeLimit int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		held:    make(map[string]bool),
		missing: make(map[string]bool),
	}
}

func (d *fakeDriver) Validate(config Config) error {
	if d.validate != nil {
		return d.validate(config)
	}
	return nil
}

func (d *fakeDriver) Open(name string, config Config) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.missing[name] {
		return nil, newError(KindPortUnavailable, "open", name, ErrDeviceNotFound)
	}
	if d.held[name] {
		return nil, newError(KindPortUnavailable, "open", name, ErrDeviceInUse)
	}
	d.held[name] = true
	d.opened = append(d.opened, name)

	h := &fakeHandle{driver: d, name: name, config: config, writeLimit: d.writeLimit}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDriver) release(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.held, name)
}

func (d *fakeDriver) last() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// fakeHandle is an in-memory port. Data fed with feed() is what the
// "device" sent; tx collects what was written.
type fakeHandle struct {
	driver *fakeDriver
	name   string
	config Config

	mu         sync.Mutex
	rx         bytes.Buffer
	tx         bytes.Buffer
	removed    bool
	closed     bool
	writeLimit int
	resets     int
	readCalls  int

	inFlight    atomic.Int32
	overlapSeen atomic.Bool
	delay       time.Duration
}

func (h *fakeHandle) enter() func() {
	if h.inFlight.Add(1) > 1 {
		h.overlapSeen.Store(true)
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	return func() { h.inFlight.Add(-1) }
}

func (h *fakeHandle) feed(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rx.Write(data)
}

func (h *fakeHandle) remove() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = true
}

func (h *fakeHandle) written() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return bytes.Clone(h.tx.Bytes())
}

func (h *fakeHandle) reads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readCalls
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) Read(buf []byte, timeout time.Duration) (int, error) {
	defer h.enter()()

	h.mu.Lock()
	h.readCalls++
	if h.closed {
		h.mu.Unlock()
		return 0, ErrPortClosed
	}
	if h.removed {
		h.mu.Unlock()
		return 0, ErrDeviceRemoved
	}
	if h.rx.Len() == 0 {
		h.mu.Unlock()
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return 0, nil
	}
	defer h.mu.Unlock()
	return h.rx.Read(buf)
}

func (h *fakeHandle) Write(data []byte, _ time.Duration) (int, error) {
	defer h.enter()()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrPortClosed
	}
	if h.removed {
		return 0, ErrDeviceRemoved
	}
	if h.writeLimit > 0 && len(data) > h.writeLimit {
		data = data[:h.writeLimit]
	}
	return h.tx.Write(data)
}

func (h *fakeHandle) ResetInput() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return ErrDeviceRemoved
	}
	h.rx.Reset()
	h.resets++
	return nil
}

func (h *fakeHandle) ResetOutput() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return ErrDeviceRemoved
	}
	h.resets++
	return nil
}

func (h *fakeHandle) Probe() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrPortClosed
	}
	if h.removed {
		return ErrDeviceRemoved
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrPortClosed
	}
	h.closed = true
	h.mu.Unlock()

	h.driver.release(h.name)
	return nil
}

// fakeEnumerator returns a fixed listing, or err when set
type fakeEnumerator struct {
	mu    sync.Mutex
	ports []PortDetails
	err   error
	calls int
}

func (e *fakeEnumerator) Enumerate() ([]PortDetails, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return append([]PortDetails(nil), e.ports...), nil
}

func (e *fakeEnumerator) set(ports ...PortDetails) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ports = ports
}

var errFakeListing = errors.New("device listing unavailable")
