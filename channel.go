package serialcore

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultReceiveSize is the receive cap used when the caller gives none
	DefaultReceiveSize = 1024
	// MaxReceiveSize bounds a single receive, whatever the caller asks for
	MaxReceiveSize = 64 * 1024

	readChunkSize = 4096
)

// Channel performs timeout-bounded byte transport over one open handle.
// Bytes read from the OS but not yet handed to a caller stay in its buffer
// until the next Receive, a Flush, or Close.
type Channel struct {
	mu      sync.Mutex
	handle  Handle
	port    string
	timeout time.Duration
	pending bytes.Buffer
	chunk   []byte

	defaultSize int
	maxSize     int

	closed atomic.Bool
}

func newChannel(handle Handle, port string, timeout time.Duration, defaultSize, maxSize int) *Channel {
	if maxSize <= 0 {
		maxSize = MaxReceiveSize
	}
	if defaultSize <= 0 || defaultSize > maxSize {
		defaultSize = min(DefaultReceiveSize, maxSize)
	}
	return &Channel{
		handle:      handle,
		port:        port,
		timeout:     timeout,
		chunk:       make([]byte, readChunkSize),
		defaultSize: defaultSize,
		maxSize:     maxSize,
	}
}

// receiveLimit resolves the caller's max_bytes against the channel's caps
func (ch *Channel) receiveLimit(maxBytes int) int {
	if maxBytes <= 0 {
		return ch.defaultSize
	}
	return min(maxBytes, ch.maxSize)
}

// Send writes data within the configured timeout. A short count with a nil
// error means the timeout elapsed first.
func (ch *Channel) Send(data []byte) (int, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed.Load() {
		return 0, newError(KindNotConnected, "send", ch.port, ErrPortClosed)
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := ch.handle.Write(data, ch.timeout)
	if err != nil {
		return n, newError(KindTransport, "send", ch.port, err)
	}
	return n, nil
}

// Receive waits up to the configured timeout for the first byte, then
// returns everything available up to maxBytes. Nothing arriving in time
// yields an empty slice and no error.
func (ch *Channel) Receive(maxBytes int) ([]byte, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed.Load() {
		return nil, newError(KindNotConnected, "receive", ch.port, ErrPortClosed)
	}

	limit := ch.receiveLimit(maxBytes)

	if ch.pending.Len() == 0 {
		n, err := ch.handle.Read(ch.chunk, ch.timeout)
		if err != nil {
			return nil, newError(KindTransport, "receive", ch.port, err)
		}
		ch.pending.Write(ch.chunk[:n])
	}

	// Top up with whatever else is already waiting, without blocking
	for ch.pending.Len() > 0 && ch.pending.Len() < limit {
		want := min(len(ch.chunk), limit-ch.pending.Len())
		n, err := ch.handle.Read(ch.chunk[:want], 0)
		if err != nil {
			return nil, newError(KindTransport, "receive", ch.port, err)
		}
		if n == 0 {
			break
		}
		ch.pending.Write(ch.chunk[:n])
	}

	out := make([]byte, min(limit, ch.pending.Len()))
	ch.pending.Read(out)
	return out, nil
}

// Flush discards the buffered input along with whatever the OS still holds
// in either direction.
func (ch *Channel) Flush() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed.Load() {
		return newError(KindNotConnected, "flush", ch.port, ErrPortClosed)
	}

	ch.pending.Reset()
	if err := ch.handle.ResetInput(); err != nil {
		return newError(KindTransport, "flush", ch.port, err)
	}
	if err := ch.handle.ResetOutput(); err != nil {
		return newError(KindTransport, "flush", ch.port, err)
	}
	return nil
}

// Buffered returns the number of received bytes not yet delivered
func (ch *Channel) Buffered() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.pending.Len()
}

// Close discards the buffer and releases the handle. If an operation is in
// flight, Close returns at once and the handle is released in the
// background when that operation returns.
func (ch *Channel) Close() error {
	if ch.closed.Swap(true) {
		return nil
	}

	if !ch.mu.TryLock() {
		go func() {
			ch.mu.Lock()
			defer ch.mu.Unlock()
			ch.release()
		}()
		return nil
	}
	defer ch.mu.Unlock()
	return ch.release()
}

// release must be called with mu held
func (ch *Channel) release() error {
	ch.pending.Reset()
	return ch.handle.Close()
}

// probe checks the handle without waiting for in-flight operations
func (ch *Channel) probe() error {
	if ch.closed.Load() {
		return ErrPortClosed
	}
	return ch.handle.Probe()
}
