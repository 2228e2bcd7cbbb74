package serialcore

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func openFakeChannel(t *testing.T, timeout time.Duration) (*Channel, *fakeHandle) {
	t.Helper()
	d := newFakeDriver()
	h, err := d.Open("/dev/ttyFAKE0", DefaultConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return newChannel(h, "/dev/ttyFAKE0", timeout, DefaultReceiveSize, MaxReceiveSize), h.(*fakeHandle)
}

func TestChannelSend(t *testing.T) {
	ch, h := openFakeChannel(t, 0)

	n, err := ch.Send([]byte("hello"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 bytes written, got %d", n)
	}
	if got := h.written(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Expected device to see %q, got %q", "hello", got)
	}

	if n, err := ch.Send(nil); n != 0 || err != nil {
		t.Errorf("Expected empty send to be a no-op, got %d, %v", n, err)
	}
}

func TestChannelPartialSend(t *testing.T) {
	ch, h := openFakeChannel(t, 0)
	h.writeLimit = 3

	n, err := ch.Send([]byte("abcdef"))
	if err != nil {
		t.Fatalf("Partial write should not be an error, got %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 bytes written, got %d", n)
	}
}

func TestChannelSendTransportError(t *testing.T) {
	ch, h := openFakeChannel(t, 0)
	h.remove()

	_, err := ch.Send([]byte("x"))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
	if !errors.Is(err, ErrDeviceRemoved) {
		t.Errorf("Expected cause ErrDeviceRemoved, got %v", err)
	}
}

func TestChannelReceiveCaps(t *testing.T) {
	ch, h := openFakeChannel(t, 0)
	h.feed(bytes.Repeat([]byte{0x55}, 3000))

	// Default cap
	data, err := ch.Receive(0)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(data) != DefaultReceiveSize {
		t.Errorf("Expected %d bytes, got %d", DefaultReceiveSize, len(data))
	}

	data, err = ch.Receive(10)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(data) != 10 {
		t.Errorf("Expected 10 bytes, got %d", len(data))
	}

	// Whatever is left, fewer than asked for
	data, err = ch.Receive(5000)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(data) != 3000-DefaultReceiveSize-10 {
		t.Errorf("Expected %d bytes, got %d", 3000-DefaultReceiveSize-10, len(data))
	}
	if ch.Buffered() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", ch.Buffered())
	}
}

func TestChannelReceiveNeverExceedsMax(t *testing.T) {
	d := newFakeDriver()
	h, _ := d.Open("/dev/ttyFAKE0", DefaultConfig())
	ch := newChannel(h, "/dev/ttyFAKE0", 0, 16, 64)
	h.(*fakeHandle).feed(bytes.Repeat([]byte{1}, 200))

	data, err := ch.Receive(1 << 20)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(data) != 64 {
		t.Errorf("Expected receive capped at 64, got %d", len(data))
	}

	data, _ = ch.Receive(-1)
	if len(data) != 16 {
		t.Errorf("Expected default of 16, got %d", len(data))
	}
}

func TestChannelReceiveKeepsOrder(t *testing.T) {
	ch, h := openFakeChannel(t, 0)
	h.feed([]byte("0123456789"))

	first, _ := ch.Receive(4)
	h.feed([]byte("abc"))
	second, _ := ch.Receive(100)

	if string(first) != "0123" {
		t.Errorf("Expected %q, got %q", "0123", first)
	}
	if string(second) != "456789abc" {
		t.Errorf("Expected %q, got %q", "456789abc", second)
	}
}

func TestChannelReceiveTimeout(t *testing.T) {
	ch, h := openFakeChannel(t, 50*time.Millisecond)

	start := time.Now()
	data, err := ch.Receive(0)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Timeout should not be an error, got %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty result, got %d bytes", len(data))
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("Expected receive to wait for the timeout, returned after %v", elapsed)
	}
	if h.readCalls != 1 {
		t.Errorf("Expected a single blocking read, got %d", h.readCalls)
	}
}

func TestChannelFlush(t *testing.T) {
	ch, h := openFakeChannel(t, 0)
	h.feed(bytes.Repeat([]byte{7}, 5000))

	if _, err := ch.Receive(1); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if ch.Buffered() == 0 {
		t.Fatal("Expected leftover bytes in the buffer before flush")
	}

	if err := ch.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if ch.Buffered() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", ch.Buffered())
	}
	if h.resets != 2 {
		t.Errorf("Expected input and output reset, got %d resets", h.resets)
	}

	data, _ := ch.Receive(0)
	if len(data) != 0 {
		t.Errorf("Expected nothing after flush, got %d bytes", len(data))
	}
}

func TestChannelClose(t *testing.T) {
	ch, h := openFakeChannel(t, 0)
	h.feed([]byte("stale"))
	ch.Receive(1)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !h.isClosed() {
		t.Error("Expected handle to be closed")
	}
	if ch.Buffered() != 0 {
		t.Error("Expected buffer to be discarded on close")
	}
	if err := ch.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	if _, err := ch.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after close, got %v", err)
	}
	if err := ch.Flush(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected from flush after close, got %v", err)
	}
	if err := ch.probe(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed from probe, got %v", err)
	}
}

func TestChannelCloseDuringReceive(t *testing.T) {
	ch, h := openFakeChannel(t, 500*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Receive(0)
	}()
	for h.reads() == 0 {
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected close to return without waiting, took %v", elapsed)
	}
	if err := ch.probe(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Expected ErrPortClosed right after close, got %v", err)
	}

	<-done
	deadline := time.Now().Add(time.Second)
	for !h.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("Expected handle to be released after the receive")
		}
		time.Sleep(time.Millisecond)
	}
}
