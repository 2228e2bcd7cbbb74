package serialcore

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the command facade matches exactly one
// of these with errors.Is.
var (
	ErrEnumeration     = errors.New("serial port enumeration failed")
	ErrInvalidConfig   = errors.New("invalid serial configuration")
	ErrPortUnavailable = errors.New("serial port unavailable")
	ErrNotConnected    = errors.New("serial port not connected")
	ErrTransport       = errors.New("serial transport failure")
)

// Predefined causes, wrapped inside an *Error
var (
	ErrDeviceNotFound         = errors.New("serial device not found")
	ErrPermissionDenied       = errors.New("permission denied accessing serial device")
	ErrDeviceInUse            = errors.New("serial device already in use")
	ErrAlreadyConnected       = errors.New("a serial port is already open, close it first")
	ErrInvalidBaudRate        = errors.New("invalid baud rate")
	ErrUnsupportedFlowControl = errors.New("flow control not supported by this host")
	ErrDeviceRemoved          = errors.New("serial device removed")
	ErrPortClosed             = errors.New("serial port is closed")
)

// Kind classifies a failure so callers can decide between re-selecting a
// port, re-opening, or reporting a device fault.
type Kind int

const (
	KindUnknown Kind = iota
	KindEnumeration
	KindInvalidConfig
	KindPortUnavailable
	KindNotConnected
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindEnumeration:
		return "EnumerationError"
	case KindInvalidConfig:
		return "InvalidConfig"
	case KindPortUnavailable:
		return "PortUnavailable"
	case KindNotConnected:
		return "NotConnected"
	case KindTransport:
		return "TransportError"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindEnumeration:
		return ErrEnumeration
	case KindInvalidConfig:
		return ErrInvalidConfig
	case KindPortUnavailable:
		return ErrPortUnavailable
	case KindNotConnected:
		return ErrNotConnected
	case KindTransport:
		return ErrTransport
	default:
		return nil
	}
}

// Error is the typed failure returned by the core.
type Error struct {
	Kind Kind
	Op   string
	Port string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Port != "" {
		msg += " (" + e.Port + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of this error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, op, port string, err error) *Error {
	return &Error{Kind: kind, Op: op, Port: port, Err: err}
}

// withKind returns err unchanged when it already carries a kind, otherwise it
// wraps it with the given kind.
func withKind(err error, kind Kind, op, port string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		if e.Port == "" {
			e.Port = port
		}
		return e
	}
	return newError(kind, op, port, err)
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range []Kind{KindEnumeration, KindInvalidConfig, KindPortUnavailable, KindNotConnected, KindTransport} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindUnknown
}

func invalidConfig(format string, args ...any) error {
	return newError(KindInvalidConfig, "", "", fmt.Errorf(format, args...))
}
