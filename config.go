package serialcore

import (
	"fmt"
	"strings"
	"time"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("parity(%d)", int(p))
	}
}

func (p Parity) valid() bool { return p >= ParityNone && p <= ParityEven }

// ParseParity parses "none", "odd" or "even" (case-insensitive).
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	}
	return ParityNone, invalidConfig("unknown parity %q", s)
}

func (p Parity) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, invalidConfig("unknown parity %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Parity) UnmarshalText(text []byte) error {
	v, err := ParseParity(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	// FlowControlRTSCTS is hardware handshaking on RTS/CTS. Only the Linux
	// driver supports it.
	FlowControlRTSCTS
	// FlowControlDTRDSR is a valid setting, but no bundled driver can apply
	// it: termios has no DTR/DSR handshake, and the portable backend has no
	// flow control at all. Opening with it fails with InvalidConfig
	// (ErrUnsupportedFlowControl).
	FlowControlDTRDSR
)

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlRTSCTS:
		return "rts_cts"
	case FlowControlDTRDSR:
		return "dtr_dsr"
	default:
		return fmt.Sprintf("flow_control(%d)", int(f))
	}
}

func (f FlowControl) valid() bool { return f >= FlowControlNone && f <= FlowControlDTRDSR }

// ParseFlowControl accepts "none", "rts_cts" and "dtr_dsr" plus the common
// spellings "rts/cts", "rtscts", "dtr/dsr" and "dtrdsr".
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FlowControlNone, nil
	case "rts_cts", "rts/cts", "rtscts":
		return FlowControlRTSCTS, nil
	case "dtr_dsr", "dtr/dsr", "dtrdsr":
		return FlowControlDTRDSR, nil
	}
	return FlowControlNone, invalidConfig("unknown flow control %q", s)
}

func (f FlowControl) MarshalText() ([]byte, error) {
	if !f.valid() {
		return nil, invalidConfig("unknown flow control %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *FlowControl) UnmarshalText(text []byte) error {
	v, err := ParseFlowControl(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Config holds the configuration for a serial connection. It is a plain value;
// the connection keeps its own copy once applied.
type Config struct {
	BaudRate    int         `json:"baud_rate"`
	DataBits    int         `json:"data_bits"`
	StopBits    int         `json:"stop_bits"`
	Parity      Parity      `json:"parity"`
	FlowControl FlowControl `json:"flow_control"`
	TimeoutMS   int         `json:"timeout_ms"`
}

// Option is a functional option for building a Config
type Option func(*Config) error

// DefaultConfig returns 115200 8N1, no flow control, 1000ms timeout.
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		FlowControl: FlowControlNone,
		TimeoutMS:   1000,
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return invalidConfig("%w: %d", ErrInvalidBaudRate, rate)
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return invalidConfig("data bits must be 5-8, got %d", bits)
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return invalidConfig("stop bits must be 1 or 2, got %d", bits)
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if !parity.valid() {
			return invalidConfig("unknown parity %d", int(parity))
		}
		c.Parity = parity
		return nil
	}
}

// WithFlowControl sets the flow control mode
func WithFlowControl(fc FlowControl) Option {
	return func(c *Config) error {
		if !fc.valid() {
			return invalidConfig("unknown flow control %d", int(fc))
		}
		c.FlowControl = fc
		return nil
	}
}

// WithTimeout sets the per-call I/O timeout in milliseconds. 0 means non-blocking.
func WithTimeout(ms int) Option {
	return func(c *Config) error {
		if ms < 0 {
			return invalidConfig("timeout must not be negative, got %d", ms)
		}
		c.TimeoutMS = ms
		return nil
	}
}

// Validate checks every field. It never touches hardware.
func (c Config) Validate() error {
	opts := []Option{
		WithBaudRate(c.BaudRate),
		WithDataBits(c.DataBits),
		WithStopBits(c.StopBits),
		WithParity(c.Parity),
		WithFlowControl(c.FlowControl),
		WithTimeout(c.TimeoutMS),
	}
	var scratch Config
	for _, opt := range opts {
		if err := opt(&scratch); err != nil {
			return err
		}
	}
	return nil
}

// Timeout returns the per-call timeout as a duration
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// String renders the config in the usual "115200 8N1" notation.
func (c Config) String() string {
	p := "N"
	switch c.Parity {
	case ParityOdd:
		p = "O"
	case ParityEven:
		p = "E"
	}
	s := fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, p, c.StopBits)
	if c.FlowControl != FlowControlNone {
		s += " " + c.FlowControl.String()
	}
	return s
}
