package serialcore

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ConnectionState is a snapshot of the single managed connection.
type ConnectionState struct {
	IsConnected bool   `json:"is_connected"`
	PortName    string `json:"port_name"`
	Config      Config `json:"config"`
}

// Connection owns at most one open port. Open, Close, Send, Receive and
// Flush must not run concurrently with each other; Service serializes them.
// Status and Snapshot are safe to call at any time.
type Connection struct {
	driver Driver
	logger *zap.Logger

	defaultReceive int
	maxReceive     int

	mu      sync.RWMutex
	state   ConnectionState
	channel *Channel
}

// NewConnection returns a closed connection that opens ports through driver.
func NewConnection(driver Driver, logger *zap.Logger) *Connection {
	if driver == nil {
		driver = NewDriver()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		driver:         driver,
		logger:         logger,
		defaultReceive: DefaultReceiveSize,
		maxReceive:     MaxReceiveSize,
		state:          ConnectionState{Config: DefaultConfig()},
	}
}

// Open validates config, takes exclusive ownership of the port and makes the
// channel usable. On any failure the connection stays closed.
func (c *Connection) Open(portName string, config Config) error {
	if err := config.Validate(); err != nil {
		return withKind(err, KindInvalidConfig, "open", portName)
	}
	if err := c.driver.Validate(config); err != nil {
		return withKind(err, KindInvalidConfig, "open", portName)
	}

	c.mu.RLock()
	current := c.state
	c.mu.RUnlock()
	if current.IsConnected {
		return newError(KindPortUnavailable, "open", portName, ErrAlreadyConnected)
	}
	if portName == "" {
		return newError(KindPortUnavailable, "open", portName, ErrDeviceNotFound)
	}

	handle, err := c.driver.Open(portName, config)
	if err != nil {
		return withKind(err, KindPortUnavailable, "open", portName)
	}

	ch := newChannel(handle, portName, config.Timeout(), c.defaultReceive, c.maxReceive)

	c.mu.Lock()
	c.channel = ch
	c.state = ConnectionState{
		IsConnected: true,
		PortName:    portName,
		Config:      config,
	}
	c.mu.Unlock()

	c.logger.Info("Serial port opened",
		zap.String("port", portName),
		zap.Int("baud_rate", config.BaudRate),
		zap.Stringer("config", config),
	)
	return nil
}

// Close releases the port. Closing a closed connection is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	ch := c.channel
	port := c.state.PortName
	c.channel = nil
	c.state.IsConnected = false
	c.state.PortName = ""
	c.mu.Unlock()

	if ch == nil {
		return nil
	}

	if err := ch.Close(); err != nil {
		// The handle is gone either way
		c.logger.Warn("Error releasing serial port", zap.String("port", port), zap.Error(err))
	}
	c.logger.Info("Serial port closed", zap.String("port", port))
	return nil
}

// Snapshot returns the current state without touching the device.
func (c *Connection) Snapshot() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the current state after checking that the device is still
// there. A device that has gone away forces the connection closed.
func (c *Connection) Status() ConnectionState {
	c.mu.RLock()
	ch := c.channel
	state := c.state
	c.mu.RUnlock()

	if ch == nil {
		return state
	}

	if err := ch.probe(); err != nil {
		if errors.Is(err, ErrPortClosed) {
			// Torn down by a concurrent close or failure
			return c.Snapshot()
		}
		if c.detach(ch) {
			c.logger.Warn("Serial device lost",
				zap.String("port", state.PortName),
				zap.Error(err),
			)
			if cerr := ch.Close(); cerr != nil {
				c.logger.Debug("Error releasing lost serial port", zap.String("port", state.PortName), zap.Error(cerr))
			}
		}
		return c.Snapshot()
	}
	return state
}

// Send writes data to the open port.
func (c *Connection) Send(data []byte) (int, error) {
	ch, err := c.active("send")
	if err != nil {
		return 0, err
	}

	n, err := ch.Send(data)
	if err != nil {
		c.fail(ch, err)
		return n, err
	}
	return n, nil
}

// Receive reads up to maxBytes from the open port; maxBytes <= 0 selects
// the default cap.
func (c *Connection) Receive(maxBytes int) ([]byte, error) {
	ch, err := c.active("receive")
	if err != nil {
		return nil, err
	}

	data, err := ch.Receive(maxBytes)
	if err != nil {
		c.fail(ch, err)
		return nil, err
	}
	return data, nil
}

// Flush discards buffered data in both directions.
func (c *Connection) Flush() error {
	ch, err := c.active("flush")
	if err != nil {
		return err
	}

	if err := ch.Flush(); err != nil {
		c.fail(ch, err)
		return err
	}
	return nil
}

func (c *Connection) setReceiveLimits(defaultBytes, maxBytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxBytes > 0 {
		c.maxReceive = maxBytes
	}
	if defaultBytes > 0 {
		c.defaultReceive = min(defaultBytes, c.maxReceive)
	}
}

func (c *Connection) active(op string) (*Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.channel == nil {
		return nil, newError(KindNotConnected, op, "", ErrNotConnected)
	}
	return c.channel, nil
}

// fail tears the connection down after a transport error so the handle is
// released now and the next status reports it closed.
func (c *Connection) fail(ch *Channel, err error) {
	if KindOf(err) != KindTransport {
		return
	}
	if !c.detach(ch) {
		return
	}

	c.logger.Error("Serial transport failed, closing port",
		zap.String("port", ch.port),
		zap.Error(err),
	)
	if cerr := ch.Close(); cerr != nil {
		c.logger.Debug("Error releasing failed serial port", zap.String("port", ch.port), zap.Error(cerr))
	}
}

// detach drops ch if it is still the active channel
func (c *Connection) detach(ch *Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != ch {
		return false
	}
	c.channel = nil
	c.state.IsConnected = false
	c.state.PortName = ""
	return true
}
