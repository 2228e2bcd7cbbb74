package serialcore

import (
	"sync"

	"go.uber.org/zap"
)

// Service is the command surface over one connection and the port registry.
// Open, close, send, receive and flush are mutually exclusive; status and
// listing calls never wait for them.
type Service struct {
	opMu     sync.Mutex
	conn     *Connection
	registry *Registry
	logger   *zap.Logger
}

type serviceOptions struct {
	driver         Driver
	enumerator     Enumerator
	connection     *Connection
	logger         *zap.Logger
	defaultReceive int
	maxReceive     int
}

// ServiceOption configures a Service
type ServiceOption func(*serviceOptions)

// WithDriver sets the driver used to open ports
func WithDriver(d Driver) ServiceOption {
	return func(o *serviceOptions) { o.driver = d }
}

// WithEnumerator sets the enumerator behind GetSerialPorts and availability checks
func WithEnumerator(e Enumerator) ServiceOption {
	return func(o *serviceOptions) { o.enumerator = e }
}

// WithConnection hands the service an existing connection to manage.
// WithDriver is ignored when this is set.
func WithConnection(c *Connection) ServiceOption {
	return func(o *serviceOptions) { o.connection = c }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

// WithReceiveLimits sets the receive size used when the caller passes none
// and the upper bound for any single receive.
func WithReceiveLimits(defaultBytes, maxBytes int) ServiceOption {
	return func(o *serviceOptions) {
		o.defaultReceive = defaultBytes
		o.maxReceive = maxBytes
	}
}

// NewService builds a Service for the host platform unless options say otherwise.
func NewService(opts ...ServiceOption) *Service {
	o := serviceOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	conn := o.connection
	if conn == nil {
		conn = NewConnection(o.driver, o.logger.Named("connection"))
	}
	conn.setReceiveLimits(o.defaultReceive, o.maxReceive)

	return &Service{
		conn:     conn,
		registry: NewRegistry(o.enumerator),
		logger:   o.logger,
	}
}

// GetSerialPorts enumerates the host's ports and marks the one this
// process holds.
func (s *Service) GetSerialPorts() ([]PortDescriptor, error) {
	ports, err := s.registry.ListPorts()
	if err != nil {
		s.logger.Error("Failed to enumerate serial ports", zap.Error(err))
		return nil, err
	}

	state := s.conn.Snapshot()
	if state.IsConnected {
		for i := range ports {
			ports[i].IsOpen = ports[i].PortName == state.PortName
		}
	}
	return ports, nil
}

// OpenSerialPort opens portName with config. Only one port can be open at
// a time.
func (s *Service) OpenSerialPort(portName string, config Config) (bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.conn.Open(portName, config); err != nil {
		s.logger.Warn("Failed to open serial port",
			zap.String("port", portName),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err),
		)
		return false, err
	}
	return true, nil
}

// CloseSerialPort closes the open port, if any. It always succeeds.
func (s *Service) CloseSerialPort() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	_ = s.conn.Close()
	return true
}

// GetConnectionStatus is the authoritative connection state. It is where an
// unplugged device is noticed.
func (s *Service) GetConnectionStatus() ConnectionState {
	return s.conn.Status()
}

// SendData writes data and returns how many bytes the port accepted before
// the timeout.
func (s *Service) SendData(data []byte) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	n, err := s.conn.Send(data)
	if err != nil {
		return n, err
	}
	s.logger.Debug("Sent data", zap.Int("bytes_written", n), zap.Int("bytes_requested", len(data)))
	return n, nil
}

// ReceiveData returns up to maxBytes received bytes; maxBytes <= 0 uses the
// default cap.
func (s *Service) ReceiveData(maxBytes int) ([]byte, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	data, err := s.conn.Receive(maxBytes)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		s.logger.Debug("Received data", zap.Int("bytes_read", len(data)))
	}
	return data, nil
}

// FlushBuffer discards unread and unsent data. It reports false when there
// is no open port to flush.
func (s *Service) FlushBuffer() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.conn.Flush(); err != nil {
		s.logger.Debug("Flush did not complete", zap.Error(err))
		return false
	}
	return true
}

// CheckPortAvailability reports whether portName (the open port when empty)
// is still present on the host. It is a best-effort hot-plug warning: when
// the check itself fails the port is reported available.
func (s *Service) CheckPortAvailability(portName string) bool {
	if portName == "" {
		before := s.conn.Snapshot()
		if !before.IsConnected {
			return true
		}
		status := s.GetConnectionStatus()
		if !status.IsConnected {
			return false
		}
		portName = status.PortName
	}

	present, err := s.registry.IsPortPresent(portName)
	if err != nil {
		s.logger.Debug("Availability check failed, assuming available",
			zap.String("port", portName),
			zap.Error(err),
		)
	}
	return failOpen(present, err)
}

// failOpen maps an uncertain check to "available".
func failOpen(ok bool, err error) bool {
	if err != nil {
		return true
	}
	return ok
}
