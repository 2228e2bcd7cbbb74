// Package serialcore manages a single serial port connection behind a narrow,
// request/response command surface.
//
// The package enumerates the host's serial ports, opens at most one of them
// with exclusive ownership, performs timeout-bounded send and receive, and
// notices when the device behind an open port disappears.
//
// # Basic Usage
//
// Build a Service for the host platform and open a port with the default
// configuration (115200 8N1, no flow control, 1000ms timeout):
//
//	svc := serialcore.NewService(serialcore.WithLogger(logger))
//	if _, err := svc.OpenSerialPort("/dev/ttyUSB0", serialcore.DefaultConfig()); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.CloseSerialPort()
//
//	n, err := svc.SendData([]byte("AT\r\n"))
//	data, err := svc.ReceiveData(0) // up to DefaultReceiveSize bytes
//
// # Configuration Options
//
// Use functional options for custom configuration:
//
//	config, err := serialcore.NewConfig(
//	    serialcore.WithBaudRate(9600),
//	    serialcore.WithParity(serialcore.ParityEven),
//	    serialcore.WithFlowControl(serialcore.FlowControlRTSCTS),
//	    serialcore.WithTimeout(0), // non-blocking receive
//	)
//
// Configurations are validated in full before any hardware is touched.
//
// # Port Discovery
//
//	ports, err := svc.GetSerialPorts()
//	for _, p := range ports {
//	    fmt.Printf("%s [%s] open=%v %s\n", p.PortName, p.PortType, p.IsOpen, p.Description)
//	}
//
// Every call performs a fresh enumeration. Port names are reported once even
// when a device exposes several interfaces.
//
// # Connection State
//
// GetConnectionStatus is the source of truth for the connection. Callers that
// keep a copy must refresh it after every operation. A device that was
// unplugged while open is detected there, and the connection is closed.
//
// CheckPortAvailability is a best-effort hot-plug warning. When the check
// itself fails it reports the port as available.
//
// # Error Handling
//
// Every failure carries one of five kinds, matched with errors.Is:
//
//	if errors.Is(err, serialcore.ErrPortUnavailable) {
//	    // pick another port
//	}
//	if errors.Is(err, serialcore.ErrTransport) {
//	    // device fault; the connection has been closed
//	}
//
// Causes such as ErrDeviceInUse or ErrDeviceNotFound are wrapped inside and
// match as well. KindOf extracts the kind for reporting.
//
// # Platform Support
//
// On Linux ports are driven through termios with poll(2) bounded waits and
// flock/TIOCEXCL exclusivity. Other platforms use go.bug.st/serial, without
// flow control and with blocking writes.
package serialcore
