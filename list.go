package serialcore

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PortType classifies the bus a serial port hangs off
type PortType string

const (
	PortTypeUSB       PortType = "USB"
	PortTypePCI       PortType = "PCI"
	PortTypeBluetooth PortType = "Bluetooth"
	PortTypeUnknown   PortType = "Unknown"
)

// PortDetails is what an Enumerator reports for one device
type PortDetails struct {
	Name         string
	Type         PortType
	Description  string
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
}

// PortDescriptor is one entry of a port listing. It is only valid for the
// enumeration that produced it.
type PortDescriptor struct {
	PortName     string   `json:"port_name"`
	PortType     PortType `json:"port_type"`
	IsOpen       bool     `json:"is_open"`
	Description  string   `json:"description,omitempty"`
	VendorID     string   `json:"vendor_id,omitempty"`
	ProductID    string   `json:"product_id,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
}

// Enumerator lists the serial devices currently present on the host
type Enumerator interface {
	Enumerate() ([]PortDetails, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface
type EnumeratorFunc func() ([]PortDetails, error)

func (f EnumeratorFunc) Enumerate() ([]PortDetails, error) { return f() }

// Registry performs fresh port enumerations. It keeps no state between calls.
type Registry struct {
	enumerator Enumerator
}

// NewRegistry returns a registry backed by e, or by SystemEnumerator when e is nil.
func NewRegistry(e Enumerator) *Registry {
	if e == nil {
		e = SystemEnumerator{}
	}
	return &Registry{enumerator: e}
}

// ListPorts enumerates the host's serial ports in OS order. Names appearing
// more than once (one device exposing several interfaces) are reported once.
// Zero devices is not an error.
func (r *Registry) ListPorts() ([]PortDescriptor, error) {
	details, err := r.enumerator.Enumerate()
	if err != nil {
		return nil, withKind(err, KindEnumeration, "list ports", "")
	}

	ports := make([]PortDescriptor, 0, len(details))
	seen := make(map[string]struct{}, len(details))
	for _, d := range details {
		if d.Name == "" {
			continue
		}
		if _, dup := seen[d.Name]; dup {
			continue
		}
		seen[d.Name] = struct{}{}
		ports = append(ports, describe(d))
	}
	return ports, nil
}

// IsPortPresent reports whether name shows up in a fresh enumeration.
func (r *Registry) IsPortPresent(name string) (bool, error) {
	details, err := r.enumerator.Enumerate()
	if err != nil {
		return false, withKind(err, KindEnumeration, "check port", name)
	}
	for _, d := range details {
		if d.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func describe(d PortDetails) PortDescriptor {
	t := d.Type
	if t == "" {
		t = classifyByName(d.Name)
	}
	desc := d.Description
	if desc == "" {
		desc = portDescription(t, d)
	}
	return PortDescriptor{
		PortName:     d.Name,
		PortType:     t,
		Description:  desc,
		VendorID:     d.VendorID,
		ProductID:    d.ProductID,
		SerialNumber: d.SerialNumber,
	}
}

// portDescription builds a human-readable label such as "USB - 0403:6001 - FT232R".
func portDescription(t PortType, d PortDetails) string {
	parts := []string{string(t)}
	if d.VendorID != "" || d.ProductID != "" {
		parts = append(parts, fmt.Sprintf("%s:%s", strings.ToLower(d.VendorID), strings.ToLower(d.ProductID)))
	}
	if d.Product != "" {
		parts = append(parts, d.Product)
	}
	if len(parts) == 1 {
		return getPortDescription(filepath.Base(d.Name))
	}
	return strings.Join(parts, " - ")
}

// classifyByName guesses the bus from well-known device names.
func classifyByName(name string) PortType {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.HasPrefix(base, "ttyusb"), strings.HasPrefix(base, "ttyacm"),
		strings.Contains(base, "usbserial"), strings.Contains(base, "usbmodem"):
		return PortTypeUSB
	case strings.HasPrefix(base, "rfcomm"), strings.Contains(base, "bluetooth"):
		return PortTypeBluetooth
	default:
		return PortTypeUnknown
	}
}

// getPortDescription provides human-readable descriptions for different port names
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	case strings.HasPrefix(name, "rfcomm"):
		return "Bluetooth RFCOMM Port"
	default:
		return "Serial Port"
	}
}
