package serialcore

import (
	"go.bug.st/serial/enumerator"
)

// allow tests to override the OS enumeration
var getDetailedPortsList = enumerator.GetDetailedPortsList

// SystemEnumerator lists ports through the platform's native device listing
// facility (sysfs on Linux, IOKit on macOS, SetupAPI on Windows).
type SystemEnumerator struct{}

func (SystemEnumerator) Enumerate() ([]PortDetails, error) {
	ports, err := getDetailedPortsList()
	if err != nil {
		return nil, newError(KindEnumeration, "enumerate", "", err)
	}

	details := make([]PortDetails, 0, len(ports))
	for _, p := range ports {
		if p == nil {
			continue
		}
		d := PortDetails{
			Name:         p.Name,
			VendorID:     p.VID,
			ProductID:    p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		}
		if p.IsUSB {
			d.Type = PortTypeUSB
		} else {
			d.Type = platformPortType(p.Name)
		}
		details = append(details, d)
	}
	return details, nil
}
