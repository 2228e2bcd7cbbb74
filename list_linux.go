//go:build linux

package serialcore

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Name patterns for communication-capable serial devices
	serialDevicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
		regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
		regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
		regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
		regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
		regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
		regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
		regexp.MustCompile(`^rfcomm\d+$`), // Bluetooth RFCOMM
	}

	// Virtual terminals and pseudo-terminals
	excludedDevicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^tty\d+$`),
		regexp.MustCompile(`^console$`),
		regexp.MustCompile(`^ptmx$`),
		regexp.MustCompile(`^pty.*$`),
	}
)

// DevfsEnumerator scans a device directory for serial device nodes and
// enriches them from sysfs. It does not depend on udev.
type DevfsEnumerator struct {
	DevDir string // defaults to /dev
	SysDir string // defaults to /sys
}

func (e DevfsEnumerator) dirs() (string, string) {
	devDir, sysDir := e.DevDir, e.SysDir
	if devDir == "" {
		devDir = "/dev"
	}
	if sysDir == "" {
		sysDir = "/sys"
	}
	return devDir, sysDir
}

func (e DevfsEnumerator) Enumerate() ([]PortDetails, error) {
	devDir, sysDir := e.dirs()

	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, newError(KindEnumeration, "enumerate", devDir, err)
	}

	var ports []PortDetails
	for _, entry := range entries {
		name := entry.Name()
		if !isSerialDeviceName(name) {
			continue
		}

		fullPath := filepath.Join(devDir, name)
		if !isCharacterDevice(fullPath) {
			continue
		}

		d := PortDetails{
			Name: fullPath,
			Type: sysfsPortType(sysDir, name),
		}
		if d.Type == PortTypeUSB {
			enrichUSBInfo(sysDir, name, &d)
		}
		ports = append(ports, d)
	}
	return ports, nil
}

// isSerialDeviceName filters for serial devices and excludes virtual terminals
func isSerialDeviceName(name string) bool {
	for _, p := range excludedDevicePatterns {
		if p.MatchString(name) {
			return false
		}
	}
	for _, p := range serialDevicePatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func platformPortType(name string) PortType {
	return sysfsPortType("/sys", filepath.Base(name))
}

// sysfsPortType classifies a tty by the subsystem of its parent device.
func sysfsPortType(sysDir, name string) PortType {
	if strings.HasPrefix(name, "rfcomm") {
		return PortTypeBluetooth
	}

	subsystem, err := os.Readlink(filepath.Join(sysDir, "class", "tty", name, "device", "subsystem"))
	if err != nil {
		return classifyByName(name)
	}

	switch filepath.Base(subsystem) {
	case "usb", "usb-serial":
		return PortTypeUSB
	case "pci":
		return PortTypePCI
	case "bluetooth":
		return PortTypeBluetooth
	default:
		return PortTypeUnknown
	}
}

// enrichUSBInfo walks up from the tty's device node to the USB device and
// reads its descriptor attributes.
func enrichUSBInfo(sysDir, name string, d *PortDetails) {
	dir, err := filepath.EvalSymlinks(filepath.Join(sysDir, "class", "tty", name, "device"))
	if err != nil {
		return
	}

	root, err := filepath.EvalSymlinks(sysDir)
	if err != nil {
		root = sysDir
	}

	for dir != root && dir != "/" && dir != "." {
		if vid := readSysfsFile(filepath.Join(dir, "idVendor")); vid != "" {
			d.VendorID = vid
			d.ProductID = readSysfsFile(filepath.Join(dir, "idProduct"))
			d.SerialNumber = readSysfsFile(filepath.Join(dir, "serial"))
			d.Product = readSysfsFile(filepath.Join(dir, "product"))
			return
		}
		dir = filepath.Dir(dir)
	}
}

// readSysfsFile returns the trimmed content of a sysfs attribute, or "".
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
