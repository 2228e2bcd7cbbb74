//go:build !linux

package serialcore

import (
	"errors"
	"runtime"
)

// DevfsEnumerator is only implemented on Linux.
type DevfsEnumerator struct {
	DevDir string
	SysDir string
}

func (DevfsEnumerator) Enumerate() ([]PortDetails, error) {
	return nil, newError(KindEnumeration, "enumerate", "", errors.New("devfs enumeration is not available on "+runtime.GOOS))
}

func platformPortType(name string) PortType {
	return classifyByName(name)
}
