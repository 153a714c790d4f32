//go:build !linux

package platform

import "errors"

// Reboot restarts the system. Unsupported on this platform.
func Reboot() error {
	return errors.New("reboot not supported on this platform")
}
