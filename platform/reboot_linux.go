//go:build linux

package platform

import (
	"log"

	"golang.org/x/sys/unix"
)

// Reboot restarts the system. It only returns on failure (typically
// insufficient privileges).
func Reboot() error {
	log.Printf("rebooting")
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
