// Package platform contains the small amount of host glue the firmware
// needs: currently just rebooting the device after a successful update.
package platform
