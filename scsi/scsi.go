// Package scsi adapts the virtual disk to the SCSI callback surface of an
// external USB mass-storage stack. The stack owns enumeration, endpoints
// and the bulk-only transport; this package answers the handful of commands
// a direct-access block device must speak.
package scsi

// SCSI operation codes (SBC-4 / SPC-5 subset).
const (
	CmdTestUnitReady             = 0x00
	CmdRequestSense              = 0x03
	CmdInquiry                   = 0x12
	CmdModeSense6                = 0x1A
	CmdStartStopUnit             = 0x1B
	CmdPreventAllowMediumRemoval = 0x1E
	CmdReadFormatCapacities      = 0x23
	CmdReadCapacity10            = 0x25
	CmdRead10                    = 0x28
	CmdWrite10                   = 0x2A
)

// Sense keys and additional sense codes.
const (
	SenseNone           = uint8(0x00)
	SenseNotReady       = uint8(0x02)
	SenseMediumError    = uint8(0x03)
	SenseIllegalRequest = uint8(0x05)

	ASCInvalidCommandOperationCode = uint8(0x20)
)

// Inquiry string field widths.
const (
	VendorIDLen   = 8
	ProductIDLen  = 16
	ProductRevLen = 4
)
