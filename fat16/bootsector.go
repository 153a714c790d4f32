package fat16

import (
	"bytes"
	"encoding/binary"
)

// BootSector describes the mutable parts of the volume's boot sector. The
// geometry fields are taken from Geometry; everything else is fixed.
type BootSector struct {
	Label  [11]byte // space-padded volume label
	Serial uint32   // volume serial number
	Geom   Geometry
}

// SetLabel space-pads label into the 11-byte volume label field.
func (b *BootSector) SetLabel(label string) {
	for i := range b.Label {
		if i < len(label) {
			b.Label[i] = label[i]
		} else {
			b.Label[i] = ' '
		}
	}
}

// Marshal returns the 512-byte boot sector image. The boot code region is
// zero; the sector carries only the BIOS parameter block and signatures.
func (b *BootSector) Marshal() []byte {
	var (
		jumpCode            = [3]byte{0xEB, 0x3C, 0x90}
		oem                 = [8]byte{'M', 'S', 'D', 'O', 'S', '5', '.', '0'}
		fileSystemType      = [8]byte{'F', 'A', 'T', '1', '6', ' ', ' ', ' '}
		bootCode            = [448]byte{}
		bootSectorSignature = [2]byte{0x55, 0xAA}
	)
	buf := bytes.NewBuffer(make([]byte, 0, int(SectorSize)))
	for _, v := range []interface{}{
		jumpCode,                 // intel 80x86 jump instruction
		oem,                      // OEM name
		SectorSize,               // bytes per sector
		uint8(1),                 // sectors per cluster
		b.Geom.ReservedSectors,   // reserved sectors
		uint8(2),                 // FAT copies
		b.Geom.RootDirSlots,      // root directory entries
		b.Geom.SectorCount,       // 16-bit total sector count
		MediaDescriptor,          // media descriptor
		b.Geom.SectorsPerFAT,     // sectors per FAT
		uint16(1),                // (bootcode only) sectors per track
		uint16(1),                // (bootcode only) heads
		uint32(0),                // hidden sectors
		uint32(0),                // 32-bit sector count, unused for FAT16
		uint8(0x80),              // (bootcode only) drive number
		uint8(0),                 // reserved
		uint8(0x29),              // extended boot signature
		b.Serial,                 // volume serial number
		b.Label,                  // volume label
		fileSystemType,           // file system identifier
		bootCode,                 // boot code, zero
		bootSectorSignature,      // 0x55 0xAA
	} {
		// writing to a bytes.Buffer never fails
		binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}
