package partition

import (
	"fmt"
	"io"
)

// Type classifies a partition entry.
type Type uint8

const (
	TypeApp  Type = 0x00
	TypeData Type = 0x01
)

func (t Type) String() string {
	switch t {
	case TypeApp:
		return "app"
	case TypeData:
		return "data"
	}
	return fmt.Sprintf("type(%#x)", uint8(t))
}

// SubType refines Type.
type SubType uint8

const (
	// App subtypes.
	SubTypeFactory SubType = 0x00
	SubTypeOTA0    SubType = 0x10
	SubTypeOTAMax  SubType = 0x1F

	// Data subtypes.
	SubTypeOTAData SubType = 0x00
	SubTypeNVS     SubType = 0x02
	SubTypeSPIFFS  SubType = 0x82
)

// IsOTASlot reports whether the subtype is one of the rotating app slots.
func (s SubType) IsOTASlot() bool {
	return s >= SubTypeOTA0 && s <= SubTypeOTAMax
}

// erasedByte is what freshly erased NOR flash reads as.
const erasedByte = 0xFF

// Partition is a handle to one region of the flash image.
type Partition struct {
	Label   string
	Type    Type
	SubType SubType
	Offset  uint32
	Size    uint32

	table *Table
}

func (p *Partition) String() string {
	return fmt.Sprintf("%s (%s/%#02x) @ %#x, %d bytes", p.Label, p.Type, uint8(p.SubType), p.Offset, p.Size)
}

// ReadAt reads len(b) bytes at byte offset off within the partition.
func (p *Partition) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(b)) > int64(p.Size) {
		return 0, fmt.Errorf("read [%d, %d) out of range for partition %s", off, off+int64(len(b)), p.Label)
	}
	return p.table.flash.ReadAt(b, int64(p.Offset)+off)
}

// WriteAt writes len(b) bytes at byte offset off within the partition.
func (p *Partition) WriteAt(b []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(b)) > int64(p.Size) {
		return 0, fmt.Errorf("write [%d, %d) out of range for partition %s", off, off+int64(len(b)), p.Label)
	}
	return p.table.flash.WriteAt(b, int64(p.Offset)+off)
}

// Erase fills [off, off+length) with erased flash (0xFF). length == 0 erases
// the whole partition.
func (p *Partition) Erase(off, length int64) error {
	if length == 0 {
		off, length = 0, int64(p.Size)
	}
	if off < 0 || off+length > int64(p.Size) {
		return fmt.Errorf("erase [%d, %d) out of range for partition %s", off, off+length, p.Label)
	}
	blank := make([]byte, 64*1024)
	for i := range blank {
		blank[i] = erasedByte
	}
	for length > 0 {
		chunk := int64(len(blank))
		if chunk > length {
			chunk = length
		}
		if _, err := p.table.flash.WriteAt(blank[:chunk], int64(p.Offset)+off); err != nil {
			return err
		}
		off += chunk
		length -= chunk
	}
	return nil
}

// ReadAll returns the partition's full contents.
func (p *Partition) ReadAll() ([]byte, error) {
	buf := make([]byte, p.Size)
	if _, err := p.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}
