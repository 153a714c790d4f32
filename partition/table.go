package partition

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"
)

// TableOffset is the flash byte offset at which the partition table lives.
const TableOffset = 0x8000

// entrySize is the size of one partition table entry.
const entrySize = 32

// entryMagic identifies a partition entry; md5Magic marks the trailing
// checksum entry that ends the table.
const (
	entryMagic = uint16(0x50AA)
	md5Magic   = uint16(0xEBEB)
)

// maxEntries bounds the table scan; erased flash ends it earlier.
const maxEntries = 32

// ErrNotFound is returned when a partition lookup fails or no suitable OTA
// slot exists.
var ErrNotFound = errors.New("partition not found")

// flashFile is the subset of afero.File the table needs.
type flashFile interface {
	ReadAt(b []byte, off int64) (int, error)
	WriteAt(b []byte, off int64) (int, error)
	Close() error
}

// Table is the parsed partition table of one flash image.
type Table struct {
	flash   flashFile
	parts   []*Partition
	running *Partition
}

// Open parses the partition table of the flash image at path. The file stays
// open for partition reads and writes until Close is called.
func Open(fsys afero.Fs, path string) (*Table, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	t := &Table{flash: f}
	if err := t.parse(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Close releases the underlying flash image.
func (t *Table) Close() error {
	return t.flash.Close()
}

func (t *Table) parse() error {
	buf := make([]byte, entrySize)
	for i := 0; i < maxEntries; i++ {
		if _, err := t.flash.ReadAt(buf, TableOffset+int64(i*entrySize)); err != nil {
			return fmt.Errorf("reading partition entry %d: %v", i, err)
		}
		magic := binary.LittleEndian.Uint16(buf[0:2])
		if magic == md5Magic || bytes.Equal(buf, bytes.Repeat([]byte{erasedByte}, entrySize)) {
			break
		}
		if magic != entryMagic {
			return fmt.Errorf("partition entry %d: bad magic %#04x", i, magic)
		}
		p := &Partition{
			Type:    Type(buf[2]),
			SubType: SubType(buf[3]),
			Offset:  binary.LittleEndian.Uint32(buf[4:8]),
			Size:    binary.LittleEndian.Uint32(buf[8:12]),
			Label:   string(bytes.TrimRight(buf[12:28], "\x00")),
			table:   t,
		}
		t.parts = append(t.parts, p)
	}
	if len(t.parts) == 0 {
		return fmt.Errorf("no partition table at offset %#x", TableOffset)
	}
	return nil
}

// Partitions returns all entries in table order.
func (t *Table) Partitions() []*Partition {
	return t.parts
}

// Find returns the partition with the given label.
func (t *Table) Find(label string) (*Partition, error) {
	for _, p := range t.parts {
		if p.Label == label {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", label, ErrNotFound)
}

// findSubType returns the first partition matching type and subtype.
func (t *Table) findSubType(typ Type, sub SubType) *Partition {
	for _, p := range t.parts {
		if p.Type == typ && p.SubType == sub {
			return p
		}
	}
	return nil
}

// otaSlots returns the app OTA slots in subtype order.
func (t *Table) otaSlots() []*Partition {
	var slots []*Partition
	for sub := SubTypeOTA0; sub <= SubTypeOTAMax; sub++ {
		if p := t.findSubType(TypeApp, sub); p != nil {
			slots = append(slots, p)
		}
	}
	return slots
}

// MarkRunning records which app partition holds the currently executing
// image. On a device the bootloader hands this down; tools call it with the
// boot target.
func (t *Table) MarkRunning(label string) error {
	p, err := t.Find(label)
	if err != nil {
		return err
	}
	if p.Type != TypeApp {
		return fmt.Errorf("partition %s is not an app partition", p.Label)
	}
	t.running = p
	return nil
}

// Running returns the currently executing app partition, or ErrNotFound if
// none was recorded.
func (t *Table) Running() (*Partition, error) {
	if t.running == nil {
		return nil, fmt.Errorf("running partition: %w", ErrNotFound)
	}
	return t.running, nil
}

// NextUpdate returns the first OTA slot that is not the running partition.
// This is the slot a streamed update should land in.
func (t *Table) NextUpdate() (*Partition, error) {
	for _, p := range t.otaSlots() {
		if p != t.running {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no free OTA slot: %w", ErrNotFound)
}

// Spec describes one partition for Format.
type Spec struct {
	Label   string
	Type    Type
	SubType SubType
	Offset  uint32
	Size    uint32
}

// Format creates a flash image of flashSize bytes at path, writes a
// partition table for specs and returns the opened table. Existing content
// is replaced; the data area reads as erased flash.
func Format(fsys afero.Fs, path string, flashSize int64, specs []Spec) (*Table, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	blank := bytes.Repeat([]byte{erasedByte}, 64*1024)
	for off := int64(0); off < flashSize; off += int64(len(blank)) {
		chunk := int64(len(blank))
		if off+chunk > flashSize {
			chunk = flashSize - off
		}
		if _, err := f.WriteAt(blank[:chunk], off); err != nil {
			f.Close()
			return nil, err
		}
	}
	entry := make([]byte, entrySize)
	for i, s := range specs {
		for j := range entry {
			entry[j] = 0
		}
		binary.LittleEndian.PutUint16(entry[0:2], entryMagic)
		entry[2] = uint8(s.Type)
		entry[3] = uint8(s.SubType)
		binary.LittleEndian.PutUint32(entry[4:8], s.Offset)
		binary.LittleEndian.PutUint32(entry[8:12], s.Size)
		copy(entry[12:28], s.Label)
		if _, err := f.WriteAt(entry, TableOffset+int64(i*entrySize)); err != nil {
			f.Close()
			return nil, err
		}
	}
	// trailing marker so parse stops before the erased remainder
	marker := make([]byte, entrySize)
	binary.LittleEndian.PutUint16(marker[0:2], md5Magic)
	if _, err := f.WriteAt(marker, TableOffset+int64(len(specs)*entrySize)); err != nil {
		f.Close()
		return nil, err
	}

	t := &Table{flash: f}
	if err := t.parse(); err != nil {
		f.Close()
		return nil, err
	}
	log.Printf("formatted %s: %d partitions, %d bytes flash", path, len(t.parts), flashSize)
	return t, nil
}
