package vdisk

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/fwdisk/internal/fat16"
	"github.com/fwdisk/internal/humanize"
	"github.com/fwdisk/internal/partition"
)

// ErrCapacityExceeded is returned when the root directory or the data area
// has no room for another file. The catalog is left unchanged.
var ErrCapacityExceeded = errors.New("virtual disk capacity exceeded")

// Default names for the firmware files exposed by AddFirmware.
const (
	DefaultFirmwareName = "firmware.bin"
	DefaultUpdateName   = "update.bin"
)

// fileEntry is one registered file. It is immutable after registration.
type fileEntry struct {
	name11    [11]byte
	lfn       [][fat16.DirentSize]byte // on-disk order, empty for 8.3 names
	printable string
	attrs     uint8
	size      uint32

	// content source: exactly one of content and part is set. A nil part
	// with nil content is a zero-length inline file.
	content []byte
	part    *partition.Partition

	startSector  uint32
	endSector    uint32
	startCluster uint16
	endCluster   uint16

	// rootDirSector is the root-directory sector listing this entry.
	rootDirSector int
}

func (f *fileEntry) readOnly() bool {
	return f.attrs&fat16.AttrReadOnly != 0
}

// readAt fills buf from the file's content source at byte offset off.
func (f *fileEntry) readAt(buf []byte, off int64) error {
	if f.part != nil {
		_, err := f.part.ReadAt(buf, off)
		return err
	}
	copy(buf, f.content[off:])
	return nil
}

// AddInline registers a file served from the given bytes.
func (d *Disk) AddInline(name string, content []byte, readOnly bool) error {
	if uint64(len(content)) > math.MaxUint32 {
		return fmt.Errorf("file %q too large", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(name, uint32(len(content)), content, nil, readOnly)
}

// AddPartition exposes the flash partition with the given label as a file
// named nameOnDisk. The file reports the partition's full size.
func (d *Disk) AddPartition(nameOnDisk, label string, writable bool) error {
	if d.table == nil {
		return fmt.Errorf("partition %q: %w", label, partition.ErrNotFound)
	}
	p, err := d.table.Find(label)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(nameOnDisk, p.Size, nil, p, !writable)
}

// AddFirmware exposes the running application image read-only under
// currentName and, when a distinct OTA slot exists, that slot writable
// under nextName. Dropping a firmware image onto the writable file (or any
// other writable file) starts an update. An empty nextName skips the
// second file.
func (d *Disk) AddFirmware(currentName, nextName string) error {
	if d.table == nil {
		return fmt.Errorf("firmware partition: %w", partition.ErrNotFound)
	}
	running, err := d.table.Running()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.register(currentName, running.Size, nil, running, true); err != nil {
		return err
	}
	if nextName == "" {
		return nil
	}
	next, err := d.table.NextUpdate()
	if err != nil {
		// single-slot layout: only the running image is exposed
		return nil
	}
	return d.register(nextName, next.Size, nil, next, false)
}

// register appends a file to the catalog: 8.3 (and LFN, when needed) name
// conversion, root-directory slot assignment, contiguous span assignment.
func (d *Disk) register(name string, size uint32, content []byte, part *partition.Partition, readOnly bool) error {
	name11 := fat16.ShortName(name)
	var lfn [][fat16.DirentSize]byte
	if fat16.NeedsLongName(name) {
		name11 = fat16.MangleShortName(name11)
		lfn = fat16.LongNameEntries(name, name11)
	}

	// first root-directory sector with room for the LFN chain + 8.3 entry
	need := 1 + len(lfn)
	dirSector := -1
	for i, used := range d.slotsUsed {
		if used+need <= fat16.DirentsPerSector {
			dirSector = i
			break
		}
	}
	if dirSector < 0 {
		return fmt.Errorf("no root directory slot for %q: %w", name, ErrCapacityExceeded)
	}

	f := &fileEntry{
		name11:        name11,
		lfn:           lfn,
		printable:     name,
		attrs:         fat16.AttrArchive,
		size:          size,
		content:       content,
		part:          part,
		rootDirSector: dirSector,
	}
	if readOnly {
		f.attrs |= fat16.AttrReadOnly
	}

	if len(d.files) == 0 {
		f.startSector = d.geom.FileDataStart
		f.startCluster = fat16.FirstDataCluster
	} else {
		prev := d.files[len(d.files)-1]
		f.startSector = prev.endSector + 1
		f.startCluster = prev.endCluster + 1
	}
	f.endSector = f.startSector + size/uint32(fat16.SectorSize)
	f.endCluster = f.startCluster + uint16(size/uint32(fat16.SectorSize))
	if f.endSector >= uint32(d.geom.SectorCount) {
		return fmt.Errorf("no data sectors for %q (%s): %w", name, humanize.Bytes(uint64(size)), ErrCapacityExceeded)
	}

	d.slotsUsed[dirSector] += need
	d.files = append(d.files, f)
	log.Printf("file %q: sectors %d-%d, clusters %d-%d, %d bytes",
		f.printable, f.startSector, f.endSector, f.startCluster, f.endCluster, size)
	return nil
}
