package vdisk

import (
	"fmt"
	"log"
	"sync"

	"github.com/fwdisk/internal/fat16"
	"github.com/fwdisk/internal/humanize"
	"github.com/fwdisk/internal/ota"
	"github.com/fwdisk/internal/partition"
)

// Verbose enables per-sector logging of host reads and writes.
var Verbose bool

// Config describes the virtual disk. The zero value is completed with
// defaults by New.
type Config struct {
	// Label is the volume label, up to 11 characters.
	Label string
	// Serial is the volume serial number reported in the boot sector.
	Serial uint32
	// Chip is the SoC family firmware images must be built for.
	Chip ota.ChipID

	// SectorCount is the total number of 512-byte sectors (default 8192,
	// i.e. a 4 MB volume).
	SectorCount uint16
	// ReservedSectors precede the first FAT copy (default 1).
	ReservedSectors uint16
	// RootDirSlots is the number of root directory entries, a multiple of
	// 16 (default 64).
	RootDirSlots uint16
}

// Disk is the owner object behind the SCSI callbacks: geometry, boot
// sector, file catalog and the OTA pipeline, guarded by one mutex.
type Disk struct {
	mu    sync.Mutex
	geom  fat16.Geometry
	boot  []byte
	label [11]byte
	files []*fileEntry
	// slotsUsed counts directory entries consumed per root-dir sector;
	// slot 0 of sector 0 is the volume label.
	slotsUsed []int

	table    *partition.Table
	pipeline *ota.Pipeline
}

// New builds a disk from cfg. table may be nil for a purely inline disk;
// partition-backed files and OTA updates then stay unavailable. Additional
// OTA pipeline options (callbacks, debounce interval) pass through opts.
func New(cfg Config, table *partition.Table, opts ...ota.Option) (*Disk, error) {
	if cfg.Label == "" {
		cfg.Label = "FWDISK"
	}
	if cfg.SectorCount == 0 {
		cfg.SectorCount = 8192
	}
	if cfg.ReservedSectors == 0 {
		cfg.ReservedSectors = 1
	}
	if cfg.RootDirSlots == 0 {
		cfg.RootDirSlots = 64
	}

	geom, err := fat16.NewGeometry(cfg.SectorCount, cfg.ReservedSectors, cfg.RootDirSlots)
	if err != nil {
		return nil, err
	}
	bs := fat16.BootSector{Serial: cfg.Serial, Geom: geom}
	bs.SetLabel(cfg.Label)

	d := &Disk{
		geom:      geom,
		boot:      bs.Marshal(),
		label:     bs.Label,
		slotsUsed: make([]int, geom.RootDirSectors),
		table:     table,
	}
	d.slotsUsed[0] = 1 // volume label
	if table != nil {
		d.pipeline = ota.NewPipeline(table, cfg.Chip, opts...)
	}

	log.Printf("virtual disk %q: %d sectors (%s), FAT at %d/%d, root directory at %d (%d entries), file data from %d",
		cfg.Label, geom.SectorCount, humanize.Bytes(uint64(geom.SectorCount)*uint64(fat16.SectorSize)),
		geom.FAT0Start, geom.FAT1Start, geom.RootDirStart, geom.RootDirSlots, geom.FileDataStart)
	return d, nil
}

// Geometry returns the volume layout.
func (d *Disk) Geometry() fat16.Geometry {
	return d.geom
}

// Capacity reports the block count and block size for READ CAPACITY.
func (d *Disk) Capacity() (blockCount uint32, blockSize uint16) {
	return uint32(d.geom.SectorCount), fat16.SectorSize
}

func (d *Disk) String() string {
	return fmt.Sprintf("vdisk %q (%d files)", string(d.label[:]), len(d.files))
}
