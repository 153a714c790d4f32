package fat16

import "fmt"

const (
	// SectorSize is the only sector size this package supports. Hosts may
	// negotiate larger blocks, but every FAT16 driver in the wild copes with
	// 512 and the on-wire structures below assume it.
	SectorSize = uint16(512)

	// DirentSize is the size of one directory entry, 8.3 or LFN alike.
	DirentSize = 32

	// DirentsPerSector is how many directory entries fit into one sector.
	DirentsPerSector = int(SectorSize) / DirentSize

	// EndOfChain marks the end of a cluster chain in the FAT.
	EndOfChain = uint16(0xFFFF)

	// MediaDescriptor marks the volume as a hard disk (as opposed to
	// floppy); it reappears in FAT entry 0.
	MediaDescriptor = uint8(0xF8)

	// FirstDataCluster is the first cluster number usable for file data; the
	// first two FAT entries hold the media descriptor and file system state.
	FirstDataCluster = uint16(2)
)

// Geometry holds the layout of a FAT16 volume with one sector per cluster
// and two FAT copies. All fields are derived once from the constructor
// parameters and never change.
type Geometry struct {
	SectorCount     uint16 // total sectors on the volume
	ReservedSectors uint16 // sectors before the first FAT copy
	RootDirSlots    uint16 // directory entries in the root directory

	SectorsPerFAT  uint16
	FAT0Start      uint32 // LBA of the first FAT copy
	FAT1Start      uint32 // LBA of the second FAT copy
	RootDirStart   uint32 // LBA of the first root directory sector
	RootDirSectors uint16
	FileDataStart  uint32 // LBA of the first file data sector
}

// NewGeometry derives the volume layout. rootDirSlots must be a multiple of
// 16 so that the root directory occupies whole sectors.
func NewGeometry(sectorCount, reservedSectors, rootDirSlots uint16) (Geometry, error) {
	if sectorCount == 0 {
		return Geometry{}, fmt.Errorf("sector count must be > 0")
	}
	if reservedSectors < 1 {
		return Geometry{}, fmt.Errorf("at least one reserved sector required")
	}
	if rootDirSlots == 0 || rootDirSlots%uint16(DirentsPerSector) != 0 {
		return Geometry{}, fmt.Errorf("root directory slots (%d) must be a non-zero multiple of %d", rootDirSlots, DirentsPerSector)
	}

	g := Geometry{
		SectorCount:     sectorCount,
		ReservedSectors: reservedSectors,
		RootDirSlots:    rootDirSlots,
	}
	// Two bytes per FAT entry, one entry per cluster (= sector), rounded up
	// to whole sectors.
	g.SectorsPerFAT = uint16((uint32(sectorCount)*2 + uint32(SectorSize) - 1) / uint32(SectorSize))
	g.FAT0Start = uint32(reservedSectors)
	g.FAT1Start = g.FAT0Start + uint32(g.SectorsPerFAT)
	g.RootDirStart = g.FAT1Start + uint32(g.SectorsPerFAT)
	g.RootDirSectors = rootDirSlots / uint16(DirentsPerSector)
	g.FileDataStart = g.RootDirStart + uint32(g.RootDirSectors)
	return g, nil
}

// ClustersPerFATSector is how many 16-bit FAT entries one sector holds.
const ClustersPerFATSector = int(SectorSize) / 2
