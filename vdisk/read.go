package vdisk

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/fwdisk/internal/fat16"
)

// ReadSector fills buf with the contents of the sector at lba, starting at
// the given byte offset for file-data sectors. It returns len(buf), or -1
// when a backing partition read fails.
func (d *Disk) ReadSector(lba, offset uint32, buf []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range buf {
		buf[i] = 0
	}

	switch {
	case lba == 0:
		copy(buf, d.boot)
	case lba < d.geom.FAT0Start:
		// reserved sector, reads as zeros
	case lba < d.geom.RootDirStart:
		d.fillFATSector(lba, buf)
	case lba < d.geom.FileDataStart:
		d.fillRootDirSector(int(lba-d.geom.RootDirStart), buf)
	default:
		return d.readFileData(lba, offset, buf)
	}
	return len(buf)
}

// fillFATSector synthesizes one sector of the FAT. Both copies are
// identical, so the LBA is reduced modulo the FAT size. Each sector covers
// 256 consecutive cluster entries.
func (d *Disk) fillFATSector(lba uint32, buf []byte) {
	var sector [int(fat16.SectorSize)]byte

	fatRel := (lba - d.geom.FAT0Start) % uint32(d.geom.SectorsPerFAT)
	clusterStart := fatRel * uint32(fat16.ClustersPerFATSector)
	clusterEnd := clusterStart + uint32(fat16.ClustersPerFATSector) - 1

	if fatRel == 0 {
		// entry 0 carries the media descriptor, entry 1 is reserved
		binary.LittleEndian.PutUint16(sector[0:2], 0xFF00|uint16(fat16.MediaDescriptor))
		binary.LittleEndian.PutUint16(sector[2:4], 0xFFFF)
	}
	for _, f := range d.files {
		first, last := uint32(f.startCluster), uint32(f.endCluster)
		if last < clusterStart || first > clusterEnd {
			continue
		}
		if first < clusterStart {
			first = clusterStart
		}
		if last > clusterEnd {
			last = clusterEnd
		}
		for c := first; c <= last; c++ {
			idx := (c - clusterStart) * 2
			if c == uint32(f.endCluster) {
				binary.LittleEndian.PutUint16(sector[idx:idx+2], fat16.EndOfChain)
			} else {
				binary.LittleEndian.PutUint16(sector[idx:idx+2], uint16(c)+1)
			}
		}
	}
	if Verbose {
		log.Printf("FAT sector %d (clusters %d-%d)", fatRel, clusterStart, clusterEnd)
	}
	copy(buf, sector[:])
}

// fillRootDirSector synthesizes root-directory sector sectorIdx: the volume
// label in slot 0 of sector 0, then for each file its LFN chain followed by
// the 8.3 entry.
func (d *Disk) fillRootDirSector(sectorIdx int, buf []byte) {
	var sector [int(fat16.SectorSize)]byte

	slot := 0
	if sectorIdx == 0 {
		e := fat16.VolumeLabelEntry(d.label)
		e.EncodeTo(sector[0:])
		slot = 1
	}
	for _, f := range d.files {
		if f.rootDirSector != sectorIdx {
			continue
		}
		for _, lfn := range f.lfn {
			copy(sector[slot*fat16.DirentSize:], lfn[:])
			slot++
		}
		e := fat16.Dirent{
			Name11:       f.name11,
			Attrs:        f.attrs,
			StartCluster: f.startCluster,
			Size:         f.size,
		}
		e.EncodeTo(sector[slot*fat16.DirentSize:])
		slot++
	}
	if Verbose {
		log.Printf("root directory sector %d: %d entries", sectorIdx, slot)
	}
	copy(buf, sector[:])
}

// readFileData serves a file-data sector. Bytes past the file size within
// its final sector stay zero; sectors outside every file read as zeros.
func (d *Disk) readFileData(lba, offset uint32, buf []byte) int {
	for _, f := range d.files {
		if lba < f.startSector || lba > f.endSector {
			continue
		}
		fileOffset := int64(lba-f.startSector)*int64(fat16.SectorSize) + int64(offset)
		if fileOffset >= int64(f.size) {
			return len(buf)
		}
		n := int64(len(buf))
		if remain := int64(f.size) - fileOffset; n > remain {
			n = remain
		}
		if Verbose {
			log.Printf("file %q: read %d bytes at lba %d (offset %d)", f.printable, n, lba, offset)
		}
		if err := f.readAt(buf[:n], fileOffset); err != nil {
			log.Printf("file %q: read failed at offset %d: %v", f.printable, fileOffset, err)
			return -1
		}
		return len(buf)
	}
	return len(buf)
}

// Image streams the entire volume to w, sector by sector, so that it can be
// loop-mounted or inspected by external tools.
func (d *Disk) Image(w io.Writer) error {
	buf := make([]byte, fat16.SectorSize)
	for lba := uint32(0); lba < uint32(d.geom.SectorCount); lba++ {
		if n := d.ReadSector(lba, 0, buf); n != len(buf) {
			return fmt.Errorf("reading sector %d: %d", lba, n)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
