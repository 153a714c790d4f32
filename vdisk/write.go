package vdisk

import (
	"log"
	"unicode/utf16"

	"github.com/fwdisk/internal/fat16"
)

// WriteSector routes one WRITE(10) data buffer. Writes to the boot sector,
// the FATs and the root directory are acknowledged but never persisted;
// writes into a writable file's data region feed the OTA pipeline. The
// return value is len(buf), or -1 for rejected writes.
func (d *Disk) WriteSector(lba, offset uint32, buf []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case lba == 0:
		log.Printf("host write to boot sector ignored")
	case lba < d.geom.FAT0Start:
		if Verbose {
			log.Printf("host write to reserved sector %d ignored", lba)
		}
	case lba < d.geom.RootDirStart:
		if Verbose {
			log.Printf("host write to FAT sector %d ignored", lba-d.geom.FAT0Start)
		}
	case lba < d.geom.FileDataStart:
		d.logHostDirents(int(lba-d.geom.RootDirStart), buf)
	default:
		return d.writeFileData(lba, buf)
	}
	return len(buf)
}

func (d *Disk) writeFileData(lba uint32, buf []byte) int {
	for _, f := range d.files {
		if lba < f.startSector || lba > f.endSector {
			continue
		}
		if f.readOnly() {
			log.Printf("host write to read-only file %q rejected", f.printable)
			return -1
		}
		if d.pipeline == nil {
			log.Printf("host write to %q discarded (no partition table)", f.printable)
			return len(buf)
		}
		return d.pipeline.HandleWrite(buf)
	}
	// writes outside any file's span are acknowledged and dropped
	return len(buf)
}

// logHostDirents decodes the directory entries a host tried to create. The
// root directory is synthesized, so these writes change nothing, but the
// names are worth logging: they show which files the host believes it wrote.
func (d *Disk) logHostDirents(sectorIdx int, buf []byte) {
	for off := 0; off+fat16.DirentSize <= len(buf); off += fat16.DirentSize {
		entry := buf[off : off+fat16.DirentSize]
		switch {
		case entry[0] == 0x00 || entry[0] == 0xE5:
			// free or deleted slot
		case entry[11] == fat16.AttrLongName:
			log.Printf("host directory write (sector %d): LFN fragment %#02x %q",
				sectorIdx, entry[0], lfnFragmentText(entry))
		default:
			log.Printf("host directory write (sector %d): %q (attrs %#02x)",
				sectorIdx, fat16.DecodeName(entry), entry[11])
		}
	}
}

// lfnFragmentText extracts the UTF-16 characters of one LFN entry.
func lfnFragmentText(entry []byte) string {
	var units []uint16
	for _, r := range [][2]int{{1, 10}, {14, 25}, {28, 31}} {
		for off := r[0]; off <= r[1]; off += 2 {
			u := uint16(entry[off]) | uint16(entry[off+1])<<8
			if u == 0x0000 || u == 0xFFFF {
				return string(utf16.Decode(units))
			}
			units = append(units, u)
		}
	}
	return string(utf16.Decode(units))
}
