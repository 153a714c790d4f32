package fat16

import (
	"encoding/binary"
	"strings"
)

// Directory entry attribute bits.
const (
	AttrReadOnly    = uint8(0x01)
	AttrHidden      = uint8(0x02)
	AttrSystem      = uint8(0x04)
	AttrVolumeLabel = uint8(0x08)
	AttrDirectory   = uint8(0x10)
	AttrArchive     = uint8(0x20)

	// AttrLongName marks a VFAT long-filename entry.
	AttrLongName = uint8(0x0F)
)

// placeholderDate is the creation/update date stamped on every synthesized
// directory entry. The volume has no clock worth reporting.
const placeholderDate = uint16(0x4D99)

// Dirent is one 8.3 directory entry.
type Dirent struct {
	Name11       [11]byte // base name and extension, space-padded
	Attrs        uint8
	StartCluster uint16
	Size         uint32
}

// EncodeTo writes the 32-byte entry into buf, which must hold at least
// DirentSize bytes.
func (d *Dirent) EncodeTo(buf []byte) {
	copy(buf[0:11], d.Name11[:])
	buf[11] = d.Attrs
	// reserved, create_time_fine, create_time
	binary.LittleEndian.PutUint16(buf[16:18], placeholderDate) // create_date
	// last_access_date, high_start_cluster, update_time
	binary.LittleEndian.PutUint16(buf[24:26], placeholderDate) // update_date
	binary.LittleEndian.PutUint16(buf[26:28], d.StartCluster)
	binary.LittleEndian.PutUint32(buf[28:32], d.Size)
}

// VolumeLabelEntry returns the directory entry that reports the volume label
// in slot 0 of the first root directory sector.
func VolumeLabelEntry(label [11]byte) Dirent {
	return Dirent{
		Name11: label,
		Attrs:  AttrArchive | AttrVolumeLabel,
	}
}

// ShortName converts a filename into the 11-byte 8.3 field. A name
// containing a dot is split into base and extension; a dotless name occupies
// up to 11 characters, deliberately spilling across the extension field.
func ShortName(name string) (name11 [11]byte) {
	for i := range name11 {
		name11[i] = ' '
	}
	upper := strings.ToUpper(name)
	if dot := strings.IndexByte(upper, '.'); dot >= 0 {
		base := upper[:dot]
		ext := upper[dot+1:]
		if len(base) > 8 {
			base = base[:8]
		}
		if len(ext) > 3 {
			ext = ext[:3]
		}
		copy(name11[0:8], base)
		copy(name11[8:11], ext)
		return name11
	}
	if len(upper) > 11 {
		upper = upper[:11]
	}
	copy(name11[:], upper)
	return name11
}

// NeedsLongName reports whether name is longer than 12 characters and so
// gets a VFAT long-filename chain. Shorter names get only the 8.3 entry,
// truncated by ShortName where a part does not fit.
func NeedsLongName(name string) bool {
	return len(name) > 12
}

// MangleShortName stamps the "~1" numeric tail over positions 6-7 of an 8.3
// name, marking it as the short alias of a long filename.
func MangleShortName(name11 [11]byte) [11]byte {
	name11[6] = '~'
	name11[7] = '1'
	return name11
}

// DecodeName renders the name fields of an on-disk entry for logging.
func DecodeName(entry []byte) string {
	base := strings.TrimRight(string(entry[0:8]), " ")
	ext := strings.TrimRight(string(entry[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
