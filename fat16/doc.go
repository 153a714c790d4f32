// Package fat16 implements the on-wire encoding of a FAT16B file system:
// layout geometry derived from a handful of parameters, the boot sector
// (BIOS parameter block), 8.3 directory entries and VFAT long-filename
// entries.
//
// The package only encodes; it holds no file data. It is the foundation for
// the vdisk package, which synthesizes whole sectors on demand for a USB
// mass-storage host.
//
// All multi-byte fields are little-endian. The sector size is fixed at 512
// bytes and the cluster size at one sector, i.e. cluster N occupies exactly
// one sector and FAT entries are 16 bit.
package fat16
