// Package vdisk synthesizes a FAT16 volume on the fly, sector by sector,
// from a catalog of registered files. Nothing is stored: the boot sector,
// both FAT copies and the root directory are computed for each READ(10)
// request, and file-data sectors are served straight from their backing
// source (inline bytes or a flash partition).
//
// Host writes are routed, not persisted. Writes to the metadata regions are
// logged and acknowledged; writes to a writable file's data region feed the
// OTA pipeline, which recognizes firmware images and flashes them into the
// next update slot.
//
// All files must be registered before the host first reads the volume;
// the catalog is append-only and files are packed contiguously from the
// first data cluster.
package vdisk
