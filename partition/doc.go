// Package partition reads and writes the flash partition table of an fwdisk
// device image, and hands out bounds-checked read/write handles to the
// individual partitions.
//
// The table is an array of 32-byte entries at a fixed flash offset,
// terminated by a checksum marker or erased flash. Application images live
// in "app" partitions: one optional factory slot plus up to 16 OTA slots
// that updates rotate through. A small "otadata" partition records which
// app slot the bootloader should pick, using two alternating sequence
// records so that a power cut during an update never leaves the selection
// ambiguous.
//
// Storage is abstracted through afero so that tests run against an
// in-memory flash image and tools against a real image file.
package partition
