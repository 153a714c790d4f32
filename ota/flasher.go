package ota

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"log"
	"time"

	"github.com/fwdisk/internal/humanize"
	"github.com/fwdisk/internal/partition"
)

// UnknownSize tells Begin that the total image size is not known up front,
// as is the case for images streamed sector by sector over USB. The whole
// target partition is erased.
const UnknownSize = uint32(0xFFFFFFFF)

var errFlasherClosed = errors.New("flasher already finalized")

// Flasher streams an application image into an OTA partition slot. It keeps
// a running SHA-256 of everything written, mirroring what the bootloader
// will verify.
type Flasher struct {
	part   *partition.Partition
	off    int64
	limit  int64
	sum    hash.Hash
	start  time.Time
	closed bool
}

// Begin erases the target region of part and returns a Flasher positioned at
// its start. size is the expected image size, or UnknownSize.
func Begin(part *partition.Partition, size uint32) (*Flasher, error) {
	limit := int64(size)
	if size == UnknownSize {
		limit = int64(part.Size)
	} else if size > part.Size {
		return nil, fmt.Errorf("image (%s) does not fit partition %s (%s)",
			humanize.Bytes(uint64(size)), part.Label, humanize.Bytes(uint64(part.Size)))
	}
	if err := part.Erase(0, limit); err != nil {
		return nil, fmt.Errorf("erasing %s: %v", part.Label, err)
	}
	log.Printf("OTA begin: %s, %s erased", part.Label, humanize.Bytes(uint64(limit)))
	return &Flasher{
		part:  part,
		limit: limit,
		sum:   sha256.New(),
		start: time.Now(),
	}, nil
}

// Write appends b to the partition at the running offset.
func (f *Flasher) Write(b []byte) (int, error) {
	if f.closed {
		return 0, errFlasherClosed
	}
	if f.off+int64(len(b)) > f.limit {
		return 0, fmt.Errorf("image exceeds %s on partition %s", humanize.Bytes(uint64(f.limit)), f.part.Label)
	}
	n, err := f.part.WriteAt(b, f.off)
	if err != nil {
		return n, err
	}
	f.sum.Write(b[:n])
	f.off += int64(n)
	return n, nil
}

// BytesWritten returns how many bytes have been flashed so far.
func (f *Flasher) BytesWritten() int64 {
	return f.off
}

// End finalizes the stream. It must be called exactly once.
func (f *Flasher) End() error {
	if f.closed {
		return errFlasherClosed
	}
	f.closed = true
	if f.off == 0 {
		return errors.New("no image data received")
	}
	duration := time.Since(f.start)
	bps := uint64(float64(f.off) / duration.Seconds())
	log.Printf("OTA end: %s to %s in %v (%s), sha256 %x",
		humanize.Bytes(uint64(f.off)), f.part.Label, duration.Round(time.Millisecond), humanize.BPS(bps), f.sum.Sum(nil))
	return nil
}
