package partition

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"log"
)

// The otadata partition holds two 32-byte selection records in separate
// flash sectors. Each carries a monotonically increasing sequence number;
// the valid record with the highest sequence wins, and the boot slot is
// (seq-1) modulo the number of OTA slots. Updates always write the record
// that lost, so a power cut mid-write leaves the previous selection intact.

const (
	otadataRecordSize = 32
	otadataSlotStride = 0x1000 // one flash sector per record

	erasedSeq = uint32(0xFFFFFFFF)
)

type otadataRecord struct {
	seq   uint32
	crc   uint32
	valid bool
}

func (t *Table) otadataPartition() (*Partition, error) {
	p := t.findSubType(TypeData, SubTypeOTAData)
	if p == nil {
		return nil, fmt.Errorf("otadata: %w", ErrNotFound)
	}
	return p, nil
}

func seqCRC(seq uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], seq)
	return crc32.ChecksumIEEE(b[:])
}

func (t *Table) readOtadata(p *Partition) ([2]otadataRecord, error) {
	var recs [2]otadataRecord
	buf := make([]byte, otadataRecordSize)
	for i := range recs {
		if _, err := p.ReadAt(buf, int64(i*otadataSlotStride)); err != nil {
			return recs, err
		}
		seq := binary.LittleEndian.Uint32(buf[0:4])
		crc := binary.LittleEndian.Uint32(buf[28:32])
		recs[i] = otadataRecord{
			seq:   seq,
			crc:   crc,
			valid: seq != erasedSeq && crc == seqCRC(seq),
		}
	}
	return recs, nil
}

// SetBootPartition marks p as the boot target by advancing the otadata
// sequence so that it selects p's OTA slot.
func (t *Table) SetBootPartition(p *Partition) error {
	if p.Type != TypeApp || !p.SubType.IsOTASlot() {
		return fmt.Errorf("partition %s is not an OTA app slot", p.Label)
	}
	od, err := t.otadataPartition()
	if err != nil {
		return err
	}
	slots := t.otaSlots()
	slot := -1
	for i, s := range slots {
		if s == p {
			slot = i
		}
	}
	if slot < 0 {
		return fmt.Errorf("partition %s not in slot list", p.Label)
	}

	recs, err := t.readOtadata(od)
	if err != nil {
		return err
	}
	maxSeq, maxIdx := uint32(0), -1
	for i, r := range recs {
		if r.valid && r.seq > maxSeq {
			maxSeq, maxIdx = r.seq, i
		}
	}
	// smallest sequence above maxSeq that selects the requested slot
	seq := maxSeq + 1
	for int((seq-1)%uint32(len(slots))) != slot {
		seq++
	}
	writeIdx := 0
	if maxIdx == 0 {
		writeIdx = 1
	}

	buf := make([]byte, otadataRecordSize)
	for i := range buf {
		buf[i] = erasedByte
	}
	binary.LittleEndian.PutUint32(buf[0:4], seq)
	binary.LittleEndian.PutUint32(buf[28:32], seqCRC(seq))
	if _, err := od.WriteAt(buf, int64(writeIdx*otadataSlotStride)); err != nil {
		return err
	}
	log.Printf("boot partition set to %s (seq %d, record %d)", p.Label, seq, writeIdx)
	return nil
}

// BootPartition returns the app partition the bootloader would pick: the
// OTA slot selected by otadata, or, when no valid selection exists, the
// factory slot, or the first OTA slot if there is no factory slot.
func (t *Table) BootPartition() (*Partition, error) {
	od, err := t.otadataPartition()
	if err == nil {
		recs, rerr := t.readOtadata(od)
		if rerr != nil {
			return nil, rerr
		}
		maxSeq := uint32(0)
		found := false
		for _, r := range recs {
			if r.valid && r.seq > maxSeq {
				maxSeq = r.seq
				found = true
			}
		}
		if found {
			slots := t.otaSlots()
			if len(slots) > 0 {
				return slots[int((maxSeq-1)%uint32(len(slots)))], nil
			}
		}
	}
	if p := t.findSubType(TypeApp, SubTypeFactory); p != nil {
		return p, nil
	}
	for _, p := range t.otaSlots() {
		return p, nil
	}
	return nil, fmt.Errorf("no bootable app partition: %w", ErrNotFound)
}
