package fat16

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBootSectorMarshal(t *testing.T) {
	t.Parallel()

	geom, err := NewGeometry(8192, 1, 16)
	if err != nil {
		t.Fatal(err)
	}
	bs := BootSector{Serial: 0x12345678, Geom: geom}
	bs.SetLabel("TEST")

	sector := bs.Marshal()
	if got, want := len(sector), int(SectorSize); got != want {
		t.Fatalf("boot sector length: got %d, want %d", got, want)
	}

	if !bytes.Equal(sector[0:3], []byte{0xEB, 0x3C, 0x90}) {
		t.Errorf("jump instruction: got % x", sector[0:3])
	}
	if got, want := string(sector[3:11]), "MSDOS5.0"; got != want {
		t.Errorf("OEM: got %q, want %q", got, want)
	}
	for _, tt := range []struct {
		name string
		off  int
		want uint16
	}{
		{"sector size", 11, 512},
		{"reserved sectors", 14, 1},
		{"root directory entries", 17, 16},
		{"total sectors", 19, 8192},
		{"sectors per FAT", 22, 32},
		{"sectors per track", 24, 1},
		{"heads", 26, 1},
	} {
		if got := binary.LittleEndian.Uint16(sector[tt.off:]); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
	if sector[13] != 1 {
		t.Errorf("sectors per cluster: got %d, want 1", sector[13])
	}
	if sector[16] != 2 {
		t.Errorf("FAT copies: got %d, want 2", sector[16])
	}
	if sector[21] != 0xF8 {
		t.Errorf("media descriptor: got %#x, want 0xf8", sector[21])
	}
	if sector[36] != 0x80 {
		t.Errorf("drive number: got %#x, want 0x80", sector[36])
	}
	if sector[38] != 0x29 {
		t.Errorf("extended boot signature: got %#x, want 0x29", sector[38])
	}
	if got := binary.LittleEndian.Uint32(sector[39:]); got != 0x12345678 {
		t.Errorf("serial: got %#x, want 0x12345678", got)
	}
	if got, want := string(sector[43:54]), "TEST       "; got != want {
		t.Errorf("label: got %q, want %q", got, want)
	}
	if got, want := string(sector[54:62]), "FAT16   "; got != want {
		t.Errorf("filesystem identifier: got %q, want %q", got, want)
	}
	if !bytes.Equal(sector[510:512], []byte{0x55, 0xAA}) {
		t.Errorf("signature: got % x", sector[510:512])
	}
	// boot code region stays zero
	for i := 62; i < 510; i++ {
		if sector[i] != 0 {
			t.Fatalf("boot code byte %d: got %#x, want 0", i, sector[i])
		}
	}
}
