package partition

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
)

func testSpecs() []Spec {
	return []Spec{
		{Label: "nvs", Type: TypeData, SubType: SubTypeNVS, Offset: 0x9000, Size: 0x6000},
		{Label: "otadata", Type: TypeData, SubType: SubTypeOTAData, Offset: 0xF000, Size: 0x2000},
		{Label: "ota_0", Type: TypeApp, SubType: SubTypeOTA0, Offset: 0x10000, Size: 0x80000},
		{Label: "ota_1", Type: TypeApp, SubType: SubTypeOTA0 + 1, Offset: 0x90000, Size: 0x80000},
		{Label: "spiffs", Type: TypeData, SubType: SubTypeSPIFFS, Offset: 0x110000, Size: 0x40000},
	}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	fsys := afero.NewMemMapFs()
	tbl, err := Format(fsys, "flash.bin", 0x150000, testSpecs())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestFormatAndOpenRoundTrip(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	tbl, err := Format(fsys, "flash.bin", 0x150000, testSpecs())
	if err != nil {
		t.Fatal(err)
	}
	tbl.Close()

	reopened, err := Open(fsys, "flash.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	var got []Spec
	for _, p := range reopened.Partitions() {
		got = append(got, Spec{Label: p.Label, Type: p.Type, SubType: p.SubType, Offset: p.Offset, Size: p.Size})
	}
	if diff := cmp.Diff(testSpecs(), got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("partition table round trip: diff (-want +got):\n%s", diff)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	p, err := tbl.Find("spiffs")
	if err != nil {
		t.Fatal(err)
	}
	if p.Offset != 0x110000 || p.Size != 0x40000 {
		t.Errorf("spiffs: got %v", p)
	}

	if _, err := tbl.Find("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(nope): got %v, want ErrNotFound", err)
	}
}

func TestRunningAndNextUpdate(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	if _, err := tbl.Running(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Running before MarkRunning: got %v, want ErrNotFound", err)
	}

	if err := tbl.MarkRunning("ota_0"); err != nil {
		t.Fatal(err)
	}
	next, err := tbl.NextUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if next.Label != "ota_1" {
		t.Errorf("next update slot: got %s, want ota_1", next.Label)
	}

	if err := tbl.MarkRunning("ota_1"); err != nil {
		t.Fatal(err)
	}
	next, err = tbl.NextUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if next.Label != "ota_0" {
		t.Errorf("next update slot: got %s, want ota_0", next.Label)
	}

	if err := tbl.MarkRunning("spiffs"); err == nil {
		t.Error("MarkRunning(spiffs) unexpectedly succeeded")
	}
}

func TestBootPartitionSelection(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	// No valid otadata record: fall back to the first OTA slot (no factory
	// partition in this layout).
	boot, err := tbl.BootPartition()
	if err != nil {
		t.Fatal(err)
	}
	if boot.Label != "ota_0" {
		t.Errorf("initial boot partition: got %s, want ota_0", boot.Label)
	}

	ota1, err := tbl.Find("ota_1")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetBootPartition(ota1); err != nil {
		t.Fatal(err)
	}
	boot, err = tbl.BootPartition()
	if err != nil {
		t.Fatal(err)
	}
	if boot.Label != "ota_1" {
		t.Errorf("after first switch: got %s, want ota_1", boot.Label)
	}

	ota0, err := tbl.Find("ota_0")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetBootPartition(ota0); err != nil {
		t.Fatal(err)
	}
	boot, err = tbl.BootPartition()
	if err != nil {
		t.Fatal(err)
	}
	if boot.Label != "ota_0" {
		t.Errorf("after second switch: got %s, want ota_0", boot.Label)
	}

	spiffs, err := tbl.Find("spiffs")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetBootPartition(spiffs); err == nil {
		t.Error("SetBootPartition(spiffs) unexpectedly succeeded")
	}
}

func TestPartitionReadWriteErase(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	p, err := tbl.Find("spiffs")
	if err != nil {
		t.Fatal(err)
	}

	// fresh flash reads erased
	buf := make([]byte, 16)
	if _, err := p.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xFF}, 16)) {
		t.Fatalf("fresh partition: got % x", buf)
	}

	payload := []byte("hello, flash")
	if _, err := p.WriteAt(payload, 100); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(payload))
	if _, err := p.ReadAt(got, 100); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read back: got %q, want %q", got, payload)
	}

	if err := p.Erase(0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ReadAt(got, 100); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, len(payload))) {
		t.Fatalf("after erase: got % x", got)
	}

	// bounds checks
	if _, err := p.ReadAt(buf, int64(p.Size)-8); err == nil {
		t.Error("out-of-range read unexpectedly succeeded")
	}
	if _, err := p.WriteAt(buf, int64(p.Size)-8); err == nil {
		t.Error("out-of-range write unexpectedly succeeded")
	}
	if err := p.Erase(int64(p.Size)-8, 16); err == nil {
		t.Error("out-of-range erase unexpectedly succeeded")
	}
}
