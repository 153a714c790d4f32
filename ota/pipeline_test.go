package ota

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/fwdisk/internal/partition"
)

const testQuiet = 50 * time.Millisecond

func newTestTable(t *testing.T, specs []partition.Spec, running string) *partition.Table {
	t.Helper()
	tbl, err := partition.Format(afero.NewMemMapFs(), "flash.bin", 0x150000, specs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tbl.Close() })
	if running != "" {
		if err := tbl.MarkRunning(running); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func dualSlotSpecs() []partition.Spec {
	return []partition.Spec{
		{Label: "otadata", Type: partition.TypeData, SubType: partition.SubTypeOTAData, Offset: 0xF000, Size: 0x2000},
		{Label: "ota_0", Type: partition.TypeApp, SubType: partition.SubTypeOTA0, Offset: 0x10000, Size: 0x80000},
		{Label: "ota_1", Type: partition.TypeApp, SubType: partition.SubTypeOTA0 + 1, Offset: 0x90000, Size: 0x80000},
	}
}

// endRecorder collects EndFunc invocations for assertions.
type endRecorder struct {
	ch chan struct{}

	received int64
	err      error
	calls    int
}

func newEndRecorder() *endRecorder {
	return &endRecorder{ch: make(chan struct{}, 4)}
}

func (r *endRecorder) cb(received int64, err error) {
	r.received = received
	r.err = err
	r.calls++
	r.ch <- struct{}{}
}

func (r *endRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for end callback")
	}
}

func TestPipelineHappyPath(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, dualSlotSpecs(), "ota_0")
	end := newEndRecorder()
	starts := 0
	p := NewPipeline(tbl, ChipESP32S2,
		WithQuietPeriod(testQuiet),
		WithStartCallback(func(desc *AppDesc) bool {
			starts++
			if desc.ProjectName != "fwdisk-demo" {
				t.Errorf("project name: got %q", desc.ProjectName)
			}
			return true
		}),
		WithEndCallback(end.cb))

	img := makeImage(ChipESP32S2, 100*1024)
	for off := 0; off < len(img); off += 512 {
		if got := p.HandleWrite(img[off : off+512]); got != 512 {
			t.Fatalf("write at %d: got %d, want 512", off, got)
		}
	}
	end.wait(t)

	if starts != 1 {
		t.Errorf("start callback calls: got %d, want 1", starts)
	}
	if end.calls != 1 {
		t.Errorf("end callback calls: got %d, want 1", end.calls)
	}
	if end.err != nil {
		t.Errorf("end error: %v", end.err)
	}
	if end.received != 102400 {
		t.Errorf("received: got %d, want 102400", end.received)
	}
	if !p.Idle() {
		t.Error("pipeline not idle after completion")
	}

	boot, err := tbl.BootPartition()
	if err != nil {
		t.Fatal(err)
	}
	if boot.Label != "ota_1" {
		t.Errorf("boot partition: got %s, want ota_1", boot.Label)
	}
	got := make([]byte, len(img))
	if _, err := boot.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img) {
		t.Error("flashed image differs from written image")
	}

	// quiescence after completion must not fire the end callback again
	time.Sleep(4 * testQuiet)
	if end.calls != 1 {
		t.Errorf("end callback fired again: %d calls", end.calls)
	}
}

func TestPipelineWrongChipStaysIdle(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, dualSlotSpecs(), "ota_0")
	starts := 0
	p := NewPipeline(tbl, ChipESP32S2,
		WithQuietPeriod(testQuiet),
		WithStartCallback(func(*AppDesc) bool { starts++; return true }),
		WithEndCallback(func(int64, error) { t.Error("end callback fired") }))

	img := makeImage(ChipESP32C3, 4096)
	for off := 0; off < len(img); off += 512 {
		if got := p.HandleWrite(img[off : off+512]); got != 512 {
			t.Fatalf("write at %d: got %d, want 512", off, got)
		}
	}
	if starts != 0 {
		t.Errorf("start callback called %d times for wrong-chip image", starts)
	}
	if !p.Idle() {
		t.Error("pipeline left idle state")
	}
	time.Sleep(4 * testQuiet)
}

func TestPipelineNonFirmwareDiscarded(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, dualSlotSpecs(), "ota_0")
	p := NewPipeline(tbl, ChipESP32S2,
		WithQuietPeriod(testQuiet),
		WithStartCallback(func(*AppDesc) bool { t.Error("start callback fired"); return false }),
		WithEndCallback(func(int64, error) { t.Error("end callback fired") }))

	buf := bytes.Repeat([]byte{0x55}, 512)
	if got := p.HandleWrite(buf); got != 512 {
		t.Fatalf("got %d, want 512", got)
	}
	// inactivity in Idle is a no-op
	time.Sleep(4 * testQuiet)
	if !p.Idle() {
		t.Error("pipeline left idle state")
	}
}

func TestPipelineVeto(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, dualSlotSpecs(), "ota_0")
	p := NewPipeline(tbl, ChipESP32S2,
		WithQuietPeriod(testQuiet),
		WithStartCallback(func(*AppDesc) bool { return false }),
		WithEndCallback(func(int64, error) { t.Error("end callback fired") }))

	img := makeImage(ChipESP32S2, 4096)
	if got := p.HandleWrite(img[:512]); got != -1 {
		t.Fatalf("vetoed write: got %d, want -1", got)
	}
	if !p.Idle() {
		t.Error("pipeline left idle state")
	}
}

func TestPipelineNoFreeSlot(t *testing.T) {
	t.Parallel()

	specs := []partition.Spec{
		{Label: "otadata", Type: partition.TypeData, SubType: partition.SubTypeOTAData, Offset: 0xF000, Size: 0x2000},
		{Label: "ota_0", Type: partition.TypeApp, SubType: partition.SubTypeOTA0, Offset: 0x10000, Size: 0x80000},
	}
	tbl := newTestTable(t, specs, "ota_0")
	p := NewPipeline(tbl, ChipESP32S2, WithQuietPeriod(testQuiet),
		WithEndCallback(func(int64, error) { t.Error("end callback fired") }))

	img := makeImage(ChipESP32S2, 4096)
	if got := p.HandleWrite(img[:512]); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
	if !p.Idle() {
		t.Error("pipeline left idle state")
	}
}

func TestPipelineWriteFailure(t *testing.T) {
	t.Parallel()

	// tiny OTA slots so that the stream overruns the partition
	specs := []partition.Spec{
		{Label: "otadata", Type: partition.TypeData, SubType: partition.SubTypeOTAData, Offset: 0xF000, Size: 0x2000},
		{Label: "ota_0", Type: partition.TypeApp, SubType: partition.SubTypeOTA0, Offset: 0x11000, Size: 0x1000},
		{Label: "ota_1", Type: partition.TypeApp, SubType: partition.SubTypeOTA0 + 1, Offset: 0x12000, Size: 0x1000},
	}
	tbl := newTestTable(t, specs, "ota_0")
	end := newEndRecorder()
	p := NewPipeline(tbl, ChipESP32S2, WithQuietPeriod(testQuiet), WithEndCallback(end.cb))

	img := makeImage(ChipESP32S2, 2*0x1000)
	wrote, failed := 0, false
	for off := 0; off < len(img); off += 512 {
		got := p.HandleWrite(img[off : off+512])
		if got == -1 {
			failed = true
			break
		}
		wrote += got
	}
	if !failed {
		t.Fatal("overlong image was accepted")
	}
	end.wait(t)
	if end.err == nil {
		t.Error("end callback got nil error")
	}
	if end.received != int64(wrote) {
		t.Errorf("received: got %d, want %d", end.received, wrote)
	}
	if !p.Idle() {
		t.Error("pipeline not idle after failure")
	}
}
