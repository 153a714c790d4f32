package ota

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fwdisk/internal/partition"
	"github.com/fwdisk/internal/platform"
)

// DefaultQuietPeriod is how long the pipeline waits for further writes
// before treating the transfer as complete. USB mass-storage hosts give no
// end-of-file signal, so quiescence is the only cue there is.
const DefaultQuietPeriod = 1000 * time.Millisecond

// StartFunc is called once per update attempt after the image header
// validated, before any flash is touched. Returning false vetoes the update.
type StartFunc func(desc *AppDesc) bool

// EndFunc is called once per update attempt that got as far as opening the
// target slot, when it finishes, successfully or not, with the number of
// image bytes received. A vetoed update or one without a free slot does not
// call it.
type EndFunc func(received int64, err error)

type pipelineState int

const (
	stateIdle pipelineState = iota
	stateReceiving
)

// Pipeline is the write-side state machine of the virtual disk: it watches
// host writes to file-data sectors for a firmware image and streams it into
// the next OTA slot. A single instance exists per disk.
type Pipeline struct {
	table *partition.Table
	chip  ChipID
	quiet time.Duration

	onStart StartFunc
	onEnd   EndFunc

	// mu serializes the USB task (HandleWrite) against the inactivity
	// timer; those are the only two contexts that touch the fields below.
	mu       sync.Mutex
	state    pipelineState
	fl       *Flasher
	target   *partition.Partition
	received int64
	timer    *time.Timer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQuietPeriod overrides the end-of-transfer debounce interval.
func WithQuietPeriod(d time.Duration) Option {
	return func(p *Pipeline) { p.quiet = d }
}

// WithStartCallback installs f as the update-start hook.
func WithStartCallback(f StartFunc) Option {
	return func(p *Pipeline) { p.onStart = f }
}

// WithEndCallback installs f as the update-end hook.
func WithEndCallback(f EndFunc) Option {
	return func(p *Pipeline) { p.onEnd = f }
}

// NewPipeline returns an idle pipeline flashing images built for chip into
// the OTA slots of table.
func NewPipeline(table *partition.Table, chip ChipID, opts ...Option) *Pipeline {
	p := &Pipeline{
		table:   table,
		chip:    chip,
		quiet:   DefaultQuietPeriod,
		onStart: func(*AppDesc) bool { return true },
		onEnd:   defaultOnEnd,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func defaultOnEnd(received int64, err error) {
	if err != nil {
		log.Printf("OTA update failed after %d bytes: %v", received, err)
		return
	}
	log.Printf("OTA update complete (%d bytes), rebooting", received)
	if err := platform.Reboot(); err != nil {
		log.Printf("reboot failed: %v", err)
	}
}

// Idle reports whether no transfer is in flight.
func (p *Pipeline) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateIdle
}

// HandleWrite feeds one host write to a writable file-data region through
// the state machine. It returns len(buf) when the data was consumed or
// deliberately discarded, and -1 on rejection or I/O failure.
func (p *Pipeline) HandleWrite(buf []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.rearmLocked()

	if p.state == stateReceiving {
		return p.receiveLocked(buf)
	}
	return p.firstWriteLocked(buf)
}

func (p *Pipeline) firstWriteLocked(buf []byte) int {
	hdr, desc, err := ParseImage(buf)
	if err != nil {
		if !errors.Is(err, ErrNotFirmware) {
			log.Printf("ignoring write: %v", err)
		}
		return len(buf)
	}
	if hdr.ChipID != p.chip {
		log.Printf("ignoring image for %v (this device is %v)", hdr.ChipID, p.chip)
		return len(buf)
	}

	if !p.onStart(desc) {
		log.Printf("update %v vetoed", desc)
		return -1
	}
	target, err := p.table.NextUpdate()
	if err != nil {
		log.Printf("update %v rejected: %v", desc, err)
		return -1
	}
	fl, err := Begin(target, UnknownSize)
	if err != nil {
		p.onEnd(0, err)
		return -1
	}
	log.Printf("update %v -> %s", desc, target.Label)
	p.state = stateReceiving
	p.fl = fl
	p.target = target
	p.received = 0
	return p.receiveLocked(buf)
}

func (p *Pipeline) receiveLocked(buf []byte) int {
	if _, err := p.fl.Write(buf); err != nil {
		p.onEnd(p.received, err)
		p.resetLocked()
		return -1
	}
	p.received += int64(len(buf))
	return len(buf)
}

// rearmLocked restarts the inactivity timer. Every host write, whatever the
// state, pushes end-of-transfer detection out by the quiet period.
func (p *Pipeline) rearmLocked() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.quiet, p.expire)
}

// expire runs on the timer context and must take the same lock as the USB
// task before touching pipeline state.
func (p *Pipeline) expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateReceiving {
		return
	}
	err := p.fl.End()
	if err == nil {
		err = p.table.SetBootPartition(p.target)
	}
	p.onEnd(p.received, err)
	p.resetLocked()
}

func (p *Pipeline) resetLocked() {
	p.state = stateIdle
	p.fl = nil
	p.target = nil
	p.received = 0
}
