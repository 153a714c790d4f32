// fwdisk-export renders the virtual disk a device would present over USB
// into an image file, so that it can be loop-mounted or inspected without
// hardware.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/fwdisk/internal/diskconfig"
	"github.com/fwdisk/internal/diskflag"
	"github.com/fwdisk/internal/fat16"
	"github.com/fwdisk/internal/partition"
	"github.com/fwdisk/internal/progress"
	"github.com/fwdisk/internal/vdisk"
)

func main() {
	diskflag.RegisterPflags(pflag.CommandLine)
	pflag.Parse()
	if err := export(); err != nil {
		log.Fatal(err)
	}
}

func buildDisk(cfg *diskconfig.Config, tbl *partition.Table) (*vdisk.Disk, error) {
	chip, err := cfg.ChipID()
	if err != nil {
		return nil, err
	}
	disk, err := vdisk.New(vdisk.Config{
		Label:  cfg.Label,
		Serial: cfg.Serial,
		Chip:   chip,
	}, tbl)
	if err != nil {
		return nil, err
	}
	for _, f := range cfg.Files {
		switch {
		case f.Source != "":
			content, err := os.ReadFile(f.Source)
			if err != nil {
				return nil, err
			}
			err = disk.AddInline(f.Name, content, !f.Writable)
			if err != nil {
				return nil, err
			}
		case f.Partition != "":
			if err := disk.AddPartition(f.Name, f.Partition, f.Writable); err != nil {
				return nil, err
			}
		case f.Firmware:
			name := f.Name
			if name == "" {
				name = vdisk.DefaultFirmwareName
			}
			if err := disk.AddFirmware(name, vdisk.DefaultUpdateName); err != nil {
				return nil, err
			}
		}
	}
	return disk, nil
}

func export() error {
	cfg, err := diskconfig.ReadFromFile(diskflag.Config())
	if err != nil {
		return err
	}

	var tbl *partition.Table
	if diskflag.Flash() != "" {
		tbl, err = partition.Open(afero.NewOsFs(), diskflag.Flash())
		if err != nil {
			return err
		}
		defer tbl.Close()
		// offline, the boot target stands in for the running image
		boot, err := tbl.BootPartition()
		if err != nil {
			return err
		}
		if err := tbl.MarkRunning(boot.Label); err != nil {
			return err
		}
	}

	disk, err := buildDisk(cfg, tbl)
	if err != nil {
		return err
	}

	out, err := os.Create(diskflag.Output())
	if err != nil {
		return err
	}

	var w io.Writer = out
	var zw *zstd.Encoder
	if diskflag.Zstd() {
		zw, err = zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return err
		}
		w = zw
	}

	blockCount, _ := disk.Capacity()
	progress.Reset()
	var reporter progress.Reporter
	reporter.SetStatus(diskflag.Output())
	reporter.SetTotal(uint64(blockCount) * uint64(fat16.SectorSize))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Report(ctx)
	}()

	err = disk.Image(io.MultiWriter(w, progress.Writer{}))
	cancel()
	wg.Wait()
	if err != nil {
		out.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", diskflag.Output())
	return nil
}
