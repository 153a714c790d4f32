// Package diskconfig reads the JSON description of a virtual disk: volume
// identity, SCSI identification strings and the list of files to expose.
package diskconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fwdisk/internal/ota"
)

// File describes one entry on the virtual disk. Exactly one of Source,
// Partition and Firmware selects the content.
type File struct {
	// Name is the filename on the FAT volume. Optional for Firmware
	// entries, which default to firmware.bin/update.bin.
	Name string

	// Source is a path to a local file whose bytes are served inline.
	Source string `json:",omitempty"`

	// Partition is a flash partition label to expose.
	Partition string `json:",omitempty"`

	// Firmware exposes the running application image and, when a second
	// OTA slot exists, a writable update file.
	Firmware bool `json:",omitempty"`

	// Writable allows host writes (which feed the OTA pipeline).
	Writable bool `json:",omitempty"`
}

// Config is the on-disk JSON configuration.
type Config struct {
	Label  string
	Serial uint32

	// SCSI INQUIRY strings.
	Vendor   string
	Product  string
	Revision string

	// Chip names the SoC firmware images must target, e.g. "esp32s2".
	Chip string

	Files []File
}

// ReadFromFile loads and validates a configuration.
func ReadFromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for i, f := range c.Files {
		sources := 0
		if f.Source != "" {
			sources++
		}
		if f.Partition != "" {
			sources++
		}
		if f.Firmware {
			sources++
		}
		if sources != 1 {
			return fmt.Errorf("file %d (%q): exactly one of Source, Partition, Firmware required", i, f.Name)
		}
		if f.Name == "" && !f.Firmware {
			return fmt.Errorf("file %d: Name required", i)
		}
	}
	return nil
}

// chipIDs maps configuration names onto chip ids.
var chipIDs = map[string]ota.ChipID{
	"":        ota.ChipESP32S2, // historic default of this project
	"esp32":   ota.ChipESP32,
	"esp32s2": ota.ChipESP32S2,
	"esp32c3": ota.ChipESP32C3,
	"esp32s3": ota.ChipESP32S3,
}

// ChipID resolves the Chip field.
func (c *Config) ChipID() (ota.ChipID, error) {
	id, ok := chipIDs[c.Chip]
	if !ok {
		return 0, fmt.Errorf("unknown chip %q", c.Chip)
	}
	return id, nil
}
