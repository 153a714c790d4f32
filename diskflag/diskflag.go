// Package diskflag registers the flags shared by the fwdisk host tools.
// The -config and -flash values default to the FWDISK_CONFIG and
// FWDISK_FLASH environment variables so that wrapper scripts do not need to
// repeat paths.
package diskflag

import (
	"os"

	"github.com/spf13/pflag"
)

var (
	config = os.Getenv("FWDISK_CONFIG")
	flash  = os.Getenv("FWDISK_FLASH")
	output = "disk.img"
	zstd   bool
)

func init() {
	if config == "" {
		config = "disk.json"
	}
}

// RegisterPflags registers the tool flags on fs, typically
// pflag.CommandLine.
func RegisterPflags(fs *pflag.FlagSet) {
	fs.StringVar(&config,
		"config",
		config,
		"path to the disk configuration (JSON)")

	fs.StringVar(&flash,
		"flash",
		flash,
		"path to a flash image providing the partition table; empty for an inline-only disk")

	fs.StringVar(&output,
		"output",
		output,
		"path of the FAT16 image to write")

	fs.BoolVar(&zstd,
		"zstd",
		zstd,
		"compress the output image with zstd")
}

// Config returns the -config flag value.
func Config() string { return config }

// Flash returns the -flash flag value.
func Flash() string { return flash }

// Output returns the -output flag value.
func Output() string { return output }

// Zstd returns the -zstd flag value.
func Zstd() bool { return zstd }
