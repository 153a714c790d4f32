package ota

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ImageMagic is the first byte of every application image.
const ImageMagic = uint8(0xE9)

// appDescMagic identifies the application descriptor embedded in an image.
const appDescMagic = uint32(0xABCD5432)

const (
	imageHeaderSize   = 24
	segmentHeaderSize = 8

	// AppDescOffset is where the application descriptor sits inside an
	// image: right after the image header and the first segment header.
	AppDescOffset = imageHeaderSize + segmentHeaderSize

	appDescSize = 256

	// MinImageLen is how many leading bytes ParseImage needs. A single
	// 512-byte sector always suffices.
	MinImageLen = AppDescOffset + appDescSize
)

// ChipID identifies the SoC an image was built for.
type ChipID uint16

const (
	ChipESP32   ChipID = 0x0000
	ChipESP32S2 ChipID = 0x0002
	ChipESP32C3 ChipID = 0x0005
	ChipESP32S3 ChipID = 0x0009
)

func (c ChipID) String() string {
	switch c {
	case ChipESP32:
		return "esp32"
	case ChipESP32S2:
		return "esp32s2"
	case ChipESP32C3:
		return "esp32c3"
	case ChipESP32S3:
		return "esp32s3"
	}
	return fmt.Sprintf("chip(%#04x)", uint16(c))
}

var (
	// ErrNotFirmware means the buffer does not start with an application
	// image; callers typically discard the data silently.
	ErrNotFirmware = errors.New("not a firmware image")

	// ErrBadAppDesc means the image carries no valid application
	// descriptor where one is required.
	ErrBadAppDesc = errors.New("invalid application descriptor")
)

// ImageHeader is the fixed-size header at the start of an application image.
type ImageHeader struct {
	Magic        uint8
	SegmentCount uint8
	SPIMode      uint8
	SPISpeedSize uint8
	EntryAddr    uint32
	ChipID       ChipID
	MinChipRev   uint8
	HashAppended bool
}

// AppDesc is the application descriptor embedded at AppDescOffset.
type AppDesc struct {
	SecureVersion uint32
	Version       string
	ProjectName   string
	Time          string
	Date          string
	IDFVersion    string
	ELFSHA256     [32]byte
}

func (d *AppDesc) String() string {
	return fmt.Sprintf("%s %s (%s %s, SDK %s)", d.ProjectName, d.Version, d.Date, d.Time, d.IDFVersion)
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ParseImage decodes the image header and application descriptor from the
// leading bytes of an application image. ErrNotFirmware is returned when the
// magic byte is absent, ErrBadAppDesc when the descriptor magic word does
// not match.
func ParseImage(buf []byte) (*ImageHeader, *AppDesc, error) {
	if len(buf) < 1 || buf[0] != ImageMagic {
		return nil, nil, ErrNotFirmware
	}
	if len(buf) < MinImageLen {
		return nil, nil, fmt.Errorf("image prefix too short: %d bytes, need %d", len(buf), MinImageLen)
	}

	hdr := &ImageHeader{
		Magic:        buf[0],
		SegmentCount: buf[1],
		SPIMode:      buf[2],
		SPISpeedSize: buf[3],
		EntryAddr:    binary.LittleEndian.Uint32(buf[4:8]),
		ChipID:       ChipID(binary.LittleEndian.Uint16(buf[12:14])),
		MinChipRev:   buf[14],
		HashAppended: buf[23] == 1,
	}

	d := buf[AppDescOffset : AppDescOffset+appDescSize]
	if binary.LittleEndian.Uint32(d[0:4]) != appDescMagic {
		return nil, nil, ErrBadAppDesc
	}
	desc := &AppDesc{
		SecureVersion: binary.LittleEndian.Uint32(d[4:8]),
		Version:       cstr(d[16:48]),
		ProjectName:   cstr(d[48:80]),
		Time:          cstr(d[80:96]),
		Date:          cstr(d[96:112]),
		IDFVersion:    cstr(d[112:144]),
	}
	copy(desc.ELFSHA256[:], d[144:176])
	return hdr, desc, nil
}

// MarshalTo writes the 24-byte image header into buf. Provisioning tools and
// tests use it as the inverse of ParseImage.
func (h *ImageHeader) MarshalTo(buf []byte) int {
	if len(buf) < imageHeaderSize {
		return 0
	}
	for i := 0; i < imageHeaderSize; i++ {
		buf[i] = 0
	}
	buf[0] = h.Magic
	buf[1] = h.SegmentCount
	buf[2] = h.SPIMode
	buf[3] = h.SPISpeedSize
	binary.LittleEndian.PutUint32(buf[4:8], h.EntryAddr)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(h.ChipID))
	buf[14] = h.MinChipRev
	if h.HashAppended {
		buf[23] = 1
	}
	return imageHeaderSize
}

// MarshalTo writes the 256-byte application descriptor into buf.
func (d *AppDesc) MarshalTo(buf []byte) int {
	if len(buf) < appDescSize {
		return 0
	}
	for i := 0; i < appDescSize; i++ {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], appDescMagic)
	binary.LittleEndian.PutUint32(buf[4:8], d.SecureVersion)
	copy(buf[16:48], d.Version)
	copy(buf[48:80], d.ProjectName)
	copy(buf[80:96], d.Time)
	copy(buf[96:112], d.Date)
	copy(buf[112:144], d.IDFVersion)
	copy(buf[144:176], d.ELFSHA256[:])
	return appDescSize
}
