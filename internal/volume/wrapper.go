package volume

import (
	"github.com/macfs/hfsplus/internal/bigendian"
	"github.com/macfs/hfsplus/internal/device"
	"github.com/macfs/hfsplus/internal/hfserr"
)

// locateVolume returns the byte offset of block 0 of the HFS+ (or HFSX)
// volume on dev. Most images carry the volume directly, with the Volume
// Header at device offset 1024. A small number of real-world images wrap an
// HFS+ volume inside a plain HFS (HFS standard) "wrapper" volume whose
// 512-byte Master Directory Block sits at offset 1024, where an HFS+ Volume
// Header would otherwise be, and whose signature is
// "BD" rather than "H+"/"HX" — historically used so a pre-HFS+ Mac OS ROM
// could still read the startup wrapper. When a wrapper is present, the real
// volume is embedded at an allocation-block offset recorded in the MDB
// itself (spec.md §3's "HFS wrapper" case).
func locateVolume(dev *device.Device) (int64, error) {
	buf := make([]byte, 512)
	if _, err := dev.ReadAt(buf, volumeHeaderOffset); err != nil {
		return 0, hfserr.Wrap(hfserr.Io, "volume.locateVolume", "", err)
	}

	c := bigendian.NewCursor(buf)
	sig := c.U16()
	if sig != 0x4244 { // "BD": not a plain-HFS wrapper, so the volume starts at block 0
		return 0, nil
	}

	// Plain HFS Master Directory Block, fields relevant to locating an
	// embedded HFS+ volume (Apple's MDB layout).
	c.Seek(20)
	alBlkSiz := c.U32() // drAlBlkSiz
	c.Seek(28)
	alBlSt := c.U16() // drAlBlSt, in 512-byte sectors
	c.Seek(124)
	embedSigWord := c.U16() // drEmbedSigWord, overlays drVCSize
	embedStartBlock := c.U16()
	embedBlockCount := c.U16()
	_ = embedBlockCount

	if err := c.Err(); err != nil {
		return 0, hfserr.Wrap(hfserr.Truncated, "volume.locateVolume", "", err)
	}

	switch embedSigWord {
	case 0x482B, 0x4858: // "H+", "HX"
	default:
		return 0, hfserr.New(hfserr.NotHfs, "volume.locateVolume", "plain HFS wrapper without an embedded HFS+ volume")
	}

	offset := int64(alBlSt)*512 + int64(embedStartBlock)*int64(alBlkSiz)
	return offset, nil
}
