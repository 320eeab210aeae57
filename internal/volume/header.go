package volume

import "github.com/macfs/hfsplus/internal/extents"

// Reserved CNID values, spec.md §3.
const (
	CNIDRootParent     = 1
	CNIDRootFolder     = 2
	CNIDExtentsFile    = 3
	CNIDCatalogFile    = 4
	CNIDBadBlockFile   = 5
	CNIDAllocationFile = 6
	CNIDStartupFile    = 7
	CNIDAttributesFile = 8
	CNIDFirstUser      = 16
)

// Volume Header attribute bits (spec.md §3). There is no standalone
// "dirty" bit: a volume is dirty exactly when AttrUnmounted is clear,
// meaning the last session ended without a clean unmount.
const (
	AttrHardwareLock     = 1 << 7
	AttrUnmounted        = 1 << 8
	AttrSparedBlocks     = 1 << 9
	AttrNoCacheRequired  = 1 << 10
	AttrBootInconsistent = 1 << 11
	AttrCNIDsReused      = 1 << 12
	AttrJournaled        = 1 << 13
	AttrSoftwareLock     = 1 << 15
)

// macEpochOffset converts HFS+'s 1904-01-01 UTC epoch to POSIX time.
const macEpochOffset = 2082844800

// ExtentDescriptor is one on-disk extent: a run of allocation blocks.
type ExtentDescriptor = extents.ExtentDescriptor

// ForkData is the 80-byte on-disk fork descriptor embedded in the Volume
// Header (for the five special files) and in catalog file records). The
// clump size (an allocation hint with no bearing on a read-only driver) is
// kept alongside the extents.ForkData fields this package shares with
// internal/extents and internal/catalog.
type ForkData struct {
	extents.ForkData
	ClumpSize uint32
}

// Header is the decoded 512-byte Volume Header at device offset 1024.
type Header struct {
	Signature          uint16
	Version             uint16
	Attributes          uint32
	LastMountedVersion   uint32
	JournalInfoBlock     uint32
	CreateDate           uint32
	ModifyDate           uint32
	BackupDate           uint32
	CheckedDate          uint32
	FileCount            uint32
	FolderCount          uint32
	BlockSize            uint32
	TotalBlocks          uint32
	FreeBlocks           uint32
	NextAllocation       uint32
	RsrcClumpSize        uint32
	DataClumpSize        uint32
	NextCatalogID        uint32
	WriteCount           uint32
	EncodingsBitmap      uint64
	FinderInfo           [8]uint32
	AllocationFile       ForkData
	ExtentsFile          ForkData
	CatalogFile          ForkData
	AttributesFile       ForkData
	StartupFile          ForkData
}

func (h *Header) Journaled() bool { return h.Attributes&AttrJournaled != 0 }

// Dirty reports whether the volume was not cleanly unmounted last session.
func (h *Header) Dirty() bool { return h.Attributes&AttrUnmounted == 0 }
