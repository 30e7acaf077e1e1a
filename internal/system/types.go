package system

// DiskInfo contains information about a mounted volume
type DiskInfo struct {
	Device     string
	Mountpoint string
	Filesystem string
	TotalSize  uint64
	FreeSize   uint64
	UsedSize   uint64
	IsSystem   bool
}
