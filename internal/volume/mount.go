package volume

// Mounter makes a freshly formatted volume reachable as a directory for the
// fill stage.
type Mounter interface {
	Mount(device, fs string) (string, error)
	Unmount(mountpoint string) error
}
