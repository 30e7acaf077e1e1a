//go:build windows

package system

import "os"

const elevationHint = "try running as Administrator"

var mountRoots []string

// ACL denials only surface on open.
func canRead(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
