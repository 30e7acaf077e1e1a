//go:build windows

package execute

import "os"

// Windows has no SIGTERM for console tools; the grace period is skipped.
func terminate(p *os.Process) error {
	return p.Kill()
}
