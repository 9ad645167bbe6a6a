//go:build unix

package worker

import "golang.org/x/sys/unix"

// processAlive probes pid with signal 0. EPERM still means it exists.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
