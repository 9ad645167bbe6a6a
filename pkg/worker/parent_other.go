//go:build !unix

package worker

// processAlive cannot probe other processes here, so the worker relies on
// the channel closing instead
func processAlive(pid int) bool {
	return true
}
