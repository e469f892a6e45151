//go:build !windows

package mpv

// isPipeReady only matters for Windows named pipes; sockets are probed with os.Stat.
func isPipeReady(string) bool {
	return false
}
