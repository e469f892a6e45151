//go:build windows

package mpv

import (
	"time"

	"github.com/Microsoft/go-winio"
)

// isPipeReady dials the named pipe mpv creates for --input-ipc-server.
func isPipeReady(pipePath string) bool {
	timeout := 200 * time.Millisecond
	conn, err := winio.DialPipe(pipePath, &timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
