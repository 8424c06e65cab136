//go:build windows

package ipc

import (
	"context"
	"net"
	"os/user"
	"regexp"

	"github.com/Microsoft/go-winio"
)

// DefaultPath returns a per-user named pipe.
func DefaultPath() string {
	name := `\\.\pipe\mediarelay`
	if u, err := user.Current(); err == nil {
		name += regexp.MustCompile(`[^a-zA-Z0-9]+`).ReplaceAllString(u.Username, "")
	}
	return name
}

func Dial(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

func Listen(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}

// Destroy is a no-op; named pipes vanish with their last handle.
func Destroy(path string) error {
	return nil
}
