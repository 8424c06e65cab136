//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultPath follows platform conventions:
//   - macOS: ~/Library/Caches/mediarelay/mediarelay.sock
//   - Linux/Unix: $XDG_RUNTIME_DIR/mediarelay.sock
//
// falling back to /tmp/mediarelay-{uid}.sock.
func DefaultPath() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Caches", "mediarelay", "mediarelay.sock")
		}
	} else if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "mediarelay.sock")
	}
	if u, err := user.Current(); err == nil {
		return fmt.Sprintf("/tmp/mediarelay-%s.sock", u.Uid)
	}
	return "/tmp/mediarelay.sock"
}

func Dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// Listen creates the socket at path. A leftover socket file from a relay
// that did not shut down cleanly is replaced; a live one is an error.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		conn, dialErr := Dial(ctx, path)
		cancel()
		if dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("socket %s is in use by another relay", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		l.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return l, nil
}

// Destroy removes the socket file.
func Destroy(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
