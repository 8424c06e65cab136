//go:build linux

package control

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultUinputPath is the uinput character device.
const DefaultUinputPath = "/dev/uinput"

const (
	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0x00

	busVirtual = 0x06

	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiDevSetup   = 0x405c5503
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputSetup struct {
	ID           inputID
	Name         [80]byte
	FFEffectsMax uint32
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// UinputSink is a virtual keyboard that emits media keys as real input
// events, so they reach whichever application the desktop gives media
// focus.
type UinputSink struct {
	mu sync.Mutex
	fd int
}

// OpenUinput creates the virtual keyboard. The caller needs write access to
// path, usually through the input group or a udev rule.
func OpenUinput(path string) (*UinputSink, error) {
	if path == "" {
		path = DefaultUinputPath
	}
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := setupDevice(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &UinputSink{fd: fd}, nil
}

func setupDevice(fd int) error {
	if err := unix.IoctlSetInt(fd, uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("enable key events: %w", err)
	}
	for _, k := range []KeyCode{KeyPlayPause, KeyNextSong, KeyPreviousSong} {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(k)); err != nil {
			return fmt.Errorf("enable %s: %w", k, err)
		}
	}

	setup := uinputSetup{ID: inputID{Bustype: busVirtual, Vendor: 0x1d6b, Product: 0x0104, Version: 1}}
	copy(setup.Name[:], "mediarelay media keys")
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		return fmt.Errorf("setup uinput device: %w", errno)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("create uinput device: %w", err)
	}
	return nil
}

func (s *UinputSink) KeyDown(k KeyCode) error { return s.emitKey(k, 1) }

func (s *UinputSink) KeyUp(k KeyCode) error { return s.emitKey(k, 0) }

func (s *UinputSink) emitKey(k KeyCode, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return fmt.Errorf("uinput device closed")
	}
	if err := s.write(evKey, uint16(k), value); err != nil {
		return err
	}
	return s.write(evSyn, synReport, 0)
}

func (s *UinputSink) write(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
	if _, err := unix.Write(s.fd, buf); err != nil {
		return fmt.Errorf("write input event: %w", err)
	}
	return nil
}

// Close destroys the virtual keyboard.
func (s *UinputSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	unix.IoctlSetInt(s.fd, uiDevDestroy, 0)
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
