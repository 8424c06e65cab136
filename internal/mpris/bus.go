package mpris

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/media-relay/mediarelay/internal/monitor"
)

const (
	dbusName      = "org.freedesktop.DBus"
	dbusInterface = "org.freedesktop.DBus"
	propsIface    = "org.freedesktop.DBus.Properties"

	busPrefix   = "org.mpris.MediaPlayer2."
	objectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootIface   = "org.mpris.MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"

	sigNameOwnerChanged  = dbusInterface + ".NameOwnerChanged"
	sigPropertiesChanged = propsIface + ".PropertiesChanged"
	sigSeeked            = playerIface + ".Seeked"

	errAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
)

// bus is the subset of session bus calls the source makes.
type bus interface {
	ListNames(ctx context.Context) ([]string, error)
	NameOwner(ctx context.Context, name string) (string, error)
	ProcessID(ctx context.Context, name string) (uint32, error)
	Property(ctx context.Context, dest, iface, prop string) (dbus.Variant, error)
	Properties(ctx context.Context, dest, iface string) (map[string]dbus.Variant, error)
	Call(ctx context.Context, dest, method string) error
}

type connBus struct {
	conn *dbus.Conn
}

func (b connBus) daemon() dbus.BusObject {
	return b.conn.Object(dbusName, "/org/freedesktop/DBus")
}

func (b connBus) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	err := b.daemon().CallWithContext(ctx, dbusInterface+".ListNames", 0).Store(&names)
	return names, mapError(err)
}

func (b connBus) NameOwner(ctx context.Context, name string) (string, error) {
	var owner string
	err := b.daemon().CallWithContext(ctx, dbusInterface+".GetNameOwner", 0, name).Store(&owner)
	return owner, mapError(err)
}

func (b connBus) ProcessID(ctx context.Context, name string) (uint32, error) {
	var pid uint32
	err := b.daemon().CallWithContext(ctx, dbusInterface+".GetConnectionUnixProcessID", 0, name).Store(&pid)
	return pid, mapError(err)
}

func (b connBus) Property(ctx context.Context, dest, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.conn.Object(dest, objectPath).CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	return v, mapError(err)
}

func (b connBus) Properties(ctx context.Context, dest, iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := b.conn.Object(dest, objectPath).CallWithContext(ctx, propsIface+".GetAll", 0, iface).Store(&props)
	return props, mapError(err)
}

func (b connBus) Call(ctx context.Context, dest, method string) error {
	return mapError(b.conn.Object(dest, objectPath).CallWithContext(ctx, method, 0).Err)
}

// mapError translates bus access denials into monitor.ErrPermissionDenied.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var name string
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	switch {
	case errors.As(err, &dbusErr):
		name = dbusErr.Name
	case errors.As(err, &dbusErrPtr):
		name = dbusErrPtr.Name
	}
	if name == errAccessDenied {
		return fmt.Errorf("%w: %v", monitor.ErrPermissionDenied, err)
	}
	return err
}
