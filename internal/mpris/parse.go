package mpris

import (
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/media-relay/mediarelay/internal/monitor"
)

// MPRIS v2 and xesam metadata keys.
const (
	keyTitle  = "xesam:title"
	keyArtist = "xesam:artist"
	keyLength = "mpris:length"
	keyArtURL = "mpris:artUrl"
)

// parseMetadata converts an MPRIS Metadata dictionary. Players disagree on
// value types, so every accepted shape is handled.
func parseMetadata(m map[string]dbus.Variant) monitor.RawMetadata {
	return monitor.RawMetadata{
		Title:      stringValue(m[keyTitle]),
		Artist:     strings.Join(stringsValue(m[keyArtist]), ", "),
		DurationMs: microsToMillis(microsValue(m[keyLength])),
		ArtURL:     stringValue(m[keyArtURL]),
	}
}

// applyPlayerProps overlays the Player properties present in props onto st.
func applyPlayerProps(st monitor.RawPlaybackState, props map[string]dbus.Variant) monitor.RawPlaybackState {
	if v, ok := props["PlaybackStatus"]; ok {
		st.Status = statusValue(v)
	}
	if v, ok := props["Position"]; ok {
		st.PositionMs = microsToMillis(microsValue(v))
	}
	if v, ok := props["Rate"]; ok {
		if rate, ok := v.Value().(float64); ok {
			st.Rate = rate
		}
	}
	return st
}

func statusValue(v dbus.Variant) monitor.PlaybackStatus {
	switch types.PlaybackStatus(stringValue(v)) {
	case types.PlaybackStatusPlaying:
		return monitor.StatusPlaying
	case types.PlaybackStatusPaused:
		return monitor.StatusPaused
	default:
		return monitor.StatusStopped
	}
}

func stringValue(v dbus.Variant) string {
	switch s := v.Value().(type) {
	case string:
		return s
	case dbus.ObjectPath:
		return string(s)
	default:
		return ""
	}
}

func stringsValue(v dbus.Variant) []string {
	switch s := v.Value().(type) {
	case []string:
		out := make([]string, 0, len(s))
		for _, a := range s {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
		return out
	case string:
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
	}
	return nil
}

func microsValue(v dbus.Variant) types.Microseconds {
	switch n := v.Value().(type) {
	case int64:
		return types.Microseconds(n)
	case uint64:
		return types.Microseconds(n)
	case int32:
		return types.Microseconds(n)
	case uint32:
		return types.Microseconds(n)
	case float64:
		return types.Microseconds(n)
	default:
		return 0
	}
}

func microsToMillis(us types.Microseconds) int64 {
	if us < 0 {
		return 0
	}
	return int64(us) / 1000
}
