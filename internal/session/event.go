package session

import (
	"encoding/json"
	"fmt"
)

// UnknownText replaces a title or artist the host did not report.
const UnknownText = "Unknown"

// EventType is the wire tag of an Event.
type EventType string

const (
	TypeMetadata EventType = "metadata"
	TypeState    EventType = "state"
)

// Event is a normalized notification about one session. It is either a
// Metadata or a State value.
type Event interface {
	Type() EventType
	Session() ID
	isEvent()
}

// Metadata describes the item a session is currently playing.
type Metadata struct {
	SessionID  ID
	Title      string
	Artist     string
	DurationMs int64
	// Artwork is a 150x150 PNG, or nil when none could be produced.
	Artwork []byte
}

func (Metadata) Type() EventType { return TypeMetadata }
func (m Metadata) Session() ID { return m.SessionID }
func (Metadata) isEvent() {}
func (m Metadata) HasArtwork() bool { return len(m.Artwork) > 0 }

// State describes the transport state of a session.
type State struct {
	SessionID  ID
	IsPlaying  bool
	PositionMs int64
	Speed      float32
}

func (State) Type() EventType { return TypeState }
func (s State) Session() ID { return s.SessionID }
func (State) isEvent() {}

type metadataWire struct {
	Type      EventType `json:"type"`
	SessionID ID        `json:"sessionId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Duration  int64     `json:"duration"`
	Artwork   []byte    `json:"artwork,omitempty"`
}

type stateWire struct {
	Type      EventType `json:"type"`
	SessionID ID        `json:"sessionId"`
	IsPlaying bool      `json:"isPlaying"`
	Position  int64     `json:"position"`
	Speed     float32   `json:"speed"`
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataWire{
		Type:      TypeMetadata,
		SessionID: m.SessionID,
		Title:     m.Title,
		Artist:    m.Artist,
		Duration:  m.DurationMs,
		Artwork:   m.Artwork,
	})
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateWire{
		Type:      TypeState,
		SessionID: s.SessionID,
		IsPlaying: s.IsPlaying,
		Position:  s.PositionMs,
		Speed:     s.Speed,
	})
}

// MarshalEvent encodes ev in its wire form.
func MarshalEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("marshal event: nil event")
	}
	return json.Marshal(ev)
}

// UnmarshalEvent decodes one wire frame. Frames with an unrecognized type
// tag are rejected.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch head.Type {
	case TypeMetadata:
		var w metadataWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode metadata event: %w", err)
		}
		return Metadata{
			SessionID:  w.SessionID,
			Title:      w.Title,
			Artist:     w.Artist,
			DurationMs: w.Duration,
			Artwork:    w.Artwork,
		}, nil
	case TypeState:
		var w stateWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode state event: %w", err)
		}
		return State{
			SessionID:  w.SessionID,
			IsPlaying:  w.IsPlaying,
			PositionMs: w.Position,
			Speed:      w.Speed,
		}, nil
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", head.Type)
	}
}
