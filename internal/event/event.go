// Package event decodes controller frames into classified events. All
// string matching on controller event types happens here, so consumers
// switch on Kind instead of re-parsing raw strings.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyFrame     = errors.New("empty frame")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("event has no Event or Type field")
)

// Event is one controller event after decoding.
type Event struct {
	// Type is the raw type string as sent by the controller.
	Type string
	Kind Kind
	// Time is the controller's timestamp when present, otherwise the time
	// the frame was received.
	Time    time.Time
	HasTime bool
	Payload Payload
}

// Decoder turns raw JSON into Events. Location is used for controller
// timestamps that carry no zone.
type Decoder struct {
	Location *time.Location
}

func (d Decoder) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

// Decode parses a single frame. A frame may be the event object itself or
// an envelope whose Response field holds the event; one level is unwrapped.
func (d Decoder) Decode(frame []byte, receivedAt time.Time) (Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Event{}, ErrEmptyFrame
	}

	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if inner, ok := raw["Response"].(map[string]any); ok {
		raw = inner
	}
	return d.FromMap(raw, receivedAt)
}

// FromMap builds an Event from an already-decoded object, e.g. one entry of
// the history API response.
func (d Decoder) FromMap(raw map[string]any, receivedAt time.Time) (Event, error) {
	p := Payload(raw)
	typ, ok := p.String("Event", "Type")
	if !ok {
		return Event{}, ErrMissingType
	}
	typ = strings.TrimSpace(typ)

	// Some events nest their body under Data; flatten it so accessors need
	// not care. Top-level keys win.
	payload := make(Payload, len(raw))
	if data, ok := asMap(raw["Data"]); ok {
		for k, v := range data {
			payload[k] = v
		}
	}
	for k, v := range raw {
		payload[k] = v
	}

	ev := Event{
		Type:    typ,
		Kind:    Classify(typ),
		Time:    receivedAt,
		Payload: payload,
	}
	if ts, ok := p.String("Time", "Timestamp"); ok {
		if t, ok := ParseTime(ts, d.location()); ok {
			ev.Time = t
			ev.HasTime = true
		}
	}
	return ev, nil
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime parses a controller timestamp. Timestamps without a zone are
// taken to be wall-clock time in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// HasZone reports whether s carries an explicit zone designator.
func HasZone(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
