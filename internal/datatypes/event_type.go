// Package datatypes defines shared types for events (e.g. webhook event types).
package datatypes

import (
	"errors"
	"fmt"
)

// Event type validation errors (sentinels for err113).
var (
	ErrEventTypeTooLong   = errors.New("event type exceeds max length")
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrDuplicateEventType = errors.New("duplicate event type")
)

// maxEventTypeLen is the maximum allowed length for an event type string.
const maxEventTypeLen = 64

// EventType is an enum over the webhook event types. The wire form (API,
// database, payloads) is the dotted string from String().
type EventType uint16

// Keep numEventTypes last; eventTypeNames is sized by it.
const (
	SpeakerAutoAttached EventType = iota
	SpeakerSuggested
	SpeakerVerified
	ProfileCreated
	ProfileRenamed
	ProfilesMerged
	WebhookCreated
	WebhookUpdated
	WebhookDeleted

	numEventTypes
)

// eventTypeNames holds the wire names, indexed by enum value. A missing entry
// would surface as an empty String(), so additions here and in the const
// block travel together.
var eventTypeNames = [numEventTypes]string{
	SpeakerAutoAttached: "speaker.auto_attached",
	SpeakerSuggested:    "speaker.suggested",
	SpeakerVerified:     "speaker.verified",
	ProfileCreated:      "profile.created",
	ProfileRenamed:      "profile.renamed",
	ProfilesMerged:      "profiles.merged",
	WebhookCreated:      "webhook.created",
	WebhookUpdated:      "webhook.updated",
	WebhookDeleted:      "webhook.deleted",
}

// eventTypesByName is the reverse index, built once from eventTypeNames.
var eventTypesByName = func() map[string]EventType {
	m := make(map[string]EventType, len(eventTypeNames))
	for i, name := range eventTypeNames {
		m[name] = EventType(i)
	}

	return m
}()

// String returns the wire name, or "" for an out-of-range value.
func (et EventType) String() string {
	if et >= numEventTypes {
		return ""
	}

	return eventTypeNames[et]
}

// ParseEventType resolves a wire name. ok is false for unknown names.
func ParseEventType(s string) (EventType, bool) {
	et, ok := eventTypesByName[s]

	return et, ok
}

// IsValidEventType reports whether s is a known wire name.
func IsValidEventType(s string) bool {
	_, ok := eventTypesByName[s]

	return ok
}

// GetAllEventTypes returns every wire name in enum order.
func GetAllEventTypes() []string {
	out := make([]string, len(eventTypeNames))
	copy(out, eventTypeNames[:])

	return out
}

// ParseEventTypes resolves a list of wire names, rejecting unknown, overlong,
// and repeated entries. Empty input parses to nil.
func ParseEventTypes(ss []string) ([]EventType, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	out := make([]EventType, 0, len(ss))
	seen := make(map[EventType]bool, len(ss))

	for _, s := range ss {
		if len(s) > maxEventTypeLen {
			return nil, fmt.Errorf("%w: %d characters: %s", ErrEventTypeTooLong, maxEventTypeLen, s)
		}

		et, ok := ParseEventType(s)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEventType, s)
		}

		if seen[et] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEventType, s)
		}

		seen[et] = true
		out = append(out, et)
	}

	return out, nil
}

// EventTypeStrings converts a []EventType back to wire names for JSON.
func EventTypeStrings(types []EventType) []string {
	if len(types) == 0 {
		return nil
	}

	out := make([]string, len(types))
	for i, et := range types {
		out[i] = et.String()
	}

	return out
}
