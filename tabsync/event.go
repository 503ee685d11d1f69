// Package tabsync delivers best-effort session events between tabs of the
// same origin.
//
// A Bus sends through a direct broadcast channel when one can be opened and
// falls back to a storage pulse (write then remove a shared key) otherwise.
// Nothing is acknowledged or retried: a sleeping or closed tab simply misses
// the event and catches up on its next renewal or visibility change.
package tabsync

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Kind identifies a tab-sync event.
type Kind string

const (
	KindSignIn            Kind = "login"
	KindSignOut           Kind = "logout"
	KindCredentialRenewed Kind = "token-refreshed"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSignIn, KindSignOut, KindCredentialRenewed:
		return true
	}
	return false
}

// Event is the wire format shared by all transports.
type Event struct {
	Kind      Kind  `json:"type"`
	Timestamp int64 `json:"timestamp"` // Unix milliseconds
}

// NowFunc returns the current time. It can be overridden in tests.
var NowFunc = time.Now

// NewEvent stamps an event of the given kind with the current time
func NewEvent(kind Kind) Event {
	return Event{Kind: kind, Timestamp: NowFunc().UnixMilli()}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

func decodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, errors.Wrap(err, "[decodeEvent]")
	}
	if !e.Kind.Valid() {
		return Event{}, errors.Errorf("[decodeEvent] unknown kind %q", e.Kind)
	}
	return e, nil
}
