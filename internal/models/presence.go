package models

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEntry is one row of the roster frame pushed to connected
// clients. LastSeen is unix milliseconds of the user's most recent
// activity, zero when none is recorded.
type PresenceEntry struct {
	Profile
	Status   PresenceStatus `json:"status"`
	LastSeen int64          `json:"lastSeen,omitempty"`
}
