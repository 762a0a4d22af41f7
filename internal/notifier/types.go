package notifier

import "time"

// Config paces change delivery.
type Config struct {
	// RatePerSec caps sends across all chats. <= 0 means 20.
	RatePerSec int
	// Pace is the pause between two addresses.
	Pace time.Duration
	// SendTimeout bounds a single send.
	SendTimeout time.Duration
}

// Stats counts one Deliver call.
type Stats struct {
	Addresses int `json:"addresses"`
	Messages  int `json:"messages"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	// Unaddressed counts notifications for people who never made contact.
	Unaddressed int `json:"unaddressed"`
}

type HistoryItem struct {
	At      time.Time
	Address int64
	Text    string
	Error   string
}

// DeliveryEvent is published on the event bus per message.
type DeliveryEvent struct {
	Address int64     `json:"address"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
