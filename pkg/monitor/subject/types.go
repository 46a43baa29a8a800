package subject

import "time"

// Known subject types. Type is free-form so deployments can monitor
// anything; these are the ones the built-in profiles reference.
const (
	TypePerson = "person"
	TypeDevice = "device"
	TypeZone   = "zone"
)

// Subject is an entity under monitoring: a person, a device, a zone.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Profile   string    `json:"profile,omitempty"`
	Channels  []string  `json:"channels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Filter struct {
	Type    string
	Profile string
	Limit   int
	Offset  int
}
