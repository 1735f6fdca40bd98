// Package model defines the data structures used throughout the application:
// events, registrations, hour requests, accounts and users.
package model

import "time"

// Location is the city an event takes place in. The set is closed: events
// can only be created in one of the Locations listed below.
type Location string

const (
	LocationElPaso Location = "El Paso"
	LocationJuarez Location = "Juarez"
)

// Locations lists every valid Location, in display order.
var Locations = []Location{LocationElPaso, LocationJuarez}

// Valid reports whether l is one of the known locations.
func (l Location) Valid() bool {
	for _, known := range Locations {
		if l == known {
			return true
		}
	}
	return false
}

// EventDateLayout is the calendar-date format events are stored and exchanged in.
const EventDateLayout = "2006-01-02"

// Event is a community-service event published by an organizer.
//
// UserLimit is the advertised capacity. Zero means "no limit". Whether the
// limit is enforced on registration is a server setting, not a property of
// the event.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Location    Location  `json:"location"`
	Address     string    `json:"address"`
	UserLimit   int       `json:"userLimit"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
