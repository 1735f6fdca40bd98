package model

import "time"

// RegistrationStatus is the lifecycle state of a Registration. A registration
// only ever exists while active; unregistering deletes the row.
type RegistrationStatus string

const RegistrationRegistered RegistrationStatus = "registered"

// Registration records that a user is enrolled in an event. At most one
// exists per (UserID, EventID).
//
// HoursApproved is a read cache of the approved hours for this pair. The
// hour-request ledger is authoritative; the accounting engine refreshes this
// field whenever it recomputes the user's progress.
type Registration struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	EventID       string             `json:"eventId"`
	EventName     string             `json:"eventName"`
	HoursApproved int                `json:"hoursApproved"`
	Status        RegistrationStatus `json:"status"`
	RegisteredAt  time.Time          `json:"registeredAt"`
}

// RegistrationID builds the document key of a registration: "<userID>_<eventID>".
func RegistrationID(userID, eventID string) string {
	return userID + "_" + eventID
}
