package model

import "time"

// HourRequestStatus is the lifecycle state of an HourRequest.
//
//	pending --approve--> approved   (terminal)
//	pending --reject---> rejected   (terminal)
type HourRequestStatus string

const (
	HourRequestPending  HourRequestStatus = "pending"
	HourRequestApproved HourRequestStatus = "approved"
	HourRequestRejected HourRequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s HourRequestStatus) Valid() bool {
	switch s {
	case HourRequestPending, HourRequestApproved, HourRequestRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s HourRequestStatus) Terminal() bool {
	return s == HourRequestApproved || s == HourRequestRejected
}

// HourRequest is a volunteer's claim of service hours for one event.
// The requester creates it as pending; an organizer decides it exactly once.
type HourRequest struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	EventID        string            `json:"eventId"`
	HoursRequested int               `json:"hoursRequested"`
	Status         HourRequestStatus `json:"status"`
	RequestedAt    time.Time         `json:"requestedAt"`
	DecidedBy      string            `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time        `json:"decidedAt,omitempty"`
}
