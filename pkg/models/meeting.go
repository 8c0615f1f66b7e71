package models

import "time"

// Meeting is a scheduled meeting with a client
type Meeting struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Time      time.Time `json:"time" db:"time"`
	DateAdded time.Time `json:"dateAdded" db:"date_added"`
	ClientID  string    `json:"clientId" db:"client_id"`
}

// MeetingWithClient is a meeting with its client eager-loaded
type MeetingWithClient struct {
	Meeting
	Client Client `json:"client" db:"client"`
}

// MeetingContext is a meeting plus client detail for the daily plan prompt
type MeetingContext struct {
	Meeting
	Client ClientContext `json:"client"`
}

// CreateMeetingRequest accepts either a full timestamp in Time, or a picked
// calendar Date plus a TimeOfDay ("HH:MM") that are combined server side.
type CreateMeetingRequest struct {
	Title     string     `json:"title"`
	ClientID  string     `json:"clientId" validate:"required"`
	Time      *time.Time `json:"time" validate:"required_without=Date"`
	Date      *time.Time `json:"date" validate:"required_without=Time"`
	TimeOfDay string     `json:"timeOfDay" validate:"required_with=Date"`
}
