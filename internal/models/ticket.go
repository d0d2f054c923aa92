package models

import "time"

// Ticket is an issue-tracker item that was in progress on a given day.
type Ticket struct {
	Key     string `json:"ticketKey"`
	Summary string `json:"summary"`
	Type    string `json:"type"`
}

// TicketsOnDay groups in-progress tickets by calendar date.
type TicketsOnDay struct {
	Date    time.Time `json:"date"`
	Tickets []Ticket  `json:"tickets"`
}
