// Package notification models in-app notifications.
package notification

import "time"

// Kind classifies a notification for display.
type Kind string

const (
	KindClient     Kind = "client"
	KindProject    Kind = "project"
	KindCalendar   Kind = "calendar"
	KindFinance    Kind = "finance"
	KindMessage    Kind = "message"
	KindMembership Kind = "membership"
	KindSystem     Kind = "system"
)

// Notification targets one user, or every staff member when RecipientID is empty.
type Notification struct {
	ID           string    `json:"id" db:"id"`
	AgencyID     string    `json:"agency_id" db:"agency_id"`
	RecipientID  string    `json:"recipient_id" db:"recipient_id"`
	Kind         Kind      `json:"kind" db:"kind"`
	Title        string    `json:"title" db:"title"`
	Body         string    `json:"body" db:"body"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	Read         bool      `json:"read" db:"read"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Broadcast reports whether the notification targets all staff.
func (n Notification) Broadcast() bool {
	return n.RecipientID == ""
}
