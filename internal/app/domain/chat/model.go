// Package chat models the agency/client message threads.
package chat

import "time"

// Side identifies which party of a thread an action concerns.
type Side string

const (
	SideAgency Side = "agency"
	SideClient Side = "client"
)

// Message belongs to the thread of ClientID.
type Message struct {
	ID           string    `json:"id" db:"id"`
	AgencyID     string    `json:"agency_id" db:"agency_id"`
	ClientID     string    `json:"client_id" db:"client_id"`
	SenderID     string    `json:"sender_id" db:"sender_id"`
	SenderName   string    `json:"sender_name" db:"sender_name"`
	SenderRole   string    `json:"sender_role" db:"sender_role"`
	Body         string    `json:"body" db:"body"`
	ReadByAgency bool      `json:"read_by_agency" db:"read_by_agency"`
	ReadByClient bool      `json:"read_by_client" db:"read_by_client"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
