// Package portfolio models showcase items published by an agency.
package portfolio

import "time"

// Item is a portfolio entry. The image itself lives in object storage;
// ImagePath is the object key and ImageURL its public address.
type Item struct {
	ID          string    `json:"id" db:"id"`
	AgencyID    string    `json:"agency_id" db:"agency_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	ImagePath   string    `json:"image_path" db:"image_path"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	ClientID    string    `json:"client_id" db:"client_id"`
	ClientName  string    `json:"client_name" db:"client_name"`
	ProjectID   string    `json:"project_id" db:"project_id"`
	ProjectName string    `json:"project_name" db:"project_name"`
	Tags        []string  `json:"tags" db:"-"`
	Featured    bool      `json:"featured" db:"featured"`
	Published   bool      `json:"published" db:"published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Filter narrows portfolio listings.
type Filter struct {
	ClientID      string
	ProjectID     string
	PublishedOnly bool
}

func (f Filter) Match(it Item) bool {
	if f.ClientID != "" && it.ClientID != f.ClientID {
		return false
	}
	if f.ProjectID != "" && it.ProjectID != f.ProjectID {
		return false
	}
	if f.PublishedOnly && !it.Published {
		return false
	}
	return true
}
