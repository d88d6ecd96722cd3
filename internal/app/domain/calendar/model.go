// Package calendar models social-media content calendar entries.
package calendar

import (
	"strings"
	"time"
)

// Platform is the social network a post targets.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformOther     Platform = "other"
)

var platforms = map[Platform]struct{}{
	PlatformInstagram: {}, PlatformFacebook: {}, PlatformLinkedIn: {}, PlatformTikTok: {},
	PlatformTwitter: {}, PlatformYouTube: {}, PlatformOther: {},
}

func NormalizePlatform(raw string) Platform {
	p := Platform(strings.ToLower(strings.TrimSpace(raw)))
	if p == "x" {
		return PlatformTwitter
	}
	return p
}

func (p Platform) Valid() bool {
	_, ok := platforms[p]
	return ok
}

// Status tracks a post from draft to publication.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusApproved  Status = "approved"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
)

func NormalizeStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusApproved, StatusPublished, StatusCancelled:
		return true
	}
	return false
}

// Pending reports whether the post is waiting to go out.
func (s Status) Pending() bool {
	return s == StatusScheduled || s == StatusApproved
}

// Event is a scheduled post. Client and project names are denormalized.
type Event struct {
	ID             string     `json:"id" db:"id"`
	AgencyID       string     `json:"agency_id" db:"agency_id"`
	Title          string     `json:"title" db:"title"`
	Caption        string     `json:"caption" db:"caption"`
	Platform       Platform   `json:"platform" db:"platform"`
	Status         Status     `json:"status" db:"status"`
	ScheduledAt    time.Time  `json:"scheduled_at" db:"scheduled_at"`
	ClientID       string     `json:"client_id" db:"client_id"`
	ClientName     string     `json:"client_name" db:"client_name"`
	ProjectID      string     `json:"project_id" db:"project_id"`
	ProjectName    string     `json:"project_name" db:"project_name"`
	MediaURLs      []string   `json:"media_urls" db:"-"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Filter narrows event listings. Zero values match everything.
type Filter struct {
	ClientID  string
	ProjectID string
	Status    Status
	From      time.Time
	To        time.Time
}

// Match reports whether e satisfies the filter. From is inclusive, To exclusive.
func (f Filter) Match(e Event) bool {
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && e.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.ScheduledAt.Before(f.To) {
		return false
	}
	return true
}
