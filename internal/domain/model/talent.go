package model

import (
	"encoding/json"
	"time"
)

// ApplicationStatus is the staff review state of a directory entry.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
	ApplicationOnHold   ApplicationStatus = "on_hold"
)

// Valid reports whether s is a known review state.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationApproved, ApplicationRejected, ApplicationOnHold:
		return true
	}
	return false
}

// TalentApplication is a record in the Talent Directory.
type TalentApplication struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	FullName     string            `json:"full_name"`
	Phone        string            `json:"phone,omitempty"`
	Age          *int              `json:"age,omitempty"`
	Country      string            `json:"country,omitempty"`
	CategoryType string            `json:"category_type,omitempty"`
	Gender       string            `json:"gender,omitempty"`
	SocialMedia  map[string]string `json:"social_media,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	PortfolioURL string            `json:"portfolio_url,omitempty"`
	Measurements json.RawMessage   `json:"measurements,omitempty"`
	Status       ApplicationStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (a TalentApplication) Clone() TalentApplication {
	out := a
	if a.Age != nil {
		v := *a.Age
		out.Age = &v
	}
	if a.SocialMedia != nil {
		out.SocialMedia = make(map[string]string, len(a.SocialMedia))
		for k, v := range a.SocialMedia {
			out.SocialMedia[k] = v
		}
	}
	out.Measurements = cloneRaw(a.Measurements)
	return out
}

// ApplicationFilter narrows directory listings.
type ApplicationFilter struct {
	Status ApplicationStatus
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Normalize clamps paging values into range.
func (f ApplicationFilter) Normalize() ApplicationFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
