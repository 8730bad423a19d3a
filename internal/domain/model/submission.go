// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// SyncStatus is the persisted reconciliation state of a Submission.
// A failed attempt never changes it; failures are tracked by SyncAttempts
// and LastSyncError instead.
type SyncStatus string

const (
	SyncPending       SyncStatus = "pending"
	SyncSynced        SyncStatus = "synced"
	SyncAlreadyExists SyncStatus = "already_exists"
)

// Valid reports whether s is one of the persisted states.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSynced, SyncAlreadyExists:
		return true
	}
	return false
}

// Submission is a talent application captured by the public intake form
// and waiting to be moved into the directory.
type Submission struct {
	ID                string
	Email             string
	FullName          string
	PhoneNumber       string
	Age               *int
	Country           string
	Category          string
	Gender            string
	Instagram         string
	TikTok            string
	Telegram          string
	PortfolioURL      string
	Measurements      json.RawMessage
	TalentDescription string
	SyncStatus        SyncStatus
	SyncAttempts      int
	LastSyncError     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeEmail returns the deduplication key for an email address:
// surrounding space trimmed and ASCII letters lowered. Non-ASCII characters
// are kept as they are, so "straße" and "strasse" stay distinct.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	b := []byte(email)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ToTalentApplication maps the submission onto a new directory entry in
// review state pending. Social handles that are blank are left out.
func (s Submission) ToTalentApplication(now time.Time) TalentApplication {
	social := make(map[string]string, 3)
	for platform, handle := range map[string]string{
		"instagram": s.Instagram,
		"telegram":  s.Telegram,
		"tiktok":    s.TikTok,
	} {
		if h := strings.TrimSpace(handle); h != "" {
			social[platform] = h
		}
	}

	var age *int
	if s.Age != nil {
		v := *s.Age
		age = &v
	}

	return TalentApplication{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(s.Email),
		FullName:     norm.NFC.String(strings.TrimSpace(s.FullName)),
		Phone:        s.PhoneNumber,
		Age:          age,
		Country:      s.Country,
		CategoryType: s.Category,
		Gender:       s.Gender,
		SocialMedia:  social,
		Notes:        s.TalentDescription,
		PortfolioURL: s.PortfolioURL,
		Measurements: cloneRaw(s.Measurements),
		Status:       ApplicationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy.
func (s Submission) Clone() Submission {
	out := s
	if s.Age != nil {
		v := *s.Age
		out.Age = &v
	}
	out.Measurements = cloneRaw(s.Measurements)
	return out
}

func cloneRaw(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), m...)
}
