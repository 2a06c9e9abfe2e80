// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Event is one scheduled occurrence from the event catalog. Several events
// may share a Code; an occurrence is identified by its catalog position.
type Event struct {
	Date  time.Time // midnight of the event day in the sheet's zone
	Start time.Time // start instant anchored on Date
	End   time.Time // end instant anchored on Date
	Name  string
	Type  string
	Code  string

	// Valid is false when the row's date or times could not be parsed.
	// Such rows keep their position but never match a submission.
	Valid bool
}

// Submission is one attendance form response.
type Submission struct {
	Timestamp time.Time
	Email     string
	EventCode string
	FirstName string
	LastName  string
	Anonymous string // free text as entered on the form

	// Malformed is set when the timestamp failed to parse.
	Malformed bool
}

// NetID is the local part of the email; the whole value when there is no '@'.
func (s Submission) NetID() string {
	return NetID(s.Email)
}

// NetID derives a member identifier from an email address.
func NetID(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// Member is the per-member aggregate produced by one reconciliation run.
type Member struct {
	NetID      string
	FirstName  string
	LastName   string
	Anonymous  bool
	Points     float64
	LastUpdate time.Time
}

// DisplayName hides the name of anonymous members.
func (m Member) DisplayName() string {
	if m.Anonymous {
		return "Anonymous"
	}
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}
