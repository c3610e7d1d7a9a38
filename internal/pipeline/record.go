package pipeline

import (
	"slices"
	"time"
)

// StatusRecord is one row of a participant's status log. Superseded rows
// stay in the log with Current=false.
type StatusRecord struct {
	ID            int64     `json:"id"`
	ParticipantID string    `json:"participantId"`
	EmployerID    string    `json:"employerId,omitempty"`
	Status        Status    `json:"status"`
	Current       bool      `json:"current"`
	Data          Payload   `json:"data"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Site returns the site the record is scoped to, or 0.
func (r *StatusRecord) Site() int64 {
	if r == nil || r.Data == nil {
		return 0
	}
	return r.Data.SiteID()
}

// statusOf returns the status of r, or StatusNone for a nil record.
func statusOf(r *StatusRecord) Status {
	if r == nil {
		return StatusNone
	}
	return r.Status
}

// Participant holds the fields of a candidate this subsystem reads or
// writes. Intake owns the rest.
type Participant struct {
	ID           string     `json:"id"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	EmailAddress string     `json:"emailAddress"`
	PhoneNumber  string     `json:"phoneNumber"`
	Interested   string     `json:"interested"`
	WithdrawnAt  *time.Time `json:"withdrawnAt,omitempty"`
}

// InterestWithdrawn is the Interested value of a withdrawn participant.
const InterestWithdrawn = "withdrawn"

// ActingUser is the authenticated caller, as resolved by the auth layer.
type ActingUser struct {
	ID                string
	Sites             []int64
	IsEmployer        bool
	IsHealthAuthority bool
	IsMinistry        bool
}

// HasSite reports whether the user is associated with site.
func (u ActingUser) HasSite(site int64) bool {
	return site != 0 && slices.Contains(u.Sites, site)
}

// HiddenFor reports whether userID suppressed r from their views.
func (r *StatusRecord) HiddenFor(userID string) bool {
	if r == nil || r.Data == nil {
		return false
	}
	return r.Data.common().HiddenForUser(userID)
}
