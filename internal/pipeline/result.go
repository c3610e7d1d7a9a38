package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business-rule rejection. Rejections are returned
// as values so batch callers can keep going.
type ErrorKind string

const (
	KindInvalidStatus           ErrorKind = "invalid_status"
	KindInvalidStatusTransition ErrorKind = "invalid_status_transition"
	KindAlreadyHired            ErrorKind = "already_hired"
	KindInvalidArchive          ErrorKind = "invalid_archive"
)

// Contact is returned to an employer once they hold an open claim.
type Contact struct {
	EmailAddress string `json:"emailAddress"`
	PhoneNumber  string `json:"phoneNumber"`
}

// Result is the outcome of a transition. On success Failure is empty and
// ID names the new record; on rejection Failure is set and the remaining
// fields describe what was observed.
type Result struct {
	Status  Status    `json:"status,omitempty"`
	ID      int64     `json:"id,omitempty"`
	Contact *Contact  `json:"contact,omitempty"`
	Failure ErrorKind `json:"failure,omitempty"`

	Target   Status        `json:"target,omitempty"`
	Current  Status        `json:"current,omitempty"`
	Existing *StatusRecord `json:"existing,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// OK reports whether the transition committed.
func (r Result) OK() bool { return r.Failure == "" }

// Response is the flat shape handed to API callers: {status, id} on
// success, plus contact fields for open claims, or {status: <kind>, ...}
// on rejection.
type Response struct {
	Status       string        `json:"status"`
	ID           int64         `json:"id,omitempty"`
	EmailAddress string        `json:"emailAddress,omitempty"`
	PhoneNumber  string        `json:"phoneNumber,omitempty"`
	Target       Status        `json:"target,omitempty"`
	Current      Status        `json:"current,omitempty"`
	Existing     *StatusRecord `json:"existing,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// Response flattens r for API callers.
func (r Result) Response() Response {
	if !r.OK() {
		return Response{
			Status:   string(r.Failure),
			Target:   r.Target,
			Current:  r.Current,
			Existing: r.Existing,
			Message:  r.Message,
		}
	}
	out := Response{Status: string(r.Status), ID: r.ID}
	if r.Contact != nil {
		out.EmailAddress = r.Contact.EmailAddress
		out.PhoneNumber = r.Contact.PhoneNumber
	}
	return out
}

func rejectStatus(target Status) *Result {
	return &Result{
		Failure: KindInvalidStatus,
		Target:  target,
		Message: fmt.Sprintf("%s cannot be requested directly", target),
	}
}

func rejectTransition(target Status, existing *StatusRecord, msg string) *Result {
	return &Result{
		Failure:  KindInvalidStatusTransition,
		Target:   target,
		Current:  statusOf(existing),
		Existing: existing,
		Message:  msg,
	}
}

func rejectArchive(existing *StatusRecord, msg string) *Result {
	return &Result{
		Failure:  KindInvalidArchive,
		Target:   StatusArchived,
		Current:  statusOf(existing),
		Existing: existing,
		Message:  msg,
	}
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrParticipantNotFound is returned when the participant does not exist.
var ErrParticipantNotFound = errors.New("participant not found")

// ErrStatusNotFound is returned when a status record does not exist.
var ErrStatusNotFound = errors.New("status record not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
