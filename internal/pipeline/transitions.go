// Package pipeline defines the participant status state machine shared by
// every employer in the hiring program.
//
// Valid predecessor graph (target ← allowed current status):
//
//	PROSPECTING  ← (none), REJECTED
//	INTERVIEWING ← PROSPECTING
//	OFFER_MADE   ← INTERVIEWING
//	HIRED        ← OFFER_MADE
//	ARCHIVED     ← HIRED
//	REJECTED     ← PROSPECTING, INTERVIEWING, OFFER_MADE, REJECT_ACK
//
// PENDING_ACKNOWLEDGEMENT and REJECT_ACK are never requested by a caller;
// they are written as side effects to notify a displaced employer.
package pipeline

import "fmt"

// Status values mirror the status column of participant_statuses.
type Status string

const (
	// StatusNone stands for "no current record".
	StatusNone                   Status = ""
	StatusProspecting            Status = "prospecting"
	StatusInterviewing           Status = "interviewing"
	StatusOfferMade              Status = "offer_made"
	StatusHired                  Status = "hired"
	StatusArchived               Status = "archived"
	StatusRejected               Status = "rejected"
	StatusRejectAcknowledgement  Status = "reject_ack"
	StatusPendingAcknowledgement Status = "pending_acknowledgement"
)

// validPredecessors lists, for every caller-reachable target, the statuses
// the compared record may hold.
var validPredecessors = map[Status][]Status{
	StatusProspecting:  {StatusNone, StatusRejected},
	StatusInterviewing: {StatusProspecting},
	StatusOfferMade:    {StatusInterviewing},
	StatusHired:        {StatusOfferMade},
	StatusArchived:     {StatusHired},
	StatusRejected:     {StatusOfferMade, StatusInterviewing, StatusProspecting, StatusRejectAcknowledgement},
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values. The empty string is not a valid status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusProspecting, StatusInterviewing, StatusOfferMade, StatusHired,
		StatusArchived, StatusRejected, StatusRejectAcknowledgement, StatusPendingAcknowledgement:
		return st, nil
	}
	return "", fmt.Errorf("unknown participant status %q", s)
}

// IsTransitionAllowed reports whether a record with status current may be
// followed by target. Use StatusNone when there is no current record.
func IsTransitionAllowed(current, target Status) bool {
	allowed, ok := validPredecessors[target]
	if !ok {
		return false // acknowledgement states are never a caller target
	}
	for _, s := range allowed {
		if s == current {
			return true
		}
	}
	return false
}

// IsInternalOnly reports whether s may only be produced as a side effect.
func IsInternalOnly(s Status) bool {
	return s == StatusPendingAcknowledgement || s == StatusRejectAcknowledgement
}

// IsInProgress reports whether s is an open claim that has not been decided.
func IsInProgress(s Status) bool {
	return s == StatusProspecting || s == StatusInterviewing || s == StatusOfferMade
}

// InProgressStatuses returns the in-progress statuses in pipeline order.
func InProgressStatuses() []Status {
	return []Status{StatusProspecting, StatusInterviewing, StatusOfferMade}
}

// IsHired returns true when status is HIRED.
func IsHired(s Status) bool { return s == StatusHired }

// overridesHire reports whether target may be entered while another
// current HIRED record exists for the participant.
func overridesHire(target Status) bool {
	return target == StatusArchived || target == StatusRejected
}

// returnsContact reports whether a successful transition to s hands the
// participant's contact fields back to the employer.
func returnsContact(s Status) bool {
	return IsInProgress(s) || IsHired(s)
}
