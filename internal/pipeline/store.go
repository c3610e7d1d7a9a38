package pipeline

import (
	"context"
	"time"
)

// Tx is a transactional handle over the status log and the participant
// table. Every read and write of one transition goes through the same Tx.
type Tx interface {
	// GetStatus returns ErrStatusNotFound when id does not exist.
	GetStatus(ctx context.Context, id int64) (StatusRecord, error)
	// CurrentHiredStatuses returns every current HIRED record, newest first.
	CurrentHiredStatuses(ctx context.Context, participantID string) ([]StatusRecord, error)
	// CurrentStatusForEmployer returns the newest current record authored by
	// employerID, or nil.
	CurrentStatusForEmployer(ctx context.Context, participantID, employerID string) (*StatusRecord, error)
	// CurrentInProgressForSite returns the newest current in-progress record
	// at site from any employer, or nil.
	CurrentInProgressForSite(ctx context.Context, participantID string, site int64) (*StatusRecord, error)
	// CurrentStatusOfType returns the newest current record with status, or nil.
	CurrentStatusOfType(ctx context.Context, participantID string, status Status) (*StatusRecord, error)

	// InvalidateStatus clears the current flag of id. Already superseded
	// records are left untouched.
	InvalidateStatus(ctx context.Context, id int64) error
	// InvalidateInProgressForSite clears the current flag of every current
	// in-progress record at site and returns how many were cleared.
	InvalidateInProgressForSite(ctx context.Context, participantID string, site int64) (int64, error)
	// InsertStatus appends rec and returns it with ID and CreatedAt set.
	InsertStatus(ctx context.Context, rec StatusRecord) (StatusRecord, error)
	// UpdateStatusData replaces the payload of id.
	UpdateStatusData(ctx context.Context, id int64, data Payload) error

	// GetParticipant returns ErrParticipantNotFound when id does not exist.
	GetParticipant(ctx context.Context, id string) (Participant, error)
	MarkParticipantWithdrawn(ctx context.Context, id string) error
}

// UnitOfWork runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Store is the full storage surface the service needs.
type Store interface {
	UnitOfWork
	// ListStatuses returns every record of the participant, oldest first.
	ListStatuses(ctx context.Context, participantID string) ([]StatusRecord, error)
	// ListOutstandingAcknowledgements returns current acknowledgement records
	// created before olderThan.
	ListOutstandingAcknowledgements(ctx context.Context, olderThan time.Time) ([]StatusRecord, error)
}

// StatusChanged is published after a transition commits.
type StatusChanged struct {
	ParticipantID string
	EmployerID    string
	StatusID      int64
	From          Status
	To            Status
	At            time.Time
}

// Publisher announces committed transitions. Failures are logged, never
// surfaced to the caller.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
}
