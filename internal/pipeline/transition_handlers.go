package pipeline

import (
	"context"
	"fmt"
)

// transition carries the state one Transition call accumulates.
type transition struct {
	employerID    string
	participantID string
	target        Status
	data          Payload
	user          ActingUser

	hired       []StatusRecord // current HIRED records, newest first
	current     *StatusRecord  // record the target is compared against
	participant Participant
}

// additionalData is merged into the new record's payload.
type additionalData struct {
	PreviousStatus int64
}

// outcome is what a handler hands back to the coordinator.
type outcome struct {
	early         *Result
	additional    additionalData
	skipSupersede bool
}

// transitionHandler performs the side effects of entering one status.
type transitionHandler interface {
	apply(ctx context.Context, tx Tx, t *transition) (outcome, error)
}

// prechecker is implemented by handlers that must vet the request before
// the predecessor table is consulted.
type prechecker interface {
	precheck(ctx context.Context, tx Tx, t *transition) (*Result, error)
}

var handlers = map[Status]transitionHandler{
	StatusArchived:    archiveHandler{},
	StatusHired:       hireHandler{},
	StatusProspecting: prospectHandler{},
	StatusRejected:    rejectHandler{},
}

// ─── ARCHIVED ────────────────────────────────────────────────────────────────

type archiveHandler struct{}

// precheck selects the hire being archived and makes it the compared record.
func (archiveHandler) precheck(ctx context.Context, tx Tx, t *transition) (*Result, error) {
	hire := t.hireToArchive()
	if hire == nil {
		return rejectArchive(t.current, "participant is not hired"), nil
	}

	prev, err := tx.CurrentStatusOfType(ctx, t.participantID, StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("load archived status: %w", err)
	}
	if prev != nil {
		return rejectArchive(prev, "participant is already archived"), nil
	}

	if hire.EmployerID != t.employerID && !t.user.HasSite(hire.Site()) {
		return rejectArchive(hire, "not authorized to archive a hire made by another employer"), nil
	}

	t.current = hire
	return nil, nil
}

func (archiveHandler) apply(ctx context.Context, tx Tx, t *transition) (outcome, error) {
	hire := t.current
	archived, _ := t.data.(*ArchivedData)

	// The hiring employer learns their hire was archived by someone else.
	if hire.EmployerID != t.employerID {
		notice := *archived
		notice.HiddenFor = nil
		if _, err := tx.InsertStatus(ctx, StatusRecord{
			ParticipantID: t.participantID,
			EmployerID:    hire.EmployerID,
			Status:        StatusPendingAcknowledgement,
			Current:       true,
			Data:          &notice,
		}); err != nil {
			return outcome{}, fmt.Errorf("insert pending acknowledgement: %w", err)
		}
	}

	if _, err := InvalidateAllStatusForSite(ctx, tx, t.participantID, archived.SiteID()); err != nil {
		return outcome{}, err
	}

	if archived.Reason != ArchiveReasonROSComplete {
		if err := tx.MarkParticipantWithdrawn(ctx, t.participantID); err != nil {
			return outcome{}, fmt.Errorf("withdraw participant: %w", err)
		}
	}
	return outcome{}, nil
}

// hireToArchive picks the current hire an archive request refers to: the
// compared record when it is a hire, else the acting employer's hire, else
// a hire at one of the user's sites, else the newest hire.
func (t *transition) hireToArchive() *StatusRecord {
	if t.current != nil && IsHired(t.current.Status) {
		return t.current
	}
	if len(t.hired) == 0 {
		return nil
	}
	for i := range t.hired {
		if t.hired[i].EmployerID == t.employerID {
			return &t.hired[i]
		}
	}
	for i := range t.hired {
		if t.user.HasSite(t.hired[i].Site()) {
			return &t.hired[i]
		}
	}
	return &t.hired[0]
}

// ─── HIRED ───────────────────────────────────────────────────────────────────

type hireHandler struct{}

func (hireHandler) apply(ctx context.Context, tx Tx, t *transition) (outcome, error) {
	site := t.data.SiteID()
	if _, err := InvalidateAllStatusForSite(ctx, tx, t.participantID, site); err != nil {
		return outcome{}, err
	}

	// A claim at another site stays current alongside the new hire.
	if t.current != nil && t.current.Site() != site {
		return outcome{
			additional:    additionalData{PreviousStatus: t.current.ID},
			skipSupersede: true,
		}, nil
	}
	for _, h := range t.hired {
		if h.Site() != site {
			return outcome{additional: additionalData{PreviousStatus: h.ID}}, nil
		}
	}
	return outcome{}, nil
}

// ─── PROSPECTING ─────────────────────────────────────────────────────────────

type prospectHandler struct{}

func (prospectHandler) apply(ctx context.Context, tx Tx, t *transition) (outcome, error) {
	if _, err := InvalidateAllStatusForSite(ctx, tx, t.participantID, t.data.SiteID()); err != nil {
		return outcome{}, err
	}
	return outcome{}, nil
}

// ─── REJECTED ────────────────────────────────────────────────────────────────

type rejectHandler struct{}

func (rejectHandler) apply(ctx context.Context, tx Tx, t *transition) (outcome, error) {
	cur := t.current
	if cur == nil || cur.Status == StatusRejectAcknowledgement {
		return outcome{}, nil
	}

	ack := &RejectAcknowledgementData{
		Common:      Common{Site: cur.Site()},
		RefStatusID: cur.ID,
		RefStatus:   cur.Status,
	}
	if rejected, ok := t.data.(*RejectedData); ok {
		ack.FinalStatus = rejected.FinalStatus
	}
	employerID := cur.EmployerID
	if employerID == "" {
		employerID = t.employerID
	}
	if _, err := tx.InsertStatus(ctx, StatusRecord{
		ParticipantID: t.participantID,
		EmployerID:    employerID,
		Status:        StatusRejectAcknowledgement,
		Current:       true,
		Data:          ack,
	}); err != nil {
		return outcome{}, fmt.Errorf("insert reject acknowledgement: %w", err)
	}
	return outcome{}, nil
}

// mergeAdditional folds handler annotations into the new record's payload.
func mergeAdditional(p Payload, a additionalData) {
	if a.PreviousStatus == 0 {
		return
	}
	if h, ok := p.(*HiredData); ok {
		h.PreviousStatus = a.PreviousStatus
	}
}
