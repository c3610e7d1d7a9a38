package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "workforce/status-service/pipeline"

// errRejected rolls the transaction back when a rule rejects the request.
var errRejected = errors.New("transition rejected")

// ─── Coordinator ─────────────────────────────────────────────────────────────

// Coordinator is the single entry point for participant status changes.
// It is transport-agnostic: the HTTP handler and the gRPC server both call it.
type Coordinator struct {
	store           Store
	pub             Publisher
	tracer          trace.Tracer
	now             func() time.Time
	bulkConcurrency int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBulkConcurrency bounds how many participants BulkEngage transitions at once.
func WithBulkConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.bulkConcurrency = n
		}
	}
}

// WithClock overrides the clock used for published events.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracerProvider sets the provider spans are started from. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewCoordinator returns a Coordinator backed by store. pub may be nil.
func NewCoordinator(store Store, pub Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:           store,
		pub:             pub,
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
		bulkConcurrency: 8,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// TransitionRequest asks for a participant to enter Status on behalf of
// EmployerID. CurrentStatusID pins the record the request was made against;
// zero means "whatever is current for this employer".
type TransitionRequest struct {
	EmployerID      string
	ParticipantID   string
	Status          Status
	Data            Payload
	User            ActingUser
	CurrentStatusID int64
}

// Transition validates and applies one status change atomically.
//
// Business-rule rejections come back as a Result with Failure set and a nil
// error; nothing is written in that case. Errors are reserved for malformed
// requests (*ValidationError), a missing participant (ErrParticipantNotFound)
// and storage failures.
func (c *Coordinator) Transition(ctx context.Context, req TransitionRequest) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.Transition", trace.WithAttributes(
		attribute.String("participant.id", req.ParticipantID),
		attribute.String("employer.id", req.EmployerID),
		attribute.String("status.target", string(req.Status)),
	))
	defer span.End()

	res, from, err := c.transition(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if !res.OK() {
		span.SetAttributes(attribute.String("status.failure", string(res.Failure)))
		slog.Debug("transition rejected",
			"participantId", req.ParticipantID, "employerId", req.EmployerID,
			"target", req.Status, "failure", res.Failure, "reason", res.Message)
		return res, nil
	}

	span.SetAttributes(attribute.Int64("status.id", res.ID))
	c.publish(ctx, StatusChanged{
		ParticipantID: req.ParticipantID,
		EmployerID:    req.EmployerID,
		StatusID:      res.ID,
		From:          from,
		To:            res.Status,
		At:            c.now().UTC(),
	})
	return res, nil
}

func (c *Coordinator) transition(ctx context.Context, req TransitionRequest) (Result, Status, error) {
	if req.ParticipantID == "" {
		return Result{}, "", &ValidationError{Msg: "participant id is required"}
	}
	if IsInternalOnly(req.Status) {
		return *rejectStatus(req.Status), "", nil
	}
	if _, ok := validPredecessors[req.Status]; !ok {
		return Result{}, "", &ValidationError{Msg: fmt.Sprintf("unknown participant status %q", req.Status)}
	}

	data := req.Data
	if data == nil {
		data, _ = NewPayload(req.Status)
	}
	if !payloadMatches(req.Status, data) {
		return Result{}, "", &ValidationError{Msg: fmt.Sprintf("payload %T does not match status %s", data, req.Status)}
	}
	// Site defaulting and handler annotations write into the payload.
	data = clonePayload(data)

	t := &transition{
		employerID:    req.EmployerID,
		participantID: req.ParticipantID,
		target:        req.Status,
		data:          data,
		user:          req.User,
	}

	var (
		res  *Result
		from Status
	)
	err := c.store.WithTransaction(ctx, func(tx Tx) error {
		var err error
		res, err = c.apply(ctx, tx, t, req.CurrentStatusID)
		if err != nil {
			return err
		}
		if !res.OK() {
			return errRejected
		}
		from = statusOf(t.current)
		return nil
	})
	if errors.Is(err, errRejected) {
		return *res, "", nil
	}
	if err != nil {
		return Result{}, "", err
	}
	return *res, from, nil
}

// apply runs every read and write of a transition against tx.
func (c *Coordinator) apply(ctx context.Context, tx Tx, t *transition, currentStatusID int64) (*Result, error) {
	// Active hires take precedence over any other claim.
	hired, err := tx.CurrentHiredStatuses(ctx, t.participantID)
	if err != nil {
		return nil, fmt.Errorf("load hired statuses: %w", err)
	}
	t.hired = hired

	// The compared record supplies the hire's site when the payload has none,
	// so it is resolved before hire precedence. Its own rejection still
	// ranks below ALREADY_HIRED.
	rejected, err := t.resolveCurrent(ctx, tx, currentStatusID)
	if err != nil {
		return nil, err
	}
	if len(hired) > 0 && !overridesHire(t.target) && !t.hiresIntoOpenSite() {
		return &Result{
			Failure:  KindAlreadyHired,
			Target:   t.target,
			Current:  StatusHired,
			Existing: &hired[0],
			Message:  "participant is already hired",
		}, nil
	}
	if rejected != nil {
		return rejected, nil
	}

	h := handlers[t.target]
	if pc, ok := h.(prechecker); ok {
		if r, err := pc.precheck(ctx, tx, t); r != nil || err != nil {
			return r, err
		}
	}

	if !IsTransitionAllowed(statusOf(t.current), t.target) {
		return rejectTransition(t.target, t.current,
			fmt.Sprintf("cannot move from %q to %q", statusOf(t.current), t.target)), nil
	}

	if t.data.SiteID() == 0 && t.current != nil {
		setSite(t.data, t.current.Site())
	}

	p, err := tx.GetParticipant(ctx, t.participantID)
	if err != nil {
		return nil, err
	}
	t.participant = p

	var out outcome
	if h != nil {
		if out, err = h.apply(ctx, tx, t); err != nil {
			return nil, err
		}
		if out.early != nil {
			return out.early, nil
		}
	}

	if !out.skipSupersede && t.current != nil && t.current.Status != StatusRejectAcknowledgement {
		if err := tx.InvalidateStatus(ctx, t.current.ID); err != nil {
			return nil, fmt.Errorf("supersede status %d: %w", t.current.ID, err)
		}
	}

	mergeAdditional(t.data, out.additional)
	rec, err := tx.InsertStatus(ctx, StatusRecord{
		ParticipantID: t.participantID,
		EmployerID:    t.employerID,
		Status:        t.target,
		Current:       true,
		Data:          t.data,
	})
	if err != nil {
		return nil, fmt.Errorf("insert status: %w", err)
	}

	res := &Result{Status: rec.Status, ID: rec.ID}
	if returnsContact(rec.Status) {
		res.Contact = &Contact{EmailAddress: p.EmailAddress, PhoneNumber: p.PhoneNumber}
	}
	return res, nil
}

// resolveCurrent loads the record the target is compared against.
func (t *transition) resolveCurrent(ctx context.Context, tx Tx, currentStatusID int64) (*Result, error) {
	if currentStatusID != 0 {
		rec, err := tx.GetStatus(ctx, currentStatusID)
		if errors.Is(err, ErrStatusNotFound) {
			return rejectTransition(t.target, nil, fmt.Sprintf("status %d does not exist", currentStatusID)), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load status %d: %w", currentStatusID, err)
		}
		if rec.ParticipantID != t.participantID {
			return rejectTransition(t.target, &rec, fmt.Sprintf("status %d belongs to another participant", rec.ID)), nil
		}
		if !rec.Current {
			return rejectTransition(t.target, &rec, fmt.Sprintf("status %d is no longer current", rec.ID)), nil
		}
		t.current = &rec
		return nil, nil
	}

	cur, err := tx.CurrentStatusForEmployer(ctx, t.participantID, t.employerID)
	if err != nil {
		return nil, fmt.Errorf("load current status: %w", err)
	}
	// Employers working the same site share its open claim.
	if cur == nil && t.data.SiteID() != 0 {
		if cur, err = tx.CurrentInProgressForSite(ctx, t.participantID, t.data.SiteID()); err != nil {
			return nil, fmt.Errorf("load current site status: %w", err)
		}
	}
	t.current = cur
	return nil, nil
}

// hiresIntoOpenSite reports whether the request hires into a site that
// holds no current hire; such a hire may coexist with hires elsewhere.
func (t *transition) hiresIntoOpenSite() bool {
	site := t.data.SiteID()
	if site == 0 && t.current != nil {
		site = t.current.Site()
	}
	if t.target != StatusHired || site == 0 {
		return false
	}
	for i := range t.hired {
		if t.hired[i].Site() == site {
			return false
		}
	}
	return true
}

// HideStatusForUser suppresses a record from userID's views. Legacy records
// without a site are retired outright instead.
func (c *Coordinator) HideStatusForUser(ctx context.Context, userID string, statusID int64) error {
	if userID == "" {
		return &ValidationError{Msg: "user id is required"}
	}
	ctx, span := c.tracer.Start(ctx, "pipeline.HideStatusForUser", trace.WithAttributes(
		attribute.Int64("status.id", statusID),
	))
	defer span.End()

	return c.store.WithTransaction(ctx, func(tx Tx) error {
		rec, err := tx.GetStatus(ctx, statusID)
		if err != nil {
			return err
		}
		if rec.Site() == 0 {
			return tx.InvalidateStatus(ctx, rec.ID)
		}
		if !hideForUser(rec.Data, userID) {
			return nil
		}
		return tx.UpdateStatusData(ctx, rec.ID, rec.Data)
	})
}

// History returns the participant's full status log, oldest first.
func (c *Coordinator) History(ctx context.Context, participantID string) ([]StatusRecord, error) {
	if participantID == "" {
		return nil, &ValidationError{Msg: "participant id is required"}
	}
	return c.store.ListStatuses(ctx, participantID)
}

// publish announces a committed transition (non-fatal).
func (c *Coordinator) publish(ctx context.Context, ev StatusChanged) {
	if c.pub == nil {
		return
	}
	if err := c.pub.PublishStatusChanged(ctx, ev); err != nil {
		slog.Warn("publish status change failed",
			"participantId", ev.ParticipantID, "statusId", ev.StatusID, "err", err)
	}
}
