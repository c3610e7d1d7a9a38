package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EngageStatusNotFound is reported for participants that do not exist.
const EngageStatusNotFound = "not found"

// EngageStatusError is reported when storage failed for one participant.
const EngageStatusError = "error"

// EngageRequest moves every listed participant to PROSPECTING for the
// acting user. Site optionally scopes the new claims.
type EngageRequest struct {
	ParticipantIDs []string
	User           ActingUser
	Site           int64
}

// EngageResult is the per-participant outcome of BulkEngage.
type EngageResult struct {
	ParticipantID string `json:"participantId"`
	Status        string `json:"status"`
	Success       bool   `json:"success"`
}

// BulkEngage prospects each participant in its own transaction so one
// failure never rolls back or blocks the others. Results follow the order
// of req.ParticipantIDs. The returned error joins any storage failures; the
// result slice is complete either way.
func (c *Coordinator) BulkEngage(ctx context.Context, req EngageRequest) ([]EngageResult, error) {
	results := make([]EngageResult, len(req.ParticipantIDs))

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(c.bulkConcurrency)
	for i, id := range req.ParticipantIDs {
		g.Go(func() error {
			res, err := c.engage(ctx, id, req)
			results[i] = res
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("engage %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

func (c *Coordinator) engage(ctx context.Context, participantID string, req EngageRequest) (EngageResult, error) {
	out := EngageResult{ParticipantID: participantID}

	res, err := c.Transition(ctx, TransitionRequest{
		EmployerID:    req.User.ID,
		ParticipantID: participantID,
		Status:        StatusProspecting,
		Data:          &ProspectingData{Common: Common{Site: req.Site}},
		User:          req.User,
	})
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrParticipantNotFound), errors.As(err, &ve):
		out.Status = EngageStatusNotFound
		return out, nil
	case err != nil:
		slog.Error("bulk engage failed", "participantId", participantID, "err", err)
		out.Status = EngageStatusError
		return out, err
	}

	if !res.OK() {
		out.Status = string(res.Failure)
		out.Success = res.Failure != KindInvalidStatusTransition && res.Failure != KindInvalidArchive
		return out, nil
	}
	out.Status = string(res.Status)
	out.Success = true
	return out, nil
}
