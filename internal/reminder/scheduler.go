// Package reminder periodically nudges employers who still owe an
// acknowledgement for a hire archived or a claim rejected under them.
package reminder

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"workforce/status-service/internal/events"
	"workforce/status-service/internal/pipeline"
)

// Lister returns acknowledgement records that are still current.
type Lister interface {
	ListOutstandingAcknowledgements(ctx context.Context, olderThan time.Time) ([]pipeline.StatusRecord, error)
}

// Notifier delivers one reminder per employer.
type Notifier interface {
	PublishAcknowledgementReminder(ctx context.Context, r events.AcknowledgementReminder) error
}

// Scheduler wraps robfig/cron and runs the reminder sweep.
type Scheduler struct {
	cron     *cron.Cron
	lister   Lister
	notifier Notifier
	minAge   time.Duration
	now      func() time.Time
	spec     string // cron spec, e.g. "@every 24h"
}

// New creates a Scheduler that sweeps every intervalHours hours and reminds
// about records older than minAgeHours.
func New(lister Lister, notifier Notifier, intervalHours, minAgeHours int) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cron.DefaultLogger)),
		lister:   lister,
		notifier: notifier,
		minAge:   time.Duration(minAgeHours) * time.Hour,
		now:      time.Now,
		spec:     fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the sweep and starts the cron loop. One sweep also runs
// immediately so a restart does not delay reminders by a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[reminder] Cron started, spec: %s", s.spec)

	go s.sweep(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[reminder] Cron stopped")
}

func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		log.Printf("[reminder] Sweep error: %v", err)
		return
	}
	log.Printf("[reminder] Sweep complete, %d reminder(s) sent", n)
}

// RunOnce sends one reminder per employer with outstanding acknowledgements
// and returns how many were sent. Records the employer hid are skipped.
// A failed delivery is logged and the sweep continues.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	records, err := s.lister.ListOutstandingAcknowledgements(ctx, s.now().Add(-s.minAge))
	if err != nil {
		return 0, fmt.Errorf("list outstanding acknowledgements: %w", err)
	}

	byEmployer := map[string]*events.AcknowledgementReminder{}
	for i := range records {
		rec := &records[i]
		if rec.EmployerID == "" || rec.HiddenFor(rec.EmployerID) {
			continue
		}
		r, ok := byEmployer[rec.EmployerID]
		if !ok {
			r = &events.AcknowledgementReminder{EmployerID: rec.EmployerID, Oldest: rec.CreatedAt}
			byEmployer[rec.EmployerID] = r
		}
		r.StatusIDs = append(r.StatusIDs, rec.ID)
		if rec.CreatedAt.Before(r.Oldest) {
			r.Oldest = rec.CreatedAt
		}
	}

	employers := make([]string, 0, len(byEmployer))
	for id := range byEmployer {
		employers = append(employers, id)
	}
	sort.Strings(employers)

	sent := 0
	for _, id := range employers {
		if err := s.notifier.PublishAcknowledgementReminder(ctx, *byEmployer[id]); err != nil {
			log.Printf("[reminder] Notify %s failed: %v", id, err)
			continue
		}
		sent++
	}
	return sent, nil
}
