package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"workforce/status-service/internal/events"
	"workforce/status-service/internal/pipeline"
)

type fakeLister struct {
	records   []pipeline.StatusRecord
	err       error
	olderThan time.Time
}

func (f *fakeLister) ListOutstandingAcknowledgements(_ context.Context, olderThan time.Time) ([]pipeline.StatusRecord, error) {
	f.olderThan = olderThan
	return f.records, f.err
}

type fakeNotifier struct {
	got    []events.AcknowledgementReminder
	failOn string
}

func (f *fakeNotifier) PublishAcknowledgementReminder(_ context.Context, r events.AcknowledgementReminder) error {
	if r.EmployerID == f.failOn {
		return errors.New("redis down")
	}
	f.got = append(f.got, r)
	return nil
}

var base = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func ack(id int64, employer string, age time.Duration, hiddenFor ...string) pipeline.StatusRecord {
	return pipeline.StatusRecord{
		ID:         id,
		EmployerID: employer,
		Status:     pipeline.StatusPendingAcknowledgement,
		Current:    true,
		Data:       &pipeline.ArchivedData{Common: pipeline.Common{Site: 1, HiddenFor: hiddenFor}},
		CreatedAt:  base.Add(-age),
	}
}

func newTestScheduler(l Lister, n Notifier) *Scheduler {
	s := New(l, n, 24, 48)
	s.now = func() time.Time { return base }
	return s
}

func TestRunOnce_GroupsByEmployer(t *testing.T) {
	lister := &fakeLister{records: []pipeline.StatusRecord{
		ack(1, "emp-b", 50*time.Hour),
		ack(2, "emp-a", 72*time.Hour),
		ack(3, "emp-b", 96*time.Hour),
	}}
	notifier := &fakeNotifier{}

	sent, err := newTestScheduler(lister, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if want := base.Add(-48 * time.Hour); !lister.olderThan.Equal(want) {
		t.Errorf("olderThan = %v, want %v", lister.olderThan, want)
	}

	if notifier.got[0].EmployerID != "emp-a" || notifier.got[1].EmployerID != "emp-b" {
		t.Fatalf("reminders not in employer order: %+v", notifier.got)
	}
	b := notifier.got[1]
	if len(b.StatusIDs) != 2 {
		t.Errorf("emp-b statusIds = %v, want 2 entries", b.StatusIDs)
	}
	if !b.Oldest.Equal(base.Add(-96 * time.Hour)) {
		t.Errorf("emp-b oldest = %v", b.Oldest)
	}
}

func TestRunOnce_SkipsRecordsHiddenByEmployer(t *testing.T) {
	lister := &fakeLister{records: []pipeline.StatusRecord{
		ack(1, "emp-a", 50*time.Hour, "emp-a"),
		ack(2, "emp-b", 50*time.Hour, "someone-else"),
	}}
	notifier := &fakeNotifier{}

	sent, err := newTestScheduler(lister, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sent != 1 || notifier.got[0].EmployerID != "emp-b" {
		t.Errorf("got %+v, want only emp-b", notifier.got)
	}
}

func TestRunOnce_ContinuesAfterNotifyFailure(t *testing.T) {
	lister := &fakeLister{records: []pipeline.StatusRecord{
		ack(1, "emp-a", 50*time.Hour),
		ack(2, "emp-b", 50*time.Hour),
	}}
	notifier := &fakeNotifier{failOn: "emp-a"}

	sent, err := newTestScheduler(lister, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
}

func TestRunOnce_ListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db gone")}
	if _, err := newTestScheduler(lister, &fakeNotifier{}).RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&fakeLister{}, &fakeNotifier{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}

func TestStart_RejectsBadSpec(t *testing.T) {
	s := newTestScheduler(&fakeLister{}, &fakeNotifier{})
	s.spec = "@every banana"
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}
