package pipeline_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"workforce/status-service/internal/pipeline"
	"workforce/status-service/internal/storage/sqlite"
)

const (
	siteA int64 = 101
	siteB int64 = 202
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []pipeline.StatusChanged
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, ev pipeline.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) all() []pipeline.StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.StatusChanged(nil), p.events...)
}

type testEnv struct {
	store *sqlite.Store
	coord *pipeline.Coordinator
	pub   *recordingPublisher
}

func openTempStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "status.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func newEnv(t *testing.T, participantIDs ...string) *testEnv {
	t.Helper()
	store := openTempStore(t)
	for _, id := range participantIDs {
		if err := store.CreateParticipant(context.Background(), pipeline.Participant{
			ID:           id,
			FirstName:    "First " + id,
			LastName:     "Last " + id,
			EmailAddress: id + "@example.com",
			PhoneNumber:  "555-" + id,
		}); err != nil {
			t.Fatalf("create participant %s: %v", id, err)
		}
	}
	pub := &recordingPublisher{}
	return &testEnv{store: store, coord: pipeline.NewCoordinator(store, pub), pub: pub}
}

func employer(id string, sites ...int64) pipeline.ActingUser {
	return pipeline.ActingUser{ID: id, Sites: sites, IsEmployer: true}
}

// move performs a transition for user acting as its own employer and fails
// the test on any infrastructure error.
func (e *testEnv) move(t *testing.T, user pipeline.ActingUser, participantID string, status pipeline.Status, data pipeline.Payload) pipeline.Result {
	t.Helper()
	res, err := e.coord.Transition(context.Background(), pipeline.TransitionRequest{
		EmployerID:    user.ID,
		ParticipantID: participantID,
		Status:        status,
		Data:          data,
		User:          user,
	})
	if err != nil {
		t.Fatalf("Transition(%s, %s, %s): %v", user.ID, participantID, status, err)
	}
	return res
}

// mustMove is move that also requires success.
func (e *testEnv) mustMove(t *testing.T, user pipeline.ActingUser, participantID string, status pipeline.Status, data pipeline.Payload) pipeline.Result {
	t.Helper()
	res := e.move(t, user, participantID, status, data)
	if !res.OK() {
		t.Fatalf("Transition(%s, %s, %s) rejected: %s (%s)", user.ID, participantID, status, res.Failure, res.Message)
	}
	return res
}

// hire walks user through the full pipeline at site and returns the HIRED result.
func (e *testEnv) hire(t *testing.T, user pipeline.ActingUser, participantID string, site int64) pipeline.Result {
	t.Helper()
	e.offer(t, user, participantID, site)
	return e.mustMove(t, user, participantID, pipeline.StatusHired, &pipeline.HiredData{
		Common:       pipeline.Common{Site: site},
		HiredDate:    "2026-01-05",
		StartDate:    "2026-02-01",
		PositionType: "full-time",
	})
}

// offer walks user to OFFER_MADE at site.
func (e *testEnv) offer(t *testing.T, user pipeline.ActingUser, participantID string, site int64) pipeline.Result {
	t.Helper()
	e.mustMove(t, user, participantID, pipeline.StatusProspecting, &pipeline.ProspectingData{Common: pipeline.Common{Site: site}})
	e.mustMove(t, user, participantID, pipeline.StatusInterviewing, &pipeline.InterviewingData{ContactedDate: "2026-01-02"})
	return e.mustMove(t, user, participantID, pipeline.StatusOfferMade, nil)
}

func (e *testEnv) history(t *testing.T, participantID string) []pipeline.StatusRecord {
	t.Helper()
	records, err := e.coord.History(context.Background(), participantID)
	if err != nil {
		t.Fatalf("History(%s): %v", participantID, err)
	}
	return records
}

func (e *testEnv) record(t *testing.T, participantID string, id int64) pipeline.StatusRecord {
	t.Helper()
	for _, rec := range e.history(t, participantID) {
		if rec.ID == id {
			return rec
		}
	}
	t.Fatalf("record %d not found for %s", id, participantID)
	return pipeline.StatusRecord{}
}

func (e *testEnv) participant(t *testing.T, id string) pipeline.Participant {
	t.Helper()
	var p pipeline.Participant
	err := e.store.WithTransaction(context.Background(), func(tx pipeline.Tx) error {
		var err error
		p, err = tx.GetParticipant(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("GetParticipant(%s): %v", id, err)
	}
	return p
}

func current(records []pipeline.StatusRecord) []pipeline.StatusRecord {
	var out []pipeline.StatusRecord
	for _, r := range records {
		if r.Current {
			out = append(out, r)
		}
	}
	return out
}

// assertExclusiveInProgress checks that no (participant, site) pair holds
// more than one current in-progress record.
func assertExclusiveInProgress(t *testing.T, records []pipeline.StatusRecord) {
	t.Helper()
	seen := map[int64]int64{}
	for _, r := range records {
		if !r.Current || !pipeline.IsInProgress(r.Status) {
			continue
		}
		if prev, ok := seen[r.Site()]; ok {
			t.Errorf("site %d has two current in-progress records: %d and %d", r.Site(), prev, r.ID)
		}
		seen[r.Site()] = r.ID
	}
}
