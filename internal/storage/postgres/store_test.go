package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"workforce/status-service/internal/db"
	"workforce/status-service/internal/pipeline"
	"workforce/status-service/internal/storage/postgres"
)

// openTestStore connects to STATUS_TEST_DATABASE_URL, migrates and empties
// the tables. The test is skipped when the variable is unset.
func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("STATUS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STATUS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := db.OpenPostgres(ctx, url, db.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(pool.Close)

	store := postgres.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE participant_statuses, participants RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}

func TestStore_HireFlow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateParticipant(ctx, pipeline.Participant{ID: "p1", EmailAddress: "p1@example.com"}); err != nil {
		t.Fatalf("CreateParticipant: %v", err)
	}
	coord := pipeline.NewCoordinator(store, nil)
	user := pipeline.ActingUser{ID: "e1", Sites: []int64{7}, IsEmployer: true}

	steps := []pipeline.Status{pipeline.StatusProspecting, pipeline.StatusInterviewing, pipeline.StatusOfferMade, pipeline.StatusHired}
	var last pipeline.Result
	for _, status := range steps {
		data, _ := pipeline.DecodePayload(status, []byte(`{"site":7}`))
		res, err := coord.Transition(ctx, pipeline.TransitionRequest{
			EmployerID:    "e1",
			ParticipantID: "p1",
			Status:        status,
			Data:          data,
			User:          user,
		})
		if err != nil {
			t.Fatalf("Transition(%s): %v", status, err)
		}
		if res.Failure != "" {
			t.Fatalf("Transition(%s) rejected: %s", status, res.Failure)
		}
		last = res
	}

	recs, err := store.ListStatuses(ctx, "p1")
	if err != nil {
		t.Fatalf("ListStatuses: %v", err)
	}
	if len(recs) != len(steps) {
		t.Fatalf("got %d records, want %d", len(recs), len(steps))
	}
	for i, rec := range recs {
		wantCurrent := i == len(recs)-1
		if rec.Current != wantCurrent {
			t.Errorf("record %d (%s) current = %v, want %v", rec.ID, rec.Status, rec.Current, wantCurrent)
		}
	}
	if recs[len(recs)-1].ID != last.ID {
		t.Errorf("last record id = %d, want %d", recs[len(recs)-1].ID, last.ID)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithTransaction(ctx, func(tx pipeline.Tx) error {
		if _, err := tx.GetStatus(ctx, 1); !errors.Is(err, pipeline.ErrStatusNotFound) {
			t.Errorf("GetStatus err = %v", err)
		}
		if err := tx.MarkParticipantWithdrawn(ctx, "ghost"); !errors.Is(err, pipeline.ErrParticipantNotFound) {
			t.Errorf("MarkParticipantWithdrawn err = %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
}
