package db_test

import (
	"context"
	"testing"

	"workforce/status-service/internal/db"
)

func TestOpenPostgres_RejectsMalformedURL(t *testing.T) {
	_, err := db.OpenPostgres(context.Background(), "postgres://%zz", db.PoolOptions{})
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestOpenRedis_RejectsMalformedURL(t *testing.T) {
	_, err := db.OpenRedis(context.Background(), "not-a-redis-url")
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
}
