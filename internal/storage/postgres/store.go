// Package postgres provides the PostgreSQL-backed status store used in
// production.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/status-service/internal/pipeline"
	"workforce/status-service/internal/storage/postgres/migrations"
)

// Store persists participant statuses in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ pipeline.Store = (*Store)(nil)

// NewStore returns a Store over an already verified pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := string(content)
		if i := strings.Index(up, "-- +migrate Down"); i != -1 {
			up = up[:i]
		}
		if _, err := s.pool.Exec(ctx, up); err != nil {
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
	}
	return nil
}

// WithTransaction implements pipeline.UnitOfWork. Current-record reads
// inside the transaction take row locks, so concurrent transitions on the
// same record queue behind each other and then re-validate.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx pipeline.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

// CreateParticipant inserts or refreshes a participant as intake would.
func (s *Store) CreateParticipant(ctx context.Context, p pipeline.Participant) error {
	interested := p.Interested
	if interested == "" {
		interested = "yes"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, first_name, last_name, email_address, phone_number, interested)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   first_name    = EXCLUDED.first_name,
		   last_name     = EXCLUDED.last_name,
		   email_address = EXCLUDED.email_address,
		   phone_number  = EXCLUDED.phone_number,
		   interested    = EXCLUDED.interested`,
		p.ID, p.FirstName, p.LastName, p.EmailAddress, p.PhoneNumber, interested,
	)
	if err != nil {
		return fmt.Errorf("createParticipant: %w", err)
	}
	return nil
}

// ListStatuses implements pipeline.Store.
func (s *Store) ListStatuses(ctx context.Context, participantID string) ([]pipeline.StatusRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = $1 ORDER BY id ASC`,
		participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listStatuses query: %w", err)
	}
	return collectStatuses(rows)
}

// ListOutstandingAcknowledgements implements pipeline.Store.
func (s *Store) ListOutstandingAcknowledgements(ctx context.Context, olderThan time.Time) ([]pipeline.StatusRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE current AND status IN ($1, $2) AND created_at < $3
		  ORDER BY employer_id, id`,
		string(pipeline.StatusPendingAcknowledgement), string(pipeline.StatusRejectAcknowledgement), olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("listOutstandingAcknowledgements query: %w", err)
	}
	return collectStatuses(rows)
}

// ─── Transaction-scoped queries ──────────────────────────────────────────────

// txStore implements pipeline.Tx over one pgx.Tx.
type txStore struct {
	tx pgx.Tx
}

const statusColumns = `id, participant_id, employer_id, status, current, data, created_at`

const inProgressFilter = `status IN ('prospecting', 'interviewing', 'offer_made')`

func siteKey(site int64) string { return strconv.FormatInt(site, 10) }

func (t *txStore) GetStatus(ctx context.Context, id int64) (pipeline.StatusRecord, error) {
	rec, err := scanStatus(t.tx.QueryRow(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.StatusRecord{}, pipeline.ErrStatusNotFound
	}
	if err != nil {
		return pipeline.StatusRecord{}, fmt.Errorf("getStatus: %w", err)
	}
	return rec, nil
}

func (t *txStore) CurrentHiredStatuses(ctx context.Context, participantID string) ([]pipeline.StatusRecord, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = $1 AND current AND status = $2
		  ORDER BY id DESC
		  FOR UPDATE`,
		participantID, string(pipeline.StatusHired),
	)
	if err != nil {
		return nil, fmt.Errorf("currentHiredStatuses query: %w", err)
	}
	return collectStatuses(rows)
}

func (t *txStore) CurrentStatusForEmployer(ctx context.Context, participantID, employerID string) (*pipeline.StatusRecord, error) {
	return t.first(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = $1 AND employer_id = $2 AND current
		  ORDER BY id DESC LIMIT 1
		  FOR UPDATE`,
		participantID, employerID,
	)
}

func (t *txStore) CurrentInProgressForSite(ctx context.Context, participantID string, site int64) (*pipeline.StatusRecord, error) {
	return t.first(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = $1 AND current AND `+inProgressFilter+`
		    AND data->>'site' = $2
		  ORDER BY id DESC LIMIT 1
		  FOR UPDATE`,
		participantID, siteKey(site),
	)
}

func (t *txStore) CurrentStatusOfType(ctx context.Context, participantID string, status pipeline.Status) (*pipeline.StatusRecord, error) {
	return t.first(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = $1 AND current AND status = $2
		  ORDER BY id DESC LIMIT 1`,
		participantID, string(status),
	)
}

func (t *txStore) InvalidateStatus(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx,
		`UPDATE participant_statuses SET current = false WHERE id = $1 AND current`, id,
	); err != nil {
		return fmt.Errorf("invalidateStatus: %w", err)
	}
	return nil
}

func (t *txStore) InvalidateInProgressForSite(ctx context.Context, participantID string, site int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE participant_statuses SET current = false
		  WHERE participant_id = $1 AND current AND `+inProgressFilter+`
		    AND data->>'site' = $2`,
		participantID, siteKey(site),
	)
	if err != nil {
		return 0, fmt.Errorf("invalidateInProgressForSite: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txStore) InsertStatus(ctx context.Context, rec pipeline.StatusRecord) (pipeline.StatusRecord, error) {
	data, err := pipeline.EncodePayload(rec.Data)
	if err != nil {
		return pipeline.StatusRecord{}, err
	}
	err = t.tx.QueryRow(ctx,
		`INSERT INTO participant_statuses (participant_id, employer_id, status, current, data)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 RETURNING id, created_at`,
		rec.ParticipantID, rec.EmployerID, string(rec.Status), rec.Current, string(data),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return pipeline.StatusRecord{}, fmt.Errorf("insertStatus: %w", err)
	}
	return rec, nil
}

func (t *txStore) UpdateStatusData(ctx context.Context, id int64, data pipeline.Payload) error {
	raw, err := pipeline.EncodePayload(data)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx,
		`UPDATE participant_statuses SET data = $1::jsonb WHERE id = $2`, string(raw), id,
	); err != nil {
		return fmt.Errorf("updateStatusData: %w", err)
	}
	return nil
}

func (t *txStore) GetParticipant(ctx context.Context, id string) (pipeline.Participant, error) {
	var p pipeline.Participant
	err := t.tx.QueryRow(ctx,
		`SELECT id, first_name, last_name, email_address, phone_number, interested, withdrawn_at
		   FROM participants WHERE id = $1`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.EmailAddress, &p.PhoneNumber, &p.Interested, &p.WithdrawnAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Participant{}, pipeline.ErrParticipantNotFound
	}
	if err != nil {
		return pipeline.Participant{}, fmt.Errorf("getParticipant: %w", err)
	}
	return p, nil
}

func (t *txStore) MarkParticipantWithdrawn(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE participants SET interested = $1, withdrawn_at = NOW() WHERE id = $2`,
		pipeline.InterestWithdrawn, id,
	)
	if err != nil {
		return fmt.Errorf("markParticipantWithdrawn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrParticipantNotFound
	}
	return nil
}

func (t *txStore) first(ctx context.Context, query string, args ...any) (*pipeline.StatusRecord, error) {
	rec, err := scanStatus(t.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	return &rec, nil
}

// ─── Scanning ────────────────────────────────────────────────────────────────

func scanStatus(row pgx.Row) (pipeline.StatusRecord, error) {
	var (
		rec    pipeline.StatusRecord
		status string
		data   []byte
	)
	if err := row.Scan(&rec.ID, &rec.ParticipantID, &rec.EmployerID, &status, &rec.Current, &data, &rec.CreatedAt); err != nil {
		return pipeline.StatusRecord{}, err
	}
	rec.Status = pipeline.Status(status)
	payload, err := pipeline.DecodePayload(rec.Status, data)
	if err != nil {
		return pipeline.StatusRecord{}, err
	}
	rec.Data = payload
	return rec, nil
}

func collectStatuses(rows pgx.Rows) ([]pipeline.StatusRecord, error) {
	defer rows.Close()

	var out []pipeline.StatusRecord
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
