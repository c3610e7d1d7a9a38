// Package sqlite provides a SQLite-backed status store, used for local
// development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"workforce/status-service/internal/pipeline"
	"workforce/status-service/internal/storage/sqlite/migrations"
)

// Store persists participant statuses in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ pipeline.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite status store at path and applies embedded migrations.
//
// Writers are serialised through a single connection; every transaction
// takes the write lock up front so read-then-write sequences cannot race.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WithTransaction implements pipeline.UnitOfWork.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx pipeline.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{q: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateParticipant inserts or refreshes a participant as intake would.
func (s *Store) CreateParticipant(ctx context.Context, p pipeline.Participant) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("participant id is required")
	}
	interested := p.Interested
	if interested == "" {
		interested = "yes"
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO participants (id, first_name, last_name, email_address, phone_number, interested)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   email_address = excluded.email_address,
		   phone_number = excluded.phone_number,
		   interested = excluded.interested`,
		p.ID, p.FirstName, p.LastName, p.EmailAddress, p.PhoneNumber, interested,
	)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// ListStatuses implements pipeline.Store.
func (s *Store) ListStatuses(ctx context.Context, participantID string) ([]pipeline.StatusRecord, error) {
	return queryStatuses(ctx, s.sqlDB,
		`SELECT `+statusColumns+` FROM participant_statuses WHERE participant_id = ? ORDER BY id ASC`,
		participantID,
	)
}

// ListOutstandingAcknowledgements implements pipeline.Store.
func (s *Store) ListOutstandingAcknowledgements(ctx context.Context, olderThan time.Time) ([]pipeline.StatusRecord, error) {
	return queryStatuses(ctx, s.sqlDB,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE current = 1 AND status IN (?, ?) AND created_at < ?
		  ORDER BY employer_id, id`,
		string(pipeline.StatusPendingAcknowledgement), string(pipeline.StatusRejectAcknowledgement), toMillis(olderThan),
	)
}

// ─── Transaction-scoped queries ──────────────────────────────────────────────

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txStore implements pipeline.Tx over one *sql.Tx.
type txStore struct {
	q   queryer
	now func() time.Time
}

const statusColumns = `id, participant_id, employer_id, status, current, data, created_at`

const inProgressFilter = `status IN ('prospecting', 'interviewing', 'offer_made')`

func (t *txStore) GetStatus(ctx context.Context, id int64) (pipeline.StatusRecord, error) {
	rec, err := scanStatus(t.q.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.StatusRecord{}, pipeline.ErrStatusNotFound
	}
	if err != nil {
		return pipeline.StatusRecord{}, fmt.Errorf("get status: %w", err)
	}
	return rec, nil
}

func (t *txStore) CurrentHiredStatuses(ctx context.Context, participantID string) ([]pipeline.StatusRecord, error) {
	return queryStatuses(ctx, t.q,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = ? AND current = 1 AND status = ?
		  ORDER BY id DESC`,
		participantID, string(pipeline.StatusHired),
	)
}

func (t *txStore) CurrentStatusForEmployer(ctx context.Context, participantID, employerID string) (*pipeline.StatusRecord, error) {
	return t.first(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = ? AND employer_id = ? AND current = 1
		  ORDER BY id DESC LIMIT 1`,
		participantID, employerID,
	)
}

func (t *txStore) CurrentInProgressForSite(ctx context.Context, participantID string, site int64) (*pipeline.StatusRecord, error) {
	return t.first(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = ? AND current = 1 AND `+inProgressFilter+`
		    AND json_extract(data, '$.site') = ?
		  ORDER BY id DESC LIMIT 1`,
		participantID, site,
	)
}

func (t *txStore) CurrentStatusOfType(ctx context.Context, participantID string, status pipeline.Status) (*pipeline.StatusRecord, error) {
	return t.first(ctx,
		`SELECT `+statusColumns+` FROM participant_statuses
		  WHERE participant_id = ? AND current = 1 AND status = ?
		  ORDER BY id DESC LIMIT 1`,
		participantID, string(status),
	)
}

func (t *txStore) InvalidateStatus(ctx context.Context, id int64) error {
	if _, err := t.q.ExecContext(ctx,
		`UPDATE participant_statuses SET current = 0 WHERE id = ? AND current = 1`, id,
	); err != nil {
		return fmt.Errorf("invalidate status: %w", err)
	}
	return nil
}

func (t *txStore) InvalidateInProgressForSite(ctx context.Context, participantID string, site int64) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE participant_statuses SET current = 0
		  WHERE participant_id = ? AND current = 1 AND `+inProgressFilter+`
		    AND json_extract(data, '$.site') = ?`,
		participantID, site,
	)
	if err != nil {
		return 0, fmt.Errorf("invalidate site statuses: %w", err)
	}
	return res.RowsAffected()
}

func (t *txStore) InsertStatus(ctx context.Context, rec pipeline.StatusRecord) (pipeline.StatusRecord, error) {
	data, err := pipeline.EncodePayload(rec.Data)
	if err != nil {
		return pipeline.StatusRecord{}, err
	}
	rec.CreatedAt = t.now().UTC().Truncate(time.Millisecond)
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO participant_statuses (participant_id, employer_id, status, current, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ParticipantID, rec.EmployerID, string(rec.Status), rec.Current, string(data), toMillis(rec.CreatedAt),
	)
	if err != nil {
		return pipeline.StatusRecord{}, fmt.Errorf("insert status: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return pipeline.StatusRecord{}, fmt.Errorf("insert status id: %w", err)
	}
	return rec, nil
}

func (t *txStore) UpdateStatusData(ctx context.Context, id int64, data pipeline.Payload) error {
	raw, err := pipeline.EncodePayload(data)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx,
		`UPDATE participant_statuses SET data = ? WHERE id = ?`, string(raw), id,
	); err != nil {
		return fmt.Errorf("update status data: %w", err)
	}
	return nil
}

func (t *txStore) GetParticipant(ctx context.Context, id string) (pipeline.Participant, error) {
	var (
		p           pipeline.Participant
		withdrawnAt sql.NullInt64
	)
	err := t.q.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email_address, phone_number, interested, withdrawn_at
		   FROM participants WHERE id = ?`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.EmailAddress, &p.PhoneNumber, &p.Interested, &withdrawnAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Participant{}, pipeline.ErrParticipantNotFound
	}
	if err != nil {
		return pipeline.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	if withdrawnAt.Valid {
		at := fromMillis(withdrawnAt.Int64)
		p.WithdrawnAt = &at
	}
	return p, nil
}

func (t *txStore) MarkParticipantWithdrawn(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE participants SET interested = ?, withdrawn_at = ? WHERE id = ?`,
		pipeline.InterestWithdrawn, toMillis(t.now()), id,
	)
	if err != nil {
		return fmt.Errorf("withdraw participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pipeline.ErrParticipantNotFound
	}
	return nil
}

func (t *txStore) first(ctx context.Context, query string, args ...any) (*pipeline.StatusRecord, error) {
	rec, err := scanStatus(t.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	return &rec, nil
}

// ─── Scanning ────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (pipeline.StatusRecord, error) {
	var (
		rec       pipeline.StatusRecord
		status    string
		current   int64
		data      string
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.ParticipantID, &rec.EmployerID, &status, &current, &data, &createdAt); err != nil {
		return pipeline.StatusRecord{}, err
	}
	rec.Status = pipeline.Status(status)
	rec.Current = current != 0
	rec.CreatedAt = fromMillis(createdAt)
	payload, err := pipeline.DecodePayload(rec.Status, []byte(data))
	if err != nil {
		return pipeline.StatusRecord{}, err
	}
	rec.Data = payload
	return rec, nil
}

func queryStatuses(ctx context.Context, q queryer, query string, args ...any) ([]pipeline.StatusRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
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
