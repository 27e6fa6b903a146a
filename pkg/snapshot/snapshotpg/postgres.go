// Package snapshotpg stores snapshots in PostgreSQL.
package snapshotpg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/profile"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Schema creates the snapshot table. Migrate runs it.
const Schema = `
CREATE TABLE IF NOT EXISTS profile_snapshots (
	id           UUID PRIMARY KEY,
	requester_id TEXT NOT NULL,
	subject_key  TEXT NOT NULL,
	profile      JSONB NOT NULL,
	summary      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS profile_snapshots_pair_idx
	ON profile_snapshots (requester_id, subject_key, created_at DESC);`

// PostgresStore implements snapshot.Store.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ snapshot.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (r *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return snapshot.Wrap(snapshot.ErrSave, err).WithDetail("step", "migrate")
	}
	return nil
}

// Save inserts a new row. Snapshots are never updated.
func (r *PostgresStore) Save(ctx context.Context, s snapshot.Snapshot) (string, error) {
	s, err := snapshot.Prepare(s, r.now())
	if err != nil {
		return "", err
	}
	row, err := toPersistence(s)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO profile_snapshots (
			id, requester_id, subject_key, profile, summary, created_at
		) VALUES (
			:id, :requester_id, :subject_key, :profile, :summary, :created_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return "", snapshot.Wrap(snapshot.ErrConflict, err).WithDetail("id", s.ID)
		}
		return "", snapshot.Wrap(snapshot.ErrSave, err).WithDetail("id", s.ID)
	}
	return s.ID, nil
}

func (r *PostgresStore) Latest(ctx context.Context, requesterID, subjectKey string) (*snapshot.Snapshot, error) {
	var row snapshotRow
	query := `
		SELECT id, requester_id, subject_key, profile, summary, created_at
		FROM profile_snapshots
		WHERE requester_id = $1 AND subject_key = $2
		ORDER BY created_at DESC
		LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, requesterID, subjectKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshot.NotFound(requesterID, subjectKey)
		}
		return nil, snapshot.Wrap(snapshot.ErrLoad, err)
	}
	return toDomain(row)
}

func (r *PostgresStore) List(ctx context.Context, requesterID, subjectKey string) ([]*snapshot.Snapshot, error) {
	var rows []snapshotRow
	query := `
		SELECT id, requester_id, subject_key, profile, summary, created_at
		FROM profile_snapshots
		WHERE requester_id = $1 AND subject_key = $2
		ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, requesterID, subjectKey); err != nil {
		return nil, snapshot.Wrap(snapshot.ErrLoad, err)
	}

	out := make([]*snapshot.Snapshot, 0, len(rows))
	for _, row := range rows {
		s, err := toDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

type snapshotRow struct {
	ID          string    `db:"id"`
	RequesterID string    `db:"requester_id"`
	SubjectKey  string    `db:"subject_key"`
	Profile     string    `db:"profile"` // JSONB bound as text
	Summary     string    `db:"summary"`
	CreatedAt   time.Time `db:"created_at"`
}

func toPersistence(s snapshot.Snapshot) (snapshotRow, error) {
	p, err := json.Marshal(s.Profile)
	if err != nil {
		return snapshotRow{}, snapshot.Wrap(snapshot.ErrEncode, err)
	}
	sum, err := json.Marshal(s.Summary)
	if err != nil {
		return snapshotRow{}, snapshot.Wrap(snapshot.ErrEncode, err)
	}
	return snapshotRow{
		ID:          s.ID,
		RequesterID: s.RequesterID,
		SubjectKey:  s.SubjectKey,
		Profile:     string(p),
		Summary:     string(sum),
		CreatedAt:   s.CreatedAt,
	}, nil
}

func toDomain(row snapshotRow) (*snapshot.Snapshot, error) {
	s := &snapshot.Snapshot{
		ID:          row.ID,
		RequesterID: row.RequesterID,
		SubjectKey:  row.SubjectKey,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(row.Profile), &p); err != nil {
		return nil, snapshot.Wrap(snapshot.ErrDecode, err).WithDetail("id", row.ID)
	}
	if err := json.Unmarshal([]byte(row.Summary), &s.Summary); err != nil {
		return nil, snapshot.Wrap(snapshot.ErrDecode, err).WithDetail("id", row.ID)
	}
	s.Profile = p
	return s, nil
}
