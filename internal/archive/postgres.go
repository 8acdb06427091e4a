// Package archive keeps an insert-only audit log of tally outcomes in
// Postgres. The git journal is the source of truth; the archive exists for
// querying across runs and is optional: a swarm without DATABASE_URL simply
// runs without it.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type TallyRecord struct {
	ProposalID string
	Title      string
	Branch     string
	Approve    int
	Reject     int
	Revise     int
	Abstain    int
	Decision   string
	DecidedAt  time.Time
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tally_log (
	id BIGSERIAL PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	title TEXT NOT NULL,
	branch TEXT NOT NULL,
	approve INT NOT NULL,
	reject INT NOT NULL,
	revise INT NOT NULL,
	abstain INT NOT NULL,
	decision TEXT NOT NULL,
	decided_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tally_log_proposal ON tally_log(proposal_id);
`

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tally log table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// RecordTally appends one audit row. Rows are never updated or deleted.
func (s *Store) RecordTally(ctx context.Context, rec TallyRecord) error {
	decidedAt := rec.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tally_log (proposal_id, title, branch, approve, reject, revise, abstain, decision, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ProposalID, rec.Title, rec.Branch,
		rec.Approve, rec.Reject, rec.Revise, rec.Abstain,
		rec.Decision, decidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tally record: %w", err)
	}
	return nil
}

// ListTallies returns the audit rows for a proposal, oldest first.
func (s *Store) ListTallies(ctx context.Context, proposalID string) ([]TallyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proposal_id, title, branch, approve, reject, revise, abstain, decision, decided_at
		FROM tally_log WHERE proposal_id = $1 ORDER BY id`,
		proposalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tally log: %w", err)
	}
	defer rows.Close()

	var records []TallyRecord
	for rows.Next() {
		var rec TallyRecord
		if err := rows.Scan(&rec.ProposalID, &rec.Title, &rec.Branch,
			&rec.Approve, &rec.Reject, &rec.Revise, &rec.Abstain,
			&rec.Decision, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan tally record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tally log: %w", err)
	}
	return records, nil
}
