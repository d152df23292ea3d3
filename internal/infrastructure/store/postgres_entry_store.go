package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/kafka"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresEntryStore stores stock entries in PostgreSQL.
//
// Every write runs in a transaction holding an advisory lock on the resource
// id, so the availability check a caller performed under the service-level
// resource lock cannot be invalidated by a concurrent writer on another
// connection.
type PostgresEntryStore struct {
	db       *sql.DB
	producer *kafka.Producer
}

func NewPostgresEntryStore(db *sql.DB, producer *kafka.Producer) *PostgresEntryStore {
	return &PostgresEntryStore{
		db:       db,
		producer: producer,
	}
}

// Append stores the drafts in one transaction and publishes them.
func (es *PostgresEntryStore) Append(ctx context.Context, resourceID string, drafts ...Draft) ([]Entry, error) {
	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockResource(ctx, tx, resourceID); err != nil {
		return nil, err
	}

	var version int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM stock_entries WHERE resource_id = $1",
		resourceID,
	).Scan(&version)
	if err != nil {
		return nil, err
	}

	appended := make([]Entry, 0, len(drafts))
	now := time.Now()
	for _, d := range drafts {
		version++
		entry := Entry{
			ID:          uuid.New().String(),
			ResourceID:  resourceID,
			Quantity:    d.Quantity,
			Kind:        d.Kind,
			Status:      d.Status,
			ClaimedFrom: d.ClaimedFrom,
			ExpiresAt:   d.ExpiresAt,
			Note:        d.Note,
			Reference:   d.Reference,
			Version:     version,
			CreatedAt:   now,
		}
		if err := insertEntry(ctx, tx, &entry); err != nil {
			return nil, err
		}
		appended = append(appended, entry)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range appended {
		if err := es.publishAppended(ctx, &appended[i]); err != nil {
			return nil, err
		}
	}

	return appended, nil
}

// Entries returns all entries of a resource ordered by version.
func (es *PostgresEntryStore) Entries(ctx context.Context, resourceID string) ([]Entry, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, resource_id, quantity, kind, status, claimed_from, expires_at, note, ref_type, ref_id, version, created_at
		 FROM stock_entries
		 WHERE resource_id = $1
		 ORDER BY version ASC`,
		resourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AllEntries returns every entry across all resources ordered by creation,
// for replay at boot.
func (es *PostgresEntryStore) AllEntries(ctx context.Context) ([]Entry, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, resource_id, quantity, kind, status, claimed_from, expires_at, note, ref_type, ref_id, version, created_at
		 FROM stock_entries
		 ORDER BY created_at ASC, version ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Release completes a pending claim entry and appends the return draft in
// one transaction. Returns false when the claim is already completed.
func (es *PostgresEntryStore) Release(ctx context.Context, resourceID, claimID string, ret Draft) (bool, error) {
	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := lockResource(ctx, tx, resourceID); err != nil {
		return false, err
	}

	var status Status
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM stock_entries WHERE id = $1 AND resource_id = $2 AND kind = $3",
		claimID, resourceID, KindClaimed,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return false, ErrEntryNotFound
	}
	if err != nil {
		return false, err
	}
	if status != StatusPending {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE stock_entries SET status = $1 WHERE id = $2",
		StatusCompleted, claimID,
	); err != nil {
		return false, err
	}

	var version int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM stock_entries WHERE resource_id = $1",
		resourceID,
	).Scan(&version)
	if err != nil {
		return false, err
	}

	entry := Entry{
		ID:          uuid.New().String(),
		ResourceID:  resourceID,
		Quantity:    ret.Quantity,
		Kind:        ret.Kind,
		Status:      ret.Status,
		ClaimedFrom: ret.ClaimedFrom,
		ExpiresAt:   ret.ExpiresAt,
		Note:        ret.Note,
		Reference:   ret.Reference,
		Version:     version + 1,
		CreatedAt:   time.Now(),
	}
	if err := insertEntry(ctx, tx, &entry); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	if err := es.publishAppended(ctx, &entry); err != nil {
		return true, err
	}
	if es.producer != nil {
		event := MovementEvent{
			Type:       EventClaimReleased,
			ResourceID: resourceID,
			EntryID:    claimID,
			Timestamp:  time.Now(),
		}
		if err := es.producer.Publish(ctx, resourceID, event); err != nil {
			return true, err
		}
	}

	return true, nil
}

func (es *PostgresEntryStore) publishAppended(ctx context.Context, entry *Entry) error {
	if es.producer == nil {
		return nil
	}
	event := MovementEvent{
		Type:       EventEntryAppended,
		ResourceID: entry.ResourceID,
		Entry:      entry,
		Timestamp:  time.Now(),
	}
	return es.producer.Publish(ctx, entry.ResourceID, event)
}

func lockResource(ctx context.Context, tx *sql.Tx, resourceID string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", resourceID)
	return err
}

func insertEntry(ctx context.Context, tx *sql.Tx, e *Entry) error {
	var refType, refID sql.NullString
	if e.Reference != nil {
		refType = sql.NullString{String: e.Reference.Type, Valid: true}
		refID = sql.NullString{String: e.Reference.ID, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO stock_entries (id, resource_id, quantity, kind, status, claimed_from, expires_at, note, ref_type, ref_id, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.ResourceID, e.Quantity, e.Kind, e.Status,
		nullTime(e.ClaimedFrom), nullTime(e.ExpiresAt),
		e.Note, refType, refID, e.Version, e.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                    Entry
		claimedFrom, expires sql.NullTime
		refType, refID       sql.NullString
	)
	err := row.Scan(&e.ID, &e.ResourceID, &e.Quantity, &e.Kind, &e.Status,
		&claimedFrom, &expires, &e.Note, &refType, &refID, &e.Version, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	if claimedFrom.Valid {
		t := claimedFrom.Time
		e.ClaimedFrom = &t
	}
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	if refType.Valid || refID.Valid {
		e.Reference = &Reference{Type: refType.String, ID: refID.String}
	}
	return e, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
