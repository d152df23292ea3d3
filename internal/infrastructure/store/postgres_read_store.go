package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/stock-ledger/internal/readmodel"
	_ "github.com/lib/pq"
)

// PostgresReadStore stores read models in PostgreSQL (read_models table,
// one JSON document per collection/id).
type PostgresReadStore struct {
	db *sql.DB
}

func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) error {
	doc, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = rs.db.ExecContext(context.Background(),
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id) DO UPDATE SET data = $3, updated_at = $4`,
		collection, id, doc, time.Now(),
	)
	return err
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool, error) {
	var doc []byte
	err := rs.db.QueryRowContext(context.Background(),
		"SELECT data FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	model, err := decodeReadModel(collection, doc)
	if err != nil {
		return nil, false, err
	}
	return model, true, nil
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(collection string) ([]any, error) {
	rows, err := rs.db.QueryContext(context.Background(),
		"SELECT data FROM read_models WHERE collection = $1 ORDER BY id ASC",
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		model, err := decodeReadModel(collection, doc)
		if err != nil {
			return nil, err
		}
		items = append(items, model)
	}
	return items, rows.Err()
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) error {
	_, err := rs.db.ExecContext(context.Background(),
		"DELETE FROM read_models WHERE collection = $1 AND id = $2",
		collection, id,
	)
	return err
}

func decodeReadModel(collection string, doc []byte) (any, error) {
	switch collection {
	case readmodel.CollectionAvailability:
		var m readmodel.AvailabilityReadModel
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown read model collection: %s", collection)
	}
}
