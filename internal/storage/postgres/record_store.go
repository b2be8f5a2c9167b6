package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
)

// RecordStore writes flattened flight rows.
type RecordStore struct {
	db    DB
	table string
}

var (
	_ batch.RecordStore = (*RecordStore)(nil)
	_ jobs.RecordReader = (*RecordStore)(nil)
)

// NewRecordStore creates a RecordStore over db. An empty table selects
// flight_records.
func NewRecordStore(db DB, table string) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	table, err := checkTable(table, "flight_records")
	if err != nil {
		return nil, err
	}
	return &RecordStore{db: db, table: table}, nil
}

// SaveRecords replaces the rows of batchID in one transaction. Row order is
// kept in row_index.
func (s *RecordStore) SaveRecords(ctx context.Context, batchID string, scrapedAt time.Time, rows []batch.Flat) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", cause, rbErr)
		}
		return cause
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE batch_id = $1`, s.table), batchID); err != nil {
		return rollback(fmt.Errorf("clear batch rows: %w", err))
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (
	batch_id,
	row_index,
	scraped_at,
	departure_airport,
	arrival_airport,
	departure_date,
	return_date,
	seat_class,
	price,
	price_relativity,
	status,
	payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return rollback(fmt.Errorf("marshal row %d: %w", i, err))
		}
		args := []any{
			batchID,
			i,
			scrapedAt,
			row["departure_airport"],
			row["arrival_airport"],
			row["departure_date"],
			row["return_date"],
			row["seat_class"],
			row["price"],
			row["price_relativity"],
			row["status"],
			payload,
		}
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return rollback(fmt.Errorf("insert row %d: %w", i, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Records returns the rows of batchID in saved order. Numbers are returned
// as json.Number so they re-encode exactly.
func (s *RecordStore) Records(ctx context.Context, batchID string) ([]batch.Flat, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE batch_id = $1 ORDER BY row_index`, s.table), batchID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := []batch.Flat{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		var row batch.Flat
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
