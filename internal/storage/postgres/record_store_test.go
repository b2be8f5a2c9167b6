package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/export"
)

func sampleRow() batch.Flat {
	return batch.Flat{
		"departure_airport": "JFK",
		"arrival_airport":   "LHR",
		"departure_date":    "01/10/2027",
		"return_date":       "01/17/2027",
		"seat_class":        "economy",
		"price":             300,
		"price_relativity":  0.25,
		"status":            "Ran successfully.",
	}
}

func TestSaveRecordsReplacesBatchRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStore(mock, "")
	require.NoError(t, err)

	now := time.Unix(1800000000, 0).UTC()
	row := sampleRow()
	payload, err := json.Marshal(row)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM flight_records").
		WithArgs("b1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO flight_records").
		WithArgs("b1", 0, now, "JFK", "LHR", "01/10/2027", "01/17/2027", "economy", 300, 0.25, "Ran successfully.", payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveRecords(context.Background(), "b1", now, []batch.Flat{row}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecordsRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStore(mock, "fares")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM fares").WithArgs("b1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO fares").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.SaveRecords(context.Background(), "b1", time.Now(), []batch.Flat{sampleRow()})
	require.ErrorContains(t, err, "insert row 0")
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordsDecodesPayloadsInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStore(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM flight_records").
		WithArgs("b1").
		WillReturnRows(mock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"arrival_airport":"LHR","price":300}`)).
			AddRow([]byte(`{"arrival_airport":"CDG","price":null}`)))

	rows, err := store.Records(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "LHR", rows[0]["arrival_airport"])
	assert.Equal(t, json.Number("300"), rows[0]["price"])
	assert.Nil(t, rows[1]["price"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReloadedRowsEncodeLikeFreshRows(t *testing.T) {
	t.Parallel()

	price, diff, stops := 420, 140, 2
	trip := 7.0
	fresh := batch.Flatten(batch.Record{
		Task: batch.Task{
			DepartureCode: "LAX", DepartureCountry: "United States of America",
			ArrivalCode: "JFK", ArrivalCountry: "United States of America",
			StartDate: "03/01/2027", EndDate: "03/08/2027", SeatClass: "economy (include basic)",
			Time: &trip,
		},
		Outbound: batch.Leg{
			Airline:            "United",
			NumStops:           &stops,
			ConnectionAirports: []string{"ORD", "DEN"},
			LayoverDurations:   []string{"1 hr 10 min", "55 min"},
		},
		Price:          &price,
		Difference:     &diff,
		Classification: batch.ClassificationLow,
		Relativity:     batch.Relativity(&price, &diff),
		Status:         batch.Succeeded(),
	})
	payload, err := json.Marshal(fresh)
	require.NoError(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewRecordStore(mock, "")
	require.NoError(t, err)
	mock.ExpectQuery("SELECT payload FROM flight_records").
		WithArgs("b1").
		WillReturnRows(mock.NewRows([]string{"payload"}).AddRow(payload))

	reloaded, err := store.Records(context.Background(), "b1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	want, err := export.EncodeCSV([]batch.Flat{fresh})
	require.NoError(t, err)
	got, err := export.EncodeCSV(reloaded)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Contains(t, string(got), `"[""ORD"",""DEN""]"`)
}

func TestNewRecordStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStore(nil, "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRecordStore(mock, "flight records; drop")
	assert.ErrorContains(t, err, "invalid table name")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS batch_jobs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
