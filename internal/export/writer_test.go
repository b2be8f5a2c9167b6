package export_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/export"
	"github.com/JakeFAU/flight-fare-crawler/internal/hash/sha256"
	"github.com/JakeFAU/flight-fare-crawler/internal/storage/memory"
)

func intPtr(v int) *int { return &v }

func sampleRows() []batch.Flat {
	ok := batch.Record{
		Task: batch.Task{
			DepartureCode: "JFK", DepartureCountry: "United States of America",
			ArrivalCode: "LHR", ArrivalCountry: "United Kingdom",
			StartDate: "01/10/2027", EndDate: "01/17/2027", SeatClass: "economy",
		},
		Outbound: batch.Leg{
			Airline:            "Delta",
			NumStops:           intPtr(1),
			ConnectionAirports: []string{"Boston Logan International Airport"},
			LayoverDurations:   []string{"1 hr 5 min"},
		},
		Price:          intPtr(300),
		Classification: batch.ClassificationLow,
		Difference:     intPtr(100),
		Relativity:     batch.Relativity(intPtr(300), intPtr(100)),
		Status:         batch.Succeeded(),
	}
	failed := batch.Record{Task: ok.Task, Status: batch.CaptchaDetected()}
	failed.ArrivalCode = "CDG"
	return batch.Aggregate([]batch.Record{failed, ok})
}

func TestEncodeCSV(t *testing.T) {
	t.Parallel()

	payload, err := export.EncodeCSV(sampleRows())
	require.NoError(t, err)

	lines, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, batch.Columns(), lines[0])

	col := func(name string) int {
		for i, c := range lines[0] {
			if c == name {
				return i
			}
		}
		t.Fatalf("missing column %s", name)
		return -1
	}
	first := lines[1]
	assert.Equal(t, "LHR", first[col("arrival_airport")], "rows keep the aggregated order")
	assert.Equal(t, "300", first[col("price")])
	assert.Equal(t, "0.25", first[col("price_relativity")])
	assert.Equal(t, `["Boston Logan International Airport"]`, first[col("departure_connection_airports")])
	assert.Equal(t, `[]`, first[col("return_connection_airports")])
	assert.Equal(t, "", first[col("return_airline")])

	second := lines[2]
	assert.Equal(t, "Error: CAPTCHA detected", second[col("status")])
	assert.Equal(t, "", second[col("price")])
}

func TestEncodeCSVDecodedValues(t *testing.T) {
	t.Parallel()

	row := batch.Flat{
		"departure_connection_airports": []any{"ORD", "DEN"},
		"price":                         json.Number("420"),
		"price_relativity":              json.Number("0.25"),
	}
	payload, err := export.EncodeCSV([]batch.Flat{row})
	require.NoError(t, err)

	lines, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	cells := map[string]string{}
	for i, c := range lines[0] {
		cells[c] = lines[1][i]
	}
	assert.Equal(t, `["ORD","DEN"]`, cells["departure_connection_airports"])
	assert.Equal(t, "420", cells["price"])
	assert.Equal(t, "0.25", cells["price_relativity"])
}

func TestEncodeJSONKeepsColumnOrder(t *testing.T) {
	t.Parallel()

	payload, err := export.EncodeJSON(sampleRows())
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "LHR", decoded[0]["arrival_airport"])
	assert.InDelta(t, 0.25, decoded[0]["price_relativity"], 1e-9)
	assert.Nil(t, decoded[1]["price"])

	text := string(payload)
	assert.Less(t, strings.Index(text, `"departure_airport"`), strings.Index(text, `"status"`))

	empty, err := export.EncodeJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(empty))
}

func TestWriterRoutesToMemoryStore(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	w := export.NewWriter(sha256.New(), export.WithStore("memory", blobs))

	art, err := w.Write(context.Background(), "memory://batches/b1.json", sampleRows())
	require.NoError(t, err)
	assert.Equal(t, "memory://batches/b1.json", art.URI)
	assert.Equal(t, "json", art.Format)

	stored, contentType, ok := blobs.Object("batches/b1.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, len(stored), art.Bytes)
	assert.True(t, sha256.Verify(art.Checksum, stored))
}

func TestWriterRoutesByBucketPrefix(t *testing.T) {
	t.Parallel()

	fares := memory.NewBlobStore()
	w := export.NewWriter(sha256.New(), export.WithStore("gs://fares", fares))

	_, err := w.Write(context.Background(), "gs://fares/2027/jan.csv", sampleRows())
	require.NoError(t, err)
	assert.Equal(t, []string{"2027/jan.csv"}, fares.Paths())

	_, err = w.Write(context.Background(), "gs://other/jan.csv", sampleRows())
	assert.ErrorIs(t, err, export.ErrUnsupportedScheme)
}

func TestWriterWritesLocalFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := export.NewWriter(sha256.New())

	target := filepath.Join(dir, "out", "results.csv")
	art, err := w.Write(context.Background(), target, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, "csv", art.Format)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, sha256.Verify(art.Checksum, data))

	viaURI := filepath.Join(dir, "results.json")
	_, err = w.Write(context.Background(), "file://"+filepath.ToSlash(viaURI), sampleRows())
	require.NoError(t, err)
	_, err = os.Stat(viaURI)
	require.NoError(t, err)
}

func TestWriterRejectsEmptyDestination(t *testing.T) {
	t.Parallel()

	_, err := export.NewWriter(nil).Write(context.Background(), " ", nil)
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, export.FormatJSON, export.FormatFor("a/b.JSON"))
	assert.Equal(t, export.FormatCSV, export.FormatFor("a/b.csv"))
	assert.Equal(t, export.FormatCSV, export.FormatFor("results"))
}
