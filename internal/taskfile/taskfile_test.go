package taskfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

const yamlBatch = `
departure_code: LAX
departure_country: United States of America
arrival_codes: [JFK, LHR]
arrival_countries: [United States of America, United Kingdom]
start_dates: [03/01/2027, 03/02/2027]
end_dates: [03/08/2027, 03/09/2027]
seat_classes: [economy (include basic), business]
times: [1.5, 2]
policy:
  n_jobs: 2
  task_timeout: 60
sink: out/fares.csv
shuffle: false
`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(yamlBatch))
	require.NoError(t, err)

	assert.Equal(t, "LAX", f.DepartureCode)
	assert.Equal(t, []string{"JFK", "LHR"}, f.ArrivalCodes)
	assert.Equal(t, []float64{1.5, 2}, f.Times)
	assert.Equal(t, "out/fares.csv", f.Sink)
	assert.False(t, f.ShuffleOr(true))

	policy := f.Policy.Apply(batch.DefaultPolicy())
	assert.Equal(t, 2, policy.Jobs)
	assert.Equal(t, 60*time.Second, policy.TaskTimeout)
	assert.Equal(t, batch.DefaultDelay, policy.Delay)

	tasks, err := f.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "business", tasks[1].SeatClass)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	doc := `{
  "departure_code": "SFO",
  "departure_country": "United States of America",
  "arrival_codes": ["NRT"],
  "arrival_countries": ["Japan"],
  "start_dates": ["05/01/2027"],
  "end_dates": ["05/15/2027"],
  "seat_classes": ["economy"],
  "policy": {"n_jobs": 1, "delay_seconds": 0}
}`
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "SFO", f.DepartureCode)
	assert.Nil(t, f.Times)
	assert.True(t, f.ShuffleOr(true))
	require.NotNil(t, f.Policy.DelaySeconds)
	assert.Zero(t, *f.Policy.DelaySeconds)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "empty", doc: "", want: ErrEmpty},
		{
			name: "length mismatch",
			doc: `departure_code: LAX
arrival_codes: [JFK, BOS]
arrival_countries: [United States of America]
start_dates: [03/01/2027, 03/01/2027]
end_dates: [03/08/2027, 03/08/2027]
seat_classes: [economy, economy]`,
			want: batch.ErrLengthMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("departure_code: LAX\narrival_code: [JFK]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arrival_code")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBatch), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.ArrivalCodes, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
