package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

func TestAirline(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "United", Airline("Depart flight with United."))
	assert.Equal(t, "American Airlines", Airline("Depart flight with American Airlines."))
	assert.Empty(t, Airline("Invalid text"))
	assert.Empty(t, Airline(""))
}

func TestDepartureAndArrival(t *testing.T) {
	t.Parallel()

	dep, ok := Departure("Leaves Los Angeles International Airport at 10:30 AM on Monday, March 15")
	require.True(t, ok)
	assert.Equal(t, Endpoint{Airport: "Los Angeles International Airport", Time: "10:30 AM", Date: "Monday, March 15"}, dep)

	arr, ok := Arrival("arrives at San Francisco International Airport at 2:30 PM on Monday, March 15")
	require.True(t, ok)
	assert.Equal(t, "San Francisco International Airport", arr.Airport)
	assert.Equal(t, "2:30 PM", arr.Time)

	_, ok = Departure("Invalid")
	assert.False(t, ok)
	_, ok = Arrival("Invalid")
	assert.False(t, ok)
}

func TestStops(t *testing.T) {
	t.Parallel()

	tests := map[string]*int{
		"Nonstop flight": intPtr(0),
		"1 stop flight":  intPtr(1),
		"2 stop flight":  intPtr(2),
		"No info":        nil,
	}
	for in, want := range tests {
		assert.Equal(t, want, Stops(in), in)
	}
}

func TestLayovers(t *testing.T) {
	t.Parallel()

	airports, durations := Layovers("Layover (1 of 1) is a 2 hr 30 min layover at John F. Kennedy International Airport.")
	assert.Equal(t, []string{"John F Kennedy International Airport"}, airports)
	assert.Equal(t, []string{"2 hr 30 min"}, durations)
	assert.Equal(t, 150, TotalLayoverMinutes(durations))

	airports, durations = Layovers("Layover (1 of 2) is a 2 hr layover at Atlanta. Layover (2 of 2) is a 1 hr 30 min layover in Denver.")
	assert.Equal(t, []string{"Atlanta", "Denver"}, airports)
	assert.Equal(t, []string{"2 hr", "1 hr 30 min"}, durations)
	assert.Equal(t, 210, TotalLayoverMinutes(durations))

	airports, durations = Layovers("Layover (1 of 1) is a 10 hr 5 min overnight layover at Heathrow Airport in London. ")
	assert.Equal(t, []string{"Heathrow Airport"}, airports)
	assert.Equal(t, []string{"10 hr 5 min"}, durations)

	airports, durations = Layovers("Nonstop")
	assert.Equal(t, []string{}, airports)
	assert.Equal(t, []string{}, durations)
	assert.Zero(t, TotalLayoverMinutes(durations))
}

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		minutes *int
		text    string
	}{
		{"Total duration 5 hr 30 min", intPtr(330), "5 hr 30 min"},
		{"Total duration 2 hr", intPtr(120), "2 hr"},
		{"Total duration 45 min", intPtr(45), "45 min"},
		{"No duration", nil, ""},
	}
	for _, tc := range tests {
		minutes, text := Duration(tc.in)
		assert.Equal(t, tc.minutes, minutes, tc.in)
		assert.Equal(t, tc.text, text, tc.in)
	}
}

func TestBags(t *testing.T) {
	t.Parallel()

	c, k := Bags("1 carry-on bag and 2 checked bags")
	assert.Equal(t, intPtr(1), c)
	assert.Equal(t, intPtr(2), k)

	c, k = Bags("No baggage")
	assert.Nil(t, c)
	assert.Nil(t, k)
}

func TestPrice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, intPtr(250), Price("From 250 US dollars round trip total."))
	assert.Equal(t, intPtr(1250), Price("From 1,250 US dollars round trip total."))
	assert.Nil(t, Price("Invalid format"))
}

func TestFinalPrice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, intPtr(250), FinalPrice("250 US dollars"))
	assert.Equal(t, intPtr(1250), FinalPrice("1,250 US dollars"))
	assert.Nil(t, FinalPrice("Invalid format"))
}

func TestLeg(t *testing.T) {
	t.Parallel()

	label := "From 312 US dollars round trip total. Depart flight with United. " +
		"Leaves Los Angeles International Airport at 10:30 AM on Saturday, June 15 and " +
		"arrives at San Francisco International Airport at 12:00 PM on Saturday, June 15. " +
		"Nonstop flight. Total duration 1 hr 30 min. 1 carry-on bag."

	leg, price := Leg(label)

	assert.Equal(t, "United", leg.Airline)
	assert.Equal(t, "Los Angeles International Airport", leg.DepartureAirport)
	assert.Equal(t, "10:30 AM", leg.DepartureTime)
	assert.Equal(t, "Saturday, June 15", leg.DepartureDate)
	assert.Equal(t, "12:00 PM", leg.ArrivalTime)
	assert.Equal(t, intPtr(0), leg.NumStops)
	assert.Equal(t, intPtr(90), leg.DurationMinutes)
	assert.Equal(t, "1 hr 30 min", leg.DurationStr)
	assert.Equal(t, intPtr(1), leg.CarryOnBags)
	assert.Nil(t, leg.CheckedBags)
	assert.Equal(t, []string{}, leg.ConnectionAirports)
	assert.Equal(t, intPtr(312), price)
}

func TestLegFromEmptyLabel(t *testing.T) {
	t.Parallel()

	leg, price := Leg("")
	assert.Empty(t, leg.Airline)
	assert.Nil(t, leg.NumStops)
	assert.Nil(t, price)
}

func TestCleanNoBreakSpaces(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "United", Airline(Clean("Depart\u202fflight\u00a0with United.")))
}

func TestInsight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		class batch.Classification
		diff  *int
	}{
		{"$200 is low for Economy. $50 cheaper than usual.", batch.ClassificationLow, intPtr(50)},
		{"$200 is low for Economy", batch.ClassificationLow, intPtr(0)},
		{"$200 is LOW", batch.ClassificationLow, intPtr(0)},
		{"$500 is high for Business", batch.ClassificationHigh, intPtr(0)},
		{"$300 is typical", batch.ClassificationTypical, intPtr(0)},
		{"$1,200 cheaper", batch.ClassificationLow, intPtr(1200)},
		{"No classification", "", nil},
		{"", "", nil},
	}
	for _, tc := range tests {
		class, diff := Insight(tc.in)
		assert.Equal(t, tc.class, class, tc.in)
		assert.Equal(t, tc.diff, diff, tc.in)
	}
}
