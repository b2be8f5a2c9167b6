package batch

import (
	"fmt"
	"time"
)

// Task describes one itinerary search. Tasks are passed by value so every
// executor works on its own copy.
type Task struct {
	DepartureCode    string   `json:"departure_code" yaml:"departure_code" validate:"required"`
	DepartureCountry string   `json:"departure_country" yaml:"departure_country" validate:"required"`
	ArrivalCode      string   `json:"arrival_code" yaml:"arrival_code" validate:"required"`
	ArrivalCountry   string   `json:"arrival_country" yaml:"arrival_country" validate:"required"`
	StartDate        string   `json:"start_date" yaml:"start_date" validate:"required,mmddyyyy"`
	EndDate          string   `json:"end_date" yaml:"end_date" validate:"required,mmddyyyy"`
	SeatClass        string   `json:"seat_class" yaml:"seat_class" validate:"required"`
	Time             *float64 `json:"time,omitempty" yaml:"time,omitempty"`
}

// Route renders a short label used in logs and spans.
func (t Task) Route() string {
	return fmt.Sprintf("%s->%s %s-%s", t.DepartureCode, t.ArrivalCode, t.StartDate, t.EndDate)
}

// Leg holds the details of the selected outbound or inbound flight.
type Leg struct {
	Airline            string   `json:"airline,omitempty"`
	DepartureAirport   string   `json:"departure_airport,omitempty"`
	DepartureDate      string   `json:"departure_date,omitempty"`
	DepartureTime      string   `json:"departure_time,omitempty"`
	NumStops           *int     `json:"num_stops,omitempty"`
	ConnectionAirports []string `json:"connection_airports"`
	LayoverDurations   []string `json:"layover_durations"`
	ArrivalAirport     string   `json:"arrival_airport,omitempty"`
	ArrivalDate        string   `json:"arrival_date,omitempty"`
	ArrivalTime        string   `json:"arrival_time,omitempty"`
	DurationMinutes    *int     `json:"duration_minutes,omitempty"`
	DurationStr        string   `json:"duration_str,omitempty"`
	CarryOnBags        *int     `json:"carry_on_bags,omitempty"`
	CheckedBags        *int     `json:"checked_bags,omitempty"`
}

// Classification is the fare insight shown next to the final price.
type Classification string

// Known classifications. The empty value means the page did not show one.
const (
	ClassificationLow     Classification = "low"
	ClassificationTypical Classification = "typical"
	ClassificationHigh    Classification = "high"
)

// Itinerary is what a Scraper extracts for one task.
type Itinerary struct {
	Outbound       Leg
	Inbound        Leg
	Price          *int
	Classification Classification
	// Difference is how many dollars the fare sits below typical; 0 for
	// typical or high fares, nil when unknown.
	Difference *int
	URL        string
}

// Record is the per-task outcome. Exactly one Record exists per Task.
type Record struct {
	Task
	Outbound       Leg            `json:"outbound"`
	Inbound        Leg            `json:"inbound"`
	Price          *int           `json:"price,omitempty"`
	Classification Classification `json:"price_classification,omitempty"`
	Difference     *int           `json:"price_difference,omitempty"`
	Relativity     *float64       `json:"price_relativity,omitempty"`
	Status         Status         `json:"status"`
	URL            string         `json:"url,omitempty"`
	Attempts       int            `json:"attempts"`
	Duration       time.Duration  `json:"duration_ns"`
}

func newRecord(task Task, status Status) Record {
	return Record{Task: task, Status: status}
}

func recordFromItinerary(task Task, itin Itinerary, status Status) Record {
	return Record{
		Task:           task,
		Outbound:       itin.Outbound,
		Inbound:        itin.Inbound,
		Price:          itin.Price,
		Classification: itin.Classification,
		Difference:     itin.Difference,
		Relativity:     Relativity(itin.Price, itin.Difference),
		Status:         status,
		URL:            itin.URL,
	}
}
