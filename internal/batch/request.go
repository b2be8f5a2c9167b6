package batch

import (
	"fmt"
	"math/rand/v2"
)

// Request is a batch submission: one departure fanned out over parallel lists
// of destinations, dates and cabins. Element i of every list describes task i.
type Request struct {
	DepartureCode    string    `json:"departure_code" yaml:"departure_code"`
	DepartureCountry string    `json:"departure_country" yaml:"departure_country"`
	ArrivalCodes     []string  `json:"arrival_codes" yaml:"arrival_codes"`
	ArrivalCountries []string  `json:"arrival_countries" yaml:"arrival_countries"`
	StartDates       []string  `json:"start_dates" yaml:"start_dates"`
	EndDates         []string  `json:"end_dates" yaml:"end_dates"`
	SeatClasses      []string  `json:"seat_classes" yaml:"seat_classes"`
	Times            []float64 `json:"times,omitempty" yaml:"times,omitempty"`
}

// Validate checks that the parallel lists line up.
func (r Request) Validate() error {
	n := len(r.ArrivalCodes)
	checks := []struct {
		name string
		size int
	}{
		{"arrival_countries", len(r.ArrivalCountries)},
		{"start_dates", len(r.StartDates)},
		{"end_dates", len(r.EndDates)},
		{"seat_classes", len(r.SeatClasses)},
	}
	for _, c := range checks {
		if c.size != n {
			return fmt.Errorf("arrival_codes and %s must have same length: %w", c.name, ErrLengthMismatch)
		}
	}
	if r.Times != nil && len(r.Times) != n {
		return fmt.Errorf("arrival_codes and times must have same length: %w", ErrLengthMismatch)
	}
	return nil
}

// Tasks zips the request into one Task per destination.
func (r Request) Tasks() ([]Task, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	tasks := make([]Task, len(r.ArrivalCodes))
	for i := range r.ArrivalCodes {
		tasks[i] = Task{
			DepartureCode:    r.DepartureCode,
			DepartureCountry: r.DepartureCountry,
			ArrivalCode:      r.ArrivalCodes[i],
			ArrivalCountry:   r.ArrivalCountries[i],
			StartDate:        r.StartDates[i],
			EndDate:          r.EndDates[i],
			SeatClass:        r.SeatClasses[i],
		}
		if r.Times != nil {
			t := r.Times[i]
			tasks[i].Time = &t
		}
	}
	return tasks, nil
}

// Shuffle permutes whole tasks in place.
func Shuffle(tasks []Task) {
	rand.Shuffle(len(tasks), func(i, j int) {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	})
}
