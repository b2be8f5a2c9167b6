package batch

import (
	"cmp"
	"math"
	"slices"
)

// Flat is a record flattened into column -> value. Absent scalars are nil and
// list-valued leg fields stay []string.
type Flat map[string]any

// Column prefixes applied to leg fields.
const (
	OutboundPrefix = "departure_"
	InboundPrefix  = "return_"
)

var taskColumns = []string{
	"departure_airport",
	"departure_country",
	"arrival_airport",
	"arrival_country",
	"departure_date",
	"return_date",
	"seat_class",
}

var legColumns = []string{
	"airline",
	"departure_airport",
	"departure_date",
	"departure_time",
	"num_stops",
	"connection_airports",
	"layover_durations",
	"arrival_airport",
	"arrival_date",
	"arrival_time",
	"duration_minutes",
	"duration_str",
	"carry_on_bags",
	"checked_bags",
}

var resultColumns = []string{
	"price",
	"price_classification",
	"price_difference",
	"price_relativity",
	"status",
	"url",
	"time",
}

// Columns returns the canonical column order of a Flat row.
func Columns() []string {
	cols := make([]string, 0, len(taskColumns)+2*len(legColumns)+len(resultColumns))
	cols = append(cols, taskColumns...)
	for _, c := range legColumns {
		cols = append(cols, OutboundPrefix+c)
	}
	for _, c := range legColumns {
		cols = append(cols, InboundPrefix+c)
	}
	return append(cols, resultColumns...)
}

// Relativity reconstructs how far below the typical fare a price sits:
// D / (P + D) rounded to four decimals. It is nil when either input is
// missing or the denominator is zero.
func Relativity(price, difference *int) *float64 {
	if price == nil || difference == nil {
		return nil
	}
	denom := *price + *difference
	if denom == 0 {
		return nil
	}
	r := math.Round(float64(*difference)/float64(denom)*1e4) / 1e4
	return &r
}

// Flatten merges task inputs, both prefixed legs and the result fields into
// one row.
func Flatten(rec Record) Flat {
	row := make(Flat, len(taskColumns)+2*len(legColumns)+len(resultColumns))

	// The original input columns keep their search-form names: the task's
	// departure code is the departure airport, and so on.
	row["departure_airport"] = rec.DepartureCode
	row["departure_country"] = rec.DepartureCountry
	row["arrival_airport"] = rec.ArrivalCode
	row["arrival_country"] = rec.ArrivalCountry
	row["departure_date"] = rec.StartDate
	row["return_date"] = rec.EndDate
	row["seat_class"] = rec.SeatClass

	flattenLeg(row, OutboundPrefix, rec.Outbound)
	flattenLeg(row, InboundPrefix, rec.Inbound)

	row["price"] = intOrNil(rec.Price)
	row["price_classification"] = stringOrNil(string(rec.Classification))
	row["price_difference"] = intOrNil(rec.Difference)
	if rec.Relativity != nil {
		row["price_relativity"] = *rec.Relativity
	} else {
		row["price_relativity"] = nil
	}
	row["status"] = rec.Status.String()
	row["url"] = stringOrNil(rec.URL)
	if rec.Time != nil {
		row["time"] = *rec.Time
	} else {
		row["time"] = nil
	}
	return row
}

func flattenLeg(row Flat, prefix string, leg Leg) {
	row[prefix+"airline"] = stringOrNil(leg.Airline)
	row[prefix+"departure_airport"] = stringOrNil(leg.DepartureAirport)
	row[prefix+"departure_date"] = stringOrNil(leg.DepartureDate)
	row[prefix+"departure_time"] = stringOrNil(leg.DepartureTime)
	row[prefix+"num_stops"] = intOrNil(leg.NumStops)
	row[prefix+"connection_airports"] = listOrEmpty(leg.ConnectionAirports)
	row[prefix+"layover_durations"] = listOrEmpty(leg.LayoverDurations)
	row[prefix+"arrival_airport"] = stringOrNil(leg.ArrivalAirport)
	row[prefix+"arrival_date"] = stringOrNil(leg.ArrivalDate)
	row[prefix+"arrival_time"] = stringOrNil(leg.ArrivalTime)
	row[prefix+"duration_minutes"] = intOrNil(leg.DurationMinutes)
	row[prefix+"duration_str"] = stringOrNil(leg.DurationStr)
	row[prefix+"carry_on_bags"] = intOrNil(leg.CarryOnBags)
	row[prefix+"checked_bags"] = intOrNil(leg.CheckedBags)
}

// SortByRelativity orders records by descending relativity with missing values
// last. Ties keep their input order.
func SortByRelativity(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		switch {
		case a.Relativity == nil && b.Relativity == nil:
			return 0
		case a.Relativity == nil:
			return 1
		case b.Relativity == nil:
			return -1
		default:
			return cmp.Compare(*b.Relativity, *a.Relativity)
		}
	})
}

// Aggregate sorts a copy of records and flattens each one. The input slice is
// left in scheduling order.
func Aggregate(records []Record) []Flat {
	sorted := slices.Clone(records)
	SortByRelativity(sorted)
	rows := make([]Flat, len(sorted))
	for i, rec := range sorted {
		rows[i] = Flatten(rec)
	}
	return rows
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func listOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
