// Package parse extracts itinerary details from the accessible labels that
// Google Flights attaches to each result row.
package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

var (
	airlineRe   = regexp.MustCompile(`flight with ([^.]+)`)
	departureRe = regexp.MustCompile(`Leaves (.*?) at (\d{1,2}:\d{2}\s?[AP]M) on ([A-Za-z]+, [A-Za-z]+ \d{1,2})`)
	arrivalRe   = regexp.MustCompile(`arrives at (.*?) at (\d{1,2}:\d{2}\s?[AP]M) on ([A-Za-z]+, [A-Za-z]+ \d{1,2})`)
	stopsRe     = regexp.MustCompile(`(\d+) stop`)
	layoverAtRe = regexp.MustCompile(
		`Layover \(\d+ of \d+\) is a ((?:\d+ hr)?(?: ?\d+ min)?)(?: overnight)? layover at ([^.]+?)(?:\sin\s[^.]+)?\.(?:\s|$)`,
	)
	layoverInRe = regexp.MustCompile(
		`Layover \(\d+ of \d+\) is a ((?:\d+ hr)?(?: ?\d+ min)?)(?: overnight)? layover in ([^.]+?)\.(?:\s+Transfer)?`,
	)
	durationHrMinRe = regexp.MustCompile(`Total duration (\d+) hr (\d+) min`)
	durationHrRe    = regexp.MustCompile(`Total duration (\d+) hr`)
	durationMinRe   = regexp.MustCompile(`Total duration (\d+) min`)
	carryOnRe       = regexp.MustCompile(`(\d+) carry-on bag`)
	checkedRe       = regexp.MustCompile(`(\d+) checked bags`)
	priceRe         = regexp.MustCompile(`From ([\d,]+) US dollars`)
	finalPriceRe    = regexp.MustCompile(`([\d,]+) US dollars`)
	cheaperRe       = regexp.MustCompile(`\$([\d,]+)\s*cheaper`)
	levelRe         = regexp.MustCompile(`(?i)\b(low|high|typical)\b`)
	initialRe       = regexp.MustCompile(`\b([A-Z])\.\s`)
	hrRe            = regexp.MustCompile(`(\d+) hr`)
	minRe           = regexp.MustCompile(`(\d+) min`)
)

// Clean replaces the narrow and regular no-break spaces the page uses inside
// times and prices.
func Clean(label string) string {
	return strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(label)
}

// Airline returns the operating airline, or "".
func Airline(desc string) string {
	if m := airlineRe.FindStringSubmatch(desc); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Endpoint is an airport with its local time and date.
type Endpoint struct {
	Airport string
	Time    string
	Date    string
}

// Departure returns where and when the leg leaves.
func Departure(desc string) (Endpoint, bool) {
	return endpoint(departureRe, desc)
}

// Arrival returns where and when the leg lands.
func Arrival(desc string) (Endpoint, bool) {
	return endpoint(arrivalRe, desc)
}

func endpoint(re *regexp.Regexp, desc string) (Endpoint, bool) {
	m := re.FindStringSubmatch(desc)
	if m == nil {
		return Endpoint{}, false
	}
	return Endpoint{
		Airport: strings.TrimSpace(m[1]),
		Time:    strings.TrimSpace(m[2]),
		Date:    strings.TrimSpace(m[3]),
	}, true
}

// Stops returns the number of stops; Nonstop is zero.
func Stops(desc string) *int {
	if strings.Contains(desc, "Nonstop") {
		return intPtr(0)
	}
	return firstInt(stopsRe, desc)
}

// Layovers returns connection airports and layover durations in label order,
// "layover at" matches first.
func Layovers(desc string) (airports, durations []string) {
	airports, durations = []string{}, []string{}
	// Initials such as "John F. Kennedy" would end the airport name early.
	desc = initialRe.ReplaceAllString(desc, "$1 ")
	for _, re := range []*regexp.Regexp{layoverAtRe, layoverInRe} {
		for _, m := range re.FindAllStringSubmatch(desc, -1) {
			durations = append(durations, strings.TrimSpace(m[1]))
			airports = append(airports, strings.TrimSpace(m[2]))
		}
	}
	return airports, durations
}

// Duration returns the total travel time in minutes and as display text.
func Duration(desc string) (*int, string) {
	if m := durationHrMinRe.FindStringSubmatch(desc); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return intPtr(h*60 + mins), m[1] + " hr " + m[2] + " min"
	}
	if m := durationHrRe.FindStringSubmatch(desc); m != nil {
		h, _ := strconv.Atoi(m[1])
		return intPtr(h * 60), m[1] + " hr"
	}
	if m := durationMinRe.FindStringSubmatch(desc); m != nil {
		mins, _ := strconv.Atoi(m[1])
		return intPtr(mins), m[1] + " min"
	}
	return nil, ""
}

// Bags returns the included carry-on and checked bag counts.
func Bags(desc string) (carryOn, checked *int) {
	return firstInt(carryOnRe, desc), firstInt(checkedRe, desc)
}

// Price returns the fare in whole US dollars.
func Price(desc string) *int {
	return firstInt(priceRe, desc)
}

// FinalPrice reads the booking total from a label such as "1,250 US dollars".
func FinalPrice(label string) *int {
	return firstInt(finalPriceRe, Clean(label))
}

// Leg parses a full result label into a leg and the fare quoted with it.
func Leg(label string) (batch.Leg, *int) {
	desc := Clean(label)
	leg := batch.Leg{
		Airline:  Airline(desc),
		NumStops: Stops(desc),
	}
	if dep, ok := Departure(desc); ok {
		leg.DepartureAirport, leg.DepartureTime, leg.DepartureDate = dep.Airport, dep.Time, dep.Date
	}
	if arr, ok := Arrival(desc); ok {
		leg.ArrivalAirport, leg.ArrivalTime, leg.ArrivalDate = arr.Airport, arr.Time, arr.Date
	}
	leg.ConnectionAirports, leg.LayoverDurations = Layovers(desc)
	leg.DurationMinutes, leg.DurationStr = Duration(desc)
	leg.CarryOnBags, leg.CheckedBags = Bags(desc)
	return leg, Price(desc)
}

// Insight reads the price insight banner, e.g. "$200 is low for Economy. $50
// cheaper than usual.". The difference is the advertised saving when one is
// shown and zero for any other recognised fare level. Unrecognised text
// yields an empty classification and nil.
func Insight(text string) (batch.Classification, *int) {
	text = Clean(text)
	var class batch.Classification
	if m := levelRe.FindStringSubmatch(text); m != nil {
		class = batch.Classification(strings.ToLower(m[1]))
	}
	if saving := firstInt(cheaperRe, text); saving != nil {
		if class == "" {
			class = batch.ClassificationLow
		}
		return class, saving
	}
	if class == "" {
		return "", nil
	}
	return class, intPtr(0)
}

// TotalLayoverMinutes sums layover durations such as "2 hr 30 min".
func TotalLayoverMinutes(durations []string) int {
	total := 0
	for _, d := range durations {
		if m := hrRe.FindStringSubmatch(d); m != nil {
			h, _ := strconv.Atoi(m[1])
			total += h * 60
		}
		if m := minRe.FindStringSubmatch(d); m != nil {
			mins, _ := strconv.Atoi(m[1])
			total += mins
		}
	}
	return total
}

func firstInt(re *regexp.Regexp, s string) *int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

func intPtr(v int) *int { return &v }
