// Package validate checks search tasks before any browser work starts.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

// DateLayout is the MM/DD/YYYY format used by the search form.
const DateLayout = "01/02/2006"

// DomesticCountry is the country both endpoints must share for the domestic
// cabin list to apply. Compared case-insensitively.
const DomesticCountry = "United States of America"

var (
	domesticClasses = []string{
		"economy (include basic)",
		"economy (exclude basic)",
		"premium economy",
		"business",
		"first",
	}
	internationalClasses = []string{
		"economy",
		"premium economy",
		"business",
		"first",
	}
)

// ErrInvalidTask is wrapped by every validation failure.
var ErrInvalidTask = errors.New("invalid task")

// Error reports the first rule a task broke.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string { return e.Msg }

// Unwrap lets callers match ErrInvalidTask.
func (e *Error) Unwrap() error { return ErrInvalidTask }

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := val.RegisterValidation("mmddyyyy", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register mmddyyyy validation: %v", err))
	}
	val.RegisterStructValidation(taskRules, batch.Task{})
	return val
}

func taskRules(sl validator.StructLevel) {
	t, ok := sl.Current().Interface().(batch.Task)
	if !ok {
		return
	}
	start, errStart := time.Parse(DateLayout, t.StartDate)
	end, errEnd := time.Parse(DateLayout, t.EndDate)
	if errStart == nil && errEnd == nil && !end.After(start) {
		sl.ReportError(t.EndDate, "end_date", "EndDate", "after_start", t.StartDate)
	}
	if t.SeatClass != "" {
		tag := "seat_class_international"
		if IsDomesticUS(t.DepartureCountry, t.ArrivalCountry) {
			tag = "seat_class_domestic"
		}
		if !slices.Contains(SeatClasses(tag == "seat_class_domestic"), strings.ToLower(t.SeatClass)) {
			sl.ReportError(t.SeatClass, "seat_class", "SeatClass", tag, "")
		}
	}
}

// IsDomesticUS reports whether both countries are the United States.
func IsDomesticUS(departureCountry, arrivalCountry string) bool {
	return strings.EqualFold(departureCountry, DomesticCountry) && strings.EqualFold(arrivalCountry, DomesticCountry)
}

// SeatClasses lists the cabins the search form offers for a route type.
func SeatClasses(domestic bool) []string {
	if domestic {
		return slices.Clone(domesticClasses)
	}
	return slices.Clone(internationalClasses)
}

// Task validates t and returns an *Error describing the first failure.
func Task(t batch.Task) error {
	err := v.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate task: %w", err)
	}
	return describe(t, verrs[0])
}

// Tasks validates every task and reports the first failure with its index.
func Tasks(tasks []batch.Task) error {
	for i, t := range tasks {
		if err := Task(t); err != nil {
			return fmt.Errorf("task %d (%s): %w", i, t.Route(), err)
		}
	}
	return nil
}

func describe(t batch.Task, fe validator.FieldError) *Error {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "mmddyyyy":
		msg = fmt.Sprintf("Invalid date format. Expected MM/DD/YYYY: %v", fe.Value())
	case "after_start":
		msg = fmt.Sprintf("Return date (%s) must be after departure date (%s)", t.EndDate, t.StartDate)
	case "seat_class_domestic":
		msg = "Invalid seat class for domestic US flight: " + t.SeatClass
	case "seat_class_international":
		msg = "Invalid seat class for international flight: " + t.SeatClass
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return &Error{Field: field, Msg: msg}
}
