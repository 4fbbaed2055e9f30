package window

import (
	"fmt"
	"strings"
	"time"
)

const (
	directoryNameTemplateConstant     = "Audit_Output_%s_%s-%s"
	directoryDateLayoutConstant       = "20060102"
	overrideParseErrorTemplate        = "invalid window override %q: %w"
	overrideOrderErrorMessageConstant = "window start must precede window end"
	precisionDayConstant              = "D"
	precisionWeekConstant             = "W"
	precisionMonthConstant            = "M"
	precisionQuarterConstant          = "Q"
)

// Clock abstracts time-dependent functionality for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the standard library.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Window is the UTC time range collected records must fall into.
type Window struct {
	Start    time.Time
	End      time.Time
	location *time.Location
}

// Resolver computes collection windows from a clock and a local timezone.
type Resolver struct {
	clock    Clock
	location *time.Location
}

// NewResolver constructs a Resolver. A nil clock falls back to the system
// clock and a nil location falls back to time.Local.
func NewResolver(clock Clock, location *time.Location) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	if location == nil {
		location = time.Local
	}
	return &Resolver{clock: clock, location: location}
}

// PreviousMonth returns the window spanning the previous calendar month in
// the resolver's location, converted to UTC. Start is the first instant of
// that month; End is its last whole second.
func (resolver *Resolver) PreviousMonth() Window {
	return PreviousMonth(resolver.clock.Now(), resolver.location)
}

// PreviousMonth computes the previous calendar month relative to the given
// reference instant interpreted in the given location. time.Date normalizes
// month and year rollover, so a January reference yields December of the
// prior year.
func PreviousMonth(reference time.Time, location *time.Location) Window {
	if location == nil {
		location = time.Local
	}
	localReference := reference.In(location)
	firstOfCurrentMonth := time.Date(localReference.Year(), localReference.Month(), 1, 0, 0, 0, 0, location)
	start := firstOfCurrentMonth.AddDate(0, -1, 0)
	end := firstOfCurrentMonth.Add(-time.Second)

	return Window{
		Start:    start.UTC(),
		End:      end.UTC(),
		location: location,
	}
}

// Resolve returns the run window: explicit overrides when provided,
// otherwise the previous calendar month. Both overrides must parse as
// RFC 3339 timestamps and start must precede end.
func (resolver *Resolver) Resolve(startOverride string, endOverride string) (Window, error) {
	computed := resolver.PreviousMonth()

	trimmedStart := strings.TrimSpace(startOverride)
	trimmedEnd := strings.TrimSpace(endOverride)
	if len(trimmedStart) == 0 && len(trimmedEnd) == 0 {
		return computed, nil
	}

	resolved := computed
	if len(trimmedStart) > 0 {
		parsedStart, parseError := time.Parse(time.RFC3339, trimmedStart)
		if parseError != nil {
			return Window{}, fmt.Errorf(overrideParseErrorTemplate, trimmedStart, parseError)
		}
		resolved.Start = parsedStart.UTC()
	}
	if len(trimmedEnd) > 0 {
		parsedEnd, parseError := time.Parse(time.RFC3339, trimmedEnd)
		if parseError != nil {
			return Window{}, fmt.Errorf(overrideParseErrorTemplate, trimmedEnd, parseError)
		}
		resolved.End = parsedEnd.UTC()
	}

	if !resolved.Start.Before(resolved.End) {
		return Window{}, fmt.Errorf(overrideParseErrorTemplate, trimmedStart+".."+trimmedEnd, fmt.Errorf(overrideOrderErrorMessageConstant))
	}

	return resolved, nil
}

// StartISO renders the UTC window start as RFC 3339.
func (window Window) StartISO() string {
	return window.Start.UTC().Format(time.RFC3339)
}

// EndISO renders the UTC window end as RFC 3339.
func (window Window) EndISO() string {
	return window.End.UTC().Format(time.RFC3339)
}

// Contains reports whether the instant falls inside [Start, End+1s). The
// end bound names the last whole second of the window, so the half-open
// comparison runs against the following second.
func (window Window) Contains(instant time.Time) bool {
	utcInstant := instant.UTC()
	if utcInstant.Before(window.Start) {
		return false
	}
	return utcInstant.Before(window.End.Add(time.Second))
}

// Label produces the output directory name for the window, stamped with a
// span precision marker: D for up to a week, W for up to a month, M for up
// to a quarter, and Q beyond that. Dates render in the window's local
// timezone.
func (window Window) Label() string {
	location := window.location
	if location == nil {
		location = time.UTC
	}

	spanDays := int(window.End.Sub(window.Start).Hours() / 24)
	precision := precisionQuarterConstant
	switch {
	case spanDays <= 7:
		precision = precisionDayConstant
	case spanDays <= 30:
		precision = precisionWeekConstant
	case spanDays <= 90:
		precision = precisionMonthConstant
	}

	startStamp := window.Start.In(location).Format(directoryDateLayoutConstant)
	endStamp := window.End.In(location).Format(directoryDateLayoutConstant)
	return fmt.Sprintf(directoryNameTemplateConstant, precision, startStamp, endStamp)
}
