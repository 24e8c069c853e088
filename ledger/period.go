package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// FREQUENCY
// =============================================================================

// Frequency is how often a recurring obligation falls due.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

// Months returns the length of one billing period in months.
func (f Frequency) Months() int {
	switch f {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	case Annual:
		return 12
	default:
		return 0
	}
}

// Validate rejects unknown frequencies.
func (f Frequency) Validate() error {
	if f.Months() == 0 {
		return NewValidationError("frequency", fmt.Sprintf("unknown frequency %q", f), ErrInvalidFrequency)
	}
	return nil
}

// ValidateAnchorDay checks the anchor day-of-month is in [1, 31].
func ValidateAnchorDay(day int) error {
	if day < 1 || day > 31 {
		return NewValidationError("anchor_day", fmt.Sprintf("anchor day %d outside [1, 31]", day), ErrInvalidAnchorDay)
	}
	return nil
}

// =============================================================================
// SCHEDULE RESOLVER
// =============================================================================

// ResolveDueDate returns the most recent due date on or before asOf.
//
//   - Monthly: asOf's month at anchorDay, stepping back a month if that is
//     still in the future.
//   - Quarterly: the quarter's first month (Jan, Apr, Jul, Oct) at anchorDay,
//     stepping back a quarter if in the future.
//   - Annual: the month of start at anchorDay in asOf's year, stepping back a
//     year if in the future.
//
// An anchor past the end of the resolved month clamps to its last day, and
// the clamp is reapplied after each step back.
func ResolveDueDate(freq Frequency, anchorDay int, start, asOf Date) (Date, error) {
	if err := freq.Validate(); err != nil {
		return Date{}, err
	}
	if err := ValidateAnchorDay(anchorDay); err != nil {
		return Date{}, err
	}

	year, month := asOf.Year(), asOf.Month()
	switch freq {
	case Quarterly:
		month = quarterStart(month)
	case Annual:
		month = time.January
		if !start.IsZero() {
			month = start.Month()
		}
	}

	due := ClampedDate(year, month, anchorDay)
	if due.After(asOf) {
		y, m := shiftMonth(year, month, -freq.Months())
		due = ClampedDate(y, m, anchorDay)
	}
	return due, nil
}

func quarterStart(m time.Month) time.Month {
	return time.Month((int(m)-1)/3*3 + 1)
}

// =============================================================================
// PERIOD - One calendar instance of a recurring obligation
// =============================================================================

// Period is the inclusive date range a due date belongs to. Payments dated
// inside it count toward that period's obligation, and at most one late-fee
// charge exists per obligation and period.
type Period struct {
	Start Date
	End   Date
}

// PeriodFor returns the billing period that holds due: the month for
// monthly obligations, the quarter for quarterly ones and the twelve months
// starting at the due month for annual ones.
func PeriodFor(freq Frequency, due Date) Period {
	start := StartOfMonth(due.Year(), due.Month())
	months := freq.Months()
	if months == 0 {
		months = 1
	}
	y, m := shiftMonth(start.Year(), start.Month(), months)
	return Period{Start: start, End: StartOfMonth(y, m).AddDays(-1)}
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Key identifies the period in storage and idempotency checks.
func (p Period) Key() string { return p.Start.String() }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// Next returns the period that follows p for the given frequency.
func (p Period) Next(freq Frequency) Period {
	return PeriodFor(freq, p.End.AddDays(1))
}
