package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronAnalysis describes a cron expression without scheduling a job.
type CronAnalysis struct {
	// Valid reports whether the expression parsed.
	Valid bool

	// Err is the parse error when Valid is false.
	Err error

	// Expression is the parsed expression, nil when invalid.
	Expression *CronExpression

	// Location is the zone the expression is evaluated in.
	Location *time.Location

	// Canonical is the expression in six-field form.
	Canonical string

	// NextRuns holds the next occurrences after the analysis time.
	NextRuns []time.Time

	// Frequency is the shortest gap between two occurrences.
	Frequency time.Duration

	// Warnings lists legal but surprising constructs.
	Warnings []string
}

// DefaultAnalysisRuns is the number of NextRuns AnalyzeCron computes.
const DefaultAnalysisRuns = 5

// ValidateCron reports whether spec is a valid cron expression.
//
//	if err := scheduler.ValidateCron(userInput); err != nil {
//	    return fmt.Errorf("schedule: %w", err)
//	}
func ValidateCron(spec string, opts ...ParseOption) error {
	_, err := ParseCron(spec, opts...)
	return err
}

// ValidateCrons validates several expressions and joins the errors, each
// prefixed with the index of the failing expression.
func ValidateCrons(specs []string, opts ...ParseOption) error {
	var errs []error
	for i, spec := range specs {
		if err := ValidateCron(spec, opts...); err != nil {
			errs = append(errs, fmt.Errorf("[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// AnalyzeCron parses spec and computes its next occurrences after now, its
// frequency and warnings.
func AnalyzeCron(spec string, now time.Time, opts ...ParseOption) CronAnalysis {
	e, err := ParseCron(spec, opts...)
	if err != nil {
		return CronAnalysis{Err: err}
	}
	a := CronAnalysis{
		Valid:      true,
		Expression: e,
		Location:   e.Location(),
		Canonical:  e.String(),
		NextRuns:   e.NextN(now, DefaultAnalysisRuns),
		Frequency:  e.BruteFrequency(),
	}
	a.Warnings = cronWarnings(e)
	return a
}

func cronWarnings(e *CronExpression) []string {
	var w []string
	domRestricted := e.dom&starBit == 0 || e.domLast != 0
	dowRestricted := e.dow&starBit == 0 || len(e.dowNth) > 0
	if domRestricted && dowRestricted {
		w = append(w, "day of month and day of week both restricted: a day matching either fires")
	}
	if len(e.NextN(time.Date(2000, time.January, 1, 0, 0, 0, 0, e.loc), 1)) == 0 {
		w = append(w, "expression never fires")
	}
	if e.dom&starBit == 0 && e.domLast == 0 {
		if days := monthsMissingDays(e); days != "" {
			w = append(w, "days "+days+" do not exist in every selected month")
		}
	}
	return w
}

// monthsMissingDays lists the selected days of month that some selected
// month lacks, e.g. 31 with April selected.
func monthsMissingDays(e *CronExpression) string {
	shortest := 31
	for m := time.January; m <= time.December; m++ {
		if has(e.month, int(m)) {
			if n := daysIn(2024, m); n < shortest {
				shortest = n
			}
		}
	}
	var missing []string
	for d := shortest + 1; d <= 31; d++ {
		if has(e.dom, d) {
			missing = append(missing, strconv.Itoa(d))
		}
	}
	return strings.Join(missing, ",")
}
