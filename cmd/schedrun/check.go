package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	scheduler "github.com/netresearch/go-scheduler"
	"github.com/netresearch/go-scheduler/internal/jobfile"
)

// checkRuns is the number of upcoming runs printed per cron job.
const checkRuns = 3

// check prints every job of f with its schedule and, for cron jobs, the
// next runs after now and any warnings. It returns the number of warnings.
func check(w io.Writer, f *jobfile.File, now time.Time) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	warnings := 0
	for _, spec := range f.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%q\n", spec.ID, spec.Kind(), spec.Schedule())
		if spec.Cron == "" {
			continue
		}
		a := scheduler.AnalyzeCron(spec.Cron, now)
		if !a.Valid {
			return warnings, a.Err
		}
		runs := a.NextRuns
		if len(runs) > checkRuns {
			runs = runs[:checkRuns]
		}
		for _, t := range runs {
			fmt.Fprintf(tw, "\t\tnext %s\n", t.Format(time.RFC3339))
		}
		for _, msg := range a.Warnings {
			fmt.Fprintf(tw, "\t\twarning: %s\n", msg)
			warnings++
		}
	}
	return warnings, tw.Flush()
}
