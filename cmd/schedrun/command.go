package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	scheduler "github.com/netresearch/go-scheduler"
	"github.com/netresearch/go-scheduler/internal/jobfile"
)

// maxOutput bounds the command output attached to an error.
const maxOutput = 4 << 10

// commandRunner returns handlers running a spec's command through the
// shell. The command is killed when the job context is canceled.
func commandRunner(logger scheduler.Logger) jobfile.Runner {
	return func(spec jobfile.Spec) scheduler.Handler {
		h := scheduler.HandlerFunc(func(ctx context.Context, j *scheduler.Job, fireTime time.Time) error {
			cmd := exec.CommandContext(ctx, "/bin/sh", "-c", spec.Command)
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out
			cmd.Env = append(cmd.Environ(),
				"SCHEDRUN_JOB_ID="+j.ID(),
				"SCHEDRUN_FIRE_TIME="+fireTime.Format(time.RFC3339),
			)
			if err := cmd.Run(); err != nil {
				if ctx.Err() != nil {
					return context.Cause(ctx)
				}
				return fmt.Errorf("%s: %w: %s", spec.Command, err, tail(out.String()))
			}
			return nil
		})

		chain := []scheduler.Middleware{scheduler.LogRuns(logger)}
		if spec.Retries > 0 {
			chain = append(chain, scheduler.Retry(logger, scheduler.RetryPolicy{
				MaxRetries:   spec.Retries,
				InitialDelay: time.Second,
				MaxDelay:     time.Minute,
			}))
		}
		return scheduler.NewChain(chain...).Then(h)
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		s = "..." + s[len(s)-maxOutput:]
	}
	return s
}
