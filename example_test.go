package scheduler_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	scheduler "github.com/netresearch/go-scheduler"
)

// This example demonstrates basic scheduler usage.
func Example() {
	s, err := scheduler.New()
	if err != nil {
		log.Fatal(err)
	}

	// Every hour on the half hour.
	if _, err := s.Cron("30 * * * *", scheduler.Func(func() { fmt.Println("half past") })); err != nil {
		log.Fatal(err)
	}
	// Every ten minutes.
	if _, err := s.Every("10m", scheduler.Func(func() { fmt.Println("tick") })); err != nil {
		log.Fatal(err)
	}

	if err := s.Start(); err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_ = s.Shutdown(ctx, scheduler.ShutdownWait)
	// Output:
}

func ExampleParseCron() {
	expr, err := scheduler.ParseCron("0 9 * * mon-fri Europe/Berlin")
	if err != nil {
		log.Fatal(err)
	}
	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) // a Friday
	for _, t := range expr.NextN(from, 3) {
		fmt.Println(t.Format("Mon Jan 2 15:04 MST"))
	}
	// Output:
	// Mon Mar 4 09:00 CET
	// Tue Mar 5 09:00 CET
	// Wed Mar 6 09:00 CET
}

// Ranges wrap around the end of a field and L names the last day.
func ExampleParseCron_wrapAndLast() {
	expr := scheduler.MustParseCron("0 22-2/2 L * *", scheduler.WithDefaultLocation(time.UTC))
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, t := range expr.NextN(from, 4) {
		fmt.Println(t.Format(time.DateTime))
	}
	// Output:
	// 2024-02-29 00:00:00
	// 2024-02-29 02:00:00
	// 2024-02-29 22:00:00
	// 2024-03-31 00:00:00
}

func ExampleParseDuration() {
	for _, s := range []string{"1h30m", "1.5d", "2w", "90"} {
		d, err := scheduler.ParseDuration(s)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(s, "=", d)
	}
	// Output:
	// 1h30m = 1h30m0s
	// 1.5d = 36h0m0s
	// 2w = 336h0m0s
	// 90 = 1m30s
}

func ExampleFormatDuration() {
	fmt.Println(scheduler.FormatDuration(36*time.Hour + 10*time.Second))
	fmt.Println(scheduler.FormatDuration(1500 * time.Millisecond))
	// Output:
	// 1d12h10s
	// 1s500ms
}

// This example drives a scheduler with a fake clock.
func ExampleWithClock() {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := scheduler.New(scheduler.WithClock(clock), scheduler.WithLogger(scheduler.DiscardLogger))
	if err != nil {
		log.Fatal(err)
	}
	done := make(chan struct{})
	j, err := s.In("1s", scheduler.HandlerFunc(func(_ context.Context, _ *scheduler.Job, at time.Time) error {
		fmt.Println("fired for", at.Format(time.TimeOnly))
		close(done)
		return nil
	}))
	if err != nil {
		log.Fatal(err)
	}
	_ = s.Start()

	for {
		_ = clock.BlockUntilContext(context.Background(), 1)
		clock.Advance(s.Frequency())
		select {
		case <-done:
			_ = s.Shutdown(context.Background(), scheduler.ShutdownWait)
			fmt.Println(j.State())
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Output:
	// fired for 00:00:01
	// exhausted
}

func ExampleScheduler_Timeline() {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s, _ := scheduler.New(
		scheduler.WithClock(clock),
		scheduler.WithLocation(time.UTC),
		scheduler.WithLogger(scheduler.DiscardLogger),
	)
	_, _ = s.Cron("0 6 * * *", scheduler.Func(func() {}), scheduler.WithJobID("backup"))
	_, _ = s.Every("12h", scheduler.Func(func() {}), scheduler.WithJobID("sync"))

	for _, o := range s.Timeline(clock.Now(), clock.Now().Add(24*time.Hour)) {
		fmt.Println(o.Time.Format("15:04"), o.Job.ID())
	}
	// Output:
	// 06:00 backup
	// 12:00 sync
	// 00:00 sync
}
