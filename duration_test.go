package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1s", time.Second},
		{"500ms", 500 * time.Millisecond},
		{"1h10s", time.Hour + 10*time.Second},
		{"1d2h", 26 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1M", 30 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
		{"1y2M", (365 + 60) * 24 * time.Hour},
		{"1.5h", 90 * time.Minute},
		{"-30m", -30 * time.Minute},
		{"+2m", 2 * time.Minute},
		{"1000", 1000 * time.Second},
		{"0.25", 250 * time.Millisecond},
		{" 5m ", 5 * time.Minute},
		{"0s", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if err != nil {
				t.Fatalf("ParseDuration(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, in := range []string{"", "-", "h", "1x", "1h-2m", "1..5s", "--1s", "1 h", "* * * * *", "999999999y"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParseDuration(in); !errors.Is(err, ErrInvalidDuration) {
				t.Errorf("ParseDuration(%q) error = %v, want ErrInvalidDuration", in, err)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{time.Hour + 10*time.Second, "1h10s"},
		{84 * time.Hour, "3d12h"},
		{-90 * time.Minute, "-1h30m"},
		{1500 * time.Millisecond, "1s500ms"},
		{8 * 24 * time.Hour, "1w1d"},
		{500 * time.Microsecond, "500µs"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDurationParses(t *testing.T) {
	for _, d := range []time.Duration{
		time.Second,
		42 * time.Minute,
		400 * 24 * time.Hour,
		-3*time.Hour - 7*time.Millisecond,
		31*24*time.Hour + 1,
	} {
		s := FormatDuration(d)
		got, err := ParseDuration(s)
		if err != nil {
			t.Fatalf("ParseDuration(FormatDuration(%s) = %q): %v", d, s, err)
		}
		if want := d.Truncate(time.Millisecond); got != want {
			t.Errorf("round trip of %s via %q = %s", d, s, got)
		}
	}
}

func TestParseTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("no tz database:", err)
	}
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2030-01-02T03:04:05Z", time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2030-01-02 03:04:05", time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2030-01-02T03:04:05", time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2030-01-02 03:04", time.Date(2030, 1, 2, 3, 4, 0, 0, time.UTC)},
		{"2030-01-02", time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2030-01-02 03:04:05 Europe/Berlin", time.Date(2030, 1, 2, 3, 4, 5, 0, berlin)},
		{"2030-01-02 12:00 +09:00", time.Date(2030, 1, 2, 3, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in, time.UTC)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, in := range []string{"", "tomorrow", "2030-13-01", "2030-01-02 03:04 Mars/Olympus"} {
		if _, err := ParseTime(in, time.UTC); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ParseTime(%q) error = %v, want ErrInvalidTime", in, err)
		}
	}
}
