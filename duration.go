package scheduler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var durationUnits = map[string]time.Duration{
	"y":  year,
	"M":  month,
	"w":  week,
	"d":  day,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
	"ms": time.Millisecond,
}

// formatUnits lists the units FormatDuration emits, coarsest first.
var formatUnits = []struct {
	name string
	d    time.Duration
}{
	{"y", year},
	{"M", month},
	{"w", week},
	{"d", day},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
}

// ParseDuration parses a human duration such as "1h10s", "2d", "1.5h", "-30m"
// or "1y2M". A bare number is a number of seconds ("90", "0.25").
//
// Units are y (365 days), M (30 days), w, d, h, m, s and ms. Unlike
// time.ParseDuration the calendar-ish units are accepted and "m" is minutes
// while "M" is months.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
	}

	var total float64
	if isDecimal(s) {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, orig, err)
		}
		total = secs * float64(time.Second)
	} else {
		for s != "" {
			i := 0
			for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
				i++
			}
			if i == 0 {
				return 0, fmt.Errorf("%w: %q: expected number at %q", ErrInvalidDuration, orig, s)
			}
			num, err := strconv.ParseFloat(s[:i], 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, orig, err)
			}
			s = s[i:]

			j := 0
			for j < len(s) && isLetter(s[j]) {
				j++
			}
			unit, ok := durationUnits[s[:j]]
			if !ok {
				return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidDuration, orig, s[:j])
			}
			s = s[j:]
			total += num * float64(unit)
		}
	}

	if total > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q: overflows", ErrInvalidDuration, orig)
	}
	d := time.Duration(math.Round(total))
	if negative {
		d = -d
	}
	return d, nil
}

// FormatDuration renders d in the compact form accepted by ParseDuration,
// for example "1h10s" or "3d12h". Precision below a millisecond is dropped,
// except for durations shorter than a millisecond which use time.Duration's form.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	if d < time.Millisecond {
		b.WriteString(d.String())
		return b.String()
	}
	for _, u := range formatUnits {
		if d < u.d {
			continue
		}
		n := d / u.d
		d -= n * u.d
		b.WriteString(strconv.FormatInt(int64(n), 10))
		b.WriteString(u.name)
	}
	return b.String()
}

// timeLayouts are tried in order by ParseTime after RFC 3339.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an absolute instant. It accepts RFC 3339 and the layouts
// "2006-01-02 15:04:05", "2006-01-02 15:04" and "2006-01-02", each optionally
// followed by a zone token ("Europe/Berlin", "+09:00", "UTC"). Times without a
// zone are interpreted in loc (time.Local when nil).
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	return parseTime(s, loc, DefaultZones)
}

func parseTime(s string, loc *time.Location, zones ZoneResolver) (time.Time, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTime)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}

	if i := strings.LastIndexByte(s, ' '); i > 0 {
		if zl, err := zones.Resolve(s[i+1:]); err == nil {
			loc = zl
			s = strings.TrimSpace(s[:i])
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, orig)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

// isDecimal reports whether s is digits with at most one dot.
func isDecimal(s string) bool {
	dots := 0
	digits := 0
	for i := 0; i < len(s); i++ {
		switch {
		case isDigit(s[i]):
			digits++
		case s[i] == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
