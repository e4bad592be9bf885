package scheduler

import (
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed cron schedule, stored as one bit set per field.
// It is immutable after construction and safe for concurrent use.
type CronExpression struct {
	original string

	second, minute, hour, dom, month, dow uint64

	// domLast has bit n set when the n-th day counted from the end of the
	// month matches (bit 1 is the last day).
	domLast uint64
	dowNth  []nthWeekday

	loc      *time.Location
	zoneName string
}

// nthWeekday is "the n-th <weekday> of the month"; negative n counts from
// the end of the month.
type nthWeekday struct {
	weekday int
	n       int
}

// bounds provides a range of acceptable values (plus a map of name to value).
type bounds struct {
	min, max uint
	alias    uint // accepted as a synonym of min, 0 when none
	names    map[string]uint
}

// The bounds for each field.
var (
	seconds = bounds{0, 59, 0, nil}
	minutes = bounds{0, 59, 0, nil}
	hours   = bounds{0, 23, 24, nil}
	dom     = bounds{1, 31, 0, nil}
	months  = bounds{1, 12, 0, map[string]uint{
		"jan": 1, "january": 1,
		"feb": 2, "february": 2,
		"mar": 3, "march": 3,
		"apr": 4, "april": 4,
		"may": 5,
		"jun": 6, "june": 6,
		"jul": 7, "july": 7,
		"aug": 8, "august": 8,
		"sep": 9, "september": 9,
		"oct": 10, "october": 10,
		"nov": 11, "november": 11,
		"dec": 12, "december": 12,
	}}
	dow = bounds{0, 6, 7, map[string]uint{
		"sun": 0, "sunday": 0,
		"mon": 1, "monday": 1,
		"tue": 2, "tuesday": 2,
		"wed": 3, "wednesday": 3,
		"thu": 4, "thursday": 4,
		"fri": 5, "friday": 5,
		"sat": 6, "saturday": 6,
	}}
)

const (
	// Set the top bit if a star was included in the expression.
	starBit = 1 << 63

	// searchYears bounds Next and Previous.
	searchYears = 10
)

// wall is a wall clock reading in the expression's location.
type wall struct {
	year   int
	month  time.Month
	day    int
	hour   int
	minute int
	second int
}

func wallOf(t time.Time) wall {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return wall{y, m, d, hh, mm, ss}
}

func (w wall) time(loc *time.Location) time.Time {
	return time.Date(w.year, w.month, w.day, w.hour, w.minute, w.second, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextDay moves w to the first second of the following day.
func (w wall) nextDay() wall {
	w.hour, w.minute, w.second = 0, 0, 0
	w.day++
	if w.day > daysIn(w.year, w.month) {
		w.day = 1
		w.month++
		if w.month > time.December {
			w.month = time.January
			w.year++
		}
	}
	return w
}

// prevDay moves w to the last second of the preceding day.
func (w wall) prevDay() wall {
	w.hour, w.minute, w.second = 23, 59, 59
	w.day--
	if w.day < 1 {
		w.month--
		if w.month < time.January {
			w.month = time.December
			w.year--
		}
		w.day = daysIn(w.year, w.month)
	}
	return w
}

// nextBit returns the smallest set bit >= from and <= limit, or -1.
func nextBit(set uint64, from, limit int) int {
	if from > limit {
		return -1
	}
	m := (set &^ starBit) >> uint(from) << uint(from)
	if m == 0 {
		return -1
	}
	v := bits.TrailingZeros64(m)
	if v > limit {
		return -1
	}
	return v
}

// prevBit returns the largest set bit <= from and >= limit, or -1.
func prevBit(set uint64, from, limit int) int {
	if from < limit {
		return -1
	}
	m := (set &^ starBit) & (1<<uint(from+1) - 1)
	if m == 0 {
		return -1
	}
	v := 63 - bits.LeadingZeros64(m)
	if v < limit {
		return -1
	}
	return v
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

// Location returns the location the expression is evaluated in.
func (e *CronExpression) Location() *time.Location { return e.loc }

// Original returns the string the expression was parsed from.
func (e *CronExpression) Original() string { return e.original }

// Matches reports whether t, truncated to the second, is an occurrence.
func (e *CronExpression) Matches(t time.Time) bool {
	w := wallOf(t.In(e.loc))
	return has(e.second, w.second) &&
		has(e.minute, w.minute) &&
		has(e.hour, w.hour) &&
		has(e.month, int(w.month)) &&
		e.dayMatches(w.year, w.month, w.day)
}

// dayMatches combines day-of-month and weekday. When both are restricted a
// date matching either one matches; a wildcard defers to the other field.
func (e *CronExpression) dayMatches(year int, month time.Month, day int) bool {
	domStar := e.dom&starBit != 0
	dowStar := e.dow&starBit != 0
	if domStar && dowStar {
		return true
	}
	last := daysIn(year, month)
	domMatch := has(e.dom, day) || has(e.domLast, last-day+1)

	wd := int(time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Weekday())
	dowMatch := has(e.dow, wd)
	for _, n := range e.dowNth {
		if dowMatch {
			break
		}
		if n.weekday != wd {
			continue
		}
		if n.n > 0 {
			dowMatch = (day-1)/7+1 == n.n
		} else {
			dowMatch = (last-day)/7+1 == -n.n
		}
	}

	switch {
	case domStar:
		return dowMatch
	case dowStar:
		return domMatch
	}
	return domMatch || dowMatch
}

// Next returns the earliest occurrence strictly after from, or the zero time
// if none exists within the search horizon. The result is in the
// expression's location.
//
// The search skips forward one field at a time: a mismatching month jumps to
// the next allowed month, a mismatching hour to the next allowed hour and so
// on, so sparse schedules resolve in a handful of steps. Wall clock readings
// that do not exist (DST gaps) are skipped; ambiguous readings fire once.
func (e *CronExpression) Next(from time.Time) time.Time {
	from = from.In(e.loc)
	w := wallOf(from.Truncate(time.Second).Add(time.Second))
	limit := w.year + searchYears

	for w.year <= limit {
		if !has(e.month, int(w.month)) {
			m := nextBit(e.month, int(w.month)+1, 12)
			if m < 0 {
				w.year++
				m = nextBit(e.month, 1, 12)
			}
			w = wall{year: w.year, month: time.Month(m), day: 1}
			continue
		}
		if !e.dayMatches(w.year, w.month, w.day) {
			w = w.nextDay()
			continue
		}
		if !has(e.hour, w.hour) {
			h := nextBit(e.hour, w.hour+1, 23)
			if h < 0 {
				w = w.nextDay()
				continue
			}
			w.hour, w.minute, w.second = h, 0, 0
			continue
		}
		if !has(e.minute, w.minute) {
			m := nextBit(e.minute, w.minute+1, 59)
			if m < 0 {
				w = w.nextHour()
				continue
			}
			w.minute, w.second = m, 0
			continue
		}
		if !has(e.second, w.second) {
			s := nextBit(e.second, w.second+1, 59)
			if s < 0 {
				w = w.nextMinute()
				continue
			}
			w.second = s
			continue
		}

		t := w.time(e.loc)
		if wallOf(t) == w && t.After(from) {
			return t
		}
		w = w.nextSecond()
	}
	return time.Time{}
}

// Previous returns the latest occurrence strictly before before, or the zero
// time if none exists within the search horizon.
func (e *CronExpression) Previous(before time.Time) time.Time {
	before = before.In(e.loc)
	start := before.Truncate(time.Second)
	if !start.Before(before) {
		start = start.Add(-time.Second)
	}
	w := wallOf(start)
	limit := w.year - searchYears

	for w.year >= limit {
		if !has(e.month, int(w.month)) {
			m := prevBit(e.month, int(w.month)-1, 1)
			if m < 0 {
				w.year--
				m = prevBit(e.month, 12, 1)
			}
			w = wall{year: w.year, month: time.Month(m), hour: 23, minute: 59, second: 59}
			w.day = daysIn(w.year, w.month)
			continue
		}
		if !e.dayMatches(w.year, w.month, w.day) {
			w = w.prevDay()
			continue
		}
		if !has(e.hour, w.hour) {
			h := prevBit(e.hour, w.hour-1, 0)
			if h < 0 {
				w = w.prevDay()
				continue
			}
			w.hour, w.minute, w.second = h, 59, 59
			continue
		}
		if !has(e.minute, w.minute) {
			m := prevBit(e.minute, w.minute-1, 0)
			if m < 0 {
				w = w.prevHour()
				continue
			}
			w.minute, w.second = m, 59
			continue
		}
		if !has(e.second, w.second) {
			s := prevBit(e.second, w.second-1, 0)
			if s < 0 {
				w = w.prevMinute()
				continue
			}
			w.second = s
			continue
		}

		t := w.time(e.loc)
		if wallOf(t) == w && t.Before(before) {
			return t
		}
		w = w.prevSecond()
	}
	return time.Time{}
}

func (w wall) nextHour() wall {
	if w.hour == 23 {
		return w.nextDay()
	}
	w.hour++
	w.minute, w.second = 0, 0
	return w
}

func (w wall) nextMinute() wall {
	if w.minute == 59 {
		return w.nextHour()
	}
	w.minute++
	w.second = 0
	return w
}

func (w wall) nextSecond() wall {
	if w.second == 59 {
		return w.nextMinute()
	}
	w.second++
	return w
}

func (w wall) prevHour() wall {
	if w.hour == 0 {
		return w.prevDay()
	}
	w.hour--
	w.minute, w.second = 59, 59
	return w
}

func (w wall) prevMinute() wall {
	if w.minute == 0 {
		return w.prevHour()
	}
	w.minute--
	w.second = 59
	return w
}

func (w wall) prevSecond() wall {
	if w.second == 0 {
		return w.prevMinute()
	}
	w.second--
	return w
}

// NextN returns up to n consecutive occurrences after from.
func (e *CronExpression) NextN(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	t := from
	for range n {
		t = e.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}

// Between returns the occurrences in (from, to].
func (e *CronExpression) Between(from, to time.Time) []time.Time {
	var out []time.Time
	for t := e.Next(from); !t.IsZero() && !t.After(to); t = e.Next(t) {
		out = append(out, t)
	}
	return out
}

// RoughFrequency is a cheap lower bound of the shortest gap between two
// occurrences, derived from the finest field holding more than one value.
// In zones without DST transitions it never exceeds BruteFrequency.
func (e *CronExpression) RoughFrequency() time.Duration {
	if g := minGap(e.second, seconds); g > 0 {
		return time.Duration(g) * time.Second
	}
	if g := minGap(e.minute, minutes); g > 0 {
		return time.Duration(g) * time.Minute
	}
	if g := minGap(e.hour, hours); g > 0 {
		return time.Duration(g) * time.Hour
	}
	return 24 * time.Hour
}

// minGap returns the smallest circular distance between two set values, or
// 0 when at most one value is set.
func minGap(set uint64, r bounds) int {
	set &^= starBit
	if bits.OnesCount64(set) < 2 {
		return 0
	}
	span := int(r.max - r.min + 1)
	first, prev := -1, -1
	gap := span
	for v := int(r.min); v <= int(r.max); v++ {
		if !has(set, v) {
			continue
		}
		if first < 0 {
			first = v
		} else if v-prev < gap {
			gap = v - prev
		}
		prev = v
	}
	if wrap := first + span - prev; wrap < gap {
		gap = wrap
	}
	return gap
}

// BruteFrequency walks one calendar year of occurrences and returns the
// shortest observed gap. It returns 0 when fewer than two occurrences exist
// within the search horizon.
func (e *CronExpression) BruteFrequency() time.Duration {
	floor := e.RoughFrequency()
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, e.loc).Add(-time.Second)
	end := start.AddDate(1, 0, 0)

	prev := e.Next(start)
	if prev.IsZero() {
		return 0
	}
	var shortest time.Duration
	for {
		t := e.Next(prev)
		if t.IsZero() {
			return shortest
		}
		if d := t.Sub(prev); shortest == 0 || d < shortest {
			shortest = d
		}
		if shortest <= floor || t.After(end) {
			return shortest
		}
		prev = t
	}
}

// String renders the expression in canonical six-field form. Parsing the
// result yields an expression with identical matches.
func (e *CronExpression) String() string {
	var b strings.Builder
	b.WriteString(formatField(e.second, seconds))
	b.WriteByte(' ')
	b.WriteString(formatField(e.minute, minutes))
	b.WriteByte(' ')
	b.WriteString(formatField(e.hour, hours))
	b.WriteByte(' ')

	parts := make([]string, 0, 2)
	if e.dom&^starBit != 0 {
		parts = append(parts, formatField(e.dom, dom))
	}
	for n := 1; n <= 31; n++ {
		if has(e.domLast, n) {
			parts = append(parts, "-"+strconv.Itoa(n))
		}
	}
	b.WriteString(strings.Join(parts, ","))
	b.WriteByte(' ')

	b.WriteString(formatField(e.month, months))
	b.WriteByte(' ')

	parts = parts[:0]
	if e.dow&^starBit != 0 {
		parts = append(parts, formatField(e.dow, dow))
	}
	for _, n := range e.dowNth {
		parts = append(parts, strconv.Itoa(n.weekday)+"#"+strconv.Itoa(n.n))
	}
	b.WriteString(strings.Join(parts, ","))

	switch {
	case e.zoneName != "":
		b.WriteByte(' ')
		b.WriteString(e.zoneName)
	case e.loc != time.Local:
		b.WriteByte(' ')
		b.WriteString(e.loc.String())
	}
	return b.String()
}

// formatField renders a bit set as "*" or a list of values and runs.
func formatField(set uint64, r bounds) string {
	if set&starBit != 0 {
		return "*"
	}
	var parts []string
	for v := int(r.min); v <= int(r.max); v++ {
		if !has(set, v) {
			continue
		}
		end := v
		for end+1 <= int(r.max) && has(set, end+1) {
			end++
		}
		if end > v {
			parts = append(parts, strconv.Itoa(v)+"-"+strconv.Itoa(end))
		} else {
			parts = append(parts, strconv.Itoa(v))
		}
		v = end
	}
	return strings.Join(parts, ",")
}
