package scheduler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxSpecLength is the maximum allowed length for a cron spec string.
const MaxSpecLength = 1024

// ParseOption configures ParseCron.
type ParseOption func(*parseConfig)

type parseConfig struct {
	zones ZoneResolver
	loc   *time.Location
}

// WithZoneResolver sets the resolver used for the TZ= prefix and the trailing
// zone token. DefaultZones is used otherwise.
func WithZoneResolver(z ZoneResolver) ParseOption {
	return func(c *parseConfig) {
		if z != nil {
			c.zones = z
		}
	}
}

// WithDefaultLocation sets the location of expressions that do not name a
// zone. time.Local is used otherwise.
func WithDefaultLocation(loc *time.Location) ParseOption {
	return func(c *parseConfig) {
		if loc != nil {
			c.loc = loc
		}
	}
}

var descriptors = map[string]string{
	"@yearly":   "0 0 0 1 1 *",
	"@annually": "0 0 0 1 1 *",
	"@monthly":  "0 0 0 1 * *",
	"@weekly":   "0 0 0 * * 0",
	"@daily":    "0 0 0 * * *",
	"@midnight": "0 0 0 * * *",
	"@hourly":   "0 0 * * * *",
}

// MustParseCron is like ParseCron but panics if the spec cannot be parsed.
func MustParseCron(spec string, opts ...ParseOption) *CronExpression {
	e, err := ParseCron(spec, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// ParseCron parses a cron expression.
//
// Accepted forms:
//
//	[sec] min hour dom month dow [zone]
//	TZ=Europe/Berlin min hour dom month dow
//	@daily
//
// The seconds field defaults to 0 when five fields are given. The zone token
// may be an IANA name or a UTC offset such as "+09:00". Values outside a
// field's range are rejected.
func ParseCron(spec string, opts ...ParseOption) (*CronExpression, error) {
	cfg := parseConfig{zones: DefaultZones, loc: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	e, err := parseCron(spec, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidCron, spec, err)
	}
	return e, nil
}

func parseCron(spec string, cfg *parseConfig) (*CronExpression, error) {
	original := spec
	spec = strings.TrimSpace(spec)
	if len(spec) == 0 {
		return nil, errors.New("empty spec string")
	}
	if len(spec) > MaxSpecLength {
		return nil, fmt.Errorf("spec too long: %d > %d", len(spec), MaxSpecLength)
	}

	loc, zoneName, spec, err := parseZonePrefix(spec, cfg.zones)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(spec, "@") {
		expanded, ok := descriptors[strings.ToLower(spec)]
		if !ok {
			return nil, fmt.Errorf("unrecognized descriptor: %q", spec)
		}
		spec = expanded
	}

	fields := strings.Fields(spec)
	switch len(fields) {
	case 7:
		if zoneName != "" {
			return nil, errors.New("zone given twice")
		}
		zoneName = fields[6]
		if loc, err = cfg.zones.Resolve(zoneName); err != nil {
			return nil, err
		}
		fields = fields[:6]
	case 6:
		if zoneName == "" {
			if zl, zerr := cfg.zones.Resolve(fields[5]); zerr == nil {
				loc, zoneName = zl, fields[5]
				fields = append([]string{"0"}, fields[:5]...)
			}
		}
	case 5:
		fields = append([]string{"0"}, fields...)
	default:
		return nil, fmt.Errorf("expected 5 or 6 fields (plus optional zone), found %d: %s", len(fields), fields)
	}
	if loc == nil {
		loc = cfg.loc
	}

	e := &CronExpression{original: original, loc: loc, zoneName: zoneName}
	field := func(expr string, r bounds) uint64 {
		if err != nil {
			return 0
		}
		var bits uint64
		bits, err = getField(expr, r)
		return bits
	}
	e.second = field(fields[0], seconds)
	e.minute = field(fields[1], minutes)
	e.hour = field(fields[2], hours)
	if err == nil {
		e.dom, e.domLast, err = getDomField(fields[3])
	}
	e.month = field(fields[4], months)
	if err == nil {
		e.dow, e.dowNth, err = getDowField(fields[5])
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// parseZonePrefix extracts a leading TZ= or CRON_TZ= zone.
func parseZonePrefix(spec string, zones ZoneResolver) (loc *time.Location, name, rest string, err error) {
	if !strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "CRON_TZ=") {
		return nil, "", spec, nil
	}
	i := strings.IndexAny(spec, " \t")
	if i == -1 {
		return nil, "", "", fmt.Errorf("missing fields after zone in spec %q", spec)
	}
	eq := strings.Index(spec, "=")
	name = spec[eq+1 : i]
	loc, err = zones.Resolve(name)
	if err != nil {
		return nil, "", "", err
	}
	return loc, name, strings.TrimSpace(spec[i:]), nil
}

// getField returns the bits set by a comma separated list of ranges.
func getField(field string, r bounds) (uint64, error) {
	var bits uint64
	for _, expr := range strings.Split(field, ",") {
		bit, err := getRange(expr, r)
		if err != nil {
			return 0, err
		}
		bits |= bit
	}
	return bits, nil
}

// getDomField parses the day-of-month field. Besides plain ranges it accepts
// "L" (last day), "L-n" (n days before the last day) and "-n" (n-th day
// counted from the end). Those land in the second bitset, bit n meaning
// "n-th day from the end".
func getDomField(field string) (bits, last uint64, err error) {
	for _, expr := range strings.Split(field, ",") {
		switch {
		case strings.EqualFold(expr, "L"):
			last |= 1 << 1
		case len(expr) > 2 && (expr[0] == 'L' || expr[0] == 'l') && expr[1] == '-':
			n, perr := mustParseInt(expr[2:])
			if perr != nil {
				return 0, 0, perr
			}
			if n > dom.max-1 {
				return 0, 0, fmt.Errorf("offset from last day (%d) above maximum (%d): %q", n, dom.max-1, expr)
			}
			last |= 1 << (n + 1)
		case len(expr) > 1 && expr[0] == '-':
			n, perr := mustParseInt(expr[1:])
			if perr != nil {
				return 0, 0, perr
			}
			if n < dom.min || n > dom.max {
				return 0, 0, fmt.Errorf("negative day (-%d) out of range (-%d to -%d): %q", n, dom.max, dom.min, expr)
			}
			last |= 1 << n
		default:
			b, rerr := getRange(expr, dom)
			if rerr != nil {
				return 0, 0, rerr
			}
			bits |= b
		}
	}
	return bits, last, nil
}

// getDowField parses the weekday field. Besides plain ranges it accepts
// "d#k" (k-th such weekday of the month, negative k counting from the end)
// and "dL" (last such weekday).
func getDowField(field string) (bits uint64, nth []nthWeekday, err error) {
	for _, expr := range strings.Split(field, ",") {
		switch {
		case strings.Contains(expr, "#"):
			parts := strings.SplitN(expr, "#", 2)
			d, perr := parseWeekday(parts[0])
			if perr != nil {
				return 0, nil, perr
			}
			k, perr := strconv.Atoi(parts[1])
			if perr != nil {
				return 0, nil, fmt.Errorf("failed to parse occurrence from %q: %w", expr, perr)
			}
			if k == 0 || k < -5 || k > 5 {
				return 0, nil, fmt.Errorf("occurrence (%d) must be within 1..5 or -5..-1: %q", k, expr)
			}
			nth = appendNth(nth, nthWeekday{weekday: d, n: k})
		case len(expr) > 1 && (strings.HasSuffix(expr, "L") || strings.HasSuffix(expr, "l")):
			d, perr := parseWeekday(expr[:len(expr)-1])
			if perr != nil {
				return 0, nil, perr
			}
			nth = appendNth(nth, nthWeekday{weekday: d, n: -1})
		default:
			b, rerr := getRange(expr, dow)
			if rerr != nil {
				return 0, nil, rerr
			}
			bits |= b
		}
	}
	return bits, nth, nil
}

func appendNth(list []nthWeekday, w nthWeekday) []nthWeekday {
	for _, x := range list {
		if x == w {
			return list
		}
	}
	return append(list, w)
}

func parseWeekday(expr string) (int, error) {
	v, err := parseIntOrName(expr, dow.names)
	if err != nil {
		return 0, err
	}
	if v == dow.alias {
		v = dow.min
	}
	if v > dow.max {
		return 0, fmt.Errorf("weekday (%d) above maximum (%d): %q", v, dow.max, expr)
	}
	return int(v), nil
}

// parseRangeBounds parses the start/end bounds of a range expression.
// Returns start, end, extra bits (starBit for a bare wildcard) and any error.
func parseRangeBounds(lowAndHigh []string, r bounds) (start, end uint, extra uint64, err error) {
	wild := lowAndHigh[0] == "*" || lowAndHigh[0] == "?"
	switch {
	case wild && len(lowAndHigh) == 1:
		return r.min, r.max, starBit, nil
	case wild:
		start = r.min
	default:
		start, err = parseIntOrName(lowAndHigh[0], r.names)
		if err != nil {
			return 0, 0, 0, err
		}
		if r.alias != 0 && start == r.alias {
			start = r.min
		}
	}

	switch len(lowAndHigh) {
	case 1:
		return start, start, 0, nil
	case 2:
		end, err = parseIntOrName(lowAndHigh[1], r.names)
		if err != nil {
			return 0, 0, 0, err
		}
		return start, end, 0, nil
	default:
		return 0, 0, 0, fmt.Errorf("too many hyphens: %q", strings.Join(lowAndHigh, "-"))
	}
}

// validateRangeParams validates the parsed range parameters. A start greater
// than the end is a wrap-around range ("22-2", "fri-mon").
func validateRangeParams(start, end, step uint, r bounds, expr string) error {
	if start < r.min {
		return fmt.Errorf("beginning of range (%d) below minimum (%d): %q", start, r.min, expr)
	}
	if start > r.max {
		return fmt.Errorf("beginning of range (%d) above maximum (%d): %q", start, r.max, expr)
	}
	if end < r.min {
		return fmt.Errorf("end of range (%d) below minimum (%d): %q", end, r.min, expr)
	}
	if end > r.max && (r.alias == 0 || end != r.alias) {
		return fmt.Errorf("end of range (%d) above maximum (%d): %q", end, r.max, expr)
	}
	if step == 0 {
		return fmt.Errorf("step of range must be a positive number: %q", expr)
	}
	if step > r.max-r.min+1 {
		return fmt.Errorf("step (%d) larger than field span (%d): %q", step, r.max-r.min+1, expr)
	}
	return nil
}

// getRange returns the bits indicated by the given expression:
//
//	number | number "-" number [ "/" number ] | "*" [ "/" number ] | number "/" number
//
// or error parsing range.
func getRange(expr string, r bounds) (uint64, error) {
	if expr == "" {
		return 0, errors.New("empty item in list")
	}
	rangeAndStep := strings.Split(expr, "/")
	lowAndHigh := strings.Split(rangeAndStep[0], "-")
	singleDigit := len(lowAndHigh) == 1

	start, end, extra, err := parseRangeBounds(lowAndHigh, r)
	if err != nil {
		return 0, err
	}

	var step uint
	switch len(rangeAndStep) {
	case 1:
		step = 1
	case 2:
		step, err = mustParseInt(rangeAndStep[1])
		if err != nil {
			return 0, err
		}
		// "N/step" means "N-max/step".
		if singleDigit {
			end = r.max
		}
		if step > 1 {
			extra = 0
		}
	default:
		return 0, fmt.Errorf("too many slashes: %q", expr)
	}

	if err := validateRangeParams(start, end, step, r, expr); err != nil {
		return 0, err
	}

	return getBits(start, end, step, r) | extra, nil
}

// parseIntOrName returns the (possibly-named) integer contained in expr.
func parseIntOrName(expr string, names map[string]uint) (uint, error) {
	if names != nil {
		if namedInt, ok := names[strings.ToLower(expr)]; ok {
			return namedInt, nil
		}
	}
	return mustParseInt(expr)
}

// mustParseInt parses the given expression as an int or returns an error.
func mustParseInt(expr string) (uint, error) {
	num, err := strconv.Atoi(expr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse int from %q: %w", expr, err)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative number (%d) not allowed: %q", num, expr)
	}
	return uint(num), nil
}

// getBits sets all bits in the range [low, high], modulo the given step size.
// When low > high the range wraps around the field's maximum. An alias bit
// (hour 24, weekday 7) is folded onto the field minimum.
func getBits(low, high, step uint, r bounds) uint64 {
	var bits uint64
	switch {
	case low <= high && step == 1:
		bits = ^(math.MaxUint64 << (high + 1)) & (math.MaxUint64 << low)
	case low <= high:
		for i := low; i <= high; i += step {
			bits |= 1 << i
		}
	default:
		span := r.max - r.min + 1
		n := (r.max - low + 1) + (high - r.min + 1)
		for i := uint(0); i < n; i += step {
			v := low + i
			if v > r.max {
				v -= span
			}
			bits |= 1 << v
		}
	}
	if r.alias != 0 && bits&(1<<r.alias) != 0 {
		bits = bits&^(1<<r.alias) | 1<<r.min
	}
	return bits
}
