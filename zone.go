package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ZoneResolver answers "which location does this zone token name". The
// scheduling core only ever asks a ZoneResolver; it never consults the
// environment or the filesystem on its own.
type ZoneResolver interface {
	Resolve(name string) (*time.Location, error)
}

// ZoneResolverFunc adapts a function to the ZoneResolver interface.
type ZoneResolverFunc func(name string) (*time.Location, error)

// Resolve calls f(name).
func (f ZoneResolverFunc) Resolve(name string) (*time.Location, error) { return f(name) }

// DefaultZones is the resolver used when none is configured.
var DefaultZones ZoneResolver = NewSystemZones()

// SystemZones resolves UTC aliases, UTC offsets ("+09:00", "-0530", "UTC+2")
// and IANA names through the Go time zone database. Results are cached.
type SystemZones struct {
	cache sync.Map // name -> *time.Location
}

// NewSystemZones returns an empty, ready to use SystemZones.
func NewSystemZones() *SystemZones {
	return &SystemZones{}
}

var offsetPattern = regexp.MustCompile(`^(?i:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// Resolve implements ZoneResolver.
func (z *SystemZones) Resolve(name string) (*time.Location, error) {
	if v, ok := z.cache.Load(name); ok {
		return v.(*time.Location), nil //nolint:forcetypeassert // only *time.Location is stored
	}
	loc, err := resolveZone(name)
	if err != nil {
		return nil, err
	}
	z.cache.Store(name, loc)
	return loc, nil
}

func resolveZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, errors.New("empty zone name")
	}
	switch strings.ToUpper(name) {
	case "UTC", "Z", "GMT", "ZULU":
		return time.UTC, nil
	}
	if m := offsetPattern.FindStringSubmatch(name); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("utc offset out of range: %q", name)
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(name, offset), nil
	}
	if err := validateZoneName(name); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// validateZoneName rejects tokens that cannot be IANA names before they reach
// the zone database, so cron fields never get mistaken for zones.
func validateZoneName(name string) error {
	const maxZoneLen = 64
	if len(name) > maxZoneLen {
		return fmt.Errorf("zone name too long (max %d chars)", maxZoneLen)
	}
	letters := 0
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letters++
		case r >= '0' && r <= '9', r == '/', r == '_', r == '-', r == '+':
		default:
			return fmt.Errorf("invalid character %q at position %d in zone name", r, i)
		}
	}
	if letters == 0 {
		return fmt.Errorf("zone name %q has no letters", name)
	}
	return nil
}
