// Package business holds the static shop configuration: timezone, weekly
// hours, the service catalog and the slot rules. It is loaded once at startup
// and never mutated afterwards.
package business

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LabelLayout renders slot labels ("4:00 PM", "12:30 AM").
const LabelLayout = "3:04 PM"

// DateLayout is the calendar date format used on every API surface.
const DateLayout = "2006-01-02"

type Service struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	DurationMinutes int    `yaml:"duration_minutes" json:"durationMinutes"`
	PriceCents      int64  `yaml:"price_cents" json:"priceCents"`
	Description     string `yaml:"description" json:"description"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Hours are wall-clock "HH:MM" bounds in the business timezone. Close is exclusive.
type Hours struct {
	Open   string `yaml:"open"`
	Close  string `yaml:"close"`
	Closed bool   `yaml:"closed"`

	openMin  int
	closeMin int
}

// OpenMinutes and CloseMinutes are minutes since local midnight.
func (h Hours) OpenMinutes() int  { return h.openMin }
func (h Hours) CloseMinutes() int { return h.closeMin }

type Config struct {
	Name                   string           `yaml:"name"`
	Timezone               string           `yaml:"timezone"`
	Currency               string           `yaml:"currency"`
	SlotIntervalMinutes    int              `yaml:"slot_interval_minutes"`
	LeadTimeMinutes        int              `yaml:"lead_time_minutes"`
	MaxAdvanceDays         int              `yaml:"max_advance_days"`
	DefaultDurationMinutes int              `yaml:"default_duration_minutes"`
	Hours                  map[string]Hours `yaml:"hours"`
	Services               []Service        `yaml:"services"`

	loc *time.Location
}

// Default returns the shop as it operates today.
func Default() *Config {
	cfg := &Config{
		Name:                   "The Gilded Shear",
		Timezone:               "America/Chicago",
		Currency:               "usd",
		SlotIntervalMinutes:    30,
		LeadTimeMinutes:        120,
		DefaultDurationMinutes: 60,
		Hours: map[string]Hours{
			"monday":    {Open: "16:00", Close: "20:00"},
			"tuesday":   {Open: "16:00", Close: "20:00"},
			"wednesday": {Open: "16:00", Close: "20:00"},
			"thursday":  {Open: "16:00", Close: "20:00"},
			"friday":    {Open: "16:00", Close: "20:00"},
			"saturday":  {Open: "10:00", Close: "18:00"},
			"sunday":    {Closed: true},
		},
		Services: []Service{
			{ID: "classic-haircut", Name: "Classic Haircut", DurationMinutes: 60, PriceCents: 2500, Description: "Scissor or clipper cut, styled to finish."},
			{ID: "beard-trim", Name: "Beard Trim", DurationMinutes: 25, PriceCents: 1500, Description: "Shape-up and line work for the beard."},
			{ID: "fade-cut", Name: "Fade Cut", DurationMinutes: 75, PriceCents: 3000, Description: "Skin, low, mid or high fade."},
			{ID: "haircut-beard", Name: "Haircut + Beard", DurationMinutes: 80, PriceCents: 3500, Description: "Classic haircut with a beard trim."},
		},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a YAML file layered over Default. An empty path returns Default.
// ${ENV_VAR} placeholders in the file are expanded before parsing. Weekdays
// listed under hours replace the default for that day; a services list
// replaces the whole catalog.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read business config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	hours := cfg.Hours
	cfg.Hours = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse business config: %w", err)
	}
	listed := make(map[string]bool, len(cfg.Hours))
	for day, h := range cfg.Hours {
		key := strings.ToLower(strings.TrimSpace(day))
		if listed[key] {
			return nil, fmt.Errorf("hours: weekday %q listed twice", key)
		}
		listed[key] = true
		hours[key] = h
	}
	cfg.Hours = hours
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config and resolves the timezone and clock strings.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc

	if c.SlotIntervalMinutes <= 0 {
		return errors.New("slot_interval_minutes must be positive")
	}
	if c.LeadTimeMinutes < 0 {
		return errors.New("lead_time_minutes must not be negative")
	}
	if c.MaxAdvanceDays < 0 {
		return errors.New("max_advance_days must not be negative")
	}
	if c.DefaultDurationMinutes <= 0 {
		return errors.New("default_duration_minutes must be positive")
	}

	hours := make(map[string]Hours, len(c.Hours))
	for day, h := range c.Hours {
		key := strings.ToLower(strings.TrimSpace(day))
		if _, ok := weekdays[key]; !ok {
			return fmt.Errorf("hours: unknown weekday %q", day)
		}
		if !h.Closed {
			if h.openMin, err = parseClock(h.Open); err != nil {
				return fmt.Errorf("hours %s open: %w", key, err)
			}
			if h.closeMin, err = parseClock(h.Close); err != nil {
				return fmt.Errorf("hours %s close: %w", key, err)
			}
			if h.closeMin <= h.openMin {
				return fmt.Errorf("hours %s: close must be after open", key)
			}
		}
		hours[key] = h
	}
	c.Hours = hours

	seen := map[string]bool{}
	for i, s := range c.Services {
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if s.ID == "" {
			s.ID = slug(s.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("services[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("services[%d]: duration_minutes must be positive", i)
		}
		if s.PriceCents <= 0 {
			return fmt.Errorf("services[%d]: price_cents must be positive", i)
		}
		c.Services[i] = s
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	c.Currency = strings.ToLower(c.Currency)
	return nil
}

func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.SlotIntervalMinutes) * time.Minute
}

func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.LeadTimeMinutes) * time.Minute
}

func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationMinutes) * time.Minute
}

// HoursFor reports the opening hours for a weekday. Days missing from the
// config count as closed.
func (c *Config) HoursFor(day time.Weekday) (Hours, bool) {
	h, ok := c.Hours[strings.ToLower(day.String())]
	if !ok || h.Closed {
		return Hours{}, false
	}
	return h, true
}

// LookupService matches by id first, then by exact display name.
func (c *Config) LookupService(key string) (Service, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Service{}, false
	}
	for _, s := range c.Services {
		if s.ID == key {
			return s, true
		}
	}
	for _, s := range c.Services {
		if s.Name == key {
			return s, true
		}
	}
	return Service{}, false
}

// Label renders t as a slot label in the business timezone.
func (c *Config) Label(t time.Time) string {
	return t.In(c.Location()).Format(LabelLayout)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
