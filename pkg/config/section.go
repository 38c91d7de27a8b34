package config

import (
	"strconv"
	"strings"
	"time"

	"gcodeview/pkg/errors"
)

// Section is one [name] block of a settings file. Option names are
// case-insensitive.
type Section struct {
	name    string
	options map[string]string
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{name: name, options: opts}
}

// GetName returns the section name.
func (s *Section) GetName() string {
	return s.name
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

func (s *Section) lookup(option string) (string, bool) {
	v, ok := s.options[strings.ToLower(option)]
	return strings.TrimSpace(v), ok
}

// Get returns a string option value.
// If a fallback is provided and the option doesn't exist, returns the fallback.
// If no fallback and the option doesn't exist, returns an error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", errors.ConfigOptionError(s.name, option)
}

// GetInt returns an integer option value.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	if v, ok := s.lookup(option); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.ConfigTypeError(s.name, option, v, "integer", err)
		}
		return i, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errors.ConfigOptionError(s.name, option)
}

// GetIntWithBounds returns an integer option value with an inclusive minimum.
func (s *Section) GetIntWithBounds(option string, minVal int, fallback ...int) (int, error) {
	v, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if v < minVal {
		return 0, errors.ConfigValidationError(s.name, option, "must have minimum of "+strconv.Itoa(minVal))
	}
	return v, nil
}

// GetFloat returns a float64 option value.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	if v, ok := s.lookup(option); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.ConfigTypeError(s.name, option, v, "float", err)
		}
		return f, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errors.ConfigOptionError(s.name, option)
}

// FloatBounds specifies bounds for GetFloatWithBounds.
type FloatBounds struct {
	MinVal *float64 // minimum value (>=)
	MaxVal *float64 // maximum value (<=)
	Above  *float64 // must be above this value (>)
}

// GetFloatWithBounds returns a float64 option value with bounds checking.
func (s *Section) GetFloatWithBounds(option string, bounds FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	switch {
	case bounds.MinVal != nil && v < *bounds.MinVal:
		return 0, errors.ConfigValidationError(s.name, option, "must have minimum of "+format(*bounds.MinVal))
	case bounds.MaxVal != nil && v > *bounds.MaxVal:
		return 0, errors.ConfigValidationError(s.name, option, "must have maximum of "+format(*bounds.MaxVal))
	case bounds.Above != nil && v <= *bounds.Above:
		return 0, errors.ConfigValidationError(s.name, option, "must be above "+format(*bounds.Above))
	}
	return v, nil
}

// GetDuration returns a duration option. Plain numbers are seconds.
func (s *Section) GetDuration(option string, fallback ...time.Duration) (time.Duration, error) {
	if v, ok := s.lookup(option); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, errors.ConfigTypeError(s.name, option, v, "duration", err)
		}
		return d, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errors.ConfigOptionError(s.name, option)
}

// GetBool returns a boolean option value.
// Accepts: 1, true, yes, on (true) and 0, false, no, off (false).
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	if v, ok := s.lookup(option); ok {
		b, ok := ParseBool(v)
		if !ok {
			return false, errors.ConfigValidationError(s.name, option, "invalid boolean '"+v+"'")
		}
		return b, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return false, errors.ConfigOptionError(s.name, option)
}

// ParseBool accepts 1/true/yes/on and 0/false/no/off.
func ParseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// GetChoice returns a string option that must be one of the valid choices.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", errors.ConfigValidationError(s.name, option, "'"+v+"' is not one of "+strings.Join(choices, ", "))
}
