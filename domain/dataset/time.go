package dataset

import (
	"strings"
	"time"

	"epiclim/internal/errors"
)

// DefaultTimeUnits is the encoding used for time coordinates created by this
// package when the source data does not declare one.
const DefaultTimeUnits = "days since 2000-01-01"

// ParseTimeUnits parses a CF-style time encoding of the form
// "<step> since <date>", where step is days, hours, minutes or seconds and
// date is YYYY-MM-DD with an optional HH:MM:SS suffix.
func ParseTimeUnits(units string) (time.Time, time.Duration, error) {
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, errors.UnsupportedConfig("unsupported time units: " + units)
	}
	var step time.Duration
	switch strings.TrimSpace(parts[0]) {
	case "days":
		step = 24 * time.Hour
	case "hours":
		step = time.Hour
	case "minutes":
		step = time.Minute
	case "seconds":
		step = time.Second
	default:
		return time.Time{}, 0, errors.UnsupportedConfig("unsupported time step: " + parts[0])
	}
	dateStr := strings.TrimSpace(parts[1])
	layouts := []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		base, err := time.Parse(layout, dateStr)
		if err == nil {
			return base.UTC(), step, nil
		}
	}
	return time.Time{}, 0, errors.UnsupportedConfig("unsupported base date: " + dateStr)
}

// DecodeTimes converts numeric time samples to timestamps.
func DecodeTimes(values []float64, units string) ([]time.Time, error) {
	base, step, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		out[i] = base.Add(time.Duration(v * float64(step)))
	}
	return out, nil
}

// EncodeTimes converts timestamps to numeric samples in the given units.
func EncodeTimes(ts []time.Time, units string) ([]float64, error) {
	base, step, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = float64(t.Sub(base)) / float64(step)
	}
	return out, nil
}

// TimeUnits returns the time coordinate's encoding, falling back to the
// package default.
func (d *Dataset) TimeUnits() string {
	if c := d.Coords["time"]; c != nil {
		if u, ok := c.Attrs["units"]; ok && u != "" {
			return u
		}
	}
	return DefaultTimeUnits
}

// TimeValues decodes the time coordinate to concrete timestamps.
func (d *Dataset) TimeValues() ([]time.Time, error) {
	c := d.Coords["time"]
	if c == nil {
		return nil, errors.NotFound("time coordinate")
	}
	return DecodeTimes(c.Values, d.TimeUnits())
}
