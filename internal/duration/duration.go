// Package duration provides a YAML-friendly duration type for
// human-readable intervals like "90s", "5m" or "1d".
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML marshalling.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Parse parses durations in time.ParseDuration syntax plus day and
// week suffixes ("1d", "2w").
func Parse(s string) (Duration, error) {
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err == nil {
			return Duration(time.Duration(days) * 24 * time.Hour), nil
		}
	}
	if n, ok := strings.CutSuffix(s, "w"); ok {
		weeks, err := strconv.Atoi(n)
		if err == nil {
			return Duration(time.Duration(weeks) * 7 * 24 * time.Hour), nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use e.g. 90s, 5m, 1d)", s)
	}
	return Duration(d), nil
}

// UnmarshalYAML accepts either a duration string or a bare integer
// number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// MarshalYAML renders the duration in string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
