package utils

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration to enable JSON (un)marshaling as a Go
// duration string such as "750ms" or "24h". Bare numbers are read as seconds.
type Duration time.Duration

// MarshalJSON serializes the Duration as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a duration string, or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value * float64(time.Second)))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// Std returns the underlying time.Duration value of the Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
