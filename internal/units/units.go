// Package units provides shared constants and conversion helpers for
// integration-time values, which the driver exchanges in microseconds.
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	Micros = "us"
	Millis = "ms"
	Secs   = "s"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Micros, Millis, Secs}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertMicros converts an integration time from microseconds to the target
// units. The driver always stores and transmits microseconds.
func ConvertMicros(micros float64, targetUnits string) float64 {
	switch targetUnits {
	case Millis:
		return micros / 1e3
	case Secs:
		return micros / 1e6
	case Micros:
		return micros // no conversion needed
	default:
		return micros // default to microseconds if unknown unit
	}
}

// FormatMicros renders an integration time for display, picking the largest
// unit that keeps the value at or above one.
func FormatMicros(micros int64) string {
	switch {
	case micros >= 1e6:
		return fmt.Sprintf("%.3g s", float64(micros)/1e6)
	case micros >= 1e3:
		return fmt.Sprintf("%.3g ms", float64(micros)/1e3)
	default:
		return fmt.Sprintf("%d µs", micros)
	}
}
