package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// Response tokens in the device's line protocol. Every exchange is one
// newline-terminated command followed by one or more newline-terminated
// response lines.
const (
	tokenModel = "MODEL"
	tokenLimit = "ITLIM"
	tokenBegin = "BEGIN"
	tokenEnd   = "END"
	tokenOK    = "OK"
	tokenErr   = "ERR"
)

// DeviceError is a rejection reported by the device itself, as opposed to a
// transport failure. The reason text comes straight off the wire.
type DeviceError struct {
	Reason string
}

func (e *DeviceError) Error() string {
	return "device rejected command: " + e.Reason
}

// parseModel parses a "MODEL <name>" response line.
func parseModel(line string) (string, error) {
	rest, err := expectToken(line, tokenModel)
	if err != nil {
		return "", err
	}
	if rest == "" {
		return "", fmt.Errorf("model response missing name: %q", line)
	}
	return rest, nil
}

// parseLimits parses an "ITLIM <min> <max>" response line. Both values are
// integer microseconds.
func parseLimits(line string) (min, max int64, err error) {
	rest, err := expectToken(line, tokenLimit)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("limits response needs 2 fields, got %q", line)
	}
	if min, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse limit minimum: %w", err)
	}
	if max, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse limit maximum: %w", err)
	}
	if min > max {
		return 0, 0, fmt.Errorf("limit minimum %d above maximum %d", min, max)
	}
	return min, max, nil
}

// parseBegin parses a "BEGIN <n>" spectrum frame header and returns the
// announced sample count.
func parseBegin(line string) (int, error) {
	rest, err := expectToken(line, tokenBegin)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sample count: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("sample count must be at least 1, got %d", n)
	}
	return n, nil
}

// parsePoint parses one "<wavelength>,<intensity>" sample line.
func parsePoint(line string) (wavelength, intensity float64, err error) {
	wl, in, ok := strings.Cut(line, ",")
	if !ok {
		return 0, 0, fmt.Errorf("sample line needs wavelength,intensity: %q", line)
	}
	if wavelength, err = strconv.ParseFloat(strings.TrimSpace(wl), 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse wavelength: %w", err)
	}
	if intensity, err = strconv.ParseFloat(strings.TrimSpace(in), 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse intensity: %w", err)
	}
	return wavelength, intensity, nil
}

// parseAck parses an "OK" or "ERR <reason>" acknowledgement line.
func parseAck(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == tokenOK {
		return nil
	}
	if rest, err := expectToken(trimmed, tokenErr); err == nil {
		return &DeviceError{Reason: rest}
	}
	return fmt.Errorf("unexpected acknowledgement: %q", line)
}

// expectToken strips a leading token from a response line, returning the
// remainder with surrounding whitespace removed.
func expectToken(line, token string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == token {
		return "", nil
	}
	if !strings.HasPrefix(trimmed, token+" ") {
		return "", fmt.Errorf("expected %s response, got %q", token, line)
	}
	return strings.TrimSpace(trimmed[len(token):]), nil
}
