// Package driver speaks the spectrometer's line protocol over a serial
// transport. All port I/O is serialized through a single command mutex
// because the underlying transport is not safe for concurrent use; raw
// response lines are additionally fanned out to subscribers for the admin
// tail endpoint.
package driver

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

var ErrWriteFailed = fmt.Errorf("failed to write to spectrometer port")

// Driver is a request/response client for one spectrometer. Exactly one
// in-flight exchange is permitted at a time.
type Driver struct {
	port Porter
	scan *bufio.Scanner

	commandMu sync.Mutex

	subscribers  map[string]chan string
	subscriberMu sync.Mutex

	closing   bool
	closingMu sync.Mutex
}

// New creates a Driver speaking the line protocol over the given port.
func New(port Porter) *Driver {
	return &Driver{
		port:        port,
		scan:        bufio.NewScanner(port),
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving a copy of every raw response
// line read from the port. The returned ID identifies the channel when
// unsubscribing.
func (d *Driver) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	d.subscriberMu.Lock()
	defer d.subscriberMu.Unlock()
	d.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber channel.
func (d *Driver) Unsubscribe(id string) {
	d.subscriberMu.Lock()
	defer d.subscriberMu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *Driver) publish(line string) {
	d.closingMu.Lock()
	if d.closing {
		d.closingMu.Unlock()
		return
	}
	d.closingMu.Unlock()

	d.subscriberMu.Lock()
	for _, ch := range d.subscribers {
		select {
		case ch <- line:
		default:
			// skip full channels so a stalled tail never blocks an exchange
		}
	}
	d.subscriberMu.Unlock()
}

// writeCommand writes one newline-terminated command. Callers must hold
// commandMu.
func (d *Driver) writeCommand(command string) error {
	if len(command) == 0 || command[len(command)-1] != '\n' {
		command += "\n"
	}
	n, err := d.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// readLine returns the next non-blank response line. Callers must hold
// commandMu.
func (d *Driver) readLine(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !d.scan.Scan() {
			if err := d.scan.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		line := d.scan.Text()
		d.publish(line)
		if line != "" {
			return line, nil
		}
	}
}

// exchange performs one command/single-line-response round trip.
func (d *Driver) exchange(ctx context.Context, command string) (string, error) {
	d.commandMu.Lock()
	defer d.commandMu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := d.writeCommand(command); err != nil {
		return "", err
	}
	return d.readLine(ctx)
}

// SendCommand writes a raw command to the port without waiting for a
// response. It exists for the admin send-command endpoint; panel code uses
// the typed exchanges below.
func (d *Driver) SendCommand(command string) error {
	d.commandMu.Lock()
	defer d.commandMu.Unlock()
	return d.writeCommand(command)
}

// Model queries the device model name.
func (d *Driver) Model(ctx context.Context) (string, error) {
	line, err := d.exchange(ctx, "MODEL?")
	if err != nil {
		return "", err
	}
	return parseModel(line)
}

// IntegrationLimits queries the device's integration-time bounds in
// microseconds.
func (d *Driver) IntegrationLimits(ctx context.Context) (min, max int64, err error) {
	line, err := d.exchange(ctx, "ITLIM?")
	if err != nil {
		return 0, 0, err
	}
	return parseLimits(line)
}

// SetIntegrationTime sets the device integration time in microseconds. A
// *DeviceError is returned when the device rejects the value.
func (d *Driver) SetIntegrationTime(ctx context.Context, micros int64) error {
	line, err := d.exchange(ctx, fmt.Sprintf("IT %d", micros))
	if err != nil {
		return err
	}
	return parseAck(line)
}

// ReadSpectrum requests one spectrum frame with the given correction flags
// and returns the wavelength and intensity sequences. The command mutex is
// held for the whole frame so a concurrent exchange cannot interleave.
func (d *Driver) ReadSpectrum(ctx context.Context, correctDark, correctNonlinearity bool) (wavelengths, intensities []float64, err error) {
	d.commandMu.Lock()
	defer d.commandMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	command := fmt.Sprintf("SPEC? DC=%s NL=%s", flag(correctDark), flag(correctNonlinearity))
	if err := d.writeCommand(command); err != nil {
		return nil, nil, err
	}

	header, err := d.readLine(ctx)
	if err != nil {
		return nil, nil, err
	}
	n, err := parseBegin(header)
	if err != nil {
		return nil, nil, err
	}

	wavelengths = make([]float64, 0, n)
	intensities = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		line, err := d.readLine(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("spectrum frame truncated at sample %d: %w", i, err)
		}
		wl, in, err := parsePoint(line)
		if err != nil {
			return nil, nil, err
		}
		wavelengths = append(wavelengths, wl)
		intensities = append(intensities, in)
	}

	trailer, err := d.readLine(ctx)
	if err != nil {
		return nil, nil, err
	}
	if trailer != tokenEnd {
		return nil, nil, fmt.Errorf("expected END trailer, got %q", trailer)
	}

	return wavelengths, intensities, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Close closes all subscriber channels and the underlying port.
func (d *Driver) Close() error {
	d.closingMu.Lock()
	d.closing = true
	d.closingMu.Unlock()

	d.subscriberMu.Lock()
	defer d.subscriberMu.Unlock()
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return d.port.Close()
}
