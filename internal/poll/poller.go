// Package poll drives the periodic spectrum refresh. The loop runs until its
// context is cancelled rather than stopping after a fixed tick count, and an
// operator-controlled power gate decides whether each tick actually reads the
// device.
package poll

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lumen-optics/spectra.panel/internal/monitoring"
	"github.com/lumen-optics/spectra.panel/internal/spectro"
)

// Update is a compact per-reading summary fanned out to subscribers. Full
// spectra stay in the cache; streaming 5000-point frames once per second to
// every SSE client would be waste.
type Update struct {
	Points         int       `json:"points"`
	PeakWavelength float64   `json:"peak_wavelength"`
	PeakIntensity  float64   `json:"peak_intensity"`
	TakenAt        time.Time `json:"taken_at"`
	Status         string    `json:"status"`
}

// Poller reads the device at a fixed interval, caches the latest reading,
// and fans summaries out to subscribers.
type Poller struct {
	dev      spectro.Spectrometer
	interval time.Duration

	mu      sync.Mutex
	powered bool
	latest  spectro.Spectrum
	lastErr error

	subscribers  map[string]chan Update
	subscriberMu sync.Mutex
}

// New creates a Poller for the given device. The loop does not start until
// Run is called.
func New(dev spectro.Spectrometer, interval time.Duration, powered bool) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		dev:         dev,
		interval:    interval,
		powered:     powered,
		subscribers: make(map[string]chan Update),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving one Update per reading. The
// returned ID identifies the channel when unsubscribing.
func (p *Poller) Subscribe() (string, chan Update) {
	id := randomID()
	ch := make(chan Update, 4)
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	p.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber channel.
func (p *Poller) Unsubscribe(id string) {
	p.subscriberMu.Lock()
	defer p.subscriberMu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

func (p *Poller) publish(u Update) {
	p.subscriberMu.Lock()
	for _, ch := range p.subscribers {
		select {
		case ch <- u:
		default:
			// skip full channels so a stalled client never blocks the loop
		}
	}
	p.subscriberMu.Unlock()
}

// SetPower flips the power gate. While off, ticks pass without touching the
// device.
func (p *Poller) SetPower(on bool) {
	p.mu.Lock()
	p.powered = on
	p.mu.Unlock()
	monitoring.Logf("poll: power %v", on)
}

// Powered reports the power gate state.
func (p *Poller) Powered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powered
}

// Latest returns the most recent reading and the error from the most recent
// read attempt. A zero-length spectrum means no reading has succeeded yet.
func (p *Poller) Latest() (spectro.Spectrum, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.lastErr
}

// Tick performs one read cycle immediately. It is exposed so tests and the
// API layer can force a refresh without waiting for the ticker.
func (p *Poller) Tick(ctx context.Context) {
	if !p.Powered() {
		return
	}

	s, err := p.dev.ReadSpectrum(ctx)

	p.mu.Lock()
	p.lastErr = err
	if s.Len() > 0 {
		p.latest = s
	}
	p.mu.Unlock()

	if err != nil {
		monitoring.Logf("poll: read failed: %v", err)
	}

	wl, in := s.Peak()
	p.publish(Update{
		Points:         s.Len(),
		PeakWavelength: wl,
		PeakIntensity:  in,
		TakenAt:        s.TakenAt,
		Status:         spectro.ErrorKind(err),
	})
}

// Run drives the read loop until ctx is cancelled. It always returns
// ctx.Err(); closing subscriber channels is left to Unsubscribe so SSE
// handlers shut down on their own request contexts.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}
