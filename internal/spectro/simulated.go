package spectro

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Simulated spectrum shape: a Gaussian centered in the visible band, scaled
// by the integration time, over a fixed wavelength window.
const (
	simWindowMin = 400.0 // nm
	simWindowMax = 900.0 // nm
	simSamples   = 5000
	simPeakNm    = 500.0
	simPeakWidth = 5.0
	simNoise     = 0.01 // uniform noise fraction added to each sample

	// SimulatedModel is the fabricated model identity reported by the
	// simulated device.
	SimulatedModel = "USB2000+"
)

// Simulated generates deterministic-shape spectra with injected noise. It
// satisfies Spectrometer without any hardware attached and is safe for
// concurrent use.
type Simulated struct {
	mu sync.Mutex

	integrationMicros int64
	offset            float64
	limits            IntegrationLimits
	noise             distuv.Uniform
	wavelengths       []float64

	setters map[ControlID]func(float64) error
}

var _ Spectrometer = (*Simulated)(nil)

// NewSimulated returns a simulated spectrometer. A seed of 0 selects a
// time-based seed; any other value makes the injected noise reproducible.
func NewSimulated(integrationMicros int64, seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	wavelengths := make([]float64, simSamples)
	floats.Span(wavelengths, simWindowMin, simWindowMax)

	s := &Simulated{
		integrationMicros: integrationMicros,
		limits:            IntegrationLimits{MinMicros: 0, MaxMicros: 65535},
		wavelengths:       wavelengths,
		noise: distuv.Uniform{
			Min: 0,
			Max: 1,
			Src: rand.NewSource(uint64(seed)),
		},
	}

	// Tagged dispatch table: control id to typed setter, built once at
	// construction.
	s.setters = map[ControlID]func(float64) error{
		ControlIntegrationTime: s.setIntegrationTime,
	}

	return s
}

// Assign fabricates the fixed model identity. It never fails.
func (s *Simulated) Assign(ctx context.Context) error {
	return nil
}

// Model returns the fabricated model name.
func (s *Simulated) Model(ctx context.Context) (string, error) {
	return SimulatedModel, nil
}

// IntegrationTimeLimits returns the cached constant limits.
func (s *Simulated) IntegrationTimeLimits(ctx context.Context) (IntegrationLimits, error) {
	return s.limits, nil
}

// ReadSpectrum synthesizes a spectrum over the fixed 400-900 nm window:
// a Gaussian centered at 500 nm scaled by the current integration time,
// plus small uniform noise and a constant offset term.
func (s *Simulated) ReadSpectrum(ctx context.Context) (Spectrum, error) {
	s.mu.Lock()
	scale := float64(s.integrationMicros)
	add := s.offset

	intensities := make([]float64, len(s.wavelengths))
	for i, wl := range s.wavelengths {
		z := (wl - simPeakNm) / simPeakWidth
		intensities[i] = scale*(math.Exp(-z*z)+simNoise*s.noise.Rand()) + add*10
	}
	s.mu.Unlock()

	wavelengths := make([]float64, len(s.wavelengths))
	copy(wavelengths, s.wavelengths)

	return Spectrum{
		Wavelengths: wavelengths,
		Intensities: intensities,
		TakenAt:     time.Now(),
	}, nil
}

// ApplyControls dispatches each value to its local simulated setter,
// recording success or failure independently per entry.
func (s *Simulated) ApplyControls(ctx context.Context, commands map[ControlID]float64) *BatchResult {
	res := NewBatchResult()
	for id, value := range commands {
		setter, ok := s.setters[id]
		if !ok {
			res.Failed[id] = fmt.Sprintf("%v: %s", ErrUnknownControl, id)
			continue
		}
		if err := setter(value); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded[id] = strconv.FormatFloat(value, 'f', -1, 64)
	}
	return res
}

func (s *Simulated) setIntegrationTime(value float64) error {
	micros := int64(value)
	if !s.limits.Contains(micros) {
		return fmt.Errorf("%w: integration time %d outside [%d, %d]",
			ErrValidation, micros, s.limits.MinMicros, s.limits.MaxMicros)
	}
	s.mu.Lock()
	s.integrationMicros = micros
	s.mu.Unlock()
	return nil
}

// IntegrationTime returns the current simulated integration time.
func (s *Simulated) IntegrationTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integrationMicros
}
