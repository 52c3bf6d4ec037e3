// Package spectro provides the device abstraction for an optical
// spectrometer: a common capability interface with a physical implementation
// backed by a serial driver and a simulated implementation for development
// without hardware.
package spectro

import (
	"context"
	"time"
)

// ControlID identifies a user-adjustable device parameter.
type ControlID string

// ControlIntegrationTime is the exposure duration the spectrometer
// accumulates light before producing one reading, in microseconds.
const ControlIntegrationTime ControlID = "integration-time"

// Spectrum is one paired wavelength/intensity reading from the device.
// Wavelengths are nanometers in ascending order; intensities are arbitrary
// units. Both slices always have equal length.
type Spectrum struct {
	Wavelengths []float64 `json:"wavelengths"`
	Intensities []float64 `json:"intensities"`
	TakenAt     time.Time `json:"taken_at"`
}

// Len returns the number of sample points in the spectrum.
func (s Spectrum) Len() int {
	return len(s.Wavelengths)
}

// Peak returns the wavelength and intensity of the strongest sample.
// Zero values are returned for an empty spectrum.
func (s Spectrum) Peak() (wavelength, intensity float64) {
	for i, v := range s.Intensities {
		if v > intensity {
			intensity = v
			wavelength = s.Wavelengths[i]
		}
	}
	return wavelength, intensity
}

// IntegrationLimits bound the integration-time control, in microseconds.
type IntegrationLimits struct {
	MinMicros int64 `json:"min_micros"`
	MaxMicros int64 `json:"max_micros"`
}

// Contains reports whether micros falls inside the limits.
func (l IntegrationLimits) Contains(micros int64) bool {
	return micros >= l.MinMicros && micros <= l.MaxMicros
}

// BatchResult reports the outcome of a control submission. Every submitted
// control id appears in exactly one of the two maps: Succeeded holds the
// applied value rendered as a string, Failed holds an error description.
type BatchResult struct {
	Succeeded map[ControlID]string `json:"succeeded"`
	Failed    map[ControlID]string `json:"failed"`
}

// NewBatchResult returns an empty result with both maps allocated.
func NewBatchResult() *BatchResult {
	return &BatchResult{
		Succeeded: make(map[ControlID]string),
		Failed:    make(map[ControlID]string),
	}
}

// AllSucceeded reports whether the batch had no failures.
func (r *BatchResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// Spectrometer is the capability set shared by the physical and simulated
// devices. Implementations must be safe for concurrent use: the panel polls
// for spectra while the operator submits control changes.
type Spectrometer interface {
	// Assign locates and binds the device. A failed Assign leaves the
	// handle unbound and returns ErrNotConnected; the next use retries
	// lazily.
	Assign(ctx context.Context) error

	// ReadSpectrum returns a fresh reading. On a driver error it returns
	// the last successful reading (or an empty spectrum if none yet)
	// together with the typed error, so callers can keep rendering while
	// surfacing connection state.
	ReadSpectrum(ctx context.Context) (Spectrum, error)

	// ApplyControls dispatches each submitted value to its device setter,
	// isolating failures per control id: one control failing never aborts
	// the rest of the batch.
	ApplyControls(ctx context.Context, commands map[ControlID]float64) *BatchResult

	// Model returns the device model name. The physical device re-queries
	// the driver (re-binding if necessary); the simulated device returns a
	// constant.
	Model(ctx context.Context) (string, error)

	// IntegrationTimeLimits returns the device's integration-time bounds.
	IntegrationTimeLimits(ctx context.Context) (IntegrationLimits, error)
}
