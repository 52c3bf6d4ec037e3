// Package controls holds the operator-facing control descriptors: named,
// bounded parameters validated here before they are dispatched to the device.
package controls

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/lumen-optics/spectra.panel/internal/monitoring"
	"github.com/lumen-optics/spectra.panel/internal/spectro"
)

// Kind describes how a control's value is entered and parsed.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindBoolean Kind = "boolean"
)

// Descriptor is one named, bounded, user-adjustable parameter exposed to the
// operator. Descriptors are constructed once at startup from the device's
// reported limits and mutated only by operator submission.
type Descriptor struct {
	ID    spectro.ControlID `json:"id"`
	Label string            `json:"label"`
	Kind  Kind              `json:"kind"`
	Min   float64           `json:"min"`
	Max   float64           `json:"max"`
	Value float64           `json:"value"`
}

// Recorder persists the outcome of a control submission. A nil Recorder
// disables persistence.
type Recorder interface {
	RecordControlBatch(batchID string, res *spectro.BatchResult) error
}

// Registry is the fixed, ordered collection of control descriptors.
type Registry struct {
	dev   spectro.Spectrometer
	audit Recorder

	mu    sync.Mutex
	order []spectro.ControlID
	byID  map[spectro.ControlID]*Descriptor
}

// fallbackLimits bound the integration-time control when the device cannot
// report its own limits at startup (e.g. physical device not yet attached).
var fallbackLimits = spectro.IntegrationLimits{MinMicros: 0, MaxMicros: 65535}

// NewRegistry builds the registry from the device's reported limits. When the
// device is unreachable the integration-time control falls back to
// conservative bounds and the condition is logged; the driver still rejects
// anything it cannot accept.
func NewRegistry(ctx context.Context, dev spectro.Spectrometer, audit Recorder) *Registry {
	limits, err := dev.IntegrationTimeLimits(ctx)
	if err != nil {
		monitoring.Logf("controls: device limits unavailable (%v), using fallback [%d, %d]",
			err, fallbackLimits.MinMicros, fallbackLimits.MaxMicros)
		limits = fallbackLimits
	}

	integration := &Descriptor{
		ID:    spectro.ControlIntegrationTime,
		Label: "int. time (µs)",
		Kind:  KindNumeric,
		Min:   float64(limits.MinMicros),
		Max:   float64(limits.MaxMicros),
		Value: float64(limits.MinMicros),
	}

	return &Registry{
		dev:   dev,
		audit: audit,
		order: []spectro.ControlID{integration.ID},
		byID: map[spectro.ControlID]*Descriptor{
			integration.ID: integration,
		},
	}
}

// Describe returns an ordered snapshot of all descriptors for rendering into
// input widgets.
func (r *Registry) Describe() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// ValidateAndPackage checks each raw value against its descriptor. Unknown
// ids and out-of-bound or unparseable values land in the failure map and are
// never forwarded; the device only ever sees the validated package.
func (r *Registry) ValidateAndPackage(raw map[string]string) (map[spectro.ControlID]float64, map[spectro.ControlID]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	validated := make(map[spectro.ControlID]float64, len(raw))
	failed := make(map[spectro.ControlID]string)

	for rawID, rawValue := range raw {
		id := spectro.ControlID(rawID)
		desc, ok := r.byID[id]
		if !ok {
			failed[id] = fmt.Sprintf("%v: %s", spectro.ErrUnknownControl, rawID)
			continue
		}

		value, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			failed[id] = fmt.Sprintf("%v: %q is not a number", spectro.ErrValidation, rawValue)
			continue
		}
		// NaN compares false against both bounds, so check it explicitly.
		if math.IsNaN(value) || value < desc.Min || value > desc.Max {
			failed[id] = fmt.Sprintf("%v: %v outside [%v, %v]", spectro.ErrValidation, value, desc.Min, desc.Max)
			continue
		}

		validated[id] = value
	}

	return validated, failed
}

// Apply validates the raw submission, dispatches the surviving values to the
// device, and merges pre-dispatch failures back into the result so every
// submitted id appears exactly once. The batch is stamped with a fresh id and
// recorded to the audit store when one is configured.
func (r *Registry) Apply(ctx context.Context, raw map[string]string) (string, *spectro.BatchResult) {
	batchID := uuid.NewString()

	validated, failed := r.ValidateAndPackage(raw)

	res := r.dev.ApplyControls(ctx, validated)
	for id, reason := range failed {
		res.Failed[id] = reason
	}

	// Applied values become the descriptors' current values.
	r.mu.Lock()
	for id := range res.Succeeded {
		if desc, ok := r.byID[id]; ok {
			desc.Value = validated[id]
		}
	}
	r.mu.Unlock()

	if r.audit != nil {
		if err := r.audit.RecordControlBatch(batchID, res); err != nil {
			monitoring.Logf("controls: failed to record batch %s: %v", batchID, err)
		}
	}

	return batchID, res
}
