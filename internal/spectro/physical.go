package spectro

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lumen-optics/spectra.panel/internal/monitoring"
	"github.com/lumen-optics/spectra.panel/internal/spectro/driver"
)

// DriverOpener locates and opens the single attached spectrometer. It is
// called lazily whenever the handle is unbound.
type DriverOpener func() (*driver.Driver, error)

// Physical adapts a real spectrometer behind the driver's line protocol.
//
// Two disjoint critical sections protect the shared handle, matching how the
// panel uses it from concurrent request handlers:
//
//   - rebindMu (rebind section) guards which device is bound: the driver
//     handle, model name, and cached limits. Rebinding tears down and
//     recreates driver state, so it must be exclusive across all callers.
//   - commMu (communication section) guards every call that talks to
//     hardware, because the underlying transport is not safe for concurrent
//     use. It is held separately from rebindMu so a long-running spectrum
//     read does not block an unrelated rebind, and vice versa.
//
// Neither mutex is held for longer than the single call it protects. Lock
// order is always rebind before comm, never the reverse.
type Physical struct {
	opener DriverOpener

	rebindMu sync.Mutex
	drv      *driver.Driver
	model    string
	limits   IntegrationLimits

	commMu sync.Mutex

	lastMu sync.Mutex
	last   Spectrum

	setters map[ControlID]func(context.Context, float64) error
}

var _ Spectrometer = (*Physical)(nil)

// NewPhysical returns a physical spectrometer that binds through opener on
// first use. The handle starts unbound; Assign or any operation binds it
// lazily.
func NewPhysical(opener DriverOpener) *Physical {
	p := &Physical{opener: opener}
	p.setters = map[ControlID]func(context.Context, float64) error{
		ControlIntegrationTime: p.setIntegrationTime,
	}
	return p
}

// Assign attempts to locate and bind exactly one device. On failure the
// handle stays unbound, the model name stays empty, and ErrNotConnected is
// returned; the next use retries.
func (p *Physical) Assign(ctx context.Context) error {
	_, err := p.ensureBound(ctx)
	return err
}

// ensureBound returns the bound driver, binding it first if necessary.
func (p *Physical) ensureBound(ctx context.Context) (*driver.Driver, error) {
	p.rebindMu.Lock()
	defer p.rebindMu.Unlock()

	if p.drv != nil {
		return p.drv, nil
	}

	d, err := p.opener()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	// Query the device identity before publishing the handle, so a bound
	// handle always carries a model name and limits.
	p.commMu.Lock()
	model, merr := d.Model(ctx)
	var min, max int64
	if merr == nil {
		min, max, merr = d.IntegrationLimits(ctx)
	}
	p.commMu.Unlock()
	if merr != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, merr)
	}

	p.drv = d
	p.model = model
	p.limits = IntegrationLimits{MinMicros: min, MaxMicros: max}
	monitoring.Logf("spectrometer %s connected with integration limits %d to %d", model, min, max)
	return d, nil
}

// unbind drops the handle after a driver error. The model name is kept for
// display; the next use rebinds and refreshes it.
func (p *Physical) unbind(d *driver.Driver) {
	p.rebindMu.Lock()
	if p.drv == d {
		p.drv = nil
	}
	p.rebindMu.Unlock()
	d.Close()
}

func (p *Physical) lastOrEmpty() Spectrum {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	if p.last.Len() > 0 {
		return p.last
	}
	return Spectrum{Wavelengths: []float64{}, Intensities: []float64{}}
}

// ReadSpectrum acquires one reading under the fixed acquisition policy:
// dark-count correction disabled, nonlinearity correction enabled. On a
// driver error the handle is unbound and the last successful reading (or an
// empty one) is returned together with the typed error.
func (p *Physical) ReadSpectrum(ctx context.Context) (Spectrum, error) {
	d, err := p.ensureBound(ctx)
	if err != nil {
		return p.lastOrEmpty(), err
	}

	p.commMu.Lock()
	wavelengths, intensities, rerr := d.ReadSpectrum(ctx, false, true)
	p.commMu.Unlock()
	if rerr != nil {
		p.unbind(d)
		return p.lastOrEmpty(), fmt.Errorf("%w: %v", ErrCommunication, rerr)
	}

	s := Spectrum{
		Wavelengths: wavelengths,
		Intensities: intensities,
		TakenAt:     time.Now(),
	}
	p.lastMu.Lock()
	p.last = s
	p.lastMu.Unlock()
	return s, nil
}

// ApplyControls resolves each control id through the dispatch table and
// invokes its setter, recording success or failure independently per entry.
func (p *Physical) ApplyControls(ctx context.Context, commands map[ControlID]float64) *BatchResult {
	res := NewBatchResult()
	for id, value := range commands {
		setter, ok := p.setters[id]
		if !ok {
			res.Failed[id] = fmt.Sprintf("%v: %s", ErrUnknownControl, id)
			continue
		}
		if err := setter(ctx, value); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded[id] = strconv.FormatFloat(value, 'f', -1, 64)
	}
	return res
}

func (p *Physical) setIntegrationTime(ctx context.Context, value float64) error {
	d, err := p.ensureBound(ctx)
	if err != nil {
		return err
	}

	p.commMu.Lock()
	serr := d.SetIntegrationTime(ctx, int64(value))
	p.commMu.Unlock()
	if serr != nil {
		// A rejection reported by the device leaves the handle usable;
		// only transport failures force a rebind.
		var devErr *driver.DeviceError
		if errors.As(serr, &devErr) {
			return serr
		}
		p.unbind(d)
		return fmt.Errorf("%w: %v", ErrCommunication, serr)
	}
	return nil
}

// Model re-queries the driver on every call, re-binding if necessary. When
// the query fails, the last known model name is returned with the error.
func (p *Physical) Model(ctx context.Context) (string, error) {
	d, err := p.ensureBound(ctx)
	if err != nil {
		return p.cachedModel(), err
	}

	p.commMu.Lock()
	model, merr := d.Model(ctx)
	p.commMu.Unlock()
	if merr != nil {
		p.unbind(d)
		return p.cachedModel(), fmt.Errorf("%w: %v", ErrCommunication, merr)
	}

	p.rebindMu.Lock()
	p.model = model
	p.rebindMu.Unlock()
	return model, nil
}

// Driver returns the currently bound driver, or nil while unbound. It
// implements driver.Conn so the admin console always reaches the live handle.
func (p *Physical) Driver() *driver.Driver {
	p.rebindMu.Lock()
	defer p.rebindMu.Unlock()
	return p.drv
}

func (p *Physical) cachedModel() string {
	p.rebindMu.Lock()
	defer p.rebindMu.Unlock()
	return p.model
}

// IntegrationTimeLimits re-queries the driver on every call, re-binding if
// necessary.
func (p *Physical) IntegrationTimeLimits(ctx context.Context) (IntegrationLimits, error) {
	d, err := p.ensureBound(ctx)
	if err != nil {
		p.rebindMu.Lock()
		defer p.rebindMu.Unlock()
		return p.limits, err
	}

	p.commMu.Lock()
	min, max, lerr := d.IntegrationLimits(ctx)
	p.commMu.Unlock()
	if lerr != nil {
		p.unbind(d)
		p.rebindMu.Lock()
		defer p.rebindMu.Unlock()
		return p.limits, fmt.Errorf("%w: %v", ErrCommunication, lerr)
	}

	limits := IntegrationLimits{MinMicros: min, MaxMicros: max}
	p.rebindMu.Lock()
	p.limits = limits
	p.rebindMu.Unlock()
	return limits, nil
}

// Close releases the bound driver, if any.
func (p *Physical) Close() error {
	p.rebindMu.Lock()
	d := p.drv
	p.drv = nil
	p.rebindMu.Unlock()
	if d == nil {
		return nil
	}
	return d.Close()
}
