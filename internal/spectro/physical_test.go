package spectro

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lumen-optics/spectra.panel/internal/monitoring"
	"github.com/lumen-optics/spectra.panel/internal/spectro/driver"
)

func init() {
	monitoring.SetLogger(nil)
}

// bindResponses queues the identity exchange performed when the handle binds.
func bindResponses(port *driver.TestablePort) {
	port.AddResponse("MODEL USB2000+")
	port.AddResponse("ITLIM 1000 65535000")
}

// spectrumResponses queues one three-sample frame.
func spectrumResponses(port *driver.TestablePort) {
	port.AddResponse("BEGIN 3")
	port.AddResponse("400.0,1.5")
	port.AddResponse("650.0,7.25")
	port.AddResponse("900.0,0.5")
	port.AddResponse("END")
}

func newTestPhysical() (*Physical, *driver.TestablePort) {
	port := driver.NewTestablePort()
	p := NewPhysical(func() (*driver.Driver, error) {
		return driver.New(port), nil
	})
	return p, port
}

func TestPhysicalAssignBindsAndQueriesIdentity(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)

	if err := p.Assign(context.Background()); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if model := p.cachedModel(); model != "USB2000+" {
		t.Errorf("model = %q, want USB2000+", model)
	}

	// the accessor re-queries the driver, so queue another limits response
	port.AddResponse("ITLIM 1000 65535000")
	limits, err := p.IntegrationTimeLimits(context.Background())
	if err != nil {
		t.Fatalf("IntegrationTimeLimits: %v", err)
	}
	if limits.MinMicros != 1000 || limits.MaxMicros != 65535000 {
		t.Errorf("limits = %+v, want [1000, 65535000]", limits)
	}
}

func TestPhysicalAssignFailsWithoutHardware(t *testing.T) {
	p := NewPhysical(func() (*driver.Driver, error) {
		return nil, fmt.Errorf("no device found")
	})

	err := p.Assign(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Assign err = %v, want ErrNotConnected", err)
	}
	if got := p.cachedModel(); got != "" {
		t.Errorf("model after failed assign = %q, want empty", got)
	}
}

func TestPhysicalReadSpectrumWithoutHardware(t *testing.T) {
	p := NewPhysical(func() (*driver.Driver, error) {
		return nil, fmt.Errorf("no device found")
	})

	s, err := p.ReadSpectrum(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ReadSpectrum err = %v, want ErrNotConnected", err)
	}
	// degraded result: empty spectrum, never nil slices
	if s.Wavelengths == nil || s.Intensities == nil {
		t.Fatal("expected non-nil empty slices")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty spectrum, got %d samples", s.Len())
	}
}

func TestPhysicalReadSpectrum(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)
	spectrumResponses(port)

	s, err := p.ReadSpectrum(context.Background())
	if err != nil {
		t.Fatalf("ReadSpectrum: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 samples, got %d", s.Len())
	}
	if s.Wavelengths[1] != 650.0 || s.Intensities[1] != 7.25 {
		t.Errorf("sample 1 = (%v, %v), want (650, 7.25)", s.Wavelengths[1], s.Intensities[1])
	}

	// the acquisition policy is fixed: dark counts off, nonlinearity on
	written := string(port.GetWrittenData())
	want := "SPEC? DC=0 NL=1\n"
	if !strings.Contains(written, want) {
		t.Errorf("port writes %q missing %q", written, want)
	}
}

func TestPhysicalReadSpectrumErrorReturnsLastGood(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)
	spectrumResponses(port)

	ctx := context.Background()
	first, err := p.ReadSpectrum(ctx)
	if err != nil {
		t.Fatalf("first ReadSpectrum: %v", err)
	}

	// no queued responses: the frame read hits EOF, the handle unbinds, and
	// the previous reading comes back with a communication error
	s, err := p.ReadSpectrum(ctx)
	if !errors.Is(err, ErrCommunication) {
		t.Fatalf("ReadSpectrum err = %v, want ErrCommunication", err)
	}
	if s.Len() != first.Len() {
		t.Errorf("degraded read returned %d samples, want last good %d", s.Len(), first.Len())
	}

	if p.Driver() != nil {
		t.Error("handle should be unbound after a communication failure")
	}
}

func TestPhysicalApplyControls(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)
	port.AddResponse("OK")

	res := p.ApplyControls(context.Background(), map[ControlID]float64{
		ControlIntegrationTime: 1000,
	})

	if got := res.Succeeded[ControlIntegrationTime]; got != "1000" {
		t.Errorf("succeeded[%s] = %q, want \"1000\"", ControlIntegrationTime, got)
	}
	if len(res.Failed) != 0 {
		t.Errorf("failed should be empty, got %v", res.Failed)
	}
	if !strings.Contains(string(port.GetWrittenData()), "IT 1000\n") {
		t.Errorf("port writes %q missing IT command", port.GetWrittenData())
	}
}

func TestPhysicalApplyControlsDeviceRejection(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)
	port.AddResponse("ERR integration time above maximum")

	res := p.ApplyControls(context.Background(), map[ControlID]float64{
		ControlIntegrationTime: 90000000,
	})

	if len(res.Succeeded) != 0 {
		t.Errorf("rejected value should not succeed: %v", res.Succeeded)
	}
	reason, ok := res.Failed[ControlIntegrationTime]
	if !ok {
		t.Fatal("expected a failure entry")
	}
	if !strings.Contains(reason, "integration time above maximum") {
		t.Errorf("failure reason %q should carry the device text", reason)
	}

	// a device-level rejection is not a transport failure: stay bound
	if p.Driver() == nil {
		t.Error("handle should remain bound after a device rejection")
	}
}

func TestPhysicalApplyControlsUnknownControl(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)

	res := p.ApplyControls(context.Background(), map[ControlID]float64{
		"shutter": 1,
	})
	if _, ok := res.Failed["shutter"]; !ok {
		t.Error("unknown control should land in failed")
	}
}

func TestPhysicalModelIdempotent(t *testing.T) {
	p, port := newTestPhysical()
	bindResponses(port)
	port.AddResponse("MODEL USB2000+")
	port.AddResponse("MODEL USB2000+")

	ctx := context.Background()
	m1, err := p.Model(ctx)
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	m2, err := p.Model(ctx)
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if m1 != m2 {
		t.Errorf("Model() = %q then %q, want identical", m1, m2)
	}
}

