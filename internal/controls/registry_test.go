package controls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lumen-optics/spectra.panel/internal/spectro"
)

// spyDevice records every value actually dispatched so tests can assert that
// invalid submissions never reach the device.
type spyDevice struct {
	limits     spectro.IntegrationLimits
	limitsErr  error
	dispatched []map[spectro.ControlID]float64
	rejectWith string
}

func (d *spyDevice) Assign(ctx context.Context) error { return nil }

func (d *spyDevice) ReadSpectrum(ctx context.Context) (spectro.Spectrum, error) {
	return spectro.Spectrum{}, nil
}

func (d *spyDevice) ApplyControls(ctx context.Context, commands map[spectro.ControlID]float64) *spectro.BatchResult {
	d.dispatched = append(d.dispatched, commands)
	res := spectro.NewBatchResult()
	for id, v := range commands {
		if d.rejectWith != "" {
			res.Failed[id] = d.rejectWith
			continue
		}
		res.Succeeded[id] = fmt.Sprintf("%v", v)
	}
	return res
}

func (d *spyDevice) Model(ctx context.Context) (string, error) { return "SPY1000", nil }

func (d *spyDevice) IntegrationTimeLimits(ctx context.Context) (spectro.IntegrationLimits, error) {
	return d.limits, d.limitsErr
}

func newSpy() *spyDevice {
	return &spyDevice{limits: spectro.IntegrationLimits{MinMicros: 0, MaxMicros: 65535}}
}

func TestDescribeReflectsDeviceLimits(t *testing.T) {
	dev := newSpy()
	dev.limits = spectro.IntegrationLimits{MinMicros: 1000, MaxMicros: 65535000}
	reg := NewRegistry(context.Background(), dev, nil)

	descs := reg.Describe()
	if len(descs) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(descs))
	}
	d := descs[0]
	if d.ID != spectro.ControlIntegrationTime {
		t.Errorf("descriptor id = %q", d.ID)
	}
	if d.Kind != KindNumeric {
		t.Errorf("descriptor kind = %q", d.Kind)
	}
	if d.Min != 1000 || d.Max != 65535000 {
		t.Errorf("descriptor bounds = [%v, %v]", d.Min, d.Max)
	}
	if d.Value != d.Min {
		t.Errorf("initial value = %v, want minimum %v", d.Value, d.Min)
	}
}

func TestRegistryFallsBackWhenLimitsUnavailable(t *testing.T) {
	dev := newSpy()
	dev.limitsErr = spectro.ErrNotConnected
	reg := NewRegistry(context.Background(), dev, nil)

	d := reg.Describe()[0]
	if d.Min != 0 || d.Max != 65535 {
		t.Errorf("fallback bounds = [%v, %v], want [0, 65535]", d.Min, d.Max)
	}
}

func TestApplyValidValue(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, nil)

	batchID, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "1000",
	})
	if batchID == "" {
		t.Error("expected a non-empty batch id")
	}
	if !res.AllSucceeded() {
		t.Fatalf("unexpected failures: %v", res.Failed)
	}
	if got := res.Succeeded[spectro.ControlIntegrationTime]; got != "1000" {
		t.Errorf("succeeded value = %q, want 1000", got)
	}

	// The applied value becomes the descriptor's current value.
	if v := reg.Describe()[0].Value; v != 1000 {
		t.Errorf("descriptor value = %v, want 1000", v)
	}
}

func TestApplyOutOfBoundsNeverReachesDevice(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, nil)

	_, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "-5",
	})
	if res.AllSucceeded() {
		t.Fatal("out-of-bounds value should fail")
	}
	reason := res.Failed[spectro.ControlIntegrationTime]
	if !strings.Contains(reason, "outside") {
		t.Errorf("failure reason = %q", reason)
	}
	for _, batch := range dev.dispatched {
		if _, ok := batch[spectro.ControlIntegrationTime]; ok {
			t.Fatal("out-of-bounds value was dispatched to the device")
		}
	}
}

func TestApplyNonFiniteValueNeverReachesDevice(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, nil)

	var before float64
	for _, d := range reg.Describe() {
		if d.ID == spectro.ControlIntegrationTime {
			before = d.Value
		}
	}

	_, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "NaN",
	})
	if res.AllSucceeded() {
		t.Fatal("NaN should fail validation")
	}
	reason := res.Failed[spectro.ControlIntegrationTime]
	if !strings.Contains(reason, "outside") {
		t.Errorf("failure reason = %q", reason)
	}
	for _, batch := range dev.dispatched {
		if _, ok := batch[spectro.ControlIntegrationTime]; ok {
			t.Fatal("NaN was dispatched to the device")
		}
	}
	for _, d := range reg.Describe() {
		if d.ID == spectro.ControlIntegrationTime && d.Value != before {
			t.Errorf("descriptor value changed from %v to %v", before, d.Value)
		}
	}
}

func TestApplyUnknownControl(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, nil)

	_, res := reg.Apply(context.Background(), map[string]string{
		"laser-power": "11",
	})
	reason, ok := res.Failed[spectro.ControlID("laser-power")]
	if !ok {
		t.Fatal("unknown control should land in the failure map")
	}
	if !strings.Contains(reason, "unknown control") {
		t.Errorf("failure reason = %q", reason)
	}
}

func TestApplyUnparseableValue(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, nil)

	_, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "fast",
	})
	reason := res.Failed[spectro.ControlIntegrationTime]
	if !strings.Contains(reason, "not a number") {
		t.Errorf("failure reason = %q", reason)
	}
}

func TestApplyMixedBatchPartitionsResults(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, nil)

	_, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "2000",
		"laser-power":      "11",
	})
	if _, ok := res.Succeeded[spectro.ControlIntegrationTime]; !ok {
		t.Error("valid control should succeed despite an invalid sibling")
	}
	if _, ok := res.Failed[spectro.ControlID("laser-power")]; !ok {
		t.Error("invalid control should fail")
	}
	if len(res.Succeeded)+len(res.Failed) != 2 {
		t.Errorf("every submitted id should appear exactly once; got %d+%d",
			len(res.Succeeded), len(res.Failed))
	}
}

func TestApplyDeviceRejectionKeepsDescriptorValue(t *testing.T) {
	dev := newSpy()
	dev.rejectWith = "device rejected command: busy"
	reg := NewRegistry(context.Background(), dev, nil)

	before := reg.Describe()[0].Value
	_, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "3000",
	})
	if res.AllSucceeded() {
		t.Fatal("expected device rejection")
	}
	if after := reg.Describe()[0].Value; after != before {
		t.Errorf("descriptor value changed to %v after a rejected apply", after)
	}
}

// recorderFunc adapts a function to the Recorder interface.
type recorderFunc func(string, *spectro.BatchResult) error

func (f recorderFunc) RecordControlBatch(id string, res *spectro.BatchResult) error {
	return f(id, res)
}

func TestApplyRecordsAudit(t *testing.T) {
	dev := newSpy()
	var gotID string
	var gotRes *spectro.BatchResult
	reg := NewRegistry(context.Background(), dev, recorderFunc(func(id string, res *spectro.BatchResult) error {
		gotID, gotRes = id, res
		return nil
	}))

	batchID, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "1000",
	})
	if gotID != batchID {
		t.Errorf("recorded batch id %q, want %q", gotID, batchID)
	}
	if gotRes != res {
		t.Error("recorder should receive the merged result")
	}
}

func TestApplyAuditFailureDoesNotAbort(t *testing.T) {
	dev := newSpy()
	reg := NewRegistry(context.Background(), dev, recorderFunc(func(string, *spectro.BatchResult) error {
		return errors.New("disk full")
	}))

	_, res := reg.Apply(context.Background(), map[string]string{
		"integration-time": "1000",
	})
	if !res.AllSucceeded() {
		t.Errorf("audit failure should not fail the batch: %v", res.Failed)
	}
}
