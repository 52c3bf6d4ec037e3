package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("reading %d", 42)
	if got != "reading 42" {
		t.Errorf("expected captured log line, got %q", got)
	}
}

func TestSetLoggerNilInstallsNoop(t *testing.T) {
	defer SetLogger(nil)

	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf should never be nil")
	}
	// must not panic
	Logf("ignored %s", "output")
}
