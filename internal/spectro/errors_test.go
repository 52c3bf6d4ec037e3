package spectro

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrNotConnected, "not_connected"},
		{ErrCommunication, "communication_failure"},
		{ErrValidation, "validation_failure"},
		{ErrUnknownControl, "unknown_control"},
		{errors.New("something else"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorKindSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("read spectrum: %w", ErrCommunication)
	if got := ErrorKind(err); got != "communication_failure" {
		t.Errorf("ErrorKind(wrapped) = %q, want communication_failure", got)
	}
}
