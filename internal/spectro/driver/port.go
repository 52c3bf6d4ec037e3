package driver

import (
	"io"
	"time"
)

// Porter defines the minimal interface needed for the spectrometer transport.
// This abstraction enables unit testing without real serial hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with timeout capabilities. This is an optional
// interface that transports may implement.
type TimeoutPorter interface {
	Porter
	// SetReadTimeout sets the read timeout for the port.
	SetReadTimeout(timeout time.Duration) error
}

// PortFactory defines an interface for creating transport ports.
// This abstraction enables dependency injection of port creation.
type PortFactory interface {
	// Open opens a port at the specified path with the given options.
	Open(path string, opts PortOptions) (Porter, error)
}

// PortOpener is a function type for opening ports. This allows for easier
// testing by replacing the opener function.
type PortOpener func(path string, opts PortOptions) (Porter, error)
