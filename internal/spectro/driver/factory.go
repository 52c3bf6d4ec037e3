package driver

import (
	"time"

	"go.bug.st/serial"
)

// readTimeout bounds a single blocking read so a wedged device cannot stall
// an exchange forever.
const readTimeout = 2 * time.Second

// OpenSerial opens a real serial port at the given path and returns a Driver
// speaking the spectrometer protocol over it.
func OpenSerial(path string, opts PortOptions) (*Driver, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}

	return New(port), nil
}
