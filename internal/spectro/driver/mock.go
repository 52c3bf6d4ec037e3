package driver

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestablePort implements Porter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and latency.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	// readCond is used to signal blocked readers
	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	tp := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tp.readCond = sync.NewCond(&tp.mu)
	return tp
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (t *TestablePort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("port closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}

	// If blocking reads are enabled and buffer is empty, wait for data
	if t.BlockReads && t.ReadBuffer.Len() == 0 {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, errors.New("port closed")
		}
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestablePort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast() // Wake up any blocked readers

	return t.CloseError
}

// SetReadTimeout implements TimeoutPorter.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal() // Wake up a blocked reader
}

// AddResponse queues a newline-terminated response line.
func (t *TestablePort) AddResponse(line string) {
	t.AddReadData([]byte(line + "\n"))
}

// GetWrittenData returns all data written to the port.
func (t *TestablePort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.WriteBuffer.Bytes()
}

// Reset clears all buffers and resets state.
func (t *TestablePort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.ReadCalls = 0
	t.WriteCalls = 0
	t.Closed = false
	t.ReadError = nil
	t.WriteError = nil
	t.CloseError = nil
	t.ReadLatency = 0
}

// MockPortFactory implements PortFactory for testing.
type MockPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port Porter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockPortFactory creates a new MockPortFactory.
func NewMockPortFactory(port Porter) *MockPortFactory {
	return &MockPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockPortFactory) Open(path string, opts PortOptions) (Porter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{
		Path: path,
		Opts: opts,
	})

	if f.Error != nil {
		return nil, f.Error
	}

	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
