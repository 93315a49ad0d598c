package logging

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// globalWriter is an io.Writer that delegates to an underlying writer,
// which can be swapped at runtime in a thread-safe manner.
type globalWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

// Write implements the io.Writer interface.
func (gw *globalWriter) Write(p []byte) (n int, err error) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.w.Write(p)
}

// Set changes the underlying writer and returns the previous one.
func (gw *globalWriter) Set(w io.Writer) io.Writer {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	prev := gw.w
	gw.w = w
	return prev
}

// heldOutput buffers log lines while the terminal belongs to someone else.
type heldOutput struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (h *heldOutput) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.Write(p)
}

var defaultGlobalWriter = &globalWriter{w: os.Stderr}

// SetGlobalOutput redirects the stderr sink of every logger created by NewLogger.
func SetGlobalOutput(w io.Writer) {
	defaultGlobalWriter.Set(w)
}

// HoldOutput buffers everything written to the stderr sink until the returned
// release func is called, which restores the previous output and flushes the
// buffered lines to it. The watch command holds logs while a full screen view
// owns the terminal.
func HoldOutput() (release func()) {
	held := &heldOutput{}
	prev := defaultGlobalWriter.Set(held)
	var once sync.Once
	return func() {
		once.Do(func() {
			defaultGlobalWriter.Set(prev)
			held.mu.Lock()
			defer held.mu.Unlock()
			_, _ = prev.Write(held.buf.Bytes())
		})
	}
}

// GetGlobalOutput returns the singleton instance of the global writer.
func GetGlobalOutput() io.Writer {
	return defaultGlobalWriter
}
