package logger

import (
	"bufio"
	"io"
	"sync"
	"time"
)

// lineWriter buffers whole lines for all sinks and flushes them on a short
// interval, so request handlers never wait on disk or terminal I/O.
type lineWriter struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	err    error
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newLineWriter(sinks []io.Writer, interval time.Duration) *lineWriter {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	w := &lineWriter{
		buf:  bufio.NewWriterSize(io.MultiWriter(sinks...), 64<<10),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.tick(interval)
	return w
}

func (w *lineWriter) tick(interval time.Duration) {
	defer close(w.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = w.Flush()
		case <-w.stop:
			return
		}
	}
}

// WriteLine appends one encoded record. The first sink error sticks.
func (w *lineWriter) WriteLine(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return io.ErrClosedPipe
	}
	if _, err := w.buf.Write(line); err != nil {
		w.err = err
	}
	return w.err
}

// Flush pushes buffered lines to the sinks.
func (w *lineWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = w.buf.Flush()
	}
	return w.err
}

// Close stops the flush loop and writes out what is left.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.err
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done
	return w.Flush()
}
