package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// sink is one output. A sink that fails to write is disabled and its first
// error is kept for Close.
type sink struct {
	buf      *bufio.Writer
	minLevel slog.Level
	err      error
}

type entry struct {
	level slog.Level
	data  []byte
}

// asyncWriter fans log lines out to its sinks from a single goroutine.
type asyncWriter struct {
	queue    chan entry
	flushReq chan chan error
	done     chan struct{}
	once     sync.Once

	mu    sync.Mutex
	sinks []*sink
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	outs := make([]leveledWriter, 0, len(writers))
	for _, w := range writers {
		outs = append(outs, leveledWriter{w: w, min: slog.LevelDebug})
	}
	return newLeveledWriter(outs, bufSize)
}

type leveledWriter struct {
	w   io.Writer
	min slog.Level
}

func newLeveledWriter(writers []leveledWriter, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*sink, 0, len(writers))
	for _, lw := range writers {
		if lw.w == nil {
			continue
		}
		sinks = append(sinks, &sink{buf: bufio.NewWriterSize(lw.w, bufSize), minLevel: lw.min})
	}
	aw := &asyncWriter{
		queue:    make(chan entry, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	for {
		select {
		case e, ok := <-w.queue:
			if !ok {
				w.flushAll()
				close(w.done)
				return
			}
			w.writeAll(e)
		case ack := <-w.flushReq:
			w.drain()
			ack <- w.flushAll()
		}
	}
}

// Write queues an INFO line.
func (w *asyncWriter) Write(p []byte) error {
	return w.WriteLevel(slog.LevelInfo, p)
}

// WriteLevel queues p for every sink accepting level. It blocks when the
// queue is full rather than dropping lines.
func (w *asyncWriter) WriteLevel(level slog.Level, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if !w.anyAlive() {
		return errors.New("logger: all sinks failed")
	}
	data := make([]byte, len(p))
	copy(data, p)
	w.queue <- entry{level: level, data: data}
	return nil
}

// Flush waits until queued lines reach the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return nil
	}
}

// Close drains the queue and reports the sinks that failed.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for i, s := range w.sinks {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, s.err))
		}
	}
	return errors.Join(errs...)
}

// drain writes the entries queued before a flush request.
func (w *asyncWriter) drain() {
	for n := len(w.queue); n > 0; n-- {
		e, ok := <-w.queue
		if !ok {
			return
		}
		w.writeAll(e)
	}
}

func (w *asyncWriter) writeAll(e entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil || e.level < s.minLevel {
			continue
		}
		if _, err := s.buf.Write(e.data); err != nil {
			s.err = err
			continue
		}
		if err := s.buf.Flush(); err != nil {
			s.err = err
		}
	}
}

func (w *asyncWriter) flushAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		if err := s.buf.Flush(); err != nil {
			s.err = err
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) anyAlive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err == nil {
			return true
		}
	}
	return false
}
