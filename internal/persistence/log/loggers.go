// Package log writes the paint audit trail as hourly-rotated zstd JSONL.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/JLsquare/voxplace/internal/place"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	// OnClose receives the path of every file the writer finishes.
	OnClose func(path string)

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	var closed string
	if w.f != nil {
		closed = w.f.Name()
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	if closed != "" && w.OnClose != nil {
		w.OnClose(closed)
	}
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

const paintQueueSize = 65536

// PaintLogger appends every accepted paint to the audit trail. Record hands
// the event to a writer goroutine and drops it if that goroutine falls
// behind.
type PaintLogger struct {
	w      *JSONLZstdWriter
	logger *stdlog.Logger

	ch   chan place.PaintEvent
	wg   sync.WaitGroup
	once sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

func NewPaintLogger(dataDir string, onClose func(path string), logger *stdlog.Logger) *PaintLogger {
	w := NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "paints")
	w.OnClose = onClose
	l := &PaintLogger{
		w:      w,
		logger: logger,
		ch:     make(chan place.PaintEvent, paintQueueSize),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l
}

func (l *PaintLogger) Record(ev place.PaintEvent) {
	select {
	case l.ch <- ev:
	default:
		l.dropped.Add(1)
	}
}

func (l *PaintLogger) loop() {
	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	for {
		select {
		case ev, ok := <-l.ch:
			if !ok {
				return
			}
			if err := l.w.Write(ev); err != nil {
				l.printf("paint log write err=%v", err)
				continue
			}
			l.written.Add(1)
		case <-flush.C:
			if err := l.w.Flush(); err != nil {
				l.printf("paint log flush err=%v", err)
			}
		}
	}
}

// Close drains queued events and closes the current file. Record must not be
// called after Close.
func (l *PaintLogger) Close() error {
	l.once.Do(func() { close(l.ch) })
	l.wg.Wait()
	return l.w.Close()
}

func (l *PaintLogger) Dropped() uint64 { return l.dropped.Load() }
func (l *PaintLogger) Written() uint64 { return l.written.Load() }

func (l *PaintLogger) printf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// ReadPaints decodes an audit file, calling fn for every event in order.
func ReadPaints(path string, fn func(place.PaintEvent) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return decodePaints(dec, fn)
}

func decodePaints(r io.Reader, fn func(place.PaintEvent) error) error {
	jd := json.NewDecoder(bufio.NewReaderSize(r, 128*1024))
	for {
		var ev place.PaintEvent
		if err := jd.Decode(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
