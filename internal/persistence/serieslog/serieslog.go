// Package serieslog writes per-tick tracker values as zstd-compressed JSON
// lines, one file per run.
package serieslog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/agentsim/internal/engine"
)

// Header is the first line of every file.
type Header struct {
	Run      string    `json:"run"`
	Scenario string    `json:"scenario"`
	Seed     int64     `json:"seed"`
	Started  time.Time `json:"started"`
}

// Record is one tick's line: the latest value of every tracker series.
type Record struct {
	Tick   int                `json:"tick"`
	Agents int                `json:"agents"`
	Values map[string]float64 `json:"values"`
}

// Writer is an engine.Renderer that appends a Record after every tick.
type Writer struct {
	sim  *engine.Simulation
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create opens <dir>/<run>.jsonl.zst and writes the header.
func Create(dir string, sim *engine.Simulation, h Header) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl.zst", h.Run))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{
		sim:  sim,
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}
	if err := w.write(h); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Render implements engine.Renderer.
func (w *Writer) Render(f engine.Frame) error {
	rec := Record{Tick: f.Tick, Agents: w.sim.Len(), Values: make(map[string]float64)}
	for name, series := range engine.CollectSeries(w.sim) {
		if len(series) == 0 {
			continue
		}
		v := series[len(series)-1]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		rec.Values[name] = v
	}
	return w.write(rec)
}

func (w *Writer) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.w != nil {
		err = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	return err
}

// Read decodes a file written by Writer.
func Read(path string) (Header, []Record, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return h, nil, err
		}
		return h, nil, fmt.Errorf("serieslog: %s: missing header", path)
	}
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return h, nil, fmt.Errorf("serieslog: header: %w", err)
	}
	var recs []Record
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return h, recs, fmt.Errorf("serieslog: line %d: %w", len(recs)+2, err)
		}
		recs = append(recs, r)
	}
	return h, recs, sc.Err()
}
