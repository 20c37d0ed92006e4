// Package export writes hit records as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/framewatch/internal/model"
)

// HitHeader is the column order of every hit record.
var HitHeader = []string{
	"cycle_index",
	"timestamp",
	"victim_slot",
	"attacker_slot",
	"delta",
	"value_before",
	"value_after",
	"distance_squared",
}

// HitRecord renders one hit as a CSV row matching HitHeader.
// An unattributed hit has an empty attacker and distance.
func HitRecord(h model.HitEvent) []string {
	attacker, dist := "", ""
	if h.Attacker != model.SlotNone {
		attacker = h.Attacker.String()
		dist = strconv.FormatFloat(h.DistanceSquared, 'f', 3, 64)
	}
	return []string{
		strconv.FormatInt(h.Cycle, 10),
		h.CapturedAt.UTC().Format(time.RFC3339Nano),
		h.Victim.String(),
		attacker,
		strconv.FormatInt(h.Delta, 10),
		strconv.FormatInt(h.ValueBefore, 10),
		strconv.FormatInt(h.ValueAfter, 10),
		dist,
	}
}

// HitWriter appends hit records to a CSV stream. It is an engine sink.
//
// Rows are flushed at the end of every frame that carried hits, so a
// crash loses at most the frame in progress.
//
// Thread-safety: Consume and Close are safe for concurrent use.
type HitWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	rows   int
}

// NewHitWriter writes the header to w and returns a writer for the rows.
func NewHitWriter(w io.Writer) (*HitWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(HitHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &HitWriter{w: cw}, nil
}

// Create opens path for writing. An existing file is appended to without
// a second header; a new or empty file gets the header.
func Create(path string) (*HitWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}

	var hw *HitWriter
	if info.Size() == 0 {
		hw, err = NewHitWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
	} else {
		hw = &HitWriter{w: csv.NewWriter(f)}
	}
	hw.closer = f
	return hw, nil
}

// Consume writes every hit in f.
func (hw *HitWriter) Consume(_ context.Context, f model.Frame) error {
	if len(f.Hits) == 0 {
		return nil
	}
	hw.mu.Lock()
	defer hw.mu.Unlock()

	for _, h := range f.Hits {
		if err := hw.w.Write(HitRecord(h)); err != nil {
			return fmt.Errorf("write hit row: %w", err)
		}
		hw.rows++
	}
	hw.w.Flush()
	if err := hw.w.Error(); err != nil {
		return fmt.Errorf("flush hit rows: %w", err)
	}
	return nil
}

// Rows returns the number of hit rows written.
func (hw *HitWriter) Rows() int {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.rows
}

// Close flushes and closes the underlying file, if Create opened one.
func (hw *HitWriter) Close() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	hw.w.Flush()
	err := hw.w.Error()
	if hw.closer != nil {
		if cerr := hw.closer.Close(); err == nil {
			err = cerr
		}
		hw.closer = nil
	}
	return err
}

// ReadHits parses hit rows written by HitWriter. Only the columns of
// HitHeader are recovered.
func ReadHits(r io.Reader) ([]model.HitEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(HitHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range HitHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, header[i], col)
		}
	}

	var out []model.HitEvent
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read hit row: %w", err)
		}
		h, err := parseHit(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, h)
	}
}

func parseHit(rec []string) (model.HitEvent, error) {
	var h model.HitEvent
	var err error

	if h.Cycle, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
		return h, fmt.Errorf("cycle_index: %w", err)
	}
	if h.CapturedAt, err = time.Parse(time.RFC3339Nano, rec[1]); err != nil {
		return h, fmt.Errorf("timestamp: %w", err)
	}
	if h.Victim, err = model.ParseSlot(rec[2]); err != nil {
		return h, fmt.Errorf("victim_slot: %w", err)
	}
	h.Attacker, h.DistanceSquared = model.SlotNone, -1
	if rec[3] != "" {
		if h.Attacker, err = model.ParseSlot(rec[3]); err != nil {
			return h, fmt.Errorf("attacker_slot: %w", err)
		}
	}
	if h.Delta, err = strconv.ParseInt(rec[4], 10, 64); err != nil {
		return h, fmt.Errorf("delta: %w", err)
	}
	if h.ValueBefore, err = strconv.ParseInt(rec[5], 10, 64); err != nil {
		return h, fmt.Errorf("value_before: %w", err)
	}
	if h.ValueAfter, err = strconv.ParseInt(rec[6], 10, 64); err != nil {
		return h, fmt.Errorf("value_after: %w", err)
	}
	if rec[7] != "" {
		if h.DistanceSquared, err = strconv.ParseFloat(rec[7], 64); err != nil {
			return h, fmt.Errorf("distance_squared: %w", err)
		}
	}
	return h, nil
}
