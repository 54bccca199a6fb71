package database

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/lysyi3m/event-comb/app/event"
)

var ErrNotFound = errors.New("not found")

const MaxBatchSize = 100

// Record is one normalized event handed to the store, with its embedding
// when one was computed.
type Record struct {
	Event     event.Normalized
	Embedding []float32
}

type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

type RecordResult struct {
	Source  string
	LocalID string
	Outcome Outcome
	// Changed lists updated columns, excluding updated_at.
	Changed []string
	Err     error
}

type BatchResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
	Results  []RecordResult
}

func (b *BatchResult) add(r RecordResult) {
	switch r.Outcome {
	case OutcomeInserted:
		b.Inserted++
	case OutcomeUpdated:
		b.Updated++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeFailed:
		b.Failed++
	}
	b.Results = append(b.Results, r)
}

// Errors returns the per-record failures.
func (b BatchResult) Errors() []error {
	var errs []error
	for _, r := range b.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	return &t
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
