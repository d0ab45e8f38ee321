// Package chunk plans the restartable time segments of a long simulation.
//
// A case's simulated time range is split into ordered, contiguous,
// non-overlapping chunks; each chunk is executed as one batch run job bounded
// by restart points. Chunks are computed once at case creation and never
// recomputed; only their status changes afterwards.
package chunk

import (
	"fmt"
	"time"
)

// Wire date formats. DateFormat is the user-facing one; the COSMO and CESM
// renderings are what gets injected into the model namelists.
const (
	DateFormat      = "2006-01-02-15"
	DateFormatCOSMO = "2006010215"
	DateFormatCESM  = "20060102"
)

// Chunk is one 0-indexed simulated-time segment [Start, End).
type Chunk struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Last  bool      `json:"last"`
}

// Runtime is the simulated duration covered by the chunk.
func (c Chunk) Runtime() time.Duration {
	return c.End.Sub(c.Start)
}

// ParseDate parses the YYYY-MM-DD-HH wire format.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD-HH): %w", s, err)
	}
	return t, nil
}

// FormatDate renders the YYYY-MM-DD-HH wire format.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// InvalidRangeError reports unusable planning input: a non-positive range or
// a run length resolving to zero duration.
type InvalidRangeError struct {
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return "invalid simulation range: " + e.Reason
}
