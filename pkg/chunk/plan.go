package chunk

import (
	"fmt"
	"time"
)

// Plan computes the ordered chunk sequence for a simulation.
//
// With no end date the plan is a single chunk [start, start+rl). Otherwise
// chunks advance by rl from start until reaching end, the final chunk clipped
// to end. dummyDay extends only the last chunk's end by one day, forcing the
// model to produce its final scheduled output; the clipped nominal end is
// unaffected for all earlier chunks.
func Plan(start time.Time, end *time.Time, rl RunLength, dummyDay bool) ([]Chunk, error) {
	if rl.IsZero() {
		return nil, &InvalidRangeError{Reason: "run length resolves to zero duration"}
	}
	probe, err := rl.AddTo(start)
	if err != nil {
		return nil, err
	}
	if !probe.After(start) {
		return nil, &InvalidRangeError{Reason: fmt.Sprintf("run length %s does not advance time", rl)}
	}

	if end == nil {
		return []Chunk{{Index: 0, Start: start, End: withDummyDay(probe, dummyDay), Last: true}}, nil
	}
	if !end.After(start) {
		return nil, &InvalidRangeError{
			Reason: fmt.Sprintf("end date %s is not after start date %s", FormatDate(*end), FormatDate(start)),
		}
	}

	var chunks []Chunk
	cur := start
	for cur.Before(*end) {
		next, err := rl.AddTo(cur)
		if err != nil {
			return nil, err
		}
		if !next.Before(*end) {
			chunks = append(chunks, Chunk{Index: len(chunks), Start: cur, End: withDummyDay(*end, dummyDay), Last: true})
			return chunks, nil
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: cur, End: next})
		cur = next
	}
	return chunks, nil
}

func withDummyDay(end time.Time, dummyDay bool) time.Time {
	if dummyDay {
		return end.AddDate(0, 0, 1)
	}
	return end
}
