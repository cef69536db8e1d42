// Package sampler bounds a chronological message sequence to a target size
// while keeping every time slice represented and favoring substantive
// messages. Sampling is deterministic: same input and bound, same output.
package sampler

import (
	"sort"

	"github.com/comigor/recap/internal/store"
)

// Result reports the kept subsequence alongside the original size so the
// caller can explain the reduction.
type Result struct {
	Kept          []store.Message
	OriginalCount int
	KeptCount     int
}

// Sampled reports whether any reduction happened.
func (r Result) Sampled() bool {
	return r.KeptCount < r.OriginalCount
}

// Sample reduces msgs to at most bound entries. msgs must already be in
// chronological order; the output is a chronological subsequence of exactly
// min(bound, len(msgs)) messages. Below the bound the input is returned
// unchanged.
//
// Above the bound the span [first, last] is cut into bound equal-width
// segments; each non-empty segment contributes its longest message (ties go
// to the earliest). Empty segments leave a deficit, filled by the
// next-longest unselected messages globally.
func Sample(msgs []store.Message, bound int) Result {
	n := len(msgs)
	if bound <= 0 {
		return Result{Kept: []store.Message{}, OriginalCount: n}
	}
	if n <= bound {
		return Result{Kept: msgs, OriginalCount: n, KeptCount: n}
	}

	first := msgs[0].OccurredAt
	span := msgs[n-1].OccurredAt.Sub(first)

	// Longest message per segment, earliest wins on equal length.
	bestPerSegment := make([]int, bound)
	for i := range bestPerSegment {
		bestPerSegment[i] = -1
	}
	for i, m := range msgs {
		seg := 0
		if span > 0 {
			seg = int(float64(bound) * float64(m.OccurredAt.Sub(first)) / float64(span))
			if seg >= bound {
				seg = bound - 1
			}
		}
		if b := bestPerSegment[seg]; b == -1 || len(m.Text) > len(msgs[b].Text) {
			bestPerSegment[seg] = i
		}
	}

	picked := make([]bool, n)
	kept := 0
	for _, i := range bestPerSegment {
		if i >= 0 {
			picked[i] = true
			kept++
		}
	}

	// Empty segments left a deficit; fill with the longest remaining
	// messages, earliest first among equals.
	if kept < bound {
		rest := make([]int, 0, n-kept)
		for i := range msgs {
			if !picked[i] {
				rest = append(rest, i)
			}
		}
		sort.SliceStable(rest, func(a, b int) bool {
			return len(msgs[rest[a]].Text) > len(msgs[rest[b]].Text)
		})
		for _, i := range rest {
			if kept == bound {
				break
			}
			picked[i] = true
			kept++
		}
	}

	out := make([]store.Message, 0, kept)
	for i, p := range picked {
		if p {
			out = append(out, msgs[i])
		}
	}
	return Result{Kept: out, OriginalCount: n, KeptCount: len(out)}
}
