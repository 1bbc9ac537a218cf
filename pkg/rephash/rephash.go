// Package rephash provides the single deterministic ordering primitive used
// for every tie-break in pkg/priority and pkg/balance (spec §4.3
// "Determinism" and §9 "Deterministic reductions"). No wall-clock, PRNG, or
// map iteration order may influence tie-breaking; every tie-break instead
// consults a stable hash of rep_id seeded by build_id.
package rephash

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Key returns the deterministic sort key for a rep within a given build.
// Seeding by build_id means the same rep sorts differently across distinct
// builds (so two builds run back to back do not always favor the same rep
// on ties) while remaining perfectly stable within one build, satisfying
// idempotence (spec §8 property 4).
func Key(buildID, repID string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(buildID)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(repID)
	return h.Sum64()
}

// Order returns repIDs sorted by their deterministic key, breaking any
// remaining ties by the rep_id string itself so the result is a strict
// total order.
func Order(buildID string, repIDs []string) []string {
	out := make([]string, len(repIDs))
	copy(out, repIDs)
	sort.Slice(out, func(i, j int) bool {
		ki, kj := Key(buildID, out[i]), Key(buildID, out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i] < out[j]
	})
	return out
}

// Least returns the rep_id in repIDs with the smallest deterministic key,
// the primitive every P2/P4 final tie-break reduces to. Panics only if
// repIDs is empty, which callers must never pass (an empty candidate set is
// a CAPACITY-OVERFLOW, decided before Least is ever called).
func Least(buildID string, repIDs []string) string {
	best := repIDs[0]
	bestKey := Key(buildID, best)
	for _, id := range repIDs[1:] {
		k := Key(buildID, id)
		if k < bestKey || (k == bestKey && id < best) {
			best = id
			bestKey = k
		}
	}
	return best
}
