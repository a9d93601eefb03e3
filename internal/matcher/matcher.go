package matcher

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"media-forensics/internal/fingerprint"
)

// TopN is the number of candidates returned by Match.
const TopN = 10

// MaxOffsetCap bounds the alignment window Match accepts.
const MaxOffsetCap = 10000

var ErrInvalidOffset = errors.New("invalid max offset")

// Known is one identity in the candidate universe of a media item.
type Known struct {
	Identity fingerprint.Identity
	UserID   int64
}

// Candidate is the best alignment found for one identity.
type Candidate struct {
	Identity   fingerprint.Identity `json:"fingerprint_identity"`
	UserID     int64                `json:"user_reference"`
	BestOffset int                  `json:"best_offset"`
	Mismatches int                  `json:"mismatches"`
	Compared   int                  `json:"compared"`
	MatchRatio float64              `json:"match_ratio"`
}

// Matcher scores observed sequences against expected ones. It holds no
// state beyond the oracle.
type Matcher struct {
	oracle *fingerprint.Oracle
}

// New returns a Matcher using oracle for expected bits.
func New(oracle *fingerprint.Oracle) *Matcher {
	return &Matcher{oracle: oracle}
}

// Match aligns observed against every known identity at offsets
// 0..maxOffset and returns the TopN candidates ordered by fewest mismatches,
// then most samples compared, then smallest offset. Observed entries equal
// to VariantNone are skipped. With no usable samples the result is empty.
// maxOffset must lie in 0..MaxOffsetCap.
func (m *Matcher) Match(mediaID int64, observed []fingerprint.Variant, known []Known, maxOffset int) ([]Candidate, error) {
	if maxOffset < 0 || maxOffset > MaxOffsetCap || maxOffset > math.MaxInt-len(observed) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, maxOffset)
	}

	usable := make([]int, 0, len(observed))
	for i, v := range observed {
		if v != fingerprint.VariantNone {
			usable = append(usable, i)
		}
	}
	if len(usable) == 0 || len(known) == 0 {
		return []Candidate{}, nil
	}

	candidates := make([]Candidate, 0, len(known))
	for _, k := range known {
		expected, err := m.oracle.Sequence(k.Identity, mediaID, 0, len(observed)+maxOffset)
		if err != nil {
			return nil, fmt.Errorf("identity %s: %w", k.Identity, err)
		}

		best := Candidate{Identity: k.Identity, UserID: k.UserID, Mismatches: -1}
		for offset := 0; offset <= maxOffset; offset++ {
			mismatches := 0
			for _, i := range usable {
				if observed[i] != expected[i+offset] {
					mismatches++
				}
			}
			if best.Mismatches < 0 || mismatches < best.Mismatches {
				best.BestOffset = offset
				best.Mismatches = mismatches
			}
		}
		best.Compared = len(usable)
		best.MatchRatio = 1 - float64(best.Mismatches)/float64(best.Compared)
		candidates = append(candidates, best)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Mismatches != b.Mismatches {
			return a.Mismatches < b.Mismatches
		}
		if a.Compared != b.Compared {
			return a.Compared > b.Compared
		}
		return a.BestOffset < b.BestOffset
	})

	if len(candidates) > TopN {
		candidates = candidates[:TopN]
	}
	return candidates, nil
}
