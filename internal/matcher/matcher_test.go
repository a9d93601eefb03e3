package matcher

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"media-forensics/internal/fingerprint"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "matcher-test-secret"
	testMedia  = int64(42)
)

func newTestMatcher(t *testing.T) (*Matcher, *fingerprint.Oracle) {
	t.Helper()
	oracle, err := fingerprint.NewOracle(testSecret)
	require.NoError(t, err)
	return New(oracle), oracle
}

func knownUsers(t *testing.T, oracle *fingerprint.Oracle, n int) []Known {
	t.Helper()
	known := make([]Known, 0, n)
	for u := int64(1); u <= int64(n); u++ {
		id, err := oracle.IdentityFor(u, testMedia)
		require.NoError(t, err)
		known = append(known, Known{Identity: id, UserID: u})
	}
	return known
}

func sequence(t *testing.T, oracle *fingerprint.Oracle, id fingerprint.Identity, start, n int) []fingerprint.Variant {
	t.Helper()
	seq, err := oracle.Sequence(id, testMedia, start, n)
	require.NoError(t, err)
	return seq
}

func TestMatchExact(t *testing.T) {
	m, oracle := newTestMatcher(t)
	known := knownUsers(t, oracle, 5)

	observed := sequence(t, oracle, known[2].Identity, 0, 30)
	candidates, err := m.Match(testMedia, observed, known, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 5)

	top := candidates[0]
	assert.Equal(t, known[2].Identity, top.Identity)
	assert.Equal(t, int64(3), top.UserID)
	assert.Equal(t, 0, top.BestOffset)
	assert.Equal(t, 0, top.Mismatches)
	assert.Equal(t, 30, top.Compared)
	assert.Equal(t, 1.0, top.MatchRatio)
	assert.Less(t, candidates[1].MatchRatio, 1.0)
}

func TestMatchRecoversOffset(t *testing.T) {
	m, oracle := newTestMatcher(t)
	known := knownUsers(t, oracle, 20)
	target := known[7]

	for k := 0; k <= 8; k++ {
		t.Run(fmt.Sprintf("offset_%d", k), func(t *testing.T) {
			observed := sequence(t, oracle, target.Identity, k, 40)
			candidates, err := m.Match(testMedia, observed, known, 8)
			require.NoError(t, err)
			require.NotEmpty(t, candidates)

			assert.Equal(t, target.Identity, candidates[0].Identity)
			assert.Equal(t, k, candidates[0].BestOffset)
			assert.Equal(t, 0, candidates[0].Mismatches)
		})
	}
}

func TestMatchTwoViewerScenario(t *testing.T) {
	m, oracle := newTestMatcher(t)

	u1 := fingerprint.Identity(strings.Repeat("a", 31) + "1")
	observed := sequence(t, oracle, u1, 3, 10)
	observed[4] = fingerprint.VariantNone

	// Pick a second viewer whose stream cannot also explain the clip.
	var u2 fingerprint.Identity
	for _, suffix := range "23456789" {
		id := fingerprint.Identity(strings.Repeat("b", 31) + string(suffix))
		c, err := m.Match(testMedia, observed, []Known{{Identity: id, UserID: 2}}, 3)
		require.NoError(t, err)
		if c[0].Mismatches > 0 {
			u2 = id
			break
		}
	}
	require.NotEmpty(t, u2)

	known := []Known{{Identity: u2, UserID: 2}, {Identity: u1, UserID: 1}}
	candidates, err := m.Match(testMedia, observed, known, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, u1, candidates[0].Identity)
	assert.Equal(t, 3, candidates[0].BestOffset)
	assert.Equal(t, 9, candidates[0].Compared)
	assert.GreaterOrEqual(t, candidates[0].MatchRatio, 0.9)
	assert.Positive(t, Gap(candidates))
}

func TestMatchSkipsNullSamples(t *testing.T) {
	m, oracle := newTestMatcher(t)
	known := knownUsers(t, oracle, 3)

	observed := sequence(t, oracle, known[0].Identity, 0, 20)
	for i := 0; i < 20; i += 3 {
		observed[i] = fingerprint.VariantNone
	}

	candidates, err := m.Match(testMedia, observed, known, 2)
	require.NoError(t, err)
	assert.Equal(t, known[0].Identity, candidates[0].Identity)
	assert.Equal(t, 13, candidates[0].Compared)
	assert.Equal(t, 0, candidates[0].Mismatches)
}

func TestMatchDegenerateInput(t *testing.T) {
	m, oracle := newTestMatcher(t)
	known := knownUsers(t, oracle, 3)

	tests := []struct {
		name     string
		observed []fingerprint.Variant
		known    []Known
	}{
		{"no samples", nil, known},
		{"all null", []fingerprint.Variant{fingerprint.VariantNone, fingerprint.VariantNone}, known},
		{"no identities", []fingerprint.Variant{fingerprint.VariantA}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, err := m.Match(testMedia, tt.observed, tt.known, 5)
			require.NoError(t, err)
			assert.NotNil(t, candidates)
			assert.Empty(t, candidates)
		})
	}
}

func TestMatchErrors(t *testing.T) {
	m, oracle := newTestMatcher(t)
	known := knownUsers(t, oracle, 1)
	observed := []fingerprint.Variant{fingerprint.VariantA}

	for _, offset := range []int{-1, MaxOffsetCap + 1, math.MaxInt} {
		_, err := m.Match(testMedia, observed, known, offset)
		assert.ErrorIs(t, err, ErrInvalidOffset, "offset %d", offset)
	}

	candidates, err := m.Match(testMedia, observed, known, MaxOffsetCap)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	_, err = m.Match(testMedia, observed, []Known{{Identity: "not-hex"}}, 0)
	assert.ErrorIs(t, err, fingerprint.ErrInvalidIdentity)

	_, err = m.Match(0, observed, known, 0)
	assert.ErrorIs(t, err, fingerprint.ErrInvalidMediaID)
}

func TestMatchRankingAndTopN(t *testing.T) {
	m, oracle := newTestMatcher(t)
	known := knownUsers(t, oracle, 25)

	observed := sequence(t, oracle, known[20].Identity, 0, 16)
	candidates, err := m.Match(testMedia, observed, known, 2)
	require.NoError(t, err)
	require.Len(t, candidates, TopN)
	assert.Equal(t, known[20].Identity, candidates[0].Identity)

	for i := 1; i < len(candidates); i++ {
		prev, cur := candidates[i-1], candidates[i]
		assert.LessOrEqual(t, prev.Mismatches, cur.Mismatches)
		if prev.Mismatches == cur.Mismatches {
			assert.LessOrEqual(t, prev.BestOffset, cur.BestOffset)
		}
	}
}
