package track

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func record(r *Registry, id int64, text string, ocrConf, detConf float32) {
	r.Record(id, Sample{Text: text, OCRConfidence: ocrConf, DetectorConfidence: detConf})
}

func TestResolveWeightedVote(t *testing.T) {
	r := NewRegistry()
	// "123" wins on accumulated confidence (0.9 + 0.6 = 1.5) even though
	// the single strongest read was "128" at 0.95.
	record(r, 1, "123", 0.9, 0.8)
	record(r, 1, "128", 0.95, 0.9)
	record(r, 1, "123", 0.6, 0.7)

	bib, ok := r.Resolve(1)
	require.True(t, ok)
	require.Equal(t, "123", bib)
}

func TestResolveFilters(t *testing.T) {
	r := NewRegistry()
	record(r, 1, "7", 0.99, 0.9)      // too short
	record(r, 1, "123456", 0.99, 0.9) // too long
	record(r, 1, "333", 0.4, 0.9)     // confidence not strictly above floor
	_, ok := r.Resolve(1)
	require.False(t, ok)

	record(r, 1, " 42 ", 0.41, 0.9) // whitespace normalized before length check
	bib, ok := r.Resolve(1)
	require.True(t, ok)
	require.Equal(t, "42", bib)
}

func TestResolveRecomputable(t *testing.T) {
	r := NewRegistry()
	record(r, 1, "10", 0.5, 0.9)
	bib, ok := r.Resolve(1)
	require.True(t, ok)
	require.Equal(t, "10", bib)

	// More evidence can flip the answer later.
	record(r, 1, "18", 0.8, 0.9)
	bib, ok = r.Resolve(1)
	require.True(t, ok)
	require.Equal(t, "18", bib)
}

func TestResolveDeterministicTie(t *testing.T) {
	r := NewRegistry()
	record(r, 1, "20", 0.5, 0.9)
	record(r, 1, "11", 0.5, 0.9)
	for i := 0; i < 20; i++ {
		bib, ok := r.Resolve(1)
		require.True(t, ok)
		require.Equal(t, "11", bib)
	}
}

func TestResolveUnknownTracker(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Resolve(404)
	require.False(t, ok)
}

func TestBestGuessPlurality(t *testing.T) {
	r := NewRegistry()
	// BestGuess ignores confidence, so low-confidence repeats still count.
	record(r, 1, "99", 0.1, 0.2)
	record(r, 1, "99", 0.1, 0.2)
	record(r, 1, "128", 0.95, 0.9)
	bib, ok := r.BestGuess(1)
	require.True(t, ok)
	require.Equal(t, "99", bib)

	_, ok = r.BestGuess(2)
	require.False(t, ok)
}
