package track

import (
	"strings"
)

// Thresholds for a sample to participate in the final vote.
// OCR returns plenty of junk reads (partial digits, sponsor text); the
// length bounds and the confidence floor cut most of it before scoring.
const (
	MinBibLength    = 2
	MaxBibLength    = 5
	MinVoteOCRScore = 0.4
)

func normalizeBib(text string) string {
	return strings.TrimSpace(text)
}

// voteEligible returns whether a sample may participate in bib resolution
func voteEligible(s Sample) bool {
	n := len(normalizeBib(s.Text))
	return n >= MinBibLength && n <= MaxBibLength && s.OCRConfidence > MinVoteOCRScore
}

// Resolve determines a tracker's bib number by confidence-weighted vote
// over its full sample history: each eligible sample adds its OCR
// confidence to the score of its normalized text, and the highest-scoring
// text wins. Ties break to the lexicographically smaller text so the result
// is deterministic. Returns ok=false when no sample is eligible.
//
// Resolution is a pure function of the sample history, so calling it again
// after more samples arrive simply yields a (possibly different) better
// answer.
func (r *Registry) Resolve(trackerID int64) (bib string, ok bool) {
	samples := r.Samples(trackerID)
	scores := map[string]float32{}
	for _, s := range samples {
		if voteEligible(s) {
			scores[normalizeBib(s.Text)] += s.OCRConfidence
		}
	}
	best := ""
	bestScore := float32(0)
	for text, score := range scores {
		if score > bestScore || (score == bestScore && best != "" && text < best) {
			best = text
			bestScore = score
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// BestGuess is the cheap cousin of Resolve, used for live overlay labels:
// a plain plurality over all samples, no confidence filter. Good enough to
// draw on a frame, not good enough to publish as a result.
func (r *Registry) BestGuess(trackerID int64) (bib string, ok bool) {
	samples := r.Samples(trackerID)
	counts := map[string]int{}
	for _, s := range samples {
		text := normalizeBib(s.Text)
		if text != "" {
			counts[text]++
		}
	}
	best := ""
	bestCount := 0
	for text, n := range counts {
		if n > bestCount || (n == bestCount && best != "" && text < best) {
			best = text
			bestCount = n
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
