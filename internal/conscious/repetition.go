// Package conscious implements the autonomous consciousness loop: a
// self-prompting driver that reflects, generates its own tasks, detects
// when it is repeating or faking work, and records survival economics.
package conscious

import (
	"regexp"
	"strings"
)

// DefaultTokenPattern matches Latin and Hangul words of three characters
// or more. The pattern is injectable for other scripts.
var DefaultTokenPattern = regexp.MustCompile(`[a-zA-Z\x{AC00}-\x{D7A3}]{3,}`)

// repetitionOverlap is the token-overlap ratio above which two task
// descriptions count as the same work.
const repetitionOverlap = 0.5

// repetitionVotes is how many overlapping comparisons declare repetition.
const repetitionVotes = 2

// synthesisOverlapLimit rejects newly synthesized tasks that overlap
// recent ones beyond this ratio.
const synthesisOverlapLimit = 0.4

// fakeryTerms are substrings whose presence in recent thoughts marks the
// agent as producing placeholder work instead of real deliverables.
var fakeryTerms = []string{
	"for example", "e.g.", "placeholder", "mock data", "mock result",
	"hypothetical", "simulated", "pretend", "sample output",
	"would look like", "lorem ipsum", "가정", "예시", "모의",
}

// Tokenize splits text into lowercase words using pattern, or the default
// Hangul+Latin pattern when pattern is nil.
func Tokenize(text string, pattern *regexp.Regexp) []string {
	if pattern == nil {
		pattern = DefaultTokenPattern
	}
	matches := pattern.FindAllString(strings.ToLower(text), -1)
	return matches
}

// Overlap returns the fraction of a's distinct tokens that also occur in
// b. Zero when either side has no tokens.
func Overlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, tok := range a {
		setA[tok] = true
	}
	setB := make(map[string]bool, len(b))
	for _, tok := range b {
		setB[tok] = true
	}
	shared := 0
	for tok := range setA {
		if setB[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(setA))
}

// IsRepeating reports whether the most recent task description repeats
// earlier ones: at least two of the pairwise comparisons against the
// other descriptions exceed the overlap threshold. descriptions is
// ordered newest first.
func IsRepeating(descriptions []string, pattern *regexp.Regexp) bool {
	if len(descriptions) < 3 {
		return false
	}
	latest := Tokenize(descriptions[0], pattern)
	votes := 0
	for _, other := range descriptions[1:] {
		if Overlap(latest, Tokenize(other, pattern)) > repetitionOverlap {
			votes++
			if votes >= repetitionVotes {
				return true
			}
		}
	}
	return false
}

// IsFaking reports whether any of the thoughts contains a fakery term.
func IsFaking(thoughts []string) bool {
	for _, thought := range thoughts {
		lower := strings.ToLower(thought)
		for _, term := range fakeryTerms {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}

// TooSimilar reports whether a candidate task overlaps any of the recent
// descriptions beyond the synthesis limit.
func TooSimilar(candidate string, recent []string, pattern *regexp.Regexp) bool {
	candidateTokens := Tokenize(candidate, pattern)
	for _, desc := range recent {
		if Overlap(candidateTokens, Tokenize(desc, pattern)) >= synthesisOverlapLimit {
			return true
		}
	}
	return false
}
