// Package fuzzy scores how closely a playable candidate matches requested track metadata.
package fuzzy

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	titleWeight    = 0.5
	artistWeight   = 0.3
	durationWeight = 0.2

	// durationTolerance is the drift treated as a perfect duration match.
	durationTolerance = 30 * time.Second
	// durationCutoff is the drift at which the duration score reaches zero.
	durationCutoff = 2 * time.Minute
)

var (
	featRegex        = regexp.MustCompile(`(?i)\s*[\(\[]?\s*\b(?:feat\.?|ft\.?|featuring)\s+[^\)\]]*[\)\]]?`)
	bracketTagRegex  = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*\b(?:remix|remaster(?:ed)?|deluxe|extended|radio edit|clean|explicit|live|version)\b[^\)\]]*[\)\]]`)
	dashSuffixRegex  = regexp.MustCompile(`(?i)\s+-\s+.*\b(?:remix|remaster(?:ed)?|deluxe|extended|radio edit|clean|explicit|live|version|mix)\b.*$`)
	punctRegex       = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
	artistJoinerRepl = strings.NewReplacer(" and ", " & ", " vs ", " vs. ", " feat ", " feat. ", " ft ", " ft. ")
)

// Candidate is the metadata compared by Score.
type Candidate struct {
	Title    string
	Artist   string
	Duration time.Duration
}

// Normalizer canonicalises titles and artist names before comparison.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeArtist lowercases, strips accents and punctuation, and unifies joiners ("and" → "&").
func (n *Normalizer) NormalizeArtist(artist string) string {
	artist = strings.ReplaceAll(artist, "&", " and ")
	artist = " " + n.basicNormalize(artist) + " "
	artist = artistJoinerRepl.Replace(artist)
	return strings.TrimSpace(artist)
}

// NormalizeTitle removes featured-artist credits and release qualifiers
// (remix, remaster, radio edit...) before applying basic normalisation.
func (n *Normalizer) NormalizeTitle(title string) string {
	title = featRegex.ReplaceAllString(title, "")
	title = bracketTagRegex.ReplaceAllString(title, "")
	title = dashSuffixRegex.ReplaceAllString(title, "")
	return n.basicNormalize(title)
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(strings.ToLower(text))
}

// CalculateSimilarity returns the longest-common-subsequence ratio of s1 and s2 in [0, 1].
func (n *Normalizer) CalculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	return float64(longestCommonSubsequence(s1, s2)) / float64(max(len(s1), len(s2)))
}

func longestCommonSubsequence(s1, s2 string) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

// DurationTolerance scores two durations: 1 within 30s, falling linearly to 0 at 2m.
func (n *Normalizer) DurationTolerance(d1, d2 time.Duration) float64 {
	diff := d1 - d2
	if diff < 0 {
		diff = -diff
	}

	if diff <= durationTolerance {
		return 1.0
	}
	if diff >= durationCutoff {
		return 0.0
	}

	return 1.0 - float64(diff-durationTolerance)/float64(durationCutoff-durationTolerance)
}

// Score weighs title, artist and duration similarity into [0, 1]. Components
// missing from want (empty artist, zero duration) are left out of the weighting.
func (n *Normalizer) Score(want, got Candidate) float64 {
	total := titleWeight * n.CalculateSimilarity(n.NormalizeTitle(want.Title), n.NormalizeTitle(got.Title))
	weights := titleWeight

	if want.Artist != "" {
		total += artistWeight * n.CalculateSimilarity(n.NormalizeArtist(want.Artist), n.NormalizeArtist(got.Artist))
		weights += artistWeight
	}

	if want.Duration > 0 && got.Duration > 0 {
		total += durationWeight * n.DurationTolerance(want.Duration, got.Duration)
		weights += durationWeight
	}

	return total / weights
}
