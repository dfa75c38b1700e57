package services

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

// NormalizeText produces the canonical comparison form of free text.
// Lowercases, strips diacritics, keeps only ASCII letters, digits and
// whitespace, then collapses whitespace runs and trims. Whitespace is
// classified the way the web client's \s class does.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(stripMarks, strings.ToLower(text))
	if err != nil {
		decomposed = strings.ToLower(text)
	}

	var builder strings.Builder
	builder.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case isClientSpace(r):
			builder.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(builder.String()), " ")
}

// SimilarityThresholds holds the weights and the three independent thresholds
// used to classify candidates.
type SimilarityThresholds struct {
	Inclusion         int
	Duplicate         int
	Suggestion        int
	TitleWeight       float64
	DescriptionWeight float64
}

// DefaultSimilarityThresholds returns inclusion >50, duplicate >=70, suggestion >40
// with a 0.7/0.3 title/description split.
func DefaultSimilarityThresholds() SimilarityThresholds {
	return ThresholdsFromConfig(shared.DefaultDetectorConfig())
}

// ThresholdsFromConfig copies the detector section of the unified configuration
func ThresholdsFromConfig(cfg shared.DetectorConfig) SimilarityThresholds {
	return SimilarityThresholds{
		Inclusion:         cfg.InclusionThreshold,
		Duplicate:         cfg.DuplicateThreshold,
		Suggestion:        cfg.SuggestionThreshold,
		TitleWeight:       cfg.TitleWeight,
		DescriptionWeight: cfg.DescriptionWeight,
	}
}

// IsIncluded reports whether a score belongs in the similar-results list
func (t SimilarityThresholds) IsIncluded(score int) bool {
	return score > t.Inclusion
}

// IsDuplicate reports whether a score blocks as duplicate
func (t SimilarityThresholds) IsDuplicate(score int) bool {
	return score >= t.Duplicate
}

// IsSuggested reports whether a title-only score is worth suggesting
func (t SimilarityThresholds) IsSuggested(score int) bool {
	return score > t.Suggestion
}

// SimilarityEngine scores candidate scenarios against stored ones
type SimilarityEngine struct {
	thresholds SimilarityThresholds
}

// NewSimilarityEngine creates an engine with the given thresholds
func NewSimilarityEngine(thresholds SimilarityThresholds) *SimilarityEngine {
	return &SimilarityEngine{thresholds: thresholds}
}

// Thresholds returns the engine's thresholds
func (e *SimilarityEngine) Thresholds() SimilarityThresholds {
	return e.thresholds
}

// CandidateScore returns the weighted title/description similarity as 0-100
func (e *SimilarityEngine) CandidateScore(candidateTitle, candidateDescription, storedTitle, storedDescription string) int {
	titleScore := CombinedSimilarity(candidateTitle, storedTitle)
	descriptionScore := CombinedSimilarity(candidateDescription, storedDescription)
	weighted := e.thresholds.TitleWeight*titleScore + e.thresholds.DescriptionWeight*descriptionScore
	return toPercent(weighted)
}

// SuggestionScore returns the title-only Levenshtein similarity as 0-100
func (e *SimilarityEngine) SuggestionScore(partialTitle, storedTitle string) int {
	return toPercent(LevenshteinSimilarity(partialTitle, storedTitle))
}

// JaccardSimilarity is |intersection| / |union| over the normalized token sets
func JaccardSimilarity(a, b string) float64 {
	tokensA := tokenSet(NormalizeText(a))
	tokensB := tokenSet(NormalizeText(b))

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}

	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// LevenshteinSimilarity is 1 - distance/max(len) over the normalized strings
func LevenshteinSimilarity(a, b string) float64 {
	normalizedA := NormalizeText(a)
	normalizedB := NormalizeText(b)

	if normalizedA == normalizedB {
		return 1.0
	}
	if normalizedA == "" || normalizedB == "" {
		return 0.0
	}

	// Normalized text is ASCII so bytes are characters
	distance := levenshtein.ComputeDistance(normalizedA, normalizedB)
	maxLength := len(normalizedA)
	if len(normalizedB) > maxLength {
		maxLength = len(normalizedB)
	}

	return 1.0 - float64(distance)/float64(maxLength)
}

// CombinedSimilarity takes the higher of the Jaccard and Levenshtein scores
func CombinedSimilarity(a, b string) float64 {
	return math.Max(JaccardSimilarity(a, b), LevenshteinSimilarity(a, b))
}

func tokenSet(normalized string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		tokens[token] = struct{}{}
	}
	return tokens
}

func toPercent(score float64) int {
	return int(math.Round(score * 100))
}
