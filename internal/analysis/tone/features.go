package tone

import (
	"strings"
	"unicode"
	"unicode/utf8"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

const punctuationSet = ".,!?;:"

// ExtractFeatures computes features with the default parameters.
func ExtractFeatures(text string) model.FeatureSet {
	return defaultParams.ExtractFeatures(text)
}

// ExtractFeatures computes lexical and structural features of text. It never fails;
// every ratio is zero on empty input and intensity is floored at 0.1.
func (p *Params) ExtractFeatures(text string) model.FeatureSet {
	length := utf8.RuneCountInString(text)
	words := strings.Fields(text)

	var (
		upper, emoji, punct int
	)
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
		if r > 127 {
			emoji++
		}
		if strings.ContainsRune(punctuationSet, r) {
			punct++
		}
	}

	features := model.FeatureSet{
		MessageLength:    length,
		WordCount:        len(words),
		ExclamationCount: strings.Count(text, "!"),
		QuestionCount:    strings.Count(text, "?"),
		EmojiCount:       emoji,
	}

	if length > 0 {
		features.CapsRatio = float64(upper) / float64(length)
		features.PunctuationDensity = float64(punct) / float64(length)
	}

	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		features.AvgWordLength = float64(total) / float64(len(words))
	}

	features.FormalityLevel = p.Formality(text)
	features.EmotionalIntensity = p.intensity(text, features.ExclamationCount, features.CapsRatio)
	return features
}

// Formality scores text from 0 (informal) to 1 (formal), starting at a neutral 0.5.
func (p *Params) Formality(text string) float64 {
	lower := strings.ToLower(text)
	formal := countPresent(lower, p.FormalKeywords)
	informal := countPresent(lower, p.InformalKeywords)

	switch {
	case formal > informal:
		return clamp01(0.5 + 0.1*float64(formal))
	case informal > formal:
		return clamp01(0.5 - 0.1*float64(informal))
	default:
		return 0.5
	}
}

// Intensity scores how emotionally charged text is, in [0.1, 1].
func (p *Params) Intensity(text string) float64 {
	length := utf8.RuneCountInString(text)
	var capsRatio float64
	if length > 0 {
		upper := 0
		for _, r := range text {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		capsRatio = float64(upper) / float64(length)
	}
	return p.intensity(text, strings.Count(text, "!"), capsRatio)
}

func (p *Params) intensity(text string, exclamations int, capsRatio float64) float64 {
	// indicators are matched case-sensitively so that shouting counts
	hits := countPresent(text, p.IntensityIndicators)
	v := 0.2*float64(hits) + 0.1*float64(exclamations) + 0.5*capsRatio
	if v > 1 {
		v = 1
	}
	if v < 0.1 {
		v = 0.1
	}
	return v
}

// countPresent counts how many distinct keywords occur in text.
func countPresent(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
