package tone

import (
	"strings"
	"unicode"
	"unicode/utf8"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

var defaultParams = DefaultParams()

var whWords = []string{"how", "what", "when", "where", "why"}

// RuleResult is the outcome of keyword classification.
type RuleResult struct {
	Tone       model.Tone
	Confidence float64
	// Scores are the raw per-tone scores after nudges, before the floor override.
	Scores model.Scores
}

// ClassifyByRules classifies text with the default parameters.
func ClassifyByRules(text, hint string) RuleResult {
	return defaultParams.ClassifyByRules(text, hint)
}

// ClassifyByRules scores every tone from its keyword list, applies structural nudges and
// returns the argmax. Weak winners (below RuleFloor) collapse to casual at FallbackConfidence.
func (p *Params) ClassifyByRules(text, hint string) RuleResult {
	lower := strings.ToLower(text)
	lowerHint := strings.ToLower(hint)

	var scores model.Scores
	for i, rule := range p.Rules {
		if len(rule.Keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, kw) || (lowerHint != "" && strings.Contains(lowerHint, kw)) {
				hits++
			}
		}
		scores[i] = clamp01(rule.Weight * float64(hits) / float64(len(rule.Keywords)))
	}

	p.applyNudges(&scores, text, lower)

	best, score := scores.Argmax()
	if score < p.RuleFloor {
		return RuleResult{Tone: model.Casual, Confidence: p.FallbackConfidence, Scores: scores}
	}
	return RuleResult{Tone: best, Confidence: score, Scores: scores}
}

func (p *Params) applyNudges(scores *model.Scores, text, lower string) {
	n := p.Nudges

	if excl := strings.Count(text, "!"); excl > 0 {
		bump(scores, model.Playful, n.PlayfulPerExclamation*float64(excl))
	}

	if length := utf8.RuneCountInString(text); length > 0 {
		upper := 0
		for _, r := range text {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(length) > n.CapsRatioThreshold {
			bump(scores, model.Business, n.CapsBusinessBoost)
		}
	}

	if strings.Contains(text, "?") {
		for _, w := range whWords {
			if strings.Contains(lower, w) {
				bump(scores, model.Formal, n.QuestionFormalBoost)
				break
			}
		}
	}

	words := len(strings.Fields(text))
	switch {
	case words > n.LongMessageWords:
		bump(scores, model.Formal, n.LongFormalBoost)
	case words < n.ShortMessageWords:
		bump(scores, model.Casual, n.ShortCasualBoost)
	}
}

func bump(scores *model.Scores, t model.Tone, delta float64) {
	scores[t] = clamp01(scores[t] + delta)
}
