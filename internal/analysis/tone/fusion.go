package tone

import (
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

// Estimate is a single (tone, confidence) opinion.
type Estimate struct {
	Tone       model.Tone
	Confidence float64
}

// Fuse combines estimates with the default parameters.
func Fuse(vector, rule Estimate) Estimate {
	return defaultParams.Fuse(vector, rule)
}

// Fuse reconciles the vector and rule estimates. A vector estimate above VectorTrust wins
// outright; otherwise a rule estimate above RuleTrust wins; otherwise the stronger raw
// estimate is kept, ties going to the vector side.
func (p *Params) Fuse(vector, rule Estimate) Estimate {
	f := p.Fusion

	var out Estimate
	switch {
	case vector.Confidence > f.VectorTrust:
		out = Estimate{Tone: vector.Tone, Confidence: f.PrimaryWeight*vector.Confidence + f.SecondaryWeight*rule.Confidence}
	case rule.Confidence > f.RuleTrust:
		out = Estimate{Tone: rule.Tone, Confidence: f.PrimaryWeight*rule.Confidence + f.SecondaryWeight*vector.Confidence}
	case vector.Confidence >= rule.Confidence:
		out = vector
	default:
		out = rule
	}

	if out.Confidence > 1 {
		out.Confidence = 1
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	return out
}

// Distribute builds a full score map: primary gets confidence, the rest share 1-confidence.
func Distribute(primary model.Tone, confidence float64) model.Scores {
	confidence = clamp01(confidence)

	var scores model.Scores
	share := (1 - confidence) / float64(model.NumTones-1)
	for i := range scores {
		scores[i] = share
	}
	scores[primary] = confidence
	return scores
}
