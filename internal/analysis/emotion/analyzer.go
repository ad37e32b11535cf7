package emotion

import (
	"strings"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

// Bucket 表示一类情绪关键词。
type Bucket string

const (
	Positive   Bucket = "positive"
	Negative   Bucket = "negative"
	Excitement Bucket = "excitement"
	Calm       Bucket = "calm"
)

var keywordBuckets = map[Bucket][]string{
	Positive:   {"great", "awesome", "good", "happy", "love", "amazing", "wonderful", "excellent", "fantastic", "perfect"},
	Negative:   {"bad", "terrible", "hate", "sad", "angry", "frustrated", "disappointed", "awful", "horrible", "upset"},
	Excitement: {"wow", "amazing", "incredible", "fantastic", "awesome", "!", "!!!"},
	Calm:       {"peaceful", "calm", "relaxed", "gentle", "quiet", "serene"},
}

var bucketScale = map[Bucket]float64{
	Positive:   0.3,
	Negative:   0.3,
	Excitement: 0.2,
	Calm:       0.3,
}

// Analyzer 根据关键词桶计算消息的情绪画像。
type Analyzer struct {
	params *tonerules.Params
}

// NewAnalyzer binds the analyzer to tone parameters used for intensity and formality.
func NewAnalyzer(params *tonerules.Params) *Analyzer {
	if params == nil {
		p := tonerules.DefaultParams()
		params = &p
	}
	return &Analyzer{params: params}
}

var defaultAnalyzer = NewAnalyzer(nil)

// Analyze 使用默认参数计算情绪画像。
func Analyze(text string) model.EmotionalProfile {
	return defaultAnalyzer.Analyze(text)
}

// Analyze scores each bucket by how many of its keywords appear in text.
func (a *Analyzer) Analyze(text string) model.EmotionalProfile {
	counts := scoreText(text)

	total := 0
	for _, c := range counts {
		total += c
	}

	return model.EmotionalProfile{
		Positivity: scaled(counts[Positive], bucketScale[Positive]),
		Negativity: scaled(counts[Negative], bucketScale[Negative]),
		Excitement: scaled(counts[Excitement], bucketScale[Excitement]),
		Calmness:   scaled(counts[Calm], bucketScale[Calm]),
		Neutrality: max(0, 1-min(1, float64(total)*0.2)),
		Intensity:  a.params.Intensity(text),
		Formality:  a.params.Formality(text),
	}
}

func scoreText(text string) map[Bucket]int {
	normalized := strings.ToLower(text)
	scores := make(map[Bucket]int, len(keywordBuckets))
	if strings.TrimSpace(normalized) == "" {
		return scores
	}

	for bucket, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[bucket]++
			}
		}
	}
	return scores
}

func scaled(count int, factor float64) float64 {
	return min(1, float64(count)*factor)
}
