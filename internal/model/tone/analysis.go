package tone

import "time"

// FeatureSet holds lexical and structural features of one message.
type FeatureSet struct {
	MessageLength      int     `json:"messageLength"`
	WordCount          int     `json:"wordCount"`
	ExclamationCount   int     `json:"exclamationCount"`
	QuestionCount      int     `json:"questionCount"`
	EmojiCount         int     `json:"emojiCount"`
	CapsRatio          float64 `json:"capsRatio"`
	PunctuationDensity float64 `json:"punctuationDensity"`
	AvgWordLength      float64 `json:"avgWordLength"`
	FormalityLevel     float64 `json:"formalityLevel"`
	EmotionalIntensity float64 `json:"emotionalIntensity"`
}

// EmotionalProfile summarises the affect of a message, every field in [0,1].
type EmotionalProfile struct {
	Positivity float64 `json:"positivity"`
	Negativity float64 `json:"negativity"`
	Excitement float64 `json:"excitement"`
	Calmness   float64 `json:"calmness"`
	Neutrality float64 `json:"neutrality"`
	Intensity  float64 `json:"intensity"`
	Formality  float64 `json:"formality"`
}

// Source names the path that produced a vector estimate.
type Source string

const (
	SourceUser         Source = "user"
	SourceRelationship Source = "relationship"
	SourceDefault      Source = "default"
)

// Analysis is the result of one tone decision.
type Analysis struct {
	ID               string           `json:"analysisId"`
	PrimaryTone      Tone             `json:"primaryTone"`
	Confidence       float64          `json:"confidence"`
	Scores           Scores           `json:"toneScores"`
	Features         FeatureSet       `json:"features"`
	Profile          EmotionalProfile `json:"emotionalProfile"`
	VectorTone       Tone             `json:"vectorTone"`
	VectorConfidence float64          `json:"vectorConfidence"`
	VectorSource     Source           `json:"vectorSource"`
	VectorUsed       bool             `json:"vectorUsed"`
	RuleTone         Tone             `json:"ruleTone"`
	RuleConfidence   float64          `json:"ruleConfidence"`
	Relationship     string           `json:"relationship,omitempty"`
	ProcessingTime   time.Duration    `json:"processingTimeNs"`
	AnalyzedAt       time.Time        `json:"analyzedAt"`
}

// RecordKind distinguishes stored analysis records.
type RecordKind string

const (
	RecordMessage RecordKind = "message"
	RecordPattern RecordKind = "pattern"
)

// AnalysisRecord is the persisted form of an analysis or a pattern report.
type AnalysisRecord struct {
	ID             string           `json:"id"`
	Kind           RecordKind       `json:"kind"`
	UserID         string           `json:"userId"`
	MessageID      string           `json:"messageId,omitempty"`
	PrimaryTone    Tone             `json:"primaryTone"`
	Confidence     float64          `json:"confidence"`
	Scores         Scores           `json:"toneScores"`
	Features       FeatureSet       `json:"features"`
	Profile        EmotionalProfile `json:"emotionalProfile"`
	MessageSample  string           `json:"messageSample,omitempty"`
	Relationship   string           `json:"relationship,omitempty"`
	ProcessingTime time.Duration    `json:"processingTimeNs"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// PatternReport aggregates a user's recent tone observations.
type PatternReport struct {
	ID                   string                    `json:"analysisId"`
	UserID               string                    `json:"userId"`
	PeriodDays           int                       `json:"analysisPeriodDays"`
	TotalMessages        int                       `json:"totalMessagesAnalyzed"`
	DominantTone         Tone                      `json:"dominantTone"`
	Counts               [NumTones]int             `json:"-"`
	Distribution         Scores                    `json:"toneDistribution"`
	RelationshipPatterns map[string]map[string]int `json:"relationshipPatterns"`
	AverageConfidence    float64                   `json:"averageConfidence"`
	AverageIntensity     float64                   `json:"averageEmotionalIntensity"`
	AverageFormality     float64                   `json:"averageFormalityLevel"`
	GeneratedAt          time.Time                 `json:"analysisTimestamp"`
}
