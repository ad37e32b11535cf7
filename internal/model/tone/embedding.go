package tone

import "time"

// Relationship labels used to scope similarity search.
const (
	RelationshipFriend   = "friend"
	RelationshipRomantic = "romantic"
	RelationshipFather   = "father"
	RelationshipMother   = "mother"
	RelationshipBrother  = "brother"
	RelationshipSister   = "sister"
	RelationshipBusiness = "business"
	RelationshipUnknown  = "unknown"
)

// MaxSampleRunes bounds the message sample stored next to an embedding.
const MaxSampleRunes = 200

// Embedding is one immutable tone observation for a user.
type Embedding struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	MessageID          string    `json:"messageId,omitempty"`
	ToneVector         []float32 `json:"toneVector"`
	MessageVector      []float32 `json:"messageVector"`
	StyleVector        []float32 `json:"styleVector"`
	Tone               Tone      `json:"tone"`
	MessageSample      string    `json:"messageSample"`
	Confidence         float64   `json:"confidence"`
	Relationship       string    `json:"relationship"`
	EmotionalIntensity float64   `json:"emotionalIntensity"`
	FormalityLevel     float64   `json:"formalityLevel"`
	VectorModel        string    `json:"vectorModel"`
	VectorDimension    int       `json:"vectorDimension"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Scored pairs a stored embedding with its similarity to a query in [0,1].
type Scored struct {
	Embedding
	Similarity float64 `json:"similarity"`
}

// Match is the vector-free view of a Scored hit returned to clients.
type Match struct {
	EmbeddingID  string    `json:"embeddingId"`
	Tone         Tone      `json:"tone"`
	Sample       string    `json:"messageSample"`
	Similarity   float64   `json:"similarity"`
	Confidence   float64   `json:"confidence"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Match drops the vectors of s.
func (s Scored) Match() Match {
	return Match{
		EmbeddingID:  s.ID,
		Tone:         s.Tone,
		Sample:       s.MessageSample,
		Similarity:   s.Similarity,
		Confidence:   s.Confidence,
		Relationship: s.Relationship,
		CreatedAt:    s.CreatedAt,
	}
}

// MessageEmbedding carries the vectors of one concrete conversation message.
type MessageEmbedding struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"messageId"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	ContentVector  []float32 `json:"contentVector"`
	StyleVector    []float32 `json:"styleVector"`
	ToneVector     []float32 `json:"toneVector"`
	SemanticVector []float32 `json:"semanticVector"`
	Tone           Tone      `json:"tone"`
	SentimentScore float64   `json:"sentimentScore"`
	EmotionalScore float64   `json:"emotionalScore"`
	FormalityScore float64   `json:"formalityScore"`
	VectorModel    string    `json:"vectorModel"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Sample truncates text to MaxSampleRunes runes.
func Sample(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxSampleRunes {
		return text
	}
	return string(runes[:MaxSampleRunes])
}
