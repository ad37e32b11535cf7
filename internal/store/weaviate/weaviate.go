// Package weaviate 将语气向量集合存放在 Weaviate 中（vectorizer: none），文档集合由其他后端负责。
package weaviate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

const (
	ToneClass    = "ToneEmbedding"
	MessageClass = "MessageEmbedding"
)

// Config 描述 Weaviate 连接。
type Config struct {
	// URL may carry a scheme, e.g. "https://weaviate.internal:8080"; http is assumed otherwise.
	URL    string
	APIKey string
}

// Store implements store.VectorStore on Weaviate.
type Store struct {
	client *weaviate.Client
}

var _ store.VectorStore = (*Store)(nil)

// New connects to Weaviate and makes sure both classes exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	wcfg := weaviate.Config{Host: cfg.URL, Scheme: "http"}
	switch {
	case strings.HasPrefix(cfg.URL, "https://"):
		wcfg.Scheme, wcfg.Host = "https", strings.TrimPrefix(cfg.URL, "https://")
	case strings.HasPrefix(cfg.URL, "http://"):
		wcfg.Host = strings.TrimPrefix(cfg.URL, "http://")
	}
	if cfg.APIKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create weaviate client", goerr.V("url", cfg.URL))
	}

	s := &Store{client: client}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates missing classes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, class := range []*models.Class{toneSchema(), messageSchema()} {
		if _, err := s.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx); err == nil {
			continue
		}
		logging.From(ctx).Info("creating weaviate class", "class", class.Class)
		if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return goerr.Wrap(err, "failed to create weaviate class", goerr.V("class", class.Class))
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return goerr.Wrap(err, "weaviate readiness check failed")
	}
	if !ready {
		return goerr.New("weaviate is not ready")
	}
	return nil
}

func (s *Store) InsertToneEmbedding(ctx context.Context, e *tone.Embedding) error {
	if e.ID == "" {
		e.ID = store.NewID()
	}
	_, err := s.client.Data().Creator().
		WithClassName(ToneClass).
		WithID(e.ID).
		WithProperties(toneProperties(e)).
		WithVector(e.ToneVector).
		Do(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to insert tone embedding", goerr.V("id", e.ID))
	}
	return nil
}

func (s *Store) InsertMessageEmbedding(ctx context.Context, e *tone.MessageEmbedding) error {
	if e.ID == "" {
		e.ID = store.NewID()
	}
	_, err := s.client.Data().Creator().
		WithClassName(MessageClass).
		WithID(e.ID).
		WithProperties(messageProperties(e)).
		WithVector(e.ContentVector).
		Do(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to insert message embedding", goerr.V("id", e.ID))
	}
	return nil
}

func (s *Store) SearchToneEmbeddings(ctx context.Context, f store.Filter, vector []float32, limit int) ([]tone.Scored, error) {
	if len(vector) == 0 {
		return nil, goerr.Wrap(store.ErrInvalidVector, "empty query vector")
	}
	if limit <= 0 {
		return nil, nil
	}

	query := s.client.GraphQL().Get().
		WithClassName(ToneClass).
		WithFields(toneFields(true)...).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(limit)
	if where := buildWhere(f); where != nil {
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "weaviate nearVector query failed")
	}
	scored, err := parseToneResponse(resp)
	if err != nil {
		return nil, err
	}
	return store.TopK(scored, limit), nil
}

func (s *Store) ListToneEmbeddings(ctx context.Context, f store.Filter, limit int) ([]tone.Embedding, error) {
	query := s.client.GraphQL().Get().
		WithClassName(ToneClass).
		WithFields(toneFields(false)...).
		WithSort(graphql.Sort{Path: []string{"createdAtMs"}, Order: graphql.Desc})
	if limit > 0 {
		query = query.WithLimit(limit)
	}
	if where := buildWhere(f); where != nil {
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "weaviate list query failed")
	}
	scored, err := parseToneResponse(resp)
	if err != nil {
		return nil, err
	}

	out := make([]tone.Embedding, len(scored))
	for i := range scored {
		out[i] = scored[i].Embedding
	}
	store.SortEmbeddings(out)
	return store.Limit(out, limit), nil
}

func buildWhere(f store.Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if f.UserID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"userId"}).
			WithOperator(filters.Equal).
			WithValueString(f.UserID))
	}
	if f.Relationship != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"relationship"}).
			WithOperator(filters.Equal).
			WithValueString(f.Relationship))
	}
	if !f.Since.IsZero() {
		operands = append(operands, filters.Where().
			WithPath([]string{"createdAtMs"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueNumber(float64(f.Since.UnixMilli())))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func toneFields(withCertainty bool) []graphql.Field {
	additional := graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}}}
	if withCertainty {
		additional.Fields = append(additional.Fields, graphql.Field{Name: "certainty"})
	}
	return []graphql.Field{
		{Name: "userId"},
		{Name: "messageId"},
		{Name: "tone"},
		{Name: "messageSample"},
		{Name: "confidence"},
		{Name: "relationship"},
		{Name: "emotionalIntensity"},
		{Name: "formalityLevel"},
		{Name: "vectorModel"},
		{Name: "vectorDimension"},
		{Name: "messageVector"},
		{Name: "styleVector"},
		{Name: "createdAt"},
		additional,
	}
}

func toneProperties(e *tone.Embedding) map[string]any {
	return map[string]any{
		"userId":             e.UserID,
		"messageId":          e.MessageID,
		"tone":               e.Tone.String(),
		"messageSample":      e.MessageSample,
		"confidence":         e.Confidence,
		"relationship":       e.Relationship,
		"emotionalIntensity": e.EmotionalIntensity,
		"formalityLevel":     e.FormalityLevel,
		"vectorModel":        e.VectorModel,
		"vectorDimension":    e.VectorDimension,
		"messageVector":      e.MessageVector,
		"styleVector":        e.StyleVector,
		"createdAt":          e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"createdAtMs":        e.CreatedAt.UnixMilli(),
	}
}

func messageProperties(e *tone.MessageEmbedding) map[string]any {
	return map[string]any{
		"messageId":      e.MessageID,
		"userId":         e.UserID,
		"conversationId": e.ConversationID,
		"styleVector":    e.StyleVector,
		"toneVector":     e.ToneVector,
		"semanticVector": e.SemanticVector,
		"tone":           e.Tone.String(),
		"sentimentScore": e.SentimentScore,
		"emotionalScore": e.EmotionalScore,
		"formalityScore": e.FormalityScore,
		"vectorModel":    e.VectorModel,
		"createdAt":      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"createdAtMs":    e.CreatedAt.UnixMilli(),
	}
}

type toneQueryResponse struct {
	Get struct {
		ToneEmbedding []toneResult `json:"ToneEmbedding"`
	} `json:"Get"`
}

type toneResult struct {
	UserID             string    `json:"userId"`
	MessageID          string    `json:"messageId"`
	Tone               string    `json:"tone"`
	MessageSample      string    `json:"messageSample"`
	Confidence         float64   `json:"confidence"`
	Relationship       string    `json:"relationship"`
	EmotionalIntensity float64   `json:"emotionalIntensity"`
	FormalityLevel     float64   `json:"formalityLevel"`
	VectorModel        string    `json:"vectorModel"`
	VectorDimension    int       `json:"vectorDimension"`
	MessageVector      []float32 `json:"messageVector"`
	StyleVector        []float32 `json:"styleVector"`
	CreatedAt          string    `json:"createdAt"`
	Additional         struct {
		ID        string    `json:"id"`
		Vector    []float32 `json:"vector"`
		Certainty *float64  `json:"certainty"`
	} `json:"_additional"`
}

// parseToneResponse decodes a GraphQL Get response. Certainty (already (1+cos)/2 for
// cosine classes) becomes the similarity.
func parseToneResponse(resp *models.GraphQLResponse) ([]tone.Scored, error) {
	if resp == nil {
		return nil, goerr.New("nil weaviate response")
	}
	if len(resp.Errors) > 0 {
		return nil, goerr.New("weaviate query error", goerr.V("message", resp.Errors[0].Message))
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal graphql data")
	}
	var parsed toneQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to decode graphql data")
	}

	out := make([]tone.Scored, 0, len(parsed.Get.ToneEmbedding))
	for _, r := range parsed.Get.ToneEmbedding {
		t, ok := tone.Parse(r.Tone)
		if !ok {
			continue
		}
		created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
		sc := tone.Scored{Embedding: tone.Embedding{
			ID:                 r.Additional.ID,
			UserID:             r.UserID,
			MessageID:          r.MessageID,
			ToneVector:         r.Additional.Vector,
			MessageVector:      r.MessageVector,
			StyleVector:        r.StyleVector,
			Tone:               t,
			MessageSample:      r.MessageSample,
			Confidence:         r.Confidence,
			Relationship:       r.Relationship,
			EmotionalIntensity: r.EmotionalIntensity,
			FormalityLevel:     r.FormalityLevel,
			VectorModel:        r.VectorModel,
			VectorDimension:    r.VectorDimension,
			CreatedAt:          created,
		}}
		if r.Additional.Certainty != nil {
			sc.Similarity = max(0, min(1, *r.Additional.Certainty))
		}
		out = append(out, sc)
	}
	return out, nil
}

func toneSchema() *models.Class {
	filterable := new(bool)
	*filterable = true

	return &models.Class{
		Class:       ToneClass,
		Description: "One tone observation of a user, vector = tone-context embedding",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]any{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "userId", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "messageId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "tone", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "messageSample", DataType: []string{"text"}},
			{Name: "confidence", DataType: []string{"number"}},
			{Name: "relationship", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "emotionalIntensity", DataType: []string{"number"}},
			{Name: "formalityLevel", DataType: []string{"number"}},
			{Name: "vectorModel", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "vectorDimension", DataType: []string{"int"}},
			{Name: "messageVector", DataType: []string{"number[]"}},
			{Name: "styleVector", DataType: []string{"number[]"}},
			{Name: "createdAt", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "createdAtMs", DataType: []string{"number"}, IndexFilterable: filterable},
		},
	}
}

func messageSchema() *models.Class {
	filterable := new(bool)
	*filterable = true

	return &models.Class{
		Class:       MessageClass,
		Description: "Vectors of one conversation message, vector = content embedding",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]any{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "messageId", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "userId", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "conversationId", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "styleVector", DataType: []string{"number[]"}},
			{Name: "toneVector", DataType: []string{"number[]"}},
			{Name: "semanticVector", DataType: []string{"number[]"}},
			{Name: "tone", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "sentimentScore", DataType: []string{"number"}},
			{Name: "emotionalScore", DataType: []string{"number"}},
			{Name: "formalityScore", DataType: []string{"number"}},
			{Name: "vectorModel", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "createdAt", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "createdAtMs", DataType: []string{"number"}, IndexFilterable: filterable},
		},
	}
}
