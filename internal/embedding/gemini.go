package embedding

import (
	"context"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-embedding-001"
	geminiTaskType     = "SEMANTIC_SIMILARITY"
)

// GeminiAPI is the subset of genai.Models used for embeddings.
type GeminiAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiConfig 描述 Gemini 向量服务。APIKey 为空时走 Vertex AI（Project + Location）。
type GeminiConfig struct {
	APIKey    string
	Project   string
	Location  string
	Model     string
	Dimension int
}

// GeminiEmbedder embeds text with the Gemini embedding models.
type GeminiEmbedder struct {
	api       GeminiAPI
	model     string
	dimension int32
}

var _ einoembed.Embedder = (*GeminiEmbedder)(nil)

// NewGemini creates a genai client from cfg.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.APIKey == "" {
		clientCfg = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return NewGeminiWithAPI(client.Models, cfg.Model, cfg.Dimension), nil
}

// NewGeminiWithAPI builds the embedder on an existing API handle.
func NewGeminiWithAPI(api GeminiAPI, model string, dimension int) *GeminiEmbedder {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEmbedder{api: api, model: model, dimension: int32(dimension)}
}

// EmbedStrings implements einoembed.Embedder with one batched EmbedContent call.
func (g *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembed.Option) ([][]float64, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: geminiTaskType}
	if g.dimension > 0 {
		cfg.OutputDimensionality = &g.dimension
	}

	resp, err := g.api.EmbedContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.model))
	}

	out := make([][]float64, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		if emb == nil {
			return nil, goerr.New("gemini returned an empty embedding", goerr.V("model", g.model))
		}
		out = append(out, ToFloat64(emb.Values))
	}
	return out, nil
}
