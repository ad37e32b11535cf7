package embedding

import (
	"context"
	"sort"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIAPI is the subset of *openai.Client used for embeddings.
type OpenAIAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIConfig 描述 OpenAI 兼容的向量服务。
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// OpenAIEmbedder embeds text through the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	api       OpenAIAPI
	model     string
	dimension int
}

var _ einoembed.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAI creates a go-openai client from cfg.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewOpenAIWithAPI(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.Dimension), nil
}

// NewOpenAIWithAPI builds the embedder on an existing API handle.
func NewOpenAIWithAPI(api OpenAIAPI, model string, dimension int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{api: api, model: model, dimension: dimension}
}

// EmbedStrings implements einoembed.Embedder.
func (o *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembed.Option) ([][]float64, error) {
	resp, err := o.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embeddings", goerr.V("model", o.model))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float64, len(data))
	for i, d := range data {
		out[i] = ToFloat64(d.Embedding)
	}
	return out, nil
}
