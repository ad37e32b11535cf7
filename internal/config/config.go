package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
)

// Store backend names.
const (
	BackendMemory    = "memory"
	BackendBadger    = "badger"
	BackendWeaviate  = "weaviate"
	BackendFirestore = "firestore"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	AI        AIConfig
	Store     StoreConfig
	Embedding embedding.Config
	Queue     QueueConfig
	Tone      ToneConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	st, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	emb, err := loadEmbeddingConfig()
	if err != nil {
		return nil, err
	}

	queue, err := loadQueueConfig()
	if err != nil {
		return nil, err
	}

	tone, err := loadToneConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
		AI:        ai,
		Store:     st,
		Embedding: emb,
		Queue:     queue,
		Tone:      tone,
	}, nil
}

// ServerConfig 描述 HTTP 与 gRPC 服务配置。
type ServerConfig struct {
	Addr            string
	GRPCAddr        string
	ShutdownTimeout time.Duration
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	addr, err := parseAddrEnv("PORT", "8080")
	if err != nil {
		return ServerConfig{}, err
	}

	grpcAddr, err := parseAddrEnv("GRPC_PORT", "9090")
	if err != nil {
		return ServerConfig{}, err
	}

	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{Addr: addr, GRPCAddr: grpcAddr, ShutdownTimeout: shutdown}, nil
}

func parseAddrEnv(key, defaultPort string) (string, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ":" + port, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          modelName,
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// StoreConfig 描述文档与向量存储后端。
type StoreConfig struct {
	Backend           string
	VectorBackend     string
	BadgerPath        string
	BadgerSyncWrites  bool
	WeaviateURL       string
	WeaviateAPIKey    string
	FirestoreProject  string
	FirestoreDatabase string
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendMemory))
	switch backend {
	case BackendMemory, BackendBadger, BackendFirestore:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q", backend)
	}

	// 向量后端默认与文档后端一致
	vector := strings.ToLower(getEnvOrDefault("VECTOR_BACKEND", backend))
	switch vector {
	case BackendMemory, BackendBadger, BackendFirestore, BackendWeaviate:
	default:
		return StoreConfig{}, fmt.Errorf("invalid VECTOR_BACKEND value %q", vector)
	}

	syncWrites, err := parseBoolEnv("BADGER_SYNC_WRITES", false)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Backend:           backend,
		VectorBackend:     vector,
		BadgerPath:        getEnvOrDefault("BADGER_PATH", "./data/badger"),
		BadgerSyncWrites:  syncWrites,
		WeaviateURL:       getEnvOrDefault("WEAVIATE_URL", "http://localhost:8080"),
		WeaviateAPIKey:    strings.TrimSpace(os.Getenv("WEAVIATE_API_KEY")),
		FirestoreProject:  strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		FirestoreDatabase: getEnvOrDefault("FIRESTORE_DATABASE_ID", "(default)"),
	}
	if (backend == BackendFirestore || vector == BackendFirestore) && cfg.FirestoreProject == "" {
		return StoreConfig{}, fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
	}
	return cfg, nil
}

func loadEmbeddingConfig() (embedding.Config, error) {
	provider := strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", embedding.ProviderHash))

	dim, err := parseOptionalIntEnv("EMBEDDING_DIMENSION")
	if err != nil {
		return embedding.Config{}, err
	}
	dimension := 0
	if dim != nil {
		dimension = *dim
	}

	timeout, err := parseDurationEnv("EMBEDDING_TIMEOUT", 10*time.Second)
	if err != nil {
		return embedding.Config{}, err
	}

	cfg := embedding.Config{
		Provider:  provider,
		Model:     strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")),
		Dimension: dimension,
		Timeout:   timeout,
		BaseURL:   strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
		Project:   strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
		Location:  strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_LOCATION")),
	}

	switch provider {
	case embedding.ProviderHash:
	case embedding.ProviderGemini:
		cfg.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	case embedding.ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	default:
		return embedding.Config{}, fmt.Errorf("invalid EMBEDDING_PROVIDER value %q", provider)
	}
	return cfg, nil
}

// QueueConfig 描述后台持久化队列。
type QueueConfig struct {
	Workers    int
	Capacity   int
	JobTimeout time.Duration
}

func loadQueueConfig() (QueueConfig, error) {
	workers, err := parseIntEnv("QUEUE_WORKERS", 4)
	if err != nil {
		return QueueConfig{}, err
	}
	capacity, err := parseIntEnv("QUEUE_CAPACITY", workers*64)
	if err != nil {
		return QueueConfig{}, err
	}
	timeout, err := parseDurationEnv("QUEUE_JOB_TIMEOUT", 5*time.Second)
	if err != nil {
		return QueueConfig{}, err
	}
	return QueueConfig{Workers: workers, Capacity: capacity, JobTimeout: timeout}, nil
}

// ToneConfig 描述语气分析参数。
type ToneConfig struct {
	// ParamsFile 指向可选的 YAML 参数文件，空值使用内置默认值。
	ParamsFile    string
	LookupTimeout time.Duration
}

func loadToneConfig() (ToneConfig, error) {
	timeout, err := parseDurationEnv("TONE_LOOKUP_TIMEOUT", 3*time.Second)
	if err != nil {
		return ToneConfig{}, err
	}
	return ToneConfig{
		ParamsFile:    strings.TrimSpace(os.Getenv("TONE_PARAMS_FILE")),
		LookupTimeout: timeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
