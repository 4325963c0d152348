package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	AI         AIConfig
	Mongo      MongoConfig
	MariaDB    MariaDBConfig
	Vector     VectorConfig
	Classifier ClassifierConfig
	Timezone   *time.Location
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	mongo, err := loadMongoConfig()
	if err != nil {
		return nil, err
	}

	maria, err := loadMariaDBConfig()
	if err != nil {
		return nil, err
	}

	vector, err := loadVectorConfig()
	if err != nil {
		return nil, err
	}

	classifier, err := loadClassifierConfig()
	if err != nil {
		return nil, err
	}

	tzName := getEnvOrDefault("SERVICE_TIMEZONE", "Asia/Seoul")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_TIMEZONE %q: %w", tzName, err)
	}

	return &Config{
		Server:     server,
		Auth:       auth,
		AI:         ai,
		Mongo:      mongo,
		MariaDB:    maria,
		Vector:     vector,
		Classifier: classifier,
		Timezone:   loc,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr       string
	CORSOrigin string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	cors := getEnvOrDefault("CORS", "*")

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port, CORSOrigin: cors}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigin: cors}, nil
}

// AuthConfig 描述 JWT 认证配置。
type AuthConfig struct {
	JWTSecret string
}

func loadAuthConfig() (AuthConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("JWT_SECRET is required")
	}
	return AuthConfig{JWTSecret: secret}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
	Temperature    *float64
	MaxTokens      *int
	Timeout        time.Duration
	HistoryLimit   int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel 使用配置创建一个聊天模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("OpenAI 凭证或模型配置缺失，至少提供 OPEN_AI_KEY 与 OPENAI_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &openaimodel.ChatModelConfig{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}

	return openaimodel.NewChatModel(ctx, cfg)
}

// NewEmbedder 使用配置创建一个向量化模型实例。
func (c AIConfig) NewEmbedder(ctx context.Context) (embedding.Embedder, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("OPEN_AI_KEY is required for embeddings")
	}

	cfg := &openaiembed.EmbeddingConfig{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.EmbeddingModel,
		Timeout: c.Timeout,
	}

	return openaiembed.NewEmbedder(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("OPENAI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("OPENAI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("OPENAI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("CHAT_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("OPEN_AI_KEY")),
		Model:          getEnvOrDefault("OPENAI_MODEL", "gpt-4.1-nano"),
		EmbeddingModel: getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		BaseURL:        strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		HistoryLimit:   historyLimit,
	}, nil
}

// MongoConfig 描述对话历史文档库配置。
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

func loadMongoConfig() (MongoConfig, error) {
	uri := strings.TrimSpace(os.Getenv("MONGODB_URI"))
	if uri == "" {
		return MongoConfig{}, fmt.Errorf("MONGODB_URI is required")
	}
	return MongoConfig{
		URI:        uri,
		Database:   getEnvOrDefault("MONGODB_DB", "chatbot"),
		Collection: getEnvOrDefault("MONGODB_COLLECTION", "messages"),
	}, nil
}

// MariaDBConfig 描述情绪日记关系库配置。
type MariaDBConfig struct {
	DSN string
}

func loadMariaDBConfig() (MariaDBConfig, error) {
	if dsn := strings.TrimSpace(os.Getenv("MARIADB_DSN")); dsn != "" {
		return MariaDBConfig{DSN: dsn}, nil
	}

	host := strings.TrimSpace(os.Getenv("MARIADB_HOST"))
	if host == "" {
		return MariaDBConfig{}, fmt.Errorf("MARIADB_DSN or MARIADB_HOST is required")
	}
	port := getEnvOrDefault("MARIADB_PORT", "3306")
	user := strings.TrimSpace(os.Getenv("MARIADB_USER"))
	password := strings.TrimSpace(os.Getenv("MARIADB_PASSWORD"))
	db := strings.TrimSpace(os.Getenv("MARIADB_DB"))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, db)
	return MariaDBConfig{DSN: dsn}, nil
}

// VectorConfig 描述 Supabase 语义检索配置。
type VectorConfig struct {
	URL            string
	Key            string
	Table          string
	MatchThreshold float64
	MatchCount     int
}

// Enabled 表示检索增强是否可用。
func (c VectorConfig) Enabled() bool {
	return c.URL != "" && c.Key != ""
}

func loadVectorConfig() (VectorConfig, error) {
	threshold := 0.6
	if override, err := parseOptionalFloatEnv("VECTOR_MATCH_THRESHOLD"); err != nil {
		return VectorConfig{}, err
	} else if override != nil {
		threshold = *override
	}

	count := 10
	if override, err := parseOptionalIntEnv("VECTOR_MATCH_COUNT"); err != nil {
		return VectorConfig{}, err
	} else if override != nil && *override > 0 {
		count = *override
	}

	return VectorConfig{
		URL:            strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		Key:            strings.TrimSpace(os.Getenv("SUPABASE_KEY")),
		Table:          getEnvOrDefault("SUPABASE_CHAT_TABLE", "chat"),
		MatchThreshold: threshold,
		MatchCount:     count,
	}, nil
}

// ClassifierConfig 描述情绪分类推理服务配置。
type ClassifierConfig struct {
	BaseURL   string
	MaxLength int
	Timeout   time.Duration
}

func loadClassifierConfig() (ClassifierConfig, error) {
	base := strings.TrimSpace(os.Getenv("CLASSIFIER_URL"))
	if base == "" {
		return ClassifierConfig{}, fmt.Errorf("CLASSIFIER_URL is required")
	}

	maxLength := 128
	if override, err := parseOptionalIntEnv("CLASSIFIER_MAX_LENGTH"); err != nil {
		return ClassifierConfig{}, err
	} else if override != nil && *override > 0 {
		maxLength = *override
	}

	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("CLASSIFIER_TIMEOUT"); err != nil {
		return ClassifierConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	return ClassifierConfig{
		BaseURL:   strings.TrimRight(base, "/"),
		MaxLength: maxLength,
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
