package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/model/chat"
)

// Match 是向量检索命中的一条历史消息。
type Match struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

// SemanticStore 将聊天内容连同向量写入 Supabase，并提供相似历史检索。
type SemanticStore interface {
	// InsertChat 向量化并写入一条聊天内容。
	InsertChat(ctx context.Context, userCode int64, content string, role chat.Role) error
	// SearchSimilar 检索与 query 语义相近的历史消息。
	SearchSimilar(ctx context.Context, query string) ([]Match, error)
}

// SupabaseStore 基于 Supabase REST + vector_search RPC 实现 SemanticStore。
type SupabaseStore struct {
	client   *supabase.Client
	embedder embedding.Embedder
	cfg      config.VectorConfig
}

// NewSupabaseStore 创建语义存储客户端。
func NewSupabaseStore(cfg config.VectorConfig, embedder embedding.Embedder) (*SupabaseStore, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.Key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, embedder: embedder, cfg: cfg}, nil
}

type chatRow struct {
	UserCode      int64     `json:"user_code"`
	Content       string    `json:"content"`
	EncodeContent []float64 `json:"encode_content"`
	Role          string    `json:"role"`
	CreateAt      string    `json:"create_at"`
}

// InsertChat 向量化并写入一条聊天内容。
func (s *SupabaseStore) InsertChat(ctx context.Context, userCode int64, content string, role chat.Role) error {
	vec, err := s.embed(ctx, content)
	if err != nil {
		return err
	}

	row := chatRow{
		UserCode:      userCode,
		Content:       content,
		EncodeContent: vec,
		Role:          string(role),
		CreateAt:      time.Now().Format(time.RFC3339),
	}

	if _, _, err := s.client.From(s.cfg.Table).Insert(row, false, "", "", "").ExecuteWithContext(ctx); err != nil {
		return fmt.Errorf("failed to insert chat row: %w", err)
	}
	return nil
}

// SearchSimilar 调用 vector_search RPC 检索相似历史消息。
func (s *SupabaseStore) SearchSimilar(ctx context.Context, query string) ([]Match, error) {
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"q":               vec,
		"match_threshold": s.cfg.MatchThreshold,
		"match_count":     s.cfg.MatchCount,
	}

	// postgrest 把传输/HTTP 错误吞掉并返回空串；真正的空结果集是 "[]"。
	raw := s.client.Rpc("vector_search", "", params)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("vector_search rpc failed")
	}

	var matches []Match
	if err := json.Unmarshal([]byte(raw), &matches); err != nil {
		return nil, fmt.Errorf("failed to decode vector_search response: %w", err)
	}
	return matches, nil
}

func (s *SupabaseStore) embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding returned no vectors")
	}
	return vectors[0], nil
}
