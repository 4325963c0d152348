package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	analysis "github.com/limyeri/howru-backend/internal/analysis/emotion"
	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/model/chat"
)

// Classifier 将一条话语映射为情绪标签与置信度分布。
type Classifier interface {
	Classify(ctx context.Context, text string) (analysis.Analysis, error)
}

// InferenceClient 调用托管的 KoELECTRA 文本分类推理服务。
// 服务端只做前向推理并返回原始 logits，softmax 与刻度换算在本地完成。
type InferenceClient struct {
	cfg    config.ClassifierConfig
	client *http.Client
}

// NewInferenceClient 创建分类推理客户端。
func NewInferenceClient(cfg config.ClassifierConfig) *InferenceClient {
	return &InferenceClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type classifyRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
}

type classifyResponse struct {
	Labels []string  `json:"labels"`
	Logits []float64 `json:"logits"`
}

// Classify 对单条话语做情绪分类。
func (c *InferenceClient) Classify(ctx context.Context, text string) (analysis.Analysis, error) {
	payload, err := json.Marshal(classifyRequest{Text: text, MaxLength: c.cfg.MaxLength})
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("failed to encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return analysis.Analysis{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, body)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return analysis.Analysis{}, fmt.Errorf("failed to decode classify response: %w", err)
	}
	if len(result.Labels) == 0 || len(result.Labels) != len(result.Logits) {
		return analysis.Analysis{}, fmt.Errorf("classifier response shape mismatch: %d labels, %d logits",
			len(result.Labels), len(result.Logits))
	}

	probs := analysis.Softmax(result.Logits)

	bestIdx := 0
	for i, p := range probs {
		if p > probs[bestIdx] {
			bestIdx = i
		}
	}
	predicted := analysis.Label(result.Labels[bestIdx])

	percentages := make(map[analysis.Label]float64, len(probs))
	for i, p := range probs {
		percentages[analysis.Label(result.Labels[i])] = analysis.Round2(p * 100)
	}

	return analysis.Analysis{
		Label:         predicted,
		Probabilities: percentages,
		Score:         analysis.ScoreForLabel(predicted),
	}, nil
}

// Service 按会话粒度执行情绪推断。
type Service struct {
	classifier Classifier
}

// NewService 创建情绪推断服务。
func NewService(classifier Classifier) *Service {
	return &Service{classifier: classifier}
}

// InferConversation 对会话中的用户话语逐条分类并聚合。
// 没有用户话语时返回 ok=false，表示没有可分析的内容。
func (s *Service) InferConversation(ctx context.Context, messages []chat.Message) (analysis.Result, bool, error) {
	scores := make([]float64, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != chat.RoleUser {
			continue
		}
		result, err := s.classifier.Classify(ctx, msg.Content)
		if err != nil {
			return analysis.Result{}, false, err
		}
		scores = append(scores, result.Score)
	}

	aggregated, ok := analysis.Aggregate(scores)
	if !ok {
		return analysis.Result{}, false, nil
	}
	return aggregated, true, nil
}
