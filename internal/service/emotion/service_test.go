package emotion

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	analysis "github.com/limyeri/howru-backend/internal/analysis/emotion"
	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/model/chat"
)

var testLabels = []string{"기쁨", "설렘", "평범함", "불쾌함", "슬픔", "놀라움", "두려움", "분노"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *InferenceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewInferenceClient(config.ClassifierConfig{
		BaseURL:   server.URL,
		MaxLength: 128,
		Timeout:   5 * time.Second,
	})
}

func TestClassifyPicksArgmaxLabel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.MaxLength != 128 {
			t.Fatalf("max_length = %d, want 128", req.MaxLength)
		}
		json.NewEncoder(w).Encode(classifyResponse{
			Labels: testLabels,
			Logits: []float64{4.0, 1.0, 0.5, -1.0, -1.0, -2.0, -3.0, -3.0},
		})
	})

	result, err := client.Classify(context.Background(), "행복한 하루였다")
	if err != nil {
		t.Fatalf("Classify err: %v", err)
	}
	if result.Label != analysis.Joy {
		t.Fatalf("label = %s, want 기쁨", result.Label)
	}
	if result.Score != 5 {
		t.Fatalf("score = %v, want 5", result.Score)
	}

	var sum float64
	for _, p := range result.Probabilities {
		sum += p
	}
	if math.Abs(sum-100) > 0.5 {
		t.Fatalf("percentages sum = %v, want ~100", sum)
	}
}

func TestClassifyServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	if _, err := client.Classify(context.Background(), "테스트"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestClassifyShapeMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(classifyResponse{
			Labels: []string{"기쁨"},
			Logits: []float64{1.0, 2.0},
		})
	})

	if _, err := client.Classify(context.Background(), "테스트"); err == nil {
		t.Fatal("expected error on shape mismatch")
	}
}

// fakeClassifier 按固定映射返回刻度值。
type fakeClassifier struct {
	scores map[string]float64
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (analysis.Analysis, error) {
	score, ok := f.scores[text]
	if !ok {
		score = 3
	}
	return analysis.Analysis{Score: score}, nil
}

func userMsg(content string) chat.Message {
	return chat.Message{Role: chat.RoleUser, Content: content}
}

func assistantMsg(content string) chat.Message {
	return chat.Message{Role: chat.RoleAssistant, Content: content}
}

func TestInferConversationSingleUtterance(t *testing.T) {
	svc := NewService(&fakeClassifier{scores: map[string]float64{"행복한 하루였다": 5}})

	result, ok, err := svc.InferConversation(context.Background(), []chat.Message{
		userMsg("행복한 하루였다"),
		assistantMsg("정말 좋은 하루였네요!"),
	})
	if err != nil {
		t.Fatalf("InferConversation err: %v", err)
	}
	if !ok {
		t.Fatal("expected result")
	}
	if result.Score != 5.0 || result.Label != "최고" {
		t.Fatalf("result = %+v, want 5.0/최고", result)
	}
}

func TestInferConversationAveragesUserTurnsOnly(t *testing.T) {
	svc := NewService(&fakeClassifier{scores: map[string]float64{
		"좋아": 5,
		"싫어": 0,
	}})

	result, ok, err := svc.InferConversation(context.Background(), []chat.Message{
		userMsg("좋아"),
		assistantMsg("무시되어야 하는 말"),
		userMsg("싫어"),
	})
	if err != nil {
		t.Fatalf("InferConversation err: %v", err)
	}
	if !ok {
		t.Fatal("expected result")
	}
	if result.Score != 2.5 {
		t.Fatalf("score = %v, want 2.5", result.Score)
	}
	if result.Label != "구름" {
		t.Fatalf("label = %s, want 구름", result.Label)
	}
}

func TestInferConversationNoUserUtterances(t *testing.T) {
	svc := NewService(&fakeClassifier{})

	_, ok, err := svc.InferConversation(context.Background(), []chat.Message{
		assistantMsg("안녕하세요"),
	})
	if err != nil {
		t.Fatalf("InferConversation err: %v", err)
	}
	if ok {
		t.Fatal("expected no-data result")
	}
}
