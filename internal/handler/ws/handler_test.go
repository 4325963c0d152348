package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/limyeri/howru-backend/internal/middleware"
	"github.com/limyeri/howru-backend/internal/model/chat"
	"github.com/limyeri/howru-backend/internal/service/ai"
	chatservice "github.com/limyeri/howru-backend/internal/service/chat"
)

const testSecret = "test-secret"
const testConvID = "507f1f77bcf86cd799439011"

type fakeHistory struct {
	appended []chat.Message
}

func (f *fakeHistory) Append(_ context.Context, msg chat.Message) error {
	f.appended = append(f.appended, msg)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, _ int64, _ string, _ int) ([]chat.Message, error) {
	return nil, nil
}

func (f *fakeHistory) Window(_ context.Context, _ int64, _ string, _, _ time.Time) ([]chat.Message, error) {
	return nil, nil
}

type fakeGenerator struct {
	chunks []string
}

func (f *fakeGenerator) StreamChat(_ context.Context, _ ai.ChatInput) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks))
	go func() {
		defer sw.Close()
		for _, chunk := range f.chunks {
			sw.Send(schema.AssistantMessage(chunk, nil), nil)
		}
	}()
	return sr, nil
}

func (f *fakeGenerator) Chat(_ context.Context, _ ai.ChatInput) (string, error) {
	return strings.Join(f.chunks, ""), nil
}

func signToken(t *testing.T, userCode int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userCode": userCode,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestServer(t *testing.T, hist *fakeHistory, gen *fakeGenerator) *httptest.Server {
	t.Helper()

	chatSvc := chatservice.NewService(gen, hist, nil, 10)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(testSecret))
		New(chatSvc).RegisterRoutes(r)
	})
	return httptest.NewServer(r)
}

func TestWebSocketStreamsDeltasThenDone(t *testing.T) {
	hist := &fakeHistory{}
	gen := &fakeGenerator{chunks: []string{"안녕", "하세요"}}
	srv := newTestServer(t, hist, gen)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=" + signToken(t, 42)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(inboundMessage{Message: "hello", ConvID: testConvID}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var deltas []string
	var final string
	for {
		var msg outgoingMessage
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "error" {
			t.Fatalf("unexpected error frame: %q", msg.Content)
		}
		if msg.Type == "done" {
			final = msg.Content
			break
		}
		deltas = append(deltas, msg.Content)
	}

	if got := strings.Join(deltas, ""); got != "안녕하세요" {
		t.Fatalf("deltas = %q", got)
	}
	if final != "안녕하세요" {
		t.Fatalf("final = %q", final)
	}
	if len(hist.appended) != 2 {
		t.Fatalf("appended = %d", len(hist.appended))
	}
}

func TestWebSocketReportsInvalidConvID(t *testing.T) {
	srv := newTestServer(t, &fakeHistory{}, &fakeGenerator{})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=" + signToken(t, 42)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(inboundMessage{Message: "hello", ConvID: "nope"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var msg outgoingMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("type = %q", msg.Type)
	}
}

// 心跳与消息帧来自不同 goroutine，写入必须串行。
func TestConnWriterSerializesConcurrentFrames(t *testing.T) {
	const writers = 4
	const framesPerWriter = 25

	upgrader := websocket.Upgrader{}
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		writer := &connWriter{conn: conn}
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < framesPerWriter; j++ {
					if err := writer.writeJSON(outgoingMessage{Type: "delta", Content: "조각"}); err != nil {
						t.Errorf("writeJSON: %v", err)
						return
					}
					if err := writer.ping(); err != nil {
						t.Errorf("ping: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()
		if err := writer.writeJSON(outgoingMessage{Type: "done"}); err != nil {
			t.Errorf("writeJSON done: %v", err)
		}
		<-done
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer close(done)

	deltas := 0
	for {
		var msg outgoingMessage
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "done" {
			break
		}
		deltas++
	}
	if deltas != writers*framesPerWriter {
		t.Fatalf("deltas = %d", deltas)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t, &fakeHistory{}, &fakeGenerator{})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial should fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected handshake response: %+v", resp)
	}
}
