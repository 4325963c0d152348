package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/limyeri/howru-backend/internal/middleware"
	chatservice "github.com/limyeri/howru-backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket聊天处理器，复用与HTTP相同的流式编排器。
type Handler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleChat)
}

type inboundMessage struct {
	Message     string `json:"message"`
	ConvID      string `json:"convId"`
	IsJailbreak bool   `json:"isJailbreak"`
}

type outgoingMessage struct {
	Type    string `json:"type"` // delta | done | error
	Content string `json:"content,omitempty"`
}

// connWriter 串行化对连接的写入；gorilla 连接同一时刻只允许一个写者，
// 心跳与消息帧来自不同 goroutine。
type connWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *connWriter) writeJSON(msg outgoingMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(msg)
}

func (w *connWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// handleChat 处理WebSocket连接。每条入站消息触发一次流式聊天，
// 增量以 delta 帧下发，完成后以 done 帧携带全文收尾。
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	userCode, ok := middleware.UserCode(r.Context())
	if !ok {
		http.Error(w, "unauthenticated request", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	log.Printf("[ws] new connection session=%s user=%d", sessionID, userCode)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	writer := &connWriter{conn: conn}
	go h.pingLoop(ctx, writer)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Printf("[ws] read error session=%s: %v", sessionID, err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readTimeout))
			h.handleMessage(ctx, writer, sessionID, userCode, msg)
		}
	}
}

// handleMessage 执行一次流式聊天并把事件转成帧写回连接。
func (h *Handler) handleMessage(ctx context.Context, writer *connWriter, sessionID string, userCode int64, msg inboundMessage) {
	events, err := h.chatSvc.Stream(ctx, chatservice.Request{
		UserCode:  userCode,
		ConvID:    msg.ConvID,
		Message:   msg.Message,
		Jailbreak: msg.IsJailbreak,
	})
	if err != nil {
		writer.writeJSON(outgoingMessage{Type: "error", Content: err.Error()})
		return
	}

	clientGone := false
	for ev := range events {
		switch {
		case ev.Err != nil:
			log.Printf("[ws] stream aborted session=%s: %v", sessionID, ev.Err)
			writer.writeJSON(outgoingMessage{Type: "error", Content: "대화 생성에 실패했어요."})
			return
		case ev.Done:
			if !clientGone {
				clientGone = writer.writeJSON(outgoingMessage{Type: "done", Content: ev.Final}) != nil
			}
			log.Printf("[ws] stream completed session=%s length=%d", sessionID, len([]rune(ev.Final)))
		default:
			if clientGone {
				continue // 继续消费事件，让编排器正常收尾
			}
			if err := writer.writeJSON(outgoingMessage{Type: "delta", Content: ev.Delta}); err != nil {
				clientGone = true
			}
		}
	}
}

// pingLoop 定期发送 ping 维持连接。
func (h *Handler) pingLoop(ctx context.Context, writer *connWriter) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.ping(); err != nil {
				return
			}
		}
	}
}
