package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/limyeri/howru-backend/internal/middleware"
	chatservice "github.com/limyeri/howru-backend/internal/service/chat"
	"github.com/limyeri/howru-backend/internal/store/history"
	"github.com/limyeri/howru-backend/pkg/utils"
)

// Handler 聊天接口的HTTP处理器
type Handler struct {
	chatSvc *chatservice.Service
}

// New 创建聊天处理器
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/history/{convID}", h.handleHistory)
}

type chatRequest struct {
	Message     string `json:"message"`
	ConvID      string `json:"convId"`
	IsJailbreak bool   `json:"isJailbreak"`
	Stream      *bool  `json:"stream,omitempty"`
}

// handleChat 处理一次聊天：默认以纯文本流式返回增量，
// stream=false 时阻塞返回完整回复。
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	userCode, ok := middleware.UserCode(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated request")
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}
	if payload.ConvID == "" {
		utils.RespondError(w, http.StatusBadRequest, "convId is required")
		return
	}

	req := chatservice.Request{
		UserCode:  userCode,
		ConvID:    payload.ConvID,
		Message:   payload.Message,
		Jailbreak: payload.IsJailbreak,
	}

	if payload.Stream != nil && !*payload.Stream {
		h.respondBlocking(w, r, req)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := h.chatSvc.Stream(r.Context(), req)
	if err != nil {
		if errors.Is(err, history.ErrInvalidConvID) || errors.Is(err, chatservice.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[chat] failed to start stream: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	utils.SetupTextStreamHeaders(w)

	clientGone := false
	for ev := range events {
		switch {
		case ev.Err != nil:
			// 头已发出，只能记录并中断
			log.Printf("[chat] stream aborted for user=%d: %v", userCode, ev.Err)
			return
		case ev.Done:
			log.Printf("[chat] stream completed for user=%d conv=%s length=%d",
				userCode, req.ConvID, len([]rune(ev.Final)))
		default:
			if clientGone {
				continue // 继续消费事件，让编排器正常收尾
			}
			if err := utils.WriteTextChunk(w, flusher, ev.Delta); err != nil {
				clientGone = true
			}
		}
	}
}

func (h *Handler) respondBlocking(w http.ResponseWriter, r *http.Request, req chatservice.Request) {
	final, err := h.chatSvc.Chat(r.Context(), req)
	if err != nil {
		if errors.Is(err, history.ErrInvalidConvID) || errors.Is(err, chatservice.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[chat] blocking chat failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(final)); err != nil {
		log.Printf("[chat] failed to write reply: %v", err)
	}
}

// handleHistory 返回会话的最近消息。
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userCode, ok := middleware.UserCode(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated request")
		return
	}

	convID := chi.URLParam(r, "convID")
	if _, err := history.ParseConvID(convID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid convId")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := h.chatSvc.Transcript(r.Context(), userCode, convID, limit)
	if err != nil {
		log.Printf("[chat] failed to load transcript: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
