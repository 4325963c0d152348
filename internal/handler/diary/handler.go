package diary

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/limyeri/howru-backend/internal/middleware"
	diaryservice "github.com/limyeri/howru-backend/internal/service/diary"
	"github.com/limyeri/howru-backend/internal/store/history"
	"github.com/limyeri/howru-backend/pkg/utils"
)

const msgNoConversation = "분석할 대화가 없습니다."
const msgAnalysisDone = "분석 완료"

// Handler 日记总结与情绪分析接口的HTTP处理器
type Handler struct {
	diarySvc *diaryservice.Service
}

// New 创建日记处理器
func New(diarySvc *diaryservice.Service) *Handler {
	return &Handler{diarySvc: diarySvc}
}

// RegisterRoutes 注册日记相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/summary", h.handleSummary)
	r.Post("/analyze", h.handleAnalyze)
}

type summaryRequest struct {
	ConvID string `json:"convId"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Day    int    `json:"day"`
}

// handleSummary 生成指定日历日的日记并返回全文。
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	userCode, ok := middleware.UserCode(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated request")
		return
	}

	var payload summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ConvID == "" {
		utils.RespondError(w, http.StatusBadRequest, "convId is required")
		return
	}
	if _, err := history.ParseConvID(payload.ConvID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid convId")
		return
	}

	summary, err := h.diarySvc.Summarize(r.Context(), userCode, payload.ConvID, payload.Year, payload.Month, payload.Day)
	if err != nil {
		if isBadDate(err) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[diary] summary failed for user=%d: %v", userCode, err)
		utils.RespondError(w, http.StatusInternalServerError, "summary failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

type analyzeRequest struct {
	ConvID string `json:"convId"`
}

// handleAnalyze 对会话做情绪推断。没有可分析的话语时返回软成功。
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	userCode, ok := middleware.UserCode(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated request")
		return
	}

	var payload analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ConvID == "" {
		utils.RespondError(w, http.StatusBadRequest, "convId is required")
		return
	}
	if _, err := history.ParseConvID(payload.ConvID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid convId")
		return
	}

	result, ok, err := h.diarySvc.Analyze(r.Context(), userCode, payload.ConvID)
	if err != nil {
		log.Printf("[diary] analyze failed for user=%d: %v", userCode, err)
		utils.RespondError(w, http.StatusInternalServerError, "analyze failed")
		return
	}
	if !ok {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": msgNoConversation})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": msgAnalysisDone,
		"score":   result.Score,
		"emotion": result.Label,
	})
}

// isBadDate 识别日期校验错误，这类错误应归为 400。
func isBadDate(err error) bool {
	return errors.Is(err, diaryservice.ErrInvalidDate)
}
