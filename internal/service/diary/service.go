package diary

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	analysis "github.com/limyeri/howru-backend/internal/analysis/emotion"
	"github.com/limyeri/howru-backend/internal/model/chat"
	diarymodel "github.com/limyeri/howru-backend/internal/model/diary"
	emotionservice "github.com/limyeri/howru-backend/internal/service/emotion"
	diarystore "github.com/limyeri/howru-backend/internal/store/diary"
	"github.com/limyeri/howru-backend/internal/store/history"
)

var ErrInvalidDate = errors.New("invalid date")

// Summarizer 基于一天的对话生成日记文本。
type Summarizer interface {
	Summarize(ctx context.Context, history []chat.Message) (string, error)
}

// Service 编排日记总结与情绪分析两条流程。
type Service struct {
	summarizer Summarizer
	history    history.Store
	records    diarystore.Store
	emotion    *emotionservice.Service
	loc        *time.Location
}

// NewService 创建日记编排器。
func NewService(summarizer Summarizer, historyStore history.Store, records diarystore.Store, emotion *emotionservice.Service, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		summarizer: summarizer,
		history:    historyStore,
		records:    records,
		emotion:    emotion,
		loc:        loc,
	}
}

// Summarize 取指定日历日 [当天 00:00, 次日 00:00) 的对话生成日记，
// 并写入当天的情绪记录。已有记录时只覆盖 summary，保留分数与标签。
func (s *Service) Summarize(ctx context.Context, userCode int64, convID string, year, month, day int) (string, error) {
	start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, s.loc)
	// time.Date 会把 2月31日 之类归一化到下个月，必须往返校验
	if start.Year() != year || start.Month() != time.Month(month) || start.Day() != day {
		return "", fmt.Errorf("%w %04d-%02d-%02d", ErrInvalidDate, year, month, day)
	}
	end := start.AddDate(0, 0, 1)

	messages, err := s.history.Window(ctx, userCode, convID, start, end)
	if err != nil {
		return "", err
	}

	summary, err := s.summarizer.Summarize(ctx, messages)
	if err != nil {
		return "", err
	}

	date := start.Format(diarymodel.DateLayout)
	if err := s.records.UpsertSummary(ctx, userCode, date, summary, time.Now().In(s.loc)); err != nil {
		return "", err
	}

	log.Printf("[diary] summary stored for user=%d date=%s length=%d", userCode, date, len([]rune(summary)))
	return summary, nil
}

// Analyze 对会话全量历史中的用户话语做情绪推断，并写入今天的记录。
// 没有可分析的话语时返回 ok=false；已有记录时保留 summary。
func (s *Service) Analyze(ctx context.Context, userCode int64, convID string) (analysis.Result, bool, error) {
	messages, err := s.history.Recent(ctx, userCode, convID, 0)
	if err != nil {
		return analysis.Result{}, false, err
	}

	result, ok, err := s.emotion.InferConversation(ctx, messages)
	if err != nil {
		return analysis.Result{}, false, err
	}
	if !ok {
		return analysis.Result{}, false, nil
	}

	now := time.Now().In(s.loc)
	date := now.Format(diarymodel.DateLayout)
	if err := s.records.UpsertScore(ctx, userCode, date, result.Score, result.Label, now); err != nil {
		return analysis.Result{}, false, err
	}

	log.Printf("[diary] emotion stored for user=%d date=%s score=%.2f label=%s", userCode, date, result.Score, result.Label)
	return result, true, nil
}
