package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/limyeri/howru-backend/internal/model/chat"
	"github.com/limyeri/howru-backend/internal/service/ai"
	"github.com/limyeri/howru-backend/internal/store/history"
	"github.com/limyeri/howru-backend/internal/store/vector"
)

var ErrEmptyMessage = errors.New("message is required")

// Generator 是聊天编排器依赖的生成接口。
type Generator interface {
	StreamChat(ctx context.Context, in ai.ChatInput) (*schema.StreamReader[*schema.Message], error)
	Chat(ctx context.Context, in ai.ChatInput) (string, error)
}

// Request 是一次聊天调用的输入。
type Request struct {
	UserCode  int64
	ConvID    string
	Message   string
	Jailbreak bool
}

// Event 是流式生成过程中的一个事件：若干 Delta 之后以 Done（携带全文）
// 或 Err 收尾。持久化与镜像在 Done 之前完成，传输层只负责转发。
type Event struct {
	Delta string
	Final string
	Done  bool
	Err   error
}

// Service 组装上下文、调用大模型并落库一次完整的问答。
type Service struct {
	generator    Generator
	history      history.Store
	semantic     vector.SemanticStore // 可为 nil，表示检索增强未启用
	historyLimit int
}

// NewService 创建聊天编排器。
func NewService(generator Generator, historyStore history.Store, semantic vector.SemanticStore, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{
		generator:    generator,
		history:      historyStore,
		semantic:     semantic,
		historyLimit: historyLimit,
	}
}

// Stream 启动一次流式聊天。返回的通道先产出文本增量，正常完成时
// 恰好持久化一次用户与助手消息，然后发出携带全文的完成事件。
// ctx 取消（含客户端断开）会中止生成并整体丢弃未完成的回复。
func (s *Service) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	in, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	stream, err := s.generator.StreamChat(ctx, in)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 8)
	go s.consume(ctx, req, stream, events)
	return events, nil
}

func (s *Service) consume(ctx context.Context, req Request, stream *schema.StreamReader[*schema.Message], events chan<- Event) {
	defer close(events)
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// 中途失败（含客户端断开触发的取消）：整体丢弃，不落库
			events <- Event{Err: err}
			return
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		events <- Event{Delta: chunk.Content}
	}

	final := builder.String()
	if err := s.persistExchange(ctx, req, final); err != nil {
		events <- Event{Err: err}
		return
	}

	events <- Event{Final: final, Done: true}
}

// Chat 以阻塞方式生成回复并落库。
func (s *Service) Chat(ctx context.Context, req Request) (string, error) {
	in, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	final, err := s.generator.Chat(ctx, in)
	if err != nil {
		return "", err
	}

	if err := s.persistExchange(ctx, req, final); err != nil {
		return "", err
	}
	return final, nil
}

// prepare 校验输入、检索相似历史并组装模型上下文。
func (s *Service) prepare(ctx context.Context, req Request) (ai.ChatInput, error) {
	if strings.TrimSpace(req.Message) == "" {
		return ai.ChatInput{}, ErrEmptyMessage
	}
	if _, err := history.ParseConvID(req.ConvID); err != nil {
		return ai.ChatInput{}, err
	}

	var similar []vector.Match
	if s.semantic != nil {
		matches, err := s.semantic.SearchSimilar(ctx, req.Message)
		if err != nil {
			return ai.ChatInput{}, err
		}
		similar = matches

		if err := s.semantic.InsertChat(ctx, req.UserCode, req.Message, chat.RoleUser); err != nil {
			return ai.ChatInput{}, err
		}
	}

	recent, err := s.history.Recent(ctx, req.UserCode, req.ConvID, s.historyLimit)
	if err != nil {
		return ai.ChatInput{}, err
	}

	return ai.ChatInput{
		Query:     req.Message,
		History:   recent,
		Similar:   similar,
		Jailbreak: req.Jailbreak,
	}, nil
}

// persistExchange 在回复非空时恰好一次地追加用户与助手消息，
// 并将回复镜像到语义检索库。与请求上下文解耦，完成后的落库
// 不会被客户端断开打断。
func (s *Service) persistExchange(ctx context.Context, req Request, final string) error {
	if strings.TrimSpace(final) == "" {
		return nil
	}

	convID, err := history.ParseConvID(req.ConvID)
	if err != nil {
		return err
	}

	persistCtx := context.WithoutCancel(ctx)

	userAt := time.Now()
	if err := s.history.Append(persistCtx, chat.Message{
		ConvID:   convID,
		UserCode: req.UserCode,
		Role:     chat.RoleUser,
		Content:  req.Message,
		CreateAt: userAt,
	}); err != nil {
		return err
	}

	if err := s.history.Append(persistCtx, chat.Message{
		ConvID:   convID,
		UserCode: req.UserCode,
		Role:     chat.RoleAssistant,
		Content:  final,
		CreateAt: userAt.Add(time.Millisecond),
	}); err != nil {
		return err
	}

	// 镜像失败不影响已完成的问答，仅记录
	if s.semantic != nil {
		if err := s.semantic.InsertChat(persistCtx, req.UserCode, final, chat.RoleAssistant); err != nil {
			log.Printf("[chat] failed to mirror assistant reply: %v", err)
		}
	}
	return nil
}

// Transcript 返回会话的最近消息，limit<=0 表示全部。
func (s *Service) Transcript(ctx context.Context, userCode int64, convID string, limit int) ([]chat.Message, error) {
	return s.history.Recent(ctx, userCode, convID, limit)
}
