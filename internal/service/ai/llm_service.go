package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/model/chat"
	"github.com/limyeri/howru-backend/internal/store/vector"
)

// Service 封装与托管大模型交互的提示词链。
type Service struct {
	chatModel    model.ChatModel
	counselChain compose.Runnable[map[string]any, *schema.Message]
	rawChain     compose.Runnable[map[string]any, *schema.Message]
	summaryChain compose.Runnable[map[string]any, *schema.Message]
}

// NewService 创建 AI 服务并编译全部提示词链。
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel 使用外部模型实例创建 AI 服务（测试用）。
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	counselChain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(counselorSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile counsel chain: %w", err)
	}

	// jailbreak 模式不附加人设提示词，原样转发历史与输入
	rawChain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile raw chain: %w", err)
	}

	summaryChain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(diarySystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage(diaryUserPrompt),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile summary chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		counselChain: counselChain,
		rawChain:     rawChain,
		summaryChain: summaryChain,
	}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, template prompt.ChatTemplate) (compose.Runnable[map[string]any, *schema.Message], error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// ChatInput 是一次聊天调用的上下文。
type ChatInput struct {
	Query     string
	History   []chat.Message
	Similar   []vector.Match
	Jailbreak bool
}

// StreamChat 以流式方式生成回复。
func (s *Service) StreamChat(ctx context.Context, in ChatInput) (*schema.StreamReader[*schema.Message], error) {
	chain := s.counselChain
	if in.Jailbreak {
		chain = s.rawChain
	}

	stream, err := chain.Stream(ctx, s.buildChatInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain: %w", err)
	}
	return stream, nil
}

// Chat 以阻塞方式生成回复。
func (s *Service) Chat(ctx context.Context, in ChatInput) (string, error) {
	chain := s.counselChain
	if in.Jailbreak {
		chain = s.rawChain
	}

	response, err := chain.Invoke(ctx, s.buildChatInput(in))
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	return response.Content, nil
}

// Summarize 基于一天的对话生成日记文本。
func (s *Service) Summarize(ctx context.Context, history []chat.Message) (string, error) {
	input := map[string]any{
		"history": historyMessages(history, 0),
	}

	response, err := s.summaryChain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run summary chain: %w", err)
	}
	return strings.TrimSpace(response.Content), nil
}

func (s *Service) buildChatInput(in ChatInput) map[string]any {
	history := historyMessages(in.History, 0)

	// 检索到相似历史时，在基础历史之前插入一条合成的系统注记
	if note := similarHistoryNote(in.Similar); note != "" {
		history = append([]*schema.Message{schema.SystemMessage(note)}, history...)
	}

	return map[string]any{
		"history": history,
		"query":   in.Query,
	}
}

// historyMessages 将存储的消息转换为模型消息，limit<=0 表示全部。
func historyMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if limit > 0 && len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// similarHistoryNote 将检索结果汇总为一条系统注记，无结果时返回空串。
func similarHistoryNote(matches []vector.Match) string {
	if len(matches) == 0 {
		return ""
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		speaker := "사용자"
		if m.Role == chat.RoleAssistant {
			speaker = "상담봇"
		}
		lines = append(lines, "- "+speaker+": "+content)
	}
	if len(lines) == 0 {
		return ""
	}
	return similarHistoryPrefix + strings.Join(lines, "\n")
}
