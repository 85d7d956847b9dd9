package openai

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/kaytu-io/ai-concierge/pkg/utils"
)

// messagesPageSize bounds the reply lookup; the reply is among the newest messages.
const messagesPageSize = 20

func (s *Service) NewThread(ctx context.Context) (openai.Thread, error) {
	return s.client.CreateThread(ctx, openai.ThreadRequest{})
}

func (s *Service) SendMessage(ctx context.Context, threadID, content string) (openai.Message, error) {
	return s.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
}

func (s *Service) RunThread(ctx context.Context, threadID, assistantID string) (openai.Run, error) {
	return s.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: assistantID,
	})
}

func (s *Service) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	return s.client.RetrieveRun(ctx, threadID, runID)
}

func (s *Service) CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	return s.client.CancelRun(ctx, threadID, runID)
}

// ListMessages returns the newest messages of the thread first.
func (s *Service) ListMessages(ctx context.Context, threadID string) (openai.MessagesList, error) {
	return s.client.ListMessage(ctx, threadID, utils.GetPointer(messagesPageSize), utils.GetPointer("desc"), nil, nil)
}
