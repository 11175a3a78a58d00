package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medleyhq/medley/lib/metrics"
	"github.com/medleyhq/medley/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI serves every Settings preset with one configured model; only the
// sampling parameters carry over.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAI(apiKey, model string, logger *slog.Logger) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model, logger: logger}
}

func (o *OpenAI) Chat(ctx context.Context, s Settings, history []models.Turn, parts []string, files ...Attachment) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(t.Role),
			Content: t.Text(),
		})
	}
	messages = append(messages, userMessage(parts, files))

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		MaxTokens:   int(s.MaxOutputTokens),
	})
	metrics.ObserveExternal("openai", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to get OpenAI completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(role string) string {
	if role == models.RoleModel {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// userMessage builds the outgoing message. Images are sent inline as data
// URLs; other attachments are referenced by name only.
func userMessage(parts []string, files []Attachment) openai.ChatCompletionMessage {
	text := strings.Join(parts, "\n")
	var images []openai.ChatMessagePart
	for _, f := range files {
		if strings.HasPrefix(f.MIMEType, "image/") && len(f.Data) > 0 {
			images = append(images, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:" + f.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(f.Data),
				},
			})
			continue
		}
		if f.Name != "" {
			text += "\n[attached file: " + f.Name + "]"
		}
	}

	if len(images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}
	multi := append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}, images...)
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: multi}
}
