// Package assistant talks to the generative chat models used across the
// sites: Gemini through Vertex AI by default and OpenAI as an alternative.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	"github.com/goccy/go-json"
	"github.com/medleyhq/medley/lib/assistant/prompts"
	"github.com/medleyhq/medley/lib/config"
	"github.com/medleyhq/medley/models"
)

// TaskPromptFallback opens a task chat when the instructions file is missing.
const TaskPromptFallback = "I'm having trouble loading my initial instructions! Please try again later."

var ErrEmptyResponse = errors.New("assistant: model returned no content")

// Settings selects a model and its generation parameters.
type Settings struct {
	Model           string
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

var (
	Summary   = Settings{Model: "gemini-1.0-pro", Temperature: 0.7, TopP: 0.95, TopK: 40, MaxOutputTokens: 256}
	Answer    = Settings{Model: "gemini-1.0-pro", Temperature: 0.7, TopP: 0.95, TopK: 40, MaxOutputTokens: 512}
	Tasks     = Settings{Model: "gemini-1.5-flash", Temperature: 1, TopP: 0.95, TopK: 64, MaxOutputTokens: 8192}
	Portfolio = Settings{Model: "gemini-1.0-pro", Temperature: 0.9, TopP: 1, TopK: 0, MaxOutputTokens: 2048}
)

// Attachment is a file sent along with a message. Data is sent inline;
// URI is used when the file already lives in object storage.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
	URI      string
}

// Chatter continues a conversation: history is replayed, then parts and
// files are sent as the next user message and the model's reply returned.
type Chatter interface {
	Chat(ctx context.Context, s Settings, history []models.Turn, parts []string, files ...Attachment) (string, error)
}

// ChatFunc adapts a function to Chatter.
type ChatFunc func(ctx context.Context, s Settings, history []models.Turn, parts []string, files ...Attachment) (string, error)

func (f ChatFunc) Chat(ctx context.Context, s Settings, history []models.Turn, parts []string, files ...Attachment) (string, error) {
	return f(ctx, s, history, parts, files...)
}

// New returns the Chatter for the configured provider.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Chatter, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, logger), nil
	case "gemini", "":
		return NewGemini(ctx, cfg.GeminiProject, cfg.GeminiLocation, cfg.GeminiKey, logger)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

func loadPromptTemplate(filename string) (*template.Template, error) {
	content, err := prompts.FS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	tmpl, err := template.New(filename).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", filename, err)
	}
	return tmpl, nil
}

func render(filename string, data any) (string, error) {
	tmpl, err := loadPromptTemplate(filename)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", filename, err)
	}
	return b.String(), nil
}

// SummaryPrompt asks for a summary of a video transcript.
func SummaryPrompt(transcript string) (string, error) {
	return render("summary.txt", struct{ Transcript string }{transcript})
}

// AnswerPrompt asks a question about a video transcript.
func AnswerPrompt(transcript, question string) (string, error) {
	return render("answer.txt", struct{ Transcript, Question string }{transcript, question})
}

// TaskPrompt reads the task assistant's opening instructions from path.
// An empty path uses the built-in instructions; an unreadable file yields
// TaskPromptFallback.
func TaskPrompt(path string) string {
	if path == "" {
		b, err := prompts.FS.ReadFile("tasks.txt")
		if err != nil {
			return TaskPromptFallback
		}
		return string(b)
	}
	// #nosec G304 - path comes from configuration
	b, err := os.ReadFile(path)
	if err != nil {
		return TaskPromptFallback
	}
	return string(b)
}

// Persona loads the conversation that primes the portfolio chatbot. An
// empty path uses the built-in persona.
func Persona(path string) ([]models.Turn, error) {
	var (
		b   []byte
		err error
	)
	if path == "" {
		b, err = prompts.FS.ReadFile("persona.json")
	} else {
		// #nosec G304 - path comes from configuration
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read persona: %w", err)
	}

	var turns []models.Turn
	if err := json.Unmarshal(b, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse persona: %w", err)
	}
	return turns, nil
}
