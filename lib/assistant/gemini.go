package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/medleyhq/medley/lib/metrics"
	"github.com/medleyhq/medley/models"
	"google.golang.org/api/option"
)

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
}

type Gemini struct {
	client *genai.Client
	logger *slog.Logger
}

func NewGemini(ctx context.Context, project, location, apiKey string, logger *slog.Logger) (*Gemini, error) {
	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client, err := genai.NewClient(ctx, project, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, logger: logger}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Chat(ctx context.Context, s Settings, history []models.Turn, parts []string, files ...Attachment) (string, error) {
	model := g.client.GenerativeModel(s.Model)
	model.SetTemperature(s.Temperature)
	model.SetTopP(s.TopP)
	if s.TopK > 0 {
		model.SetTopK(s.TopK)
	}
	model.SetMaxOutputTokens(s.MaxOutputTokens)
	model.SafetySettings = safetySettings

	cs := model.StartChat()
	cs.History = toContents(history)

	message := make([]genai.Part, 0, len(files)+len(parts))
	for _, f := range files {
		switch {
		case len(f.Data) > 0:
			message = append(message, genai.Blob{MIMEType: f.MIMEType, Data: f.Data})
		case f.URI != "":
			message = append(message, genai.FileData{MIMEType: f.MIMEType, FileURI: f.URI})
		}
	}
	for _, p := range parts {
		message = append(message, genai.Text(p))
	}

	start := time.Now()
	resp, err := cs.SendMessage(ctx, message...)
	metrics.ObserveExternal("gemini", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to get Gemini completion: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	g.logger.Debug("Gemini reply", slog.String("model", s.Model), slog.Int("length", len(text)))
	return text, nil
}

func toContents(history []models.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		c := &genai.Content{Role: t.Role}
		for _, p := range t.Parts {
			c.Parts = append(c.Parts, genai.Text(p))
		}
		if len(c.Parts) == 0 {
			continue
		}
		contents = append(contents, c)
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
