package assistant

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/medleyhq/medley/lib/config"
	"github.com/medleyhq/medley/models"
	openai "github.com/sashabaranov/go-openai"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseExchange(t *testing.T) {
	turns := ParseExchange([]string{
		"input: Hi there",
		"output: Hello!",
		"noise",
		"input:What do you build?",
	})
	want := []models.Turn{
		{Role: models.RoleUser, Parts: []string{"Hi there"}},
		{Role: models.RoleModel, Parts: []string{"Hello!"}},
		{Role: models.RoleUser, Parts: []string{"What do you build?"}},
	}
	if len(turns) != len(want) {
		t.Fatalf("got %d turns, want %d", len(turns), len(want))
	}
	for i := range want {
		if turns[i].Role != want[i].Role || turns[i].Text() != want[i].Text() {
			t.Errorf("turn %d = %+v, want %+v", i, turns[i], want[i])
		}
	}
}

func TestReadExchange(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"json array", `["input: a", "output: b"]`, 2},
		{"lines", "input: a\noutput: b\n\ninput: c\n", 3},
		{"broken json falls back to lines", "[\"input: a\"\ninput: b", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadExchange([]byte(tt.data)); len(got) != tt.want {
				t.Errorf("got %d turns, want %d", len(got), tt.want)
			}
		})
	}
}

func TestTaskPrompt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "initial_prompt.txt")
	if err := os.WriteFile(path, []byte("be helpful"), 0600); err != nil {
		t.Fatal(err)
	}

	if got := TaskPrompt(path); got != "be helpful" {
		t.Errorf("TaskPrompt(file) = %q", got)
	}
	if got := TaskPrompt(filepath.Join(dir, "missing.txt")); got != TaskPromptFallback {
		t.Errorf("TaskPrompt(missing) = %q", got)
	}
	if got := TaskPrompt(""); !strings.Contains(got, "```json") {
		t.Errorf("built-in prompt does not describe the JSON block: %q", got)
	}
}

func TestPersona(t *testing.T) {
	turns, err := Persona("")
	if err != nil {
		t.Fatalf("Persona: %v", err)
	}
	if len(turns) == 0 || len(turns)%2 != 0 {
		t.Fatalf("persona has %d turns", len(turns))
	}
	for i, turn := range turns {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleModel
		}
		if turn.Role != want {
			t.Errorf("turn %d role = %q, want %q", i, turn.Role, want)
		}
	}

	if _, err := Persona(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing persona file")
	}
}

func TestPrompts(t *testing.T) {
	summary, err := SummaryPrompt("the transcript text")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(summary, "the transcript text") || !strings.HasSuffix(strings.TrimSpace(summary), "Summary:") {
		t.Errorf("summary prompt = %q", summary)
	}

	answer, err := AnswerPrompt("the transcript text", "why?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer, "the transcript text") || !strings.Contains(answer, "why?") {
		t.Errorf("answer prompt = %q", answer)
	}
}

func TestNew(t *testing.T) {
	c, err := New(context.Background(), config.AIConfig{Provider: "openai", OpenAIKey: "sk-test"}, discard)
	if err != nil {
		t.Fatal(err)
	}
	if o, ok := c.(*OpenAI); !ok || o.model != openai.GPT4oMini {
		t.Errorf("New(openai) = %#v", c)
	}

	if _, err := New(context.Background(), config.AIConfig{Provider: "llama"}, discard); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestChatFunc(t *testing.T) {
	var c Chatter = ChatFunc(func(_ context.Context, s Settings, history []models.Turn, parts []string, _ ...Attachment) (string, error) {
		return s.Model + ":" + strings.Join(parts, ","), nil
	})
	got, err := c.Chat(context.Background(), Tasks, nil, []string{"a", "b"})
	if err != nil || got != "gemini-1.5-flash:a,b" {
		t.Errorf("Chat = %q, %v", got, err)
	}
}

func TestToContents(t *testing.T) {
	contents := toContents([]models.Turn{
		{Role: models.RoleUser, Parts: []string{"hi"}},
		{Role: models.RoleModel},
		{Role: models.RoleModel, Parts: []string{"hello", "there"}},
	})
	if len(contents) != 2 {
		t.Fatalf("got %d contents", len(contents))
	}
	if contents[1].Role != models.RoleModel || len(contents[1].Parts) != 2 {
		t.Errorf("content = %+v", contents[1])
	}
}

func TestResponseText(t *testing.T) {
	if responseText(nil) != "" {
		t.Error("nil response should be empty")
	}
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Blob{}, genai.Text("b")}},
	}}}
	if got := responseText(resp); got != "ab" {
		t.Errorf("responseText = %q", got)
	}
}

func TestUserMessage(t *testing.T) {
	plain := userMessage([]string{"hi"}, []Attachment{{Name: "notes.pdf", MIMEType: "application/pdf", Data: []byte("x")}})
	if plain.MultiContent != nil || !strings.Contains(plain.Content, "notes.pdf") {
		t.Errorf("plain = %+v", plain)
	}

	withImage := userMessage([]string{"look"}, []Attachment{{MIMEType: "image/png", Data: []byte{1, 2}}})
	if len(withImage.MultiContent) != 2 || withImage.MultiContent[1].Type != openai.ChatMessagePartTypeImageURL {
		t.Fatalf("image message = %+v", withImage)
	}
	if !strings.HasPrefix(withImage.MultiContent[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %q", withImage.MultiContent[1].ImageURL.URL)
	}
}
