package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// TaskSuggestionSchema describes the task list the assistant may propose
// inside a fenced ```json block.
var TaskSuggestionSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"title": {"type": "string", "maxLength": 200},
			"description": {"type": "string"}
		},
		"required": ["title"]
	},
	"maxItems": 50
}`

var taskSchemaLoader = gojsonschema.NewStringLoader(TaskSuggestionSchema)

// jsonFence finds fenced ```json blocks in a model reply.
var jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// TaskSuggestion is a task proposed by the assistant.
type TaskSuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ValidateTaskSuggestions validates a JSON document against the task suggestion schema.
func ValidateTaskSuggestions(jsonData []byte) error {
	result, err := gojsonschema.Validate(taskSchemaLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to validate JSON schema: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("JSON validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}

// ExtractTaskSuggestions returns the tasks from the first valid fenced JSON
// block of reply. A reply without such a block yields no tasks.
func ExtractTaskSuggestions(reply string) []TaskSuggestion {
	for _, m := range jsonFence.FindAllStringSubmatch(reply, -1) {
		block := []byte(strings.TrimSpace(m[1]))
		if err := ValidateTaskSuggestions(block); err != nil {
			continue
		}
		var tasks []TaskSuggestion
		if err := json.Unmarshal(block, &tasks); err != nil {
			continue
		}
		return SanitizeTaskSuggestions(tasks)
	}
	return nil
}

// SanitizeTaskSuggestions trims fields and drops tasks without a title.
func SanitizeTaskSuggestions(tasks []TaskSuggestion) []TaskSuggestion {
	var clean []TaskSuggestion
	for _, t := range tasks {
		t.Title = strings.TrimSpace(t.Title)
		t.Description = strings.TrimSpace(t.Description)
		if t.Title != "" {
			clean = append(clean, t)
		}
	}
	return clean
}
