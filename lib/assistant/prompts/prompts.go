// Package prompts embeds the prompt templates sent to the chat models.
package prompts

import "embed"

//go:embed *.txt *.json
var FS embed.FS
