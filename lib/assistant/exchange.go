package assistant

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	"github.com/medleyhq/medley/models"
)

// ParseExchange converts "input: ..." / "output: ..." lines into user and
// model turns. Other lines are skipped.
func ParseExchange(lines []string) []models.Turn {
	turns := make([]models.Turn, 0, len(lines))
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "input:"):
			turns = append(turns, models.Turn{
				Role:  models.RoleUser,
				Parts: []string{strings.TrimSpace(strings.TrimPrefix(line, "input:"))},
			})
		case strings.HasPrefix(line, "output:"):
			turns = append(turns, models.Turn{
				Role:  models.RoleModel,
				Parts: []string{strings.TrimSpace(strings.TrimPrefix(line, "output:"))},
			})
		}
	}
	return turns
}

// ReadExchange accepts either a JSON array of strings or one entry per line.
func ReadExchange(data []byte) []models.Turn {
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		return ParseExchange(lines)
	}

	lines = nil
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	return ParseExchange(lines)
}
